package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"slackdb/pkg/materializer"

	"github.com/adhocore/gronx"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort             = 8080
	defaultMaxRequestBody   = 1 << 20
	defaultShutdownTimeout  = 10 * time.Second
	defaultSlowThreshold    = 2 * time.Second
	defaultDriver           = "slack"
	defaultSlackTimeout     = 10 * time.Second
	defaultSlackRPS         = 1.0
	defaultSlackBurst       = 5
	defaultSlackMaxResponse = 16 << 20
	defaultSearchPageSize   = 20
	defaultLocalPath        = "./.slackdb"
	defaultLocalUser        = "ULOCALBOT"
	defaultWipeConcurrency  = 8
	defaultReplyPageSize    = 200
	defaultReconcileCron    = "*/30 * * * *"
)

// Addr returns the HTTP server address as host:port.
func (c *Config) Addr() string {
	port := c.Server.Port
	if port == 0 {
		port = defaultPort
	}
	return fmt.Sprintf("%s:%d", c.Server.Address, port)
}

// WipeConcurrency resolves the configured cap, applying the default when unset.
func (c *Config) WipeConcurrency() int {
	if c.Wipe.Concurrency == nil {
		return defaultWipeConcurrency
	}
	return *c.Wipe.Concurrency
}

// LoadConfigFile reads and parses a config file.
func LoadConfigFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// ValidateConfig fills in defaults and fails on the first invalid value.
func (c *Config) ValidateConfig() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Server.MaxRequestBody == 0 {
		c.Server.MaxRequestBody = defaultMaxRequestBody
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(defaultShutdownTimeout)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Telemetry.SlowThreshold == 0 {
		c.Telemetry.SlowThreshold = Duration(defaultSlowThreshold)
	}

	if err := c.validateSubstrate(); err != nil {
		return err
	}
	if err := c.validateServers(); err != nil {
		return err
	}

	if c.Wipe.Concurrency != nil && *c.Wipe.Concurrency < 0 {
		return fmt.Errorf("wipe.concurrency must be >= 0, got %d", *c.Wipe.Concurrency)
	}
	tb, err := materializer.ParseTieBreak(c.Materializer.VotingTieBreak)
	if err != nil {
		return err
	}
	c.Materializer.VotingTieBreak = string(tb)
	if c.Materializer.PageSize <= 0 {
		c.Materializer.PageSize = defaultReplyPageSize
	}
	if c.Resolver.MaxPages < 0 {
		return fmt.Errorf("resolver.max_pages must be >= 0")
	}

	if c.Reconcile.Cron == "" {
		c.Reconcile.Cron = defaultReconcileCron
	}
	if !gronx.IsValid(c.Reconcile.Cron) {
		return fmt.Errorf("invalid reconcile cron expression: %s", c.Reconcile.Cron)
	}
	return nil
}

func (c *Config) validateSubstrate() error {
	s := &c.Substrate
	if s.Driver == "" {
		s.Driver = defaultDriver
	}
	switch s.Driver {
	case "slack":
		if s.Slack.BotToken == "" {
			return errors.New("substrate.slack.bot_token is required (or SLACKDB_SLACK_BOT_TOKEN)")
		}
		if s.Slack.Timeout == 0 {
			s.Slack.Timeout = Duration(defaultSlackTimeout)
		}
		if s.Slack.RPS <= 0 {
			s.Slack.RPS = defaultSlackRPS
		}
		if s.Slack.Burst <= 0 {
			s.Slack.Burst = defaultSlackBurst
		}
		if s.Slack.MaxResponseSize == 0 {
			s.Slack.MaxResponseSize = defaultSlackMaxResponse
		}
		if s.Slack.SearchPageSize <= 0 {
			s.Slack.SearchPageSize = defaultSearchPageSize
		}
	case "local":
		if s.Local.Path == "" {
			s.Local.Path = defaultLocalPath
		}
		if s.Local.User == "" {
			s.Local.User = defaultLocalUser
		}
	default:
		return fmt.Errorf("unknown substrate driver %q (want slack or local)", s.Driver)
	}
	return nil
}

func (c *Config) validateServers() error {
	if len(c.Servers) == 0 {
		return errors.New("at least one entry in servers is required")
	}
	seen := map[string]bool{}
	for i := range c.Servers {
		srv := &c.Servers[i]
		if srv.Name == "" {
			return fmt.Errorf("servers[%d]: name is required", i)
		}
		if seen[srv.Name] {
			return fmt.Errorf("servers[%d]: duplicate name %q", i, srv.Name)
		}
		seen[srv.Name] = true
		switch c.Substrate.Driver {
		case "slack":
			if srv.Supervisor.ID == "" || srv.Supervisor.Name == "" {
				return fmt.Errorf("servers[%d]: supervisor id and name are required", i)
			}
		case "local":
			if srv.Supervisor.Name == "" {
				return fmt.Errorf("servers[%d]: supervisor name is required", i)
			}
			if srv.BotUserID == "" {
				srv.BotUserID = c.Substrate.Local.User
			}
		}
	}
	return nil
}

// ResolveConfigPath returns the config file path, preferring the flag, then env.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("SLACKDB_CONFIG"); p != "" {
		return p
	}
	return flagPath
}
