package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Logging      LoggingConfig      `yaml:"logging"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
	Substrate    SubstrateConfig    `yaml:"substrate"`
	Servers      []ServerEntry      `yaml:"servers"`
	Wipe         WipeConfig         `yaml:"wipe"`
	Materializer MaterializerConfig `yaml:"materializer"`
	Resolver     ResolverConfig     `yaml:"resolver"`
	Reconcile    ReconcileConfig    `yaml:"reconcile"`
}

type ServerConfig struct {
	Address         string    `yaml:"address"`
	Port            int       `yaml:"port"`
	MaxRequestBody  SizeBytes `yaml:"max_request_body"`
	ShutdownTimeout Duration  `yaml:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type TelemetryConfig struct {
	SlowThreshold Duration `yaml:"slow_threshold"`
}

// SubstrateConfig selects and configures the messaging backend.
type SubstrateConfig struct {
	Driver string      `yaml:"driver"` // slack | local
	Slack  SlackConfig `yaml:"slack"`
	Local  LocalConfig `yaml:"local"`
}

type SlackConfig struct {
	BaseURL         string    `yaml:"base_url"`
	BotToken        string    `yaml:"bot_token"`
	UserToken       string    `yaml:"user_token"`
	Timeout         Duration  `yaml:"timeout"`
	RPS             float64   `yaml:"rps"`
	Burst           int       `yaml:"burst"`
	MaxResponseSize SizeBytes `yaml:"max_response_size"`
	SearchPageSize  int       `yaml:"search_page_size"`
}

type LocalConfig struct {
	Path string `yaml:"path"`
	// User is the author id stamped on messages. It doubles as the bot
	// user id of servers that do not set one.
	User string `yaml:"user"`
	Sync bool   `yaml:"sync"`
}

// ServerEntry is one logical server sharing the substrate.
type ServerEntry struct {
	Name       string     `yaml:"name"`
	BotUserID  string     `yaml:"bot_user_id"`
	Supervisor ChannelRef `yaml:"supervisor"`
	Invitees   []string   `yaml:"invitees"`
}

type ChannelRef struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type WipeConfig struct {
	// Concurrency caps deletes in flight per wipe. Unset means the
	// default; 0 means unbounded.
	Concurrency *int `yaml:"concurrency"`
}

type MaterializerConfig struct {
	VotingTieBreak string `yaml:"voting_tie_break"`
	PageSize       int    `yaml:"page_size"`
}

type ResolverConfig struct {
	MaxPages int `yaml:"max_pages"`
}

type ReconcileConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
}

type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	v, err := parseSize(node.Value)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s SizeBytes) Int64() int64 { return int64(s) }

func (s SizeBytes) String() string { return humanize.IBytes(uint64(s)) }

func parseSize(raw string) (SizeBytes, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		return SizeBytes(v), nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return SizeBytes(i), nil
	}
	return 0, fmt.Errorf("invalid size value: %q", raw)
}

// Duration parses strings like "100ms" or plain numbers of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	v, err := parseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func parseDuration(raw string) (Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		return Duration(td), nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return Duration(time.Duration(f * float64(time.Second))), nil
	}
	return 0, fmt.Errorf("invalid duration value: %q", raw)
}
