package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
)

// Flags holds parsed command-line flag values and which were set.
type Flags struct {
	Addr   string
	Config string
	Set    map[string]bool
}

// EffectiveConfigResult is the merged configuration and where it came from.
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	Source string
}

// ParseConfigFlags parses the daemon flags from args.
func ParseConfigFlags(args []string) (Flags, error) {
	fset := flag.NewFlagSet("slackdb", flag.ContinueOnError)
	addr := fset.String("addr", "", "HTTP listen address (overrides config)")
	cfg := fset.String("config", "./config.yaml", "Path to config file")
	if err := fset.Parse(args); err != nil {
		return Flags{}, err
	}
	set := make(map[string]bool)
	fset.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return Flags{Addr: *addr, Config: *cfg, Set: set}, nil
}

// ParseConfigFile loads the config file named by the flags or SLACKDB_CONFIG.
// A missing file is only an error when it was asked for explicitly.
func ParseConfigFile(flags Flags) (*Config, bool, error) {
	path := ResolveConfigPath(flags.Config, flags.Set["config"])
	cfg, err := LoadConfigFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		if flags.Set["config"] {
			return nil, false, fmt.Errorf("config file %s not found", path)
		}
		return &Config{}, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}

// ParseConfigEnvs reads SLACKDB_* variables into a sparse Config holding
// only the values that were set.
func ParseConfigEnvs() (*Config, bool, error) {
	env := func(k string) string { return strings.TrimSpace(os.Getenv("SLACKDB_" + k)) }
	cfg := &Config{}
	used := false
	var firstErr error
	note := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	str := func(k string, dst *string) {
		if v := env(k); v != "" {
			*dst = v
			used = true
		}
	}
	num := func(k string, dst *int) {
		if v := env(k); v != "" {
			n, err := strconv.Atoi(v)
			note(wrapEnv(k, err))
			*dst = n
			used = true
		}
	}

	if v := env("SERVER_ADDR"); v != "" {
		used = true
		if h, p, err := net.SplitHostPort(v); err == nil {
			cfg.Server.Address = h
			cfg.Server.Port, err = strconv.Atoi(p)
			note(wrapEnv("SERVER_ADDR", err))
		} else {
			cfg.Server.Address = v
		}
	}
	num("SERVER_PORT", &cfg.Server.Port)
	str("LOG_LEVEL", &cfg.Logging.Level)
	if v := env("TELEMETRY_SLOW_THRESHOLD"); v != "" {
		d, err := parseDuration(v)
		note(wrapEnv("TELEMETRY_SLOW_THRESHOLD", err))
		cfg.Telemetry.SlowThreshold = d
		used = true
	}

	str("SUBSTRATE_DRIVER", &cfg.Substrate.Driver)
	str("SLACK_BASE_URL", &cfg.Substrate.Slack.BaseURL)
	str("SLACK_BOT_TOKEN", &cfg.Substrate.Slack.BotToken)
	str("SLACK_USER_TOKEN", &cfg.Substrate.Slack.UserToken)
	if v := env("SLACK_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		note(wrapEnv("SLACK_RPS", err))
		cfg.Substrate.Slack.RPS = f
		used = true
	}
	num("SLACK_BURST", &cfg.Substrate.Slack.Burst)
	if v := env("SLACK_TIMEOUT"); v != "" {
		d, err := parseDuration(v)
		note(wrapEnv("SLACK_TIMEOUT", err))
		cfg.Substrate.Slack.Timeout = d
		used = true
	}
	if v := env("SLACK_MAX_RESPONSE_SIZE"); v != "" {
		sz, err := parseSize(v)
		note(wrapEnv("SLACK_MAX_RESPONSE_SIZE", err))
		cfg.Substrate.Slack.MaxResponseSize = sz
		used = true
	}
	str("LOCAL_PATH", &cfg.Substrate.Local.Path)
	str("LOCAL_USER", &cfg.Substrate.Local.User)

	if v := env("WIPE_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		note(wrapEnv("WIPE_CONCURRENCY", err))
		cfg.Wipe.Concurrency = &n
		used = true
	}
	str("VOTING_TIE_BREAK", &cfg.Materializer.VotingTieBreak)
	if v := env("RECONCILE_ENABLED"); v != "" {
		cfg.Reconcile.Enabled = parseBool(v)
		used = true
	}
	str("RECONCILE_CRON", &cfg.Reconcile.Cron)
	return cfg, used, firstErr
}

func wrapEnv(k string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("SLACKDB_%s: %w", k, err)
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// LoadEffectiveConfig layers env over the file and the -addr flag over
// both. Secrets such as tokens are expected to come from env.
func LoadEffectiveConfig(flags Flags, fileCfg *Config, fileExists bool, envCfg *Config, envUsed bool) EffectiveConfigResult {
	out := &Config{}
	if fileCfg != nil {
		cp := *fileCfg
		out = &cp
	}
	var sources []string
	if fileExists {
		sources = append(sources, "config")
	}
	if envUsed && envCfg != nil {
		overlay(out, envCfg)
		sources = append(sources, "env")
	}
	if flags.Set["addr"] {
		if h, p, err := net.SplitHostPort(flags.Addr); err == nil {
			out.Server.Address = h
			if n, err := strconv.Atoi(p); err == nil {
				out.Server.Port = n
			}
		}
		sources = append(sources, "flags")
	}
	if len(sources) == 0 {
		sources = append(sources, "defaults")
	}
	return EffectiveConfigResult{Config: out, Addr: out.Addr(), Source: strings.Join(sources, "+")}
}

// overlay copies every set field of src onto dst.
func overlay(dst, src *Config) {
	setStr := func(d *string, s string) {
		if s != "" {
			*d = s
		}
	}
	setStr(&dst.Server.Address, src.Server.Address)
	if src.Server.Port != 0 {
		dst.Server.Port = src.Server.Port
	}
	setStr(&dst.Logging.Level, src.Logging.Level)
	if src.Telemetry.SlowThreshold != 0 {
		dst.Telemetry.SlowThreshold = src.Telemetry.SlowThreshold
	}
	setStr(&dst.Substrate.Driver, src.Substrate.Driver)
	setStr(&dst.Substrate.Slack.BaseURL, src.Substrate.Slack.BaseURL)
	setStr(&dst.Substrate.Slack.BotToken, src.Substrate.Slack.BotToken)
	setStr(&dst.Substrate.Slack.UserToken, src.Substrate.Slack.UserToken)
	if src.Substrate.Slack.RPS != 0 {
		dst.Substrate.Slack.RPS = src.Substrate.Slack.RPS
	}
	if src.Substrate.Slack.Burst != 0 {
		dst.Substrate.Slack.Burst = src.Substrate.Slack.Burst
	}
	if src.Substrate.Slack.Timeout != 0 {
		dst.Substrate.Slack.Timeout = src.Substrate.Slack.Timeout
	}
	if src.Substrate.Slack.MaxResponseSize != 0 {
		dst.Substrate.Slack.MaxResponseSize = src.Substrate.Slack.MaxResponseSize
	}
	setStr(&dst.Substrate.Local.Path, src.Substrate.Local.Path)
	setStr(&dst.Substrate.Local.User, src.Substrate.Local.User)
	if src.Wipe.Concurrency != nil {
		n := *src.Wipe.Concurrency
		dst.Wipe.Concurrency = &n
	}
	setStr(&dst.Materializer.VotingTieBreak, src.Materializer.VotingTieBreak)
	if src.Reconcile.Enabled {
		dst.Reconcile.Enabled = true
	}
	setStr(&dst.Reconcile.Cron, src.Reconcile.Cron)
}

// Summary renders the effective configuration for the startup banner.
// Secrets are reported as set or unset only.
func (c *Config) Summary() []string {
	secret := func(s string) string {
		if s == "" {
			return "unset"
		}
		return "set"
	}
	items := []string{
		"addr: " + c.Addr(),
		"log level: " + c.Logging.Level,
		"substrate: " + c.Substrate.Driver,
	}
	switch c.Substrate.Driver {
	case "slack":
		items = append(items,
			fmt.Sprintf("slack: rps=%g burst=%d timeout=%s max_response=%s", c.Substrate.Slack.RPS, c.Substrate.Slack.Burst, c.Substrate.Slack.Timeout.Duration(), c.Substrate.Slack.MaxResponseSize),
			"slack bot token: "+secret(c.Substrate.Slack.BotToken),
			"slack user token: "+secret(c.Substrate.Slack.UserToken),
		)
	case "local":
		items = append(items, "local path: "+c.Substrate.Local.Path)
	}
	for _, s := range c.Servers {
		items = append(items, fmt.Sprintf("server %s: supervisor #%s (%s), %d invitees", s.Name, s.Supervisor.Name, s.Supervisor.ID, len(s.Invitees)))
	}
	conc := strconv.Itoa(c.WipeConcurrency())
	if c.WipeConcurrency() == 0 {
		conc = "unbounded"
	}
	items = append(items,
		"wipe concurrency: "+conc,
		"voting tie break: "+c.Materializer.VotingTieBreak,
	)
	if c.Reconcile.Enabled {
		items = append(items, "reconcile: "+c.Reconcile.Cron)
	} else {
		items = append(items, "reconcile: disabled")
	}
	return items
}
