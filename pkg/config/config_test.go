package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sample = `
server:
  address: 127.0.0.1
  port: 9090
  max_request_body: 2MiB
substrate:
  driver: slack
  slack:
    bot_token: xoxb-file
    timeout: 3s
    max_response_size: 4MB
servers:
  - name: acme
    bot_user_id: UBOT
    supervisor: {id: CSUP, name: slackdb}
    invitees: [U1, U2]
wipe:
  concurrency: 0
materializer:
  voting_tie_break: last
reconcile:
  enabled: true
  cron: "0 * * * *"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigFile(t *testing.T) {
	cfg, err := LoadConfigFile(writeConfig(t, sample))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.ValidateConfig(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Addr() != "127.0.0.1:9090" {
		t.Fatalf("addr = %s", cfg.Addr())
	}
	if cfg.Server.MaxRequestBody.Int64() != 2<<20 {
		t.Fatalf("max_request_body = %d", cfg.Server.MaxRequestBody)
	}
	if cfg.Substrate.Slack.Timeout.Duration() != 3*time.Second || cfg.Substrate.Slack.MaxResponseSize.Int64() != 4_000_000 {
		t.Fatalf("slack = %+v", cfg.Substrate.Slack)
	}
	if cfg.WipeConcurrency() != 0 {
		t.Fatalf("explicit 0 concurrency should be kept, got %d", cfg.WipeConcurrency())
	}
	if cfg.Materializer.VotingTieBreak != "last" || len(cfg.Servers[0].Invitees) != 2 {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestValidateDefaults(t *testing.T) {
	cfg := &Config{
		Substrate: SubstrateConfig{Driver: "local"},
		Servers:   []ServerEntry{{Name: "acme", Supervisor: ChannelRef{Name: "sup"}}},
	}
	if err := cfg.ValidateConfig(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.WipeConcurrency() != defaultWipeConcurrency {
		t.Fatalf("default concurrency = %d", cfg.WipeConcurrency())
	}
	if cfg.Substrate.Local.Path != defaultLocalPath || cfg.Servers[0].BotUserID != defaultLocalUser {
		t.Fatalf("local defaults not applied: %+v", cfg)
	}
	if cfg.Materializer.VotingTieBreak != "first" || cfg.Reconcile.Cron != defaultReconcileCron {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestValidateErrors(t *testing.T) {
	base := func() *Config {
		return &Config{
			Substrate: SubstrateConfig{Driver: "slack", Slack: SlackConfig{BotToken: "x"}},
			Servers:   []ServerEntry{{Name: "acme", Supervisor: ChannelRef{ID: "C", Name: "sup"}}},
		}
	}
	neg := -1
	cases := map[string]func(c *Config){
		"no token":     func(c *Config) { c.Substrate.Slack.BotToken = "" },
		"bad driver":   func(c *Config) { c.Substrate.Driver = "irc" },
		"no servers":   func(c *Config) { c.Servers = nil },
		"dup server":   func(c *Config) { c.Servers = append(c.Servers, c.Servers[0]) },
		"no sup id":    func(c *Config) { c.Servers[0].Supervisor.ID = "" },
		"neg wipe":     func(c *Config) { c.Wipe.Concurrency = &neg },
		"bad tiebreak": func(c *Config) { c.Materializer.VotingTieBreak = "random" },
		"bad cron":     func(c *Config) { c.Reconcile.Cron = "every minute" },
	}
	for name, mutate := range cases {
		c := base()
		mutate(c)
		if err := c.ValidateConfig(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if err := base().ValidateConfig(); err != nil {
		t.Fatalf("base config: %v", err)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("SLACKDB_SLACK_BOT_TOKEN", "xoxb-env")
	t.Setenv("SLACKDB_WIPE_CONCURRENCY", "3")
	t.Setenv("SLACKDB_SERVER_ADDR", "0.0.0.0:7070")
	path := writeConfig(t, sample)

	flags, err := ParseConfigFlags([]string{"-config", path})
	if err != nil {
		t.Fatalf("flags: %v", err)
	}
	fileCfg, found, err := ParseConfigFile(flags)
	if err != nil || !found {
		t.Fatalf("file: %v %v", found, err)
	}
	envCfg, used, err := ParseConfigEnvs()
	if err != nil || !used {
		t.Fatalf("env: %v %v", used, err)
	}
	res := LoadEffectiveConfig(flags, fileCfg, found, envCfg, used)
	if res.Source != "config+env" {
		t.Fatalf("source = %s", res.Source)
	}
	if res.Config.Substrate.Slack.BotToken != "xoxb-env" || res.Config.WipeConcurrency() != 3 || res.Addr != "0.0.0.0:7070" {
		t.Fatalf("env not applied: %+v", res.Config)
	}
	if res.Config.Materializer.VotingTieBreak != "last" {
		t.Fatalf("file value lost")
	}
}

func TestEnvParseError(t *testing.T) {
	t.Setenv("SLACKDB_WIPE_CONCURRENCY", "many")
	if _, _, err := ParseConfigEnvs(); err == nil || !strings.Contains(err.Error(), "SLACKDB_WIPE_CONCURRENCY") {
		t.Fatalf("expected env error, got %v", err)
	}
}

func TestMissingExplicitConfigFile(t *testing.T) {
	flags, _ := ParseConfigFlags([]string{"-config", filepath.Join(t.TempDir(), "nope.yaml")})
	if _, _, err := ParseConfigFile(flags); err == nil {
		t.Fatalf("expected error for explicit missing config")
	}
	flags, _ = ParseConfigFlags(nil)
	t.Chdir(t.TempDir())
	if cfg, found, err := ParseConfigFile(flags); err != nil || found || cfg == nil {
		t.Fatalf("implicit missing config: %v %v %v", cfg, found, err)
	}
}

func TestFlagAddrWins(t *testing.T) {
	flags, _ := ParseConfigFlags([]string{"-addr", "localhost:1234"})
	res := LoadEffectiveConfig(flags, &Config{}, false, nil, false)
	if res.Addr != "localhost:1234" || res.Source != "flags" {
		t.Fatalf("got %+v", res)
	}
}
