package app

import (
	"context"
	"fmt"

	"slackdb/pkg/config"
	"slackdb/pkg/logger"
	"slackdb/pkg/models"
	"slackdb/pkg/substrate"
	"slackdb/pkg/substrate/local"
	"slackdb/pkg/substrate/slack"
)

// openSubstrate builds the configured driver. For the local driver it also
// creates any supervisor channel given by name only and records its id in cfg.
func openSubstrate(ctx context.Context, cfg *config.Config) (substrate.Substrate, func() error, error) {
	sc := cfg.Substrate
	switch sc.Driver {
	case "slack":
		c, err := slack.New(slack.Config{
			BaseURL:          sc.Slack.BaseURL,
			BotToken:         sc.Slack.BotToken,
			UserToken:        sc.Slack.UserToken,
			Timeout:          sc.Slack.Timeout.Duration(),
			RPS:              sc.Slack.RPS,
			Burst:            sc.Slack.Burst,
			MaxResponseBytes: int(sc.Slack.MaxResponseSize.Int64()),
			SearchPageSize:   sc.Slack.SearchPageSize,
			ReplyPageSize:    cfg.Materializer.PageSize,
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Info("substrate_opened", "driver", "slack", "base_url", sc.Slack.BaseURL)
		return c, func() error { return nil }, nil
	case "local":
		st, err := local.Open(sc.Local.Path, local.Options{User: sc.Local.User, Sync: sc.Local.Sync})
		if err != nil {
			return nil, nil, fmt.Errorf("open local substrate at %s: %w", sc.Local.Path, err)
		}
		for i := range cfg.Servers {
			sup := &cfg.Servers[i].Supervisor
			if sup.ID != "" {
				continue
			}
			ch, err := st.EnsureChannel(ctx, sup.Name)
			if err != nil {
				_ = st.Close()
				return nil, nil, fmt.Errorf("ensure supervisor channel %s: %w", sup.Name, err)
			}
			sup.ID = ch.ID
		}
		logger.Info("substrate_opened", "driver", "local", "path", sc.Local.Path)
		return st, st.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown substrate driver %q", sc.Driver)
}

func modelsChannel(ref config.ChannelRef) models.Channel {
	return models.Channel{ID: ref.ID, Name: ref.Name}
}
