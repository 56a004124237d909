package registry

import (
	"context"
	"encoding/json"

	"slackdb/pkg/kverr"
	"slackdb/pkg/logger"
	"slackdb/pkg/models"
)

// Deps are the core components bootstrap reads and writes through.
type Deps struct {
	Resolver interface {
		Resolve(ctx context.Context, scope models.Scope, phrase string, restricted bool) (models.Key, error)
	}
	Materializer interface {
		Materialize(ctx context.Context, key models.Key) (models.Value, error)
	}
	Engine interface {
		Persister
		Create(ctx context.Context, scope models.Scope, phrase string, values []string, meta models.Metadata) (models.Key, error)
	}
}

// Bootstrap loads the server's registry from the singleBack key named after
// the server in its supervisor channel. A missing key, an empty thread, or a
// snapshot that does not parse starts a fresh key holding an empty map.
func Bootstrap(ctx context.Context, d Deps, server string, supervisor models.Scope, restricted bool) (*Registry, error) {
	supervisor.Server = server
	channels, key, err := load(ctx, d, server, supervisor, restricted)
	if err != nil {
		return nil, err
	}
	if key.TS == "" {
		key, err = d.Engine.Create(ctx, supervisor, server, []string{"{}"}, models.Metadata{Type: models.TagSingleBack})
		if err != nil {
			return nil, err
		}
		channels = map[string]string{}
		logger.Info("registry_bootstrapped", "server", server, "supervisor", supervisor.ChannelName, "ts", key.TS)
	} else {
		logger.Info("registry_loaded", "server", server, "supervisor", supervisor.ChannelName, "ts", key.TS, "channels", len(channels))
	}
	return start(server, &state{channels: channels, key: key, persist: d.Engine, server: server}), nil
}

// load returns a zero key when bootstrap has to create a new one.
func load(ctx context.Context, d Deps, server string, supervisor models.Scope, restricted bool) (map[string]string, models.Key, error) {
	key, err := d.Resolver.Resolve(ctx, supervisor, server, restricted)
	if kverr.Is(err, kverr.NotFound) {
		return nil, models.Key{}, nil
	}
	if err != nil {
		return nil, models.Key{}, err
	}
	if key.Metadata.Type != models.TagSingleBack {
		logger.Warn("registry_key_wrong_type", "server", server, "type", key.Metadata.Type, "ts", key.TS)
		return nil, models.Key{}, nil
	}
	v, err := d.Materializer.Materialize(ctx, key)
	if kverr.Is(err, kverr.NotFound) {
		return nil, models.Key{}, nil
	}
	if err != nil {
		return nil, models.Key{}, err
	}
	channels, err := ParseSnapshot(v.Text)
	if err != nil {
		logger.Warn("registry_snapshot_unreadable", "server", server, "ts", key.TS, "error", err)
		return nil, models.Key{}, nil
	}
	return channels, key, nil
}

// ParseSnapshot decodes a persisted registry snapshot.
func ParseSnapshot(text string) (map[string]string, error) {
	var m map[string]string
	if err := json.Unmarshal([]byte(text), &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]string{}
	}
	return m, nil
}
