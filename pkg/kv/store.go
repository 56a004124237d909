// Package kv is the public surface of the store: key operations scoped by
// (server, channel name) and the channel administration that keeps each
// server's registry current.
package kv

import (
	"context"
	"errors"
	"sort"

	"slackdb/pkg/kverr"
	"slackdb/pkg/logger"
	"slackdb/pkg/materializer"
	"slackdb/pkg/models"
	"slackdb/pkg/mutation"
	"slackdb/pkg/registry"
	"slackdb/pkg/resolver"
	"slackdb/pkg/substrate"
	"slackdb/pkg/telemetry"

	"golang.org/x/sync/errgroup"
)

// ServerConfig describes one logical server.
type ServerConfig struct {
	Name string
	// BotUserID restricts append and bootstrap lookups to the bot's own
	// messages. Empty disables the restriction.
	BotUserID  string
	Supervisor models.Channel
	Invitees   []string
}

type Options struct {
	WipeConcurrency int
	TieBreak        materializer.TieBreak
	PageSize        int
	// MaxSearchPages caps the result pages a resolve walks. Zero is no cap.
	MaxSearchPages int
}

// Entry is a resolved key with its materialized value.
type Entry struct {
	Key   models.Key   `json:"key"`
	Value models.Value `json:"value"`
}

type server struct {
	cfg ServerConfig
	res *resolver.Search
	mat *materializer.Threads
	eng *mutation.Engine
	reg *registry.Registry
}

type Store struct {
	sub     substrate.Substrate
	servers map[string]*server
}

// Open builds the per-server cores and bootstraps every registry. Servers
// bootstrap concurrently; the first failure aborts Open.
func Open(ctx context.Context, sub substrate.Substrate, servers []ServerConfig, opts Options) (*Store, error) {
	if len(servers) == 0 {
		return nil, kverr.Errorf(kverr.Config, "open", "no servers configured")
	}
	s := &Store{sub: sub, servers: make(map[string]*server, len(servers))}
	for _, cfg := range servers {
		if cfg.Name == "" || cfg.Supervisor.ID == "" {
			return nil, kverr.Errorf(kverr.Config, "open", "server %q needs a name and a supervisor channel id", cfg.Name)
		}
		if _, dup := s.servers[cfg.Name]; dup {
			return nil, kverr.Errorf(kverr.Config, "open", "server %q configured twice", cfg.Name)
		}
		res := resolver.New(sub, cfg.BotUserID)
		res.MaxPages = opts.MaxSearchPages
		s.servers[cfg.Name] = &server{
			cfg: cfg,
			res: res,
			mat: materializer.New(sub, materializer.Options{TieBreak: opts.TieBreak, PageSize: opts.PageSize}),
			eng: mutation.New(sub, res, mutation.Options{WipeConcurrency: opts.WipeConcurrency, PageSize: opts.PageSize}),
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range s.servers {
		g.Go(func() error {
			reg, err := registry.Bootstrap(gctx, registry.Deps{Resolver: srv.res, Materializer: srv.mat, Engine: srv.eng},
				srv.cfg.Name, srv.supervisorScope(), srv.cfg.BotUserID != "")
			if err != nil {
				return err
			}
			srv.reg = reg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (srv *server) supervisorScope() models.Scope {
	return models.Scope{Server: srv.cfg.Name, ChannelID: srv.cfg.Supervisor.ID, ChannelName: srv.cfg.Supervisor.Name}
}

// Close stops every registry actor.
func (s *Store) Close() {
	for _, srv := range s.servers {
		if srv.reg != nil {
			srv.reg.Close()
		}
	}
}

// Servers lists the configured server names in order.
func (s *Store) Servers() []string {
	out := make([]string, 0, len(s.servers))
	for name := range s.servers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Substrate exposes the underlying substrate for maintenance jobs.
func (s *Store) Substrate() substrate.Substrate { return s.sub }

func (s *Store) server(op, name string) (*server, error) {
	srv, ok := s.servers[name]
	if !ok {
		return nil, kverr.Errorf(kverr.Config, op, "server %q is not configured", name)
	}
	return srv, nil
}

// scope translates a channel name into a scope through the registry. The
// supervisor channel always resolves.
func (s *Store) scope(ctx context.Context, op, serverName, channel string) (*server, models.Scope, error) {
	srv, err := s.server(op, serverName)
	if err != nil {
		return nil, models.Scope{}, err
	}
	if channel == srv.cfg.Supervisor.Name {
		return srv, srv.supervisorScope(), nil
	}
	id, err := srv.reg.Lookup(ctx, channel)
	if err != nil {
		return nil, models.Scope{}, err
	}
	return srv, models.Scope{Server: serverName, ChannelID: id, ChannelName: channel}, nil
}

func (s *Store) Create(ctx context.Context, serverName, channel, phrase string, values []string, meta models.Metadata) (models.Key, error) {
	tr := telemetry.Track("kv.create")
	defer tr.Finish()
	srv, sc, err := s.scope(ctx, "create", serverName, channel)
	if err != nil {
		return models.Key{}, err
	}
	tr.Mark("scope")
	return srv.eng.Create(ctx, sc, phrase, values, meta)
}

// Read resolves the key without author restriction and materializes it.
func (s *Store) Read(ctx context.Context, serverName, channel, phrase string) (Entry, error) {
	tr := telemetry.Track("kv.read")
	defer tr.Finish()
	srv, sc, err := s.scope(ctx, "read", serverName, channel)
	if err != nil {
		return Entry{}, err
	}
	tr.Mark("scope")
	key, err := srv.res.Resolve(ctx, sc, phrase, false)
	if err != nil {
		return Entry{}, err
	}
	tr.Mark("resolve")
	v, err := srv.mat.Materialize(ctx, key)
	if err != nil {
		return Entry{Key: key}, err
	}
	return Entry{Key: key, Value: v}, nil
}

func (s *Store) Update(ctx context.Context, serverName, channel, phrase string, values []string) (models.Key, error) {
	tr := telemetry.Track("kv.update")
	defer tr.Finish()
	srv, sc, err := s.scope(ctx, "update", serverName, channel)
	if err != nil {
		return models.Key{}, err
	}
	tr.Mark("scope")
	return srv.eng.Update(ctx, sc, phrase, values)
}

func (s *Store) Append(ctx context.Context, serverName, channel, phrase string, values []string) (models.Key, error) {
	tr := telemetry.Track("kv.append")
	defer tr.Finish()
	srv, sc, err := s.scope(ctx, "append", serverName, channel)
	if err != nil {
		return models.Key{}, err
	}
	tr.Mark("scope")
	return srv.eng.Append(ctx, sc, phrase, values)
}

// Delete returns the per-message wipe results, also on PartialFailure.
func (s *Store) Delete(ctx context.Context, serverName, channel, phrase string) ([]models.DeleteResult, error) {
	tr := telemetry.Track("kv.delete")
	defer tr.Finish()
	srv, sc, err := s.scope(ctx, "delete", serverName, channel)
	if err != nil {
		return nil, err
	}
	tr.Mark("scope")
	return srv.eng.Delete(ctx, sc, phrase)
}

// RegisterChannel creates a channel, invites the server's invitees, and
// registers it.
func (s *Store) RegisterChannel(ctx context.Context, serverName, name string, private bool) (models.Channel, error) {
	const op = "register_channel"
	tr := telemetry.Track("kv." + op)
	defer tr.Finish()
	srv, err := s.server(op, serverName)
	if err != nil {
		return models.Channel{}, err
	}
	ch, err := s.sub.CreateChannel(ctx, name, private)
	if err != nil {
		return models.Channel{}, kverr.Wrap(kverr.Upstream, op, err, "create channel %q", name)
	}
	tr.Mark("create")
	if len(srv.cfg.Invitees) > 0 {
		if err := s.sub.InviteUsers(ctx, ch.ID, srv.cfg.Invitees); err != nil {
			return ch, kverr.Wrap(kverr.Upstream, op, err, "invite users to %s", ch.ID)
		}
		tr.Mark("invite")
	}
	if err := srv.reg.Register(ctx, ch.Name, ch.ID); err != nil {
		return ch, err
	}
	return ch, nil
}

// IncludeExistingChannel registers a channel that already exists on the
// substrate, found by exact name.
func (s *Store) IncludeExistingChannel(ctx context.Context, serverName, name string) (models.Channel, error) {
	const op = "include_channel"
	tr := telemetry.Track("kv." + op)
	defer tr.Finish()
	srv, err := s.server(op, serverName)
	if err != nil {
		return models.Channel{}, err
	}
	all, err := substrate.CollectChannels(ctx, s.sub)
	if err != nil {
		return models.Channel{}, kverr.Wrap(kverr.Upstream, op, err, "list channels")
	}
	tr.Mark("list")
	for _, ch := range all {
		if ch.Name == name && !ch.Archived {
			if err := srv.reg.Register(ctx, ch.Name, ch.ID); err != nil {
				return ch, err
			}
			return ch, nil
		}
	}
	return models.Channel{}, kverr.Errorf(kverr.NotFound, op, "no channel named %q", name)
}

// ArchiveChannel archives a registered channel and drops it from the
// registry. The supervisor channel cannot be archived.
func (s *Store) ArchiveChannel(ctx context.Context, serverName, name string) error {
	const op = "archive_channel"
	tr := telemetry.Track("kv." + op)
	defer tr.Finish()
	srv, err := s.server(op, serverName)
	if err != nil {
		return err
	}
	if name == srv.cfg.Supervisor.Name {
		return kverr.Errorf(kverr.Forbidden, op, "the supervisor channel cannot be archived")
	}
	id, err := srv.reg.Lookup(ctx, name)
	if err != nil {
		return err
	}
	// An earlier attempt may have archived the channel and then failed to
	// persist the removal.
	if err := s.sub.ArchiveChannel(ctx, id); err != nil && !alreadyArchived(err) {
		return kverr.Wrap(kverr.Upstream, op, err, "archive %s", id)
	}
	tr.Mark("archive")
	if err := srv.reg.Remove(ctx, name); err != nil {
		return err
	}
	logger.Info("channel_archived", "server", serverName, "channel", name, "id", id)
	return nil
}

func alreadyArchived(err error) bool {
	var ae *substrate.APIError
	return errors.As(err, &ae) && ae.Code == "already_archived"
}

// DumpRegistry returns a copy of the server's channel map.
func (s *Store) DumpRegistry(ctx context.Context, serverName string) (map[string]string, error) {
	srv, err := s.server("dump_registry", serverName)
	if err != nil {
		return nil, err
	}
	return srv.reg.Snapshot(ctx)
}
