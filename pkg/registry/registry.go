// Package registry owns each server's channel name to id map. One goroutine
// per server holds the map and applies requests one at a time in submission
// order. Every change is persisted as a full JSON snapshot appended to the
// server's bootstrap key before it becomes visible.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"sync"

	"slackdb/pkg/kverr"
	"slackdb/pkg/logger"
	"slackdb/pkg/models"

	"github.com/prometheus/client_golang/prometheus"
)

var channelsGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Name: "slackdb_registry_channels",
	Help: "Channels registered per server.",
}, []string{"server"})

func init() {
	prometheus.MustRegister(channelsGauge)
}

// ErrClosed is returned for requests submitted after Close.
var ErrClosed = errors.New("registry closed")

// Persister appends a snapshot under an existing key.
type Persister interface {
	AppendKey(ctx context.Context, key models.Key, values []string) error
}

type request struct {
	ctx   context.Context
	apply func(ctx context.Context, st *state) error
	reply chan error
}

type state struct {
	channels map[string]string
	key      models.Key
	persist  Persister
	server   string
}

// Registry is the actor handle. It is safe for concurrent use.
type Registry struct {
	server string
	reqs   chan request
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once
}

func start(server string, st *state) *Registry {
	r := &Registry{
		server: server,
		reqs:   make(chan request),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	channelsGauge.WithLabelValues(server).Set(float64(len(st.channels)))
	go r.loop(st)
	return r
}

func (r *Registry) loop(st *state) {
	defer close(r.done)
	for {
		select {
		case req := <-r.reqs:
			req.reply <- req.apply(req.ctx, st)
		case <-r.quit:
			return
		}
	}
}

func (r *Registry) submit(ctx context.Context, fn func(ctx context.Context, st *state) error) error {
	req := request{ctx: ctx, apply: fn, reply: make(chan error, 1)}
	select {
	case r.reqs <- req:
	case <-r.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-req.reply
}

// Server is the logical server this registry belongs to.
func (r *Registry) Server() string { return r.server }

// Lookup returns the id registered for name.
func (r *Registry) Lookup(ctx context.Context, name string) (string, error) {
	var id string
	err := r.submit(ctx, func(_ context.Context, st *state) error {
		var ok bool
		if id, ok = st.channels[name]; !ok {
			return kverr.Errorf(kverr.NotFound, "registry.lookup", "channel %q is not registered on %s", name, st.server)
		}
		return nil
	})
	return id, err
}

// Snapshot returns a copy of the map.
func (r *Registry) Snapshot(ctx context.Context) (map[string]string, error) {
	var out map[string]string
	err := r.submit(ctx, func(_ context.Context, st *state) error {
		out = maps.Clone(st.channels)
		return nil
	})
	return out, err
}

// BootstrapKey is the key the snapshots are appended to.
func (r *Registry) BootstrapKey(ctx context.Context) (models.Key, error) {
	var k models.Key
	err := r.submit(ctx, func(_ context.Context, st *state) error {
		k = st.key
		return nil
	})
	return k, err
}

// Register maps name to id and persists the new snapshot. Re-registering
// the same pair is a no-op.
func (r *Registry) Register(ctx context.Context, name, id string) error {
	if name == "" || id == "" {
		return kverr.Errorf(kverr.Schema, "registry.register", "channel name and id are required")
	}
	return r.submit(ctx, func(ctx context.Context, st *state) error {
		if st.channels[name] == id {
			return nil
		}
		next := maps.Clone(st.channels)
		next[name] = id
		if err := st.commit(ctx, next); err != nil {
			return err
		}
		logger.Info("channel_registered", "server", st.server, "channel", name, "id", id)
		return nil
	})
}

// Remove drops name and persists the new snapshot.
func (r *Registry) Remove(ctx context.Context, name string) error {
	return r.submit(ctx, func(ctx context.Context, st *state) error {
		if _, ok := st.channels[name]; !ok {
			return kverr.Errorf(kverr.NotFound, "registry.remove", "channel %q is not registered on %s", name, st.server)
		}
		next := maps.Clone(st.channels)
		delete(next, name)
		if err := st.commit(ctx, next); err != nil {
			return err
		}
		logger.Info("channel_unregistered", "server", st.server, "channel", name)
		return nil
	})
}

// commit persists next and only then installs it.
func (st *state) commit(ctx context.Context, next map[string]string) error {
	blob, err := json.Marshal(next)
	if err != nil {
		return kverr.Wrap(kverr.Schema, "registry.persist", err, "encode snapshot")
	}
	if err := st.persist.AppendKey(ctx, st.key, []string{string(blob)}); err != nil {
		logger.Error("registry_persist_failed", "server", st.server, "error", err)
		return err
	}
	st.channels = next
	channelsGauge.WithLabelValues(st.server).Set(float64(len(next)))
	return nil
}

// Close stops the actor. Pending and later requests fail with ErrClosed.
func (r *Registry) Close() {
	r.once.Do(func() { close(r.quit) })
	<-r.done
}
