// Package reconcile periodically compares each server's channel registry with
// the substrate's channel listing and reports drift. It never mutates the
// registry.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"slackdb/pkg/logger"
	"slackdb/pkg/models"
	"slackdb/pkg/substrate"

	"github.com/adhocore/gronx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var driftGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "slackdb_registry_drift",
	Help: "Registry entries that no longer match a live substrate channel.",
}, []string{"server"})

// Source is the part of kv.Store the checker reads.
type Source interface {
	Servers() []string
	DumpRegistry(ctx context.Context, server string) (map[string]string, error)
	Substrate() substrate.Substrate
}

// Drift is one registry entry that does not match the substrate.
type Drift struct {
	Server string `json:"server"`
	Name   string `json:"name"`
	ID     string `json:"id"`
	// Reason is "missing" when the id is gone or archived, "renamed" when the
	// live channel carries another name.
	Reason string `json:"reason"`
	// Current is the live name of a renamed channel.
	Current string `json:"current,omitempty"`
}

// Report is the result of one check across all servers.
type Report struct {
	Checked int     `json:"checked"`
	Drift   []Drift `json:"drift"`
}

// Check lists the live channels once and compares every server's registry
// against them.
func Check(ctx context.Context, src Source) (Report, error) {
	live, err := substrate.CollectChannels(ctx, src.Substrate())
	if err != nil {
		return Report{}, fmt.Errorf("list channels: %w", err)
	}
	byID := make(map[string]models.Channel, len(live))
	for _, ch := range live {
		byID[ch.ID] = ch
	}

	var rep Report
	for _, server := range src.Servers() {
		reg, err := src.DumpRegistry(ctx, server)
		if err != nil {
			return rep, fmt.Errorf("dump registry %s: %w", server, err)
		}
		names := make([]string, 0, len(reg))
		for name := range reg {
			names = append(names, name)
		}
		sort.Strings(names)

		drifted := 0
		for _, name := range names {
			id := reg[name]
			rep.Checked++
			ch, ok := byID[id]
			switch {
			case !ok:
				rep.Drift = append(rep.Drift, Drift{Server: server, Name: name, ID: id, Reason: "missing"})
			case ch.Name != name:
				rep.Drift = append(rep.Drift, Drift{Server: server, Name: name, ID: id, Reason: "renamed", Current: ch.Name})
			default:
				continue
			}
			drifted++
		}
		driftGauge.WithLabelValues(server).Set(float64(drifted))
	}
	return rep, nil
}

// Manager runs Check on a cron schedule.
type Manager struct {
	cron string
	src  Source
	now  func() time.Time

	mu      sync.Mutex
	running bool
}

func NewManager(cron string, src Source) *Manager {
	return &Manager{cron: cron, src: src, now: time.Now}
}

// Start launches the schedule loop; the returned func stops it.
func (m *Manager) Start(ctx context.Context) context.CancelFunc {
	ctx, cancel := context.WithCancel(ctx)
	logger.Info("reconcile_enabled", "cron", m.cron)
	go m.loop(ctx)
	return cancel
}

func (m *Manager) loop(ctx context.Context) {
	for {
		next, err := gronx.NextTickAfter(m.cron, m.now(), false)
		if err != nil {
			logger.Error("reconcile_nexttick_failed", "cron", m.cron, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		wait := next.Sub(m.now())
		if wait < time.Second {
			wait = time.Second
		}
		select {
		case <-time.After(wait):
			m.RunOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce performs a single check unless one is already in flight.
func (m *Manager) RunOnce(ctx context.Context) (Report, bool) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return Report{}, false
	}
	m.running = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	start := m.now()
	rep, err := Check(ctx, m.src)
	if err != nil {
		logger.Error("reconcile_run_error", "error", err)
		return rep, true
	}
	for _, d := range rep.Drift {
		logger.Warn("registry_drift", "server", d.Server, "channel", d.Name, "id", d.ID, "reason", d.Reason, "current", d.Current)
	}
	logger.Info("reconcile_run_complete", "checked", rep.Checked, "drift", len(rep.Drift), "elapsed", m.now().Sub(start))
	return rep, true
}
