package telemetry

import (
	"sync/atomic"
	"time"

	"slackdb/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
)

type Step struct {
	Name     string  `json:"name"`
	Duration float64 `json:"duration_ms"`
}

type Trace struct {
	Name     string    `json:"name"`
	Start    time.Time `json:"start"`
	Steps    []Step    `json:"steps"`
	TotalMS  float64   `json:"total_ms"`
	lastMark time.Time
	done     bool
}

var (
	opDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "slackdb_op_duration_seconds",
		Help:    "Duration of core operations.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
	}, []string{"op"})

	slowNanos atomic.Int64
)

func init() {
	prometheus.MustRegister(opDuration)
}

// SetSlowThreshold logs every finished trace slower than d. Zero disables it.
func SetSlowThreshold(d time.Duration) {
	slowNanos.Store(int64(d))
}

// Track starts a new trace.
func Track(name string) *Trace {
	now := time.Now()
	return &Trace{Name: name, Start: now, lastMark: now}
}

// Mark records the elapsed duration since the last mark.
func (tr *Trace) Mark(label string) {
	now := time.Now()
	tr.Steps = append(tr.Steps, Step{Name: label, Duration: now.Sub(tr.lastMark).Seconds() * 1000})
	tr.lastMark = now
}

// Finish observes the trace duration. Safe to call multiple times or via defer.
func (tr *Trace) Finish() {
	if tr == nil || tr.done {
		return
	}
	tr.done = true
	total := time.Since(tr.Start)
	tr.TotalMS = total.Seconds() * 1000

	var sum float64
	for _, s := range tr.Steps {
		sum += s.Duration
	}
	if remaining := tr.TotalMS - sum; remaining > 0.001 {
		tr.Steps = append(tr.Steps, Step{Name: "unmarked", Duration: remaining})
	}

	opDuration.WithLabelValues(tr.Name).Observe(total.Seconds())
	if slow := time.Duration(slowNanos.Load()); slow > 0 && total >= slow {
		logger.Warn("slow_operation", "op", tr.Name, "total_ms", tr.TotalMS, "steps", tr.Steps)
	}
}
