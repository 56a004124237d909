package mutation

import (
	"context"

	"slackdb/pkg/kverr"
	"slackdb/pkg/logger"
	"slackdb/pkg/models"
	"slackdb/pkg/substrate"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

var wipeDeletes = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "slackdb_wipe_deletes_total",
	Help: "Message deletes issued by thread wipes.",
}, []string{"outcome"})

func init() {
	prometheus.MustRegister(wipeDeletes)
}

// Wipe deletes every reply of key, and the key message itself when
// includeKey is set. Deletes run concurrently up to WipeConcurrency and are
// not retried. The result list has one entry per message in thread order,
// key message first; any failed entry turns the error into PartialFailure.
func (e *Engine) Wipe(ctx context.Context, key models.Key, includeKey bool) ([]models.DeleteResult, error) {
	const op = "wipe"
	replies, err := substrate.CollectReplies(ctx, e.sub, key.ChannelID, key.TS, e.opts.PageSize)
	if err != nil {
		return nil, kverr.Wrap(kverr.Upstream, op, err, "list replies of %s", key.TS)
	}
	targets := make([]string, 0, len(replies)+1)
	if includeKey {
		targets = append(targets, key.TS)
	}
	for _, m := range replies {
		targets = append(targets, m.TS)
	}

	results := make([]models.DeleteResult, len(targets))
	var g errgroup.Group
	if e.opts.WipeConcurrency > 0 {
		g.SetLimit(e.opts.WipeConcurrency)
	}
	for i, ts := range targets {
		g.Go(func() error {
			err := e.sub.DeleteMessage(ctx, key.ChannelID, ts)
			results[i] = models.DeleteResult{TS: ts, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.OK() {
			wipeDeletes.WithLabelValues("ok").Inc()
			continue
		}
		failed++
		wipeDeletes.WithLabelValues("error").Inc()
	}
	if failed > 0 {
		logger.Warn("wipe_partial_failure", "channel", key.ChannelName, "phrase", key.Phrase, "ts", key.TS, "failed", failed, "total", len(results))
		return results, kverr.Partial(op, results)
	}
	logger.Debug("thread_wiped", "channel", key.ChannelName, "ts", key.TS, "deleted", len(results), "include_key", includeKey)
	return results, nil
}
