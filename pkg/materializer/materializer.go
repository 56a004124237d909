// Package materializer reduces a key's reply thread to a value according to
// the key's type tag.
package materializer

import (
	"context"
	"fmt"
	"sort"

	"slackdb/pkg/kverr"
	"slackdb/pkg/models"
	"slackdb/pkg/substrate"
)

// TieBreak picks the winner among voting replies with equal tallies.
type TieBreak string

const (
	TieFirst TieBreak = "first"
	TieLast  TieBreak = "last"
)

// ParseTieBreak accepts "first", "last" or "" (first).
func ParseTieBreak(s string) (TieBreak, error) {
	switch TieBreak(s) {
	case "", TieFirst:
		return TieFirst, nil
	case TieLast:
		return TieLast, nil
	}
	return "", fmt.Errorf("invalid voting tie break %q (want first or last)", s)
}

// Materializer is what the store needs from a materializer.
type Materializer interface {
	Materialize(ctx context.Context, key models.Key) (models.Value, error)
}

type Options struct {
	TieBreak TieBreak
	// PageSize is passed to the substrate as the reply page limit.
	PageSize int
}

// Threads materializes values from substrate threads.
type Threads struct {
	sub  substrate.Threads
	opts Options
}

func New(sub substrate.Threads, opts Options) *Threads {
	if opts.TieBreak == "" {
		opts.TieBreak = TieFirst
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 200
	}
	return &Threads{sub: sub, opts: opts}
}

func (t *Threads) Materialize(ctx context.Context, key models.Key) (models.Value, error) {
	const op = "materialize"
	switch key.Metadata.Type {
	case models.TagSingleBack:
		m, err := t.newest(ctx, key)
		if err != nil {
			return models.Value{}, err
		}
		return models.SingleValue(m.Text), nil

	case models.TagSingleFront:
		replies, err := t.chronological(ctx, key)
		if err != nil {
			return models.Value{}, err
		}
		if len(replies) == 0 {
			return models.Value{}, noReplies(op, key)
		}
		return models.SingleValue(replies[0].Text), nil

	case models.TagMultiple:
		replies, err := t.chronological(ctx, key)
		if err != nil {
			return models.Value{}, err
		}
		texts := make([]string, len(replies))
		for i, m := range replies {
			texts[i] = m.Text
		}
		return models.MultiValue(texts), nil

	case models.TagVoting:
		replies, err := t.chronological(ctx, key)
		if err != nil {
			return models.Value{}, err
		}
		if len(replies) == 0 {
			return models.Value{}, noReplies(op, key)
		}
		return models.SingleValue(elect(replies, t.opts.TieBreak).Text), nil
	}
	return models.Value{}, kverr.Errorf(kverr.Schema, op, "key %q has no type tag", key.Phrase)
}

func noReplies(op string, key models.Key) error {
	return kverr.Errorf(kverr.NotFound, op, "no_replies: key %q", key.Phrase)
}

// chronological follows the cursor to the end and sorts by timestamp. The
// sort is stable so equal timestamps keep arrival order.
func (t *Threads) chronological(ctx context.Context, key models.Key) ([]models.Message, error) {
	replies, err := substrate.CollectReplies(ctx, t.sub, key.ChannelID, key.TS, t.opts.PageSize)
	if err != nil {
		return nil, kverr.Wrap(kverr.Upstream, "materialize", err, "list replies of %s", key.TS)
	}
	sort.SliceStable(replies, func(i, j int) bool {
		return models.CompareTS(replies[i].TS, replies[j].TS) < 0
	})
	return replies, nil
}

// newest reads one reply from the back of the thread.
func (t *Threads) newest(ctx context.Context, key models.Key) (models.Message, error) {
	page, err := t.sub.ListReplies(ctx, key.ChannelID, key.TS, models.ReplyOptions{Limit: 1, Newest: true})
	if err != nil {
		return models.Message{}, kverr.Wrap(kverr.Upstream, "materialize", err, "list newest reply of %s", key.TS)
	}
	for _, m := range page.Messages {
		if m.TS != key.TS {
			return m, nil
		}
	}
	return models.Message{}, noReplies("materialize", key)
}

// elect returns the reply with the strictly greatest reaction tally. replies
// must be in chronological order.
func elect(replies []models.Message, tie TieBreak) models.Message {
	best := 0
	for i := 1; i < len(replies); i++ {
		n, b := replies[i].ReactionCount(), replies[best].ReactionCount()
		if n > b || (n == b && tie == TieLast) {
			best = i
		}
	}
	return replies[best]
}
