package local

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"slackdb/pkg/models"

	"github.com/cockroachdb/pebble"
)

// Search scans the channel's top-level messages newest first and matches
// the phrase as a case-insensitive substring.
func (s *Store) Search(_ context.Context, q models.SearchQuery, page int) (models.SearchPage, error) {
	if page < 1 {
		page = 1
	}
	ch, err := s.resolveChannel(q)
	if errors.Is(err, pebble.ErrNotFound) {
		return models.SearchPage{Page: page}, nil
	}
	if err != nil {
		return models.SearchPage{}, err
	}
	prefix := "msg:" + ch.ID + ":"
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: []byte(prefix), UpperBound: upper(prefix)})
	if err != nil {
		return models.SearchPage{}, err
	}
	defer iter.Close()

	needle := strings.ToLower(q.Phrase)
	lo, hi := (page-1)*defaultSearchPage, page*defaultSearchPage
	total := 0
	var out []models.Message
	for iter.Last(); iter.Valid(); iter.Prev() {
		var rec record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return models.SearchPage{}, err
		}
		if q.Author != "" && rec.User != q.Author {
			continue
		}
		if !strings.Contains(strings.ToLower(rec.Text), needle) {
			continue
		}
		if total >= lo && total < hi {
			out = append(out, rec.model(ch))
		}
		total++
	}
	if err := iter.Error(); err != nil {
		return models.SearchPage{}, err
	}
	return models.SearchPage{
		Matches:   out,
		Page:      page,
		PageCount: (total + defaultSearchPage - 1) / defaultSearchPage,
	}, nil
}

func (s *Store) resolveChannel(q models.SearchQuery) (channelRecord, error) {
	if q.ChannelID != "" {
		return s.channel(q.ChannelID)
	}
	chans, err := s.channels(true)
	if err != nil {
		return channelRecord{}, err
	}
	for _, ch := range chans {
		if ch.Name == q.ChannelName {
			return ch, nil
		}
	}
	return channelRecord{}, pebble.ErrNotFound
}

// ListReplies returns a page of the thread. The cursor is the timestamp of
// the last reply of the previous page.
func (s *Store) ListReplies(_ context.Context, channelID, parentTS string, opts models.ReplyOptions) (models.ReplyPage, error) {
	const method = "conversations.replies"
	ch, err := s.channel(channelID)
	if errors.Is(err, pebble.ErrNotFound) {
		return models.ReplyPage{}, apiErr(method, "channel_not_found")
	}
	if err != nil {
		return models.ReplyPage{}, err
	}
	var page models.ReplyPage
	if opts.Cursor == "" {
		v, err := s.get(msgKey(channelID, parentTS))
		if errors.Is(err, pebble.ErrNotFound) {
			return models.ReplyPage{}, apiErr(method, "thread_not_found")
		}
		if err != nil {
			return models.ReplyPage{}, err
		}
		var parent record
		if err := json.Unmarshal(v, &parent); err != nil {
			return models.ReplyPage{}, err
		}
		page.Messages = append(page.Messages, parent.model(ch))
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultReplyPage
	}
	prefix := repPrefix(channelID, parentTS)
	bounds := &pebble.IterOptions{LowerBound: []byte(prefix), UpperBound: upper(prefix)}
	if opts.Cursor != "" {
		if opts.Newest {
			bounds.UpperBound = []byte(prefix + opts.Cursor)
		} else {
			bounds.LowerBound = []byte(prefix + opts.Cursor + "\x00")
		}
	}
	iter, err := s.db.NewIter(bounds)
	if err != nil {
		return models.ReplyPage{}, err
	}
	defer iter.Close()

	step, valid := iter.Next, iter.First()
	if opts.Newest {
		step, valid = iter.Prev, iter.Last()
	}
	n := 0
	for ; valid; valid = step() {
		if n == limit {
			page.NextCursor = page.Messages[len(page.Messages)-1].TS
			break
		}
		var rec record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return models.ReplyPage{}, err
		}
		page.Messages = append(page.Messages, rec.model(ch))
		n++
	}
	return page, iter.Error()
}
