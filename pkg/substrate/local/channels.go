package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"slackdb/pkg/models"

	"github.com/cockroachdb/pebble"
)

func (s *Store) channels(activeOnly bool) ([]channelRecord, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: []byte("ch:"), UpperBound: upper("ch:")})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []channelRecord
	for iter.First(); iter.Valid(); iter.Next() {
		var ch channelRecord
		if err := json.Unmarshal(iter.Value(), &ch); err != nil {
			return nil, err
		}
		if activeOnly && ch.Archived {
			continue
		}
		out = append(out, ch)
	}
	return out, iter.Error()
}

// ListChannels pages active channels in id order. The cursor is the last
// id of the previous page.
func (s *Store) ListChannels(_ context.Context, cursor string) (models.ChannelPage, error) {
	all, err := s.channels(true)
	if err != nil {
		return models.ChannelPage{}, err
	}
	var page models.ChannelPage
	for _, ch := range all {
		if cursor != "" && ch.ID <= cursor {
			continue
		}
		if len(page.Channels) == channelPage {
			page.NextCursor = page.Channels[len(page.Channels)-1].ID
			break
		}
		page.Channels = append(page.Channels, ch.Channel)
	}
	return page, nil
}

func (s *Store) CreateChannel(_ context.Context, name string, private bool) (models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.channels(true)
	if err != nil {
		return models.Channel{}, err
	}
	for _, ch := range all {
		if ch.Name == name {
			return models.Channel{}, apiErr("conversations.create", "name_taken")
		}
	}
	s.chSeq++
	ch := channelRecord{Channel: models.Channel{ID: fmt.Sprintf("L%08d", s.chSeq), Name: name, Private: private}}
	if err := s.putChannel(ch); err != nil {
		s.chSeq--
		return models.Channel{}, err
	}
	return ch.Channel, nil
}

// EnsureChannel creates name if no active channel carries it and returns
// the channel either way. It is how a fresh database gets its supervisor
// channel.
func (s *Store) EnsureChannel(ctx context.Context, name string) (models.Channel, error) {
	all, err := s.channels(true)
	if err != nil {
		return models.Channel{}, err
	}
	for _, ch := range all {
		if ch.Name == name {
			return ch.Channel, nil
		}
	}
	return s.CreateChannel(ctx, name, true)
}

func (s *Store) putChannel(ch channelRecord) error {
	blob, err := json.Marshal(ch)
	if err != nil {
		return err
	}
	b := s.db.NewBatch()
	defer b.Close()
	b.Set([]byte(chKey(ch.ID)), blob, nil)
	b.Set([]byte("meta:chseq"), []byte(strconv.FormatInt(s.chSeq, 10)), nil)
	return s.commit(b)
}

func (s *Store) ArchiveChannel(_ context.Context, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, err := s.channel(channelID)
	if errors.Is(err, pebble.ErrNotFound) {
		return apiErr("conversations.archive", "channel_not_found")
	}
	if err != nil {
		return err
	}
	if ch.Archived {
		return apiErr("conversations.archive", "already_archived")
	}
	ch.Archived = true
	return s.putChannel(ch)
}

func (s *Store) InviteUsers(_ context.Context, channelID string, userIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, err := s.channel(channelID)
	if errors.Is(err, pebble.ErrNotFound) {
		return apiErr("conversations.invite", "channel_not_found")
	}
	if err != nil {
		return err
	}
	for _, u := range userIDs {
		dup := false
		for _, m := range ch.Members {
			dup = dup || m == u
		}
		if !dup {
			ch.Members = append(ch.Members, u)
		}
	}
	return s.putChannel(ch)
}
