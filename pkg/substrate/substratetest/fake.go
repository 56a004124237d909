// Package substratetest provides an in-memory Substrate for tests. It counts
// calls, supports failure injection, and pages small so that callers' cursor
// loops are exercised.
package substratetest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"slackdb/pkg/models"
	"slackdb/pkg/substrate"
)

type fakeChannel struct {
	info     models.Channel
	members  []string
	top      []*models.Message
	replies  map[string][]*models.Message
	parentOf map[string]string
}

// Fake is a thread-safe, in-memory substrate.Substrate.
type Fake struct {
	mu       sync.Mutex
	channels map[string]*fakeChannel
	clock    int64
	nextID   int

	// User is stamped on every posted message.
	User string
	// SearchPageSize and ReplyPageSize bound the page sizes (defaults 2).
	SearchPageSize int
	ReplyPageSize  int

	// FailDelete, when set, decides per timestamp whether a delete fails.
	FailDelete func(ts string) error
	// FailPost, when set, is consulted before every post.
	FailPost func(channelID, text string) error
	// SearchErr, when set, fails every search.
	SearchErr error

	SearchCalls atomic.Int64
	PostCalls   atomic.Int64
	DeleteCalls atomic.Int64
	ReplyCalls  atomic.Int64
}

var _ substrate.Substrate = (*Fake)(nil)

// New returns an empty fake whose posts are authored by user.
func New(user string) *Fake {
	return &Fake{channels: map[string]*fakeChannel{}, User: user, SearchPageSize: 2, ReplyPageSize: 2}
}

// AddChannel seeds a channel with a fixed id.
func (f *Fake) AddChannel(id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels[id] = &fakeChannel{
		info:     models.Channel{ID: id, Name: name},
		replies:  map[string][]*models.Message{},
		parentOf: map[string]string{},
	}
}

// React adds count reactions named name to the message ts.
func (f *Fake) React(channelID, ts, name string, count int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.findLocked(channelID, ts)
	if m == nil {
		return &substrate.APIError{Method: "reactions.add", Code: "message_not_found"}
	}
	m.Reactions = append(m.Reactions, models.Reaction{Name: name, Count: count})
	return nil
}

// Replies returns a snapshot of the thread under parentTS, oldest first.
func (f *Fake) Replies(channelID, parentTS string) []models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := f.channels[channelID]
	if ch == nil {
		return nil
	}
	var out []models.Message
	for _, m := range ch.replies[parentTS] {
		out = append(out, *m)
	}
	return out
}

// TopLevel returns a snapshot of the channel's top-level messages, oldest first.
func (f *Fake) TopLevel(channelID string) []models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := f.channels[channelID]
	if ch == nil {
		return nil
	}
	var out []models.Message
	for _, m := range ch.top {
		out = append(out, *m)
	}
	return out
}

// Members returns the users invited to a channel.
func (f *Fake) Members(channelID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch := f.channels[channelID]; ch != nil {
		return append([]string(nil), ch.members...)
	}
	return nil
}

func (f *Fake) nextTS() string {
	f.clock++
	return fmt.Sprintf("1700000000.%06d", f.clock)
}

func (f *Fake) findLocked(channelID, ts string) *models.Message {
	ch := f.channels[channelID]
	if ch == nil {
		return nil
	}
	for _, m := range ch.top {
		if m.TS == ts {
			return m
		}
	}
	if p, ok := ch.parentOf[ts]; ok {
		for _, m := range ch.replies[p] {
			if m.TS == ts {
				return m
			}
		}
	}
	return nil
}

func (f *Fake) Search(_ context.Context, q models.SearchQuery, page int) (models.SearchPage, error) {
	f.SearchCalls.Add(1)
	if f.SearchErr != nil {
		return models.SearchPage{}, f.SearchErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := f.channels[q.ChannelID]
	if ch == nil {
		return models.SearchPage{Page: page}, nil
	}
	needle := strings.ToLower(q.Phrase)
	var hits []models.Message
	for i := len(ch.top) - 1; i >= 0; i-- {
		m := ch.top[i]
		if q.Author != "" && m.User != q.Author {
			continue
		}
		if strings.Contains(strings.ToLower(m.Text), needle) {
			hits = append(hits, *m)
		}
	}
	size := f.SearchPageSize
	if size <= 0 {
		size = 20
	}
	pages := (len(hits) + size - 1) / size
	lo := (page - 1) * size
	if lo < 0 || lo >= len(hits) {
		return models.SearchPage{Page: page, PageCount: pages}, nil
	}
	hi := lo + size
	if hi > len(hits) {
		hi = len(hits)
	}
	return models.SearchPage{Matches: hits[lo:hi], Page: page, PageCount: pages}, nil
}

func (f *Fake) PostMessage(_ context.Context, channelID, text, parentTS string) (models.Message, error) {
	f.PostCalls.Add(1)
	if f.FailPost != nil {
		if err := f.FailPost(channelID, text); err != nil {
			return models.Message{}, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := f.channels[channelID]
	if ch == nil {
		return models.Message{}, &substrate.APIError{Method: "chat.postMessage", Code: "channel_not_found"}
	}
	m := &models.Message{ChannelID: channelID, ChannelName: ch.info.Name, TS: f.nextTS(), User: f.User, Text: text}
	if parentTS == "" {
		ch.top = append(ch.top, m)
		return *m, nil
	}
	if f.findLocked(channelID, parentTS) == nil {
		return models.Message{}, &substrate.APIError{Method: "chat.postMessage", Code: "thread_not_found"}
	}
	m.ThreadTS = parentTS
	ch.replies[parentTS] = append(ch.replies[parentTS], m)
	ch.parentOf[m.TS] = parentTS
	return *m, nil
}

func (f *Fake) DeleteMessage(_ context.Context, channelID, ts string) error {
	f.DeleteCalls.Add(1)
	if f.FailDelete != nil {
		if err := f.FailDelete(ts); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := f.channels[channelID]
	if ch == nil {
		return &substrate.APIError{Method: "chat.delete", Code: "channel_not_found"}
	}
	for i, m := range ch.top {
		if m.TS == ts {
			ch.top = append(ch.top[:i], ch.top[i+1:]...)
			return nil
		}
	}
	if p, ok := ch.parentOf[ts]; ok {
		list := ch.replies[p]
		for i, m := range list {
			if m.TS == ts {
				ch.replies[p] = append(list[:i], list[i+1:]...)
				delete(ch.parentOf, ts)
				return nil
			}
		}
	}
	return &substrate.APIError{Method: "chat.delete", Code: "message_not_found"}
}

func (f *Fake) ListReplies(_ context.Context, channelID, parentTS string, opts models.ReplyOptions) (models.ReplyPage, error) {
	f.ReplyCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := f.channels[channelID]
	if ch == nil {
		return models.ReplyPage{}, &substrate.APIError{Method: "conversations.replies", Code: "channel_not_found"}
	}
	var parent *models.Message
	for _, m := range ch.top {
		if m.TS == parentTS {
			parent = m
		}
	}
	if parent == nil {
		return models.ReplyPage{}, &substrate.APIError{Method: "conversations.replies", Code: "thread_not_found"}
	}
	replies := ch.replies[parentTS]
	if opts.Newest {
		replies = reversed(replies)
	}
	offset := 0
	if opts.Cursor != "" {
		n, err := strconv.Atoi(opts.Cursor)
		if err != nil || n < 0 {
			return models.ReplyPage{}, &substrate.APIError{Method: "conversations.replies", Code: "invalid_cursor"}
		}
		offset = n
	}
	limit := opts.Limit
	if limit <= 0 || (f.ReplyPageSize > 0 && limit > f.ReplyPageSize) {
		limit = f.ReplyPageSize
	}
	var out models.ReplyPage
	if opts.Cursor == "" {
		out.Messages = append(out.Messages, *parent)
	}
	end := offset + limit
	if end > len(replies) {
		end = len(replies)
	}
	for _, m := range replies[min(offset, len(replies)):end] {
		out.Messages = append(out.Messages, *m)
	}
	if end < len(replies) {
		out.NextCursor = strconv.Itoa(end)
	}
	return out, nil
}

func reversed(in []*models.Message) []*models.Message {
	out := make([]*models.Message, len(in))
	for i, m := range in {
		out[len(in)-1-i] = m
	}
	return out
}

func (f *Fake) ListChannels(_ context.Context, cursor string) (models.ChannelPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []models.Channel
	for _, ch := range f.channels {
		if !ch.info.Archived {
			all = append(all, ch.info)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return models.ChannelPage{}, &substrate.APIError{Method: "conversations.list", Code: "invalid_cursor"}
		}
		offset = n
	}
	const size = 2
	end := min(offset+size, len(all))
	page := models.ChannelPage{Channels: all[min(offset, len(all)):end]}
	if end < len(all) {
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

func (f *Fake) CreateChannel(_ context.Context, name string, private bool) (models.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.channels {
		if ch.info.Name == name && !ch.info.Archived {
			return models.Channel{}, &substrate.APIError{Method: "conversations.create", Code: "name_taken"}
		}
	}
	f.nextID++
	id := fmt.Sprintf("CF%04d", f.nextID)
	f.channels[id] = &fakeChannel{
		info:     models.Channel{ID: id, Name: name, Private: private},
		replies:  map[string][]*models.Message{},
		parentOf: map[string]string{},
	}
	return f.channels[id].info, nil
}

func (f *Fake) ArchiveChannel(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := f.channels[channelID]
	if ch == nil {
		return &substrate.APIError{Method: "conversations.archive", Code: "channel_not_found"}
	}
	if ch.info.Archived {
		return &substrate.APIError{Method: "conversations.archive", Code: "already_archived"}
	}
	ch.info.Archived = true
	return nil
}

func (f *Fake) InviteUsers(_ context.Context, channelID string, userIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := f.channels[channelID]
	if ch == nil {
		return &substrate.APIError{Method: "conversations.invite", Code: "channel_not_found"}
	}
	ch.members = append(ch.members, userIDs...)
	return nil
}
