// Package local implements substrate.Substrate on an embedded pebble
// database. It mimics the Slack data model closely enough to run the store
// without a workspace: channels, threaded messages, reactions, and a
// newest-first substring search.
//
// Key layout:
//
//	ch:<id>                     channel record
//	msg:<ch>:<ts>               top-level message
//	rep:<ch>:<parent>:<ts>      reply
//	loc:<ch>:<ts>               parent ts of a message ("" for top level)
//	meta:clock, meta:chseq      generators
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"slackdb/pkg/logger"
	"slackdb/pkg/models"
	"slackdb/pkg/substrate"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

const (
	defaultSearchPage = 20
	defaultReplyPage  = 100
	channelPage       = 100
)

type Options struct {
	// User is stamped on every message this process posts.
	User string
	// FS overrides the filesystem, e.g. vfs.NewMem() in tests.
	FS vfs.FS
	// Sync fsyncs every write.
	Sync bool
	// Now overrides the clock used for timestamps.
	Now func() time.Time
}

type Store struct {
	db   *pebble.DB
	opts Options
	wo   *pebble.WriteOptions

	mu      sync.Mutex
	lastSec int64
	lastSeq int64
	chSeq   int64
}

var _ substrate.Substrate = (*Store)(nil)

type record struct {
	TS        string            `json:"ts"`
	ThreadTS  string            `json:"thread_ts,omitempty"`
	User      string            `json:"user,omitempty"`
	Text      string            `json:"text"`
	Reactions []models.Reaction `json:"reactions,omitempty"`
}

type channelRecord struct {
	models.Channel
	Members []string `json:"members,omitempty"`
}

// Open opens or creates the database at path.
func Open(path string, opts Options) (*Store, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	po := &pebble.Options{}
	if opts.FS != nil {
		po.FS = opts.FS
	}
	db, err := pebble.Open(path, po)
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, err
	}
	s := &Store{db: db, opts: opts, wo: pebble.NoSync}
	if opts.Sync {
		s.wo = pebble.Sync
	}
	if err := s.loadGenerators(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) loadGenerators() error {
	if v, err := s.get("meta:clock"); err == nil {
		sec, seq, ok := strings.Cut(string(v), ".")
		if !ok {
			return fmt.Errorf("local: corrupt clock %q", v)
		}
		s.lastSec, _ = strconv.ParseInt(sec, 10, 64)
		s.lastSeq, _ = strconv.ParseInt(seq, 10, 64)
	} else if !errors.Is(err, pebble.ErrNotFound) {
		return err
	}
	if v, err := s.get("meta:chseq"); err == nil {
		s.chSeq, _ = strconv.ParseInt(string(v), 10, 64)
	} else if !errors.Is(err, pebble.ErrNotFound) {
		return err
	}
	return nil
}

func (s *Store) get(key string) ([]byte, error) {
	v, closer, err := s.db.Get([]byte(key))
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), v...), nil
}

// nextTS hands out strictly increasing fixed-width timestamps so that key
// order is chronological order. Callers hold s.mu.
func (s *Store) nextTS() string {
	now := s.opts.Now().Unix()
	if now > s.lastSec {
		s.lastSec, s.lastSeq = now, 0
	} else {
		s.lastSeq++
		if s.lastSeq > 999999 {
			s.lastSec, s.lastSeq = s.lastSec+1, 0
		}
	}
	return formatTS(s.lastSec, s.lastSeq)
}

func formatTS(sec, seq int64) string {
	return fmt.Sprintf("%010d.%06d", sec, seq)
}

func msgKey(ch, ts string) string { return "msg:" + ch + ":" + ts }
func repPrefix(ch, parent string) string { return "rep:" + ch + ":" + parent + ":" }
func repKey(ch, parent, ts string) string { return repPrefix(ch, parent) + ts }
func locKey(ch, ts string) string { return "loc:" + ch + ":" + ts }
func chKey(id string) string { return "ch:" + id }
func upper(prefix string) []byte { return []byte(prefix + "\xff") }
func apiErr(method, code string) error { return &substrate.APIError{Method: method, Code: code} }
func (s *Store) commit(b *pebble.Batch) error { return b.Commit(s.wo) }

func (s *Store) channel(id string) (channelRecord, error) {
	var ch channelRecord
	v, err := s.get(chKey(id))
	if err != nil {
		return ch, err
	}
	return ch, json.Unmarshal(v, &ch)
}

// messageKey returns the storage key of ts in channel, or "" if unknown.
func (s *Store) messageKey(channelID, ts string) (string, error) {
	parent, err := s.get(locKey(channelID, ts))
	if errors.Is(err, pebble.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if len(parent) == 0 {
		return msgKey(channelID, ts), nil
	}
	return repKey(channelID, string(parent), ts), nil
}

func (r record) model(ch channelRecord) models.Message {
	return models.Message{
		ChannelID:   ch.ID,
		ChannelName: ch.Name,
		TS:          r.TS,
		ThreadTS:    r.ThreadTS,
		User:        r.User,
		Text:        r.Text,
		Reactions:   r.Reactions,
	}
}

func (s *Store) PostMessage(_ context.Context, channelID, text, parentTS string) (models.Message, error) {
	const method = "chat.postMessage"
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, err := s.channel(channelID)
	if errors.Is(err, pebble.ErrNotFound) || ch.Archived {
		return models.Message{}, apiErr(method, "channel_not_found")
	}
	if err != nil {
		return models.Message{}, err
	}
	if parentTS != "" {
		if _, err := s.get(msgKey(channelID, parentTS)); errors.Is(err, pebble.ErrNotFound) {
			return models.Message{}, apiErr(method, "thread_not_found")
		} else if err != nil {
			return models.Message{}, err
		}
	}
	rec := record{TS: s.nextTS(), ThreadTS: parentTS, User: s.opts.User, Text: text}
	blob, err := json.Marshal(rec)
	if err != nil {
		return models.Message{}, err
	}
	b := s.db.NewBatch()
	defer b.Close()
	key := msgKey(channelID, rec.TS)
	if parentTS != "" {
		key = repKey(channelID, parentTS, rec.TS)
	}
	b.Set([]byte(key), blob, nil)
	b.Set([]byte(locKey(channelID, rec.TS)), []byte(parentTS), nil)
	b.Set([]byte("meta:clock"), []byte(rec.TS), nil)
	if err := s.commit(b); err != nil {
		return models.Message{}, err
	}
	return rec.model(ch), nil
}

func (s *Store) DeleteMessage(_ context.Context, channelID, ts string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, err := s.messageKey(channelID, ts)
	if err != nil {
		return err
	}
	if key == "" {
		return apiErr("chat.delete", "message_not_found")
	}
	b := s.db.NewBatch()
	defer b.Close()
	b.Delete([]byte(key), nil)
	b.Delete([]byte(locKey(channelID, ts)), nil)
	return s.commit(b)
}

// AddReaction adds one reaction named name to a message.
func (s *Store) AddReaction(_ context.Context, channelID, ts, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, err := s.messageKey(channelID, ts)
	if err != nil {
		return err
	}
	if key == "" {
		return apiErr("reactions.add", "message_not_found")
	}
	v, err := s.get(key)
	if err != nil {
		return err
	}
	var rec record
	if err := json.Unmarshal(v, &rec); err != nil {
		return err
	}
	found := false
	for i := range rec.Reactions {
		if rec.Reactions[i].Name == name {
			rec.Reactions[i].Count++
			found = true
		}
	}
	if !found {
		rec.Reactions = append(rec.Reactions, models.Reaction{Name: name, Count: 1})
	}
	blob, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Set([]byte(key), blob, s.wo)
}
