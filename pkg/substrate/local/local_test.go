package local

import (
	"context"
	"errors"
	"testing"
	"time"

	"slackdb/pkg/kv"
	"slackdb/pkg/models"
	"slackdb/pkg/substrate"

	"github.com/cockroachdb/pebble/vfs"
)

func openMem(t *testing.T) *Store {
	t.Helper()
	s, err := Open("db", Options{User: "ULOCAL", FS: vfs.NewMem(), Now: func() time.Time { return time.Unix(1700000000, 0) }})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTimestampsAreMonotonic(t *testing.T) {
	ctx := context.Background()
	s := openMem(t)
	ch, err := s.CreateChannel(ctx, "general", false)
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}
	a, _ := s.PostMessage(ctx, ch.ID, "a", "")
	b, _ := s.PostMessage(ctx, ch.ID, "b", "")
	if a.TS != "1700000000.000001" && a.TS != "1700000000.000000" {
		t.Fatalf("unexpected ts %s", a.TS)
	}
	if models.CompareTS(a.TS, b.TS) >= 0 || a.TS >= b.TS {
		t.Fatalf("timestamps not increasing: %s %s", a.TS, b.TS)
	}
}

func TestRepliesPagingBothDirections(t *testing.T) {
	ctx := context.Background()
	s := openMem(t)
	ch, _ := s.CreateChannel(ctx, "general", false)
	parent, _ := s.PostMessage(ctx, ch.ID, "k :family:", "")
	for _, v := range []string{"a", "b", "c", "d", "e"} {
		if _, err := s.PostMessage(ctx, ch.ID, v, parent.TS); err != nil {
			t.Fatalf("reply: %v", err)
		}
	}
	replies, err := substrate.CollectReplies(ctx, s, ch.ID, parent.TS, 2)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(replies) != 5 || replies[0].Text != "a" || replies[4].Text != "e" {
		t.Fatalf("unexpected replies %+v", replies)
	}
	page, err := s.ListReplies(ctx, ch.ID, parent.TS, models.ReplyOptions{Limit: 1, Newest: true})
	if err != nil {
		t.Fatalf("newest: %v", err)
	}
	if len(page.Messages) != 2 || page.Messages[0].TS != parent.TS || page.Messages[1].Text != "e" {
		t.Fatalf("unexpected newest page %+v", page)
	}
	next, err := s.ListReplies(ctx, ch.ID, parent.TS, models.ReplyOptions{Limit: 1, Newest: true, Cursor: page.NextCursor})
	if err != nil || len(next.Messages) != 1 || next.Messages[0].Text != "d" {
		t.Fatalf("second newest page %+v %v", next, err)
	}
}

func TestSearchNewestFirstWithAuthor(t *testing.T) {
	ctx := context.Background()
	s := openMem(t)
	ch, _ := s.CreateChannel(ctx, "general", false)
	s.PostMessage(ctx, ch.ID, "Color :monkey:", "")
	s.opts.User = "UOTHER"
	s.PostMessage(ctx, ch.ID, "color :family:", "")

	page, err := s.Search(ctx, models.SearchQuery{ChannelName: "general", Phrase: "color"}, 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(page.Matches) != 2 || page.Matches[0].Text != "color :family:" || page.PageCount != 1 {
		t.Fatalf("unexpected page %+v", page)
	}
	page, _ = s.Search(ctx, models.SearchQuery{ChannelID: ch.ID, Author: "ULOCAL", Phrase: "color"}, 1)
	if len(page.Matches) != 1 || page.Matches[0].User != "ULOCAL" {
		t.Fatalf("author filter: %+v", page)
	}
}

func TestDeleteAndErrors(t *testing.T) {
	ctx := context.Background()
	s := openMem(t)
	ch, _ := s.CreateChannel(ctx, "general", false)
	m, _ := s.PostMessage(ctx, ch.ID, "x", "")
	if err := s.DeleteMessage(ctx, ch.ID, m.TS); err != nil {
		t.Fatalf("delete: %v", err)
	}
	var apiErr *substrate.APIError
	if err := s.DeleteMessage(ctx, ch.ID, m.TS); !errors.As(err, &apiErr) || apiErr.Code != "message_not_found" {
		t.Fatalf("expected message_not_found, got %v", err)
	}
	if _, err := s.PostMessage(ctx, ch.ID, "y", "123.000000"); !errors.As(err, &apiErr) || apiErr.Code != "thread_not_found" {
		t.Fatalf("expected thread_not_found, got %v", err)
	}
	if _, err := s.CreateChannel(ctx, "general", false); !errors.As(err, &apiErr) || apiErr.Code != "name_taken" {
		t.Fatalf("expected name_taken, got %v", err)
	}
}

func TestStateSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	fs := vfs.NewMem()
	s, err := Open("db", Options{User: "U", FS: fs})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ch, _ := s.CreateChannel(ctx, "general", false)
	m, _ := s.PostMessage(ctx, ch.ID, "x", "")
	s.Close()

	s2, err := Open("db", Options{User: "U", FS: fs, Now: func() time.Time { return time.Unix(0, 0) }})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	m2, err := s2.PostMessage(ctx, ch.ID, "y", "")
	if err != nil {
		t.Fatalf("post after reopen: %v", err)
	}
	if m2.TS <= m.TS {
		t.Fatalf("clock went backwards: %s after %s", m2.TS, m.TS)
	}
	ch2, err := s2.CreateChannel(ctx, "other", false)
	if err != nil || ch2.ID == ch.ID {
		t.Fatalf("channel id reused: %v %v", ch2, err)
	}
}

func TestStoreOnLocalSubstrate(t *testing.T) {
	ctx := context.Background()
	s := openMem(t)
	sup, err := s.EnsureChannel(ctx, "supervisor")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	store, err := kv.Open(ctx, s, []kv.ServerConfig{{Name: "acme", BotUserID: "ULOCAL", Supervisor: sup}}, kv.Options{WipeConcurrency: 2})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	if _, err := store.RegisterChannel(ctx, "acme", "polls", false); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := store.Create(ctx, "acme", "lunch-room", "lunch", nil, models.Metadata{Type: models.TagVoting}); err == nil {
		t.Fatalf("expected an error for an unregistered channel")
	}
	key, err := store.Create(ctx, "acme", "polls", "lunch", []string{"A", "B", "C"}, models.Metadata{Type: models.TagVoting})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	replies, _ := substrate.CollectReplies(ctx, s, key.ChannelID, key.TS, 10)
	for i := 0; i < 5; i++ {
		s.AddReaction(ctx, key.ChannelID, replies[1].TS, "thumbsup")
	}
	s.AddReaction(ctx, key.ChannelID, replies[2].TS, "thumbsup")
	e, err := store.Read(ctx, "acme", "polls", "lunch")
	if err != nil || e.Value.Text != "B" {
		t.Fatalf("read: %+v %v", e, err)
	}
}
