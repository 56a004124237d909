package resolver

import (
	"context"
	"errors"
	"testing"

	"slackdb/pkg/kverr"
	"slackdb/pkg/models"
	"slackdb/pkg/substrate/substratetest"
)

const bot = "UBOT"

var scope = models.Scope{Server: "acme", ChannelID: "C1", ChannelName: "general"}

func seed(t *testing.T) *substratetest.Fake {
	t.Helper()
	f := substratetest.New(bot)
	f.AddChannel("C1", "general")
	f.AddChannel("C2", "random")
	return f
}

func post(t *testing.T, f *substratetest.Fake, ch, text string) models.Message {
	t.Helper()
	m, err := f.PostMessage(context.Background(), ch, text, "")
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	return m
}

func TestResolveNewestExactMatchWins(t *testing.T) {
	f := seed(t)
	old := post(t, f, "C1", "color :hear_no_evil:")
	post(t, f, "C1", "color scheme :monkey:")
	post(t, f, "C1", "just chatting about color")
	newer := post(t, f, "C1", "color :family::anchor:")
	_ = old

	k, err := New(f, bot).Resolve(context.Background(), scope, "color", false)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if k.TS != newer.TS {
		t.Fatalf("expected newest key %s, got %s", newer.TS, k.TS)
	}
	if k.Metadata.Type != models.TagMultiple || !k.Metadata.Has(models.TagUndeletable) {
		t.Fatalf("unexpected metadata: %+v", k.Metadata)
	}
	if k.Server != "acme" || k.ChannelName != "general" {
		t.Fatalf("scope not carried: %+v", k)
	}
}

func TestResolveWalksPages(t *testing.T) {
	f := seed(t)
	want := post(t, f, "C1", "alpha :monkey:")
	for i := 0; i < 5; i++ {
		post(t, f, "C1", "alpha beta gamma")
	}
	k, err := New(f, bot).Resolve(context.Background(), scope, "alpha", false)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if k.TS != want.TS {
		t.Fatalf("got %s want %s", k.TS, want.TS)
	}
	if f.SearchCalls.Load() != 3 {
		t.Fatalf("expected 3 search pages, got %d", f.SearchCalls.Load())
	}
}

func TestResolveRestrictedIgnoresOtherAuthors(t *testing.T) {
	f := seed(t)
	f.User = "UHUMAN"
	post(t, f, "C1", "token :monkey:")
	r := New(f, bot)
	if _, err := r.Resolve(context.Background(), scope, "token", true); !kverr.Is(err, kverr.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if _, err := r.Resolve(context.Background(), scope, "token", false); err != nil {
		t.Fatalf("unrestricted resolve: %v", err)
	}
}

func TestResolveScopedToChannel(t *testing.T) {
	f := seed(t)
	post(t, f, "C2", "secret :monkey:")
	if _, err := New(f, bot).Resolve(context.Background(), scope, "secret", false); !kverr.Is(err, kverr.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestResolveUpstreamError(t *testing.T) {
	f := seed(t)
	f.SearchErr = errors.New("boom")
	_, err := New(f, bot).Resolve(context.Background(), scope, "x", false)
	if !kverr.Is(err, kverr.Upstream) {
		t.Fatalf("expected Upstream, got %v", err)
	}
}

type badPager struct{}

func (badPager) Search(_ context.Context, _ models.SearchQuery, page int) (models.SearchPage, error) {
	return models.SearchPage{Page: page + 1, PageCount: 3}, nil
}

func TestResolveMalformedPaging(t *testing.T) {
	_, err := New(badPager{}, bot).Resolve(context.Background(), scope, "x", false)
	if !kverr.Is(err, kverr.Upstream) {
		t.Fatalf("expected Upstream, got %v", err)
	}
}
