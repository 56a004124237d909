// Package resolver finds the authoritative key message for a phrase.
// Search ranks newest first, so the first exact match shadows every older
// key message with the same phrase.
package resolver

import (
	"context"

	"slackdb/pkg/kverr"
	"slackdb/pkg/logger"
	"slackdb/pkg/models"
	"slackdb/pkg/schema"
	"slackdb/pkg/substrate"
)

// Resolver is what the mutation engine and the store need from a resolver.
type Resolver interface {
	Resolve(ctx context.Context, scope models.Scope, phrase string, restricted bool) (models.Key, error)
}

// Search resolves keys through a substrate search index.
type Search struct {
	sub    substrate.Searcher
	author string
	// MaxPages caps how many result pages are examined. Zero means the
	// substrate's reported page count.
	MaxPages int
}

// New returns a resolver whose restricted lookups only consider messages
// posted by author.
func New(sub substrate.Searcher, author string) *Search {
	return &Search{sub: sub, author: author}
}

func (s *Search) Resolve(ctx context.Context, scope models.Scope, phrase string, restricted bool) (models.Key, error) {
	const op = "resolve"
	if phrase == "" {
		return models.Key{}, kverr.Errorf(kverr.Schema, op, "empty key phrase")
	}
	q := models.SearchQuery{ChannelID: scope.ChannelID, ChannelName: scope.ChannelName, Phrase: phrase}
	if restricted {
		q.Author = s.author
	}
	pages := 1
	for page := 1; page <= pages; page++ {
		res, err := s.sub.Search(ctx, q, page)
		if err != nil {
			return models.Key{}, kverr.Wrap(kverr.Upstream, op, err, "search page %d", page)
		}
		if res.PageCount < 0 || (res.Page != 0 && res.Page != page) {
			return models.Key{}, kverr.Errorf(kverr.Upstream, op, "malformed search page: asked %d, got %d of %d", page, res.Page, res.PageCount)
		}
		if page == 1 {
			pages = res.PageCount
			if s.MaxPages > 0 && pages > s.MaxPages {
				pages = s.MaxPages
			}
		}
		for _, m := range res.Matches {
			if m.IsReply() || (m.ChannelID != "" && m.ChannelID != scope.ChannelID) {
				continue
			}
			d, ok := schema.Decode(m.Text)
			if !ok || d.Phrase != phrase {
				continue
			}
			logger.Debug("key_resolved", "server", scope.Server, "channel", scope.ChannelName, "phrase", phrase, "ts", m.TS, "page", page)
			return models.Key{
				Server:      scope.Server,
				ChannelID:   scope.ChannelID,
				ChannelName: scope.ChannelName,
				Phrase:      d.Phrase,
				TS:          m.TS,
				Metadata:    d.Metadata,
			}, nil
		}
	}
	return models.Key{}, kverr.Errorf(kverr.NotFound, op, "no key %q in #%s", phrase, scope.ChannelName)
}
