// Package substrate defines the remote messaging platform the store is built
// on. Drivers live in subpackages: slack talks to the Slack Web API, local
// keeps everything in an embedded pebble database.
package substrate

import (
	"context"
	"fmt"

	"slackdb/pkg/models"
)

// Searcher runs ranked full-text searches. Page numbers start at 1.
type Searcher interface {
	Search(ctx context.Context, q models.SearchQuery, page int) (models.SearchPage, error)
}

// Threads lists a message's thread. Without a cursor the first message of
// the page is the parent itself.
type Threads interface {
	ListReplies(ctx context.Context, channelID, parentTS string, opts models.ReplyOptions) (models.ReplyPage, error)
}

// Writer posts and deletes messages. An empty parentTS posts at top level.
type Writer interface {
	PostMessage(ctx context.Context, channelID, text, parentTS string) (models.Message, error)
	DeleteMessage(ctx context.Context, channelID, ts string) error
}

// Channels administers channels.
type Channels interface {
	ListChannels(ctx context.Context, cursor string) (models.ChannelPage, error)
	CreateChannel(ctx context.Context, name string, private bool) (models.Channel, error)
	ArchiveChannel(ctx context.Context, channelID string) error
	InviteUsers(ctx context.Context, channelID string, userIDs []string) error
}

// Substrate is the full capability set a driver provides.
type Substrate interface {
	Searcher
	Threads
	Writer
	Channels
}

// APIError is a failure reported by the platform itself rather than by the
// transport, e.g. Slack's {"ok":false,"error":"message_not_found"}.
type APIError struct {
	Method string
	Code   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Method, e.Code)
}
