package substrate

import (
	"context"
	"errors"

	"slackdb/pkg/models"
)

// ErrCursorLoop is returned when a driver hands back a cursor it already
// returned, which would otherwise page forever.
var ErrCursorLoop = errors.New("substrate returned a repeated cursor")

// CollectReplies follows the continuation cursor until it is exhausted and
// returns every reply in arrival order. The parent message is dropped.
func CollectReplies(ctx context.Context, t Threads, channelID, parentTS string, pageSize int) ([]models.Message, error) {
	var out []models.Message
	seen := map[string]bool{}
	cursor := ""
	for {
		page, err := t.ListReplies(ctx, channelID, parentTS, models.ReplyOptions{Cursor: cursor, Limit: pageSize})
		if err != nil {
			return nil, err
		}
		for _, m := range page.Messages {
			if m.TS == parentTS {
				continue
			}
			out = append(out, m)
		}
		if page.NextCursor == "" {
			return out, nil
		}
		if seen[page.NextCursor] {
			return nil, ErrCursorLoop
		}
		seen[page.NextCursor] = true
		cursor = page.NextCursor
	}
}

// CollectChannels pages through the full channel listing.
func CollectChannels(ctx context.Context, c Channels) ([]models.Channel, error) {
	var out []models.Channel
	seen := map[string]bool{}
	cursor := ""
	for {
		page, err := c.ListChannels(ctx, cursor)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Channels...)
		if page.NextCursor == "" {
			return out, nil
		}
		if seen[page.NextCursor] {
			return nil, ErrCursorLoop
		}
		seen[page.NextCursor] = true
		cursor = page.NextCursor
	}
}
