package slack

import (
	"context"
	"strconv"
	"strings"

	"slackdb/pkg/models"
)

type wireReaction struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type wireMessage struct {
	TS          string         `json:"ts"`
	ThreadTS    string         `json:"thread_ts"`
	User        string         `json:"user"`
	Text        string         `json:"text"`
	Reactions   []wireReaction `json:"reactions"`
	LatestReply string         `json:"latest_reply"`
	ReplyCount  int            `json:"reply_count"`
	Channel     struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"channel"`
}

func (w wireMessage) model(channelID string) models.Message {
	m := models.Message{
		ChannelID:   channelID,
		ChannelName: w.Channel.Name,
		TS:          w.TS,
		ThreadTS:    w.ThreadTS,
		User:        w.User,
		Text:        w.Text,
	}
	if m.ChannelID == "" {
		m.ChannelID = w.Channel.ID
	}
	for _, r := range w.Reactions {
		m.Reactions = append(m.Reactions, models.Reaction{Name: r.Name, Count: r.Count})
	}
	return m
}

// searchQuery builds a Slack search modifier query. Double quotes inside
// the phrase would end the quoted term, so they are dropped.
func searchQuery(q models.SearchQuery) string {
	var b strings.Builder
	b.WriteByte('"')
	b.WriteString(strings.ReplaceAll(q.Phrase, `"`, " "))
	b.WriteByte('"')
	if q.ChannelName != "" {
		b.WriteString(" in:#")
		b.WriteString(q.ChannelName)
	} else if q.ChannelID != "" {
		b.WriteString(" in:<#" + q.ChannelID + ">")
	}
	if q.Author != "" {
		b.WriteString(" from:<@" + q.Author + ">")
	}
	return b.String()
}

func (c *Client) Search(ctx context.Context, q models.SearchQuery, page int) (models.SearchPage, error) {
	var out struct {
		Messages struct {
			Matches []wireMessage `json:"matches"`
			Paging  struct {
				Page  int `json:"page"`
				Pages int `json:"pages"`
			} `json:"paging"`
		} `json:"messages"`
	}
	err := c.call(ctx, "search.messages", c.searchToken(), map[string]string{
		"query":    searchQuery(q),
		"sort":     "timestamp",
		"sort_dir": "desc",
		"count":    strconv.Itoa(c.cfg.SearchPageSize),
		"page":     strconv.Itoa(page),
	}, &out)
	if err != nil {
		return models.SearchPage{}, err
	}
	res := models.SearchPage{Page: out.Messages.Paging.Page, PageCount: out.Messages.Paging.Pages}
	for _, w := range out.Messages.Matches {
		res.Matches = append(res.Matches, w.model(""))
	}
	return res, nil
}

func (c *Client) PostMessage(ctx context.Context, channelID, text, parentTS string) (models.Message, error) {
	args := map[string]string{"channel": channelID, "text": text}
	if parentTS != "" {
		args["thread_ts"] = parentTS
	}
	var out struct {
		Channel string      `json:"channel"`
		TS      string      `json:"ts"`
		Message wireMessage `json:"message"`
	}
	if err := c.call(ctx, "chat.postMessage", c.cfg.BotToken, args, &out); err != nil {
		return models.Message{}, err
	}
	m := out.Message.model(channelID)
	m.TS = out.TS
	if m.Text == "" {
		m.Text = text
	}
	if parentTS != "" {
		m.ThreadTS = parentTS
	}
	return m, nil
}

func (c *Client) DeleteMessage(ctx context.Context, channelID, ts string) error {
	return c.call(ctx, "chat.delete", c.cfg.BotToken, map[string]string{"channel": channelID, "ts": ts}, nil)
}

type repliesResponse struct {
	Messages         []wireMessage    `json:"messages"`
	HasMore          bool             `json:"has_more"`
	ResponseMetadata responseMetadata `json:"response_metadata"`
}

func (c *Client) replies(ctx context.Context, channelID, parentTS string, args map[string]string) (repliesResponse, error) {
	args["channel"] = channelID
	args["ts"] = parentTS
	var out repliesResponse
	err := c.call(ctx, "conversations.replies", c.cfg.BotToken, args, &out)
	return out, err
}

// ListReplies pages a thread oldest first. Slack has no reverse order for
// threads, so Newest with Limit 1 uses the parent's latest_reply to fetch
// the newest reply directly, and a larger Newest limit reads the whole
// thread and keeps its tail.
func (c *Client) ListReplies(ctx context.Context, channelID, parentTS string, opts models.ReplyOptions) (models.ReplyPage, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = c.cfg.ReplyPageSize
	}
	if !opts.Newest {
		args := map[string]string{"limit": strconv.Itoa(limit)}
		if opts.Cursor != "" {
			args["cursor"] = opts.Cursor
		}
		out, err := c.replies(ctx, channelID, parentTS, args)
		if err != nil {
			return models.ReplyPage{}, err
		}
		page := models.ReplyPage{}
		for _, w := range out.Messages {
			page.Messages = append(page.Messages, w.model(channelID))
		}
		if out.HasMore {
			page.NextCursor = out.ResponseMetadata.NextCursor
		}
		return page, nil
	}

	head, err := c.replies(ctx, channelID, parentTS, map[string]string{"limit": "1"})
	if err != nil {
		return models.ReplyPage{}, err
	}
	if len(head.Messages) == 0 {
		return models.ReplyPage{}, nil
	}
	parent := head.Messages[0]
	page := models.ReplyPage{Messages: []models.Message{parent.model(channelID)}}
	if parent.LatestReply == "" {
		return page, nil
	}

	var tail []wireMessage
	if limit == 1 {
		out, err := c.replies(ctx, channelID, parentTS, map[string]string{
			"oldest":    parent.LatestReply,
			"inclusive": "true",
			"limit":     "2",
		})
		if err != nil {
			return models.ReplyPage{}, err
		}
		tail = out.Messages
	} else {
		cursor := ""
		for {
			args := map[string]string{"limit": strconv.Itoa(c.cfg.ReplyPageSize)}
			if cursor != "" {
				args["cursor"] = cursor
			}
			out, err := c.replies(ctx, channelID, parentTS, args)
			if err != nil {
				return models.ReplyPage{}, err
			}
			tail = append(tail, out.Messages...)
			if !out.HasMore || out.ResponseMetadata.NextCursor == "" || out.ResponseMetadata.NextCursor == cursor {
				break
			}
			cursor = out.ResponseMetadata.NextCursor
		}
	}
	var replies []models.Message
	for _, w := range tail {
		if w.TS != parentTS {
			replies = append(replies, w.model(channelID))
		}
	}
	for i := len(replies) - 1; i >= 0 && len(page.Messages) <= limit; i-- {
		page.Messages = append(page.Messages, replies[i])
	}
	return page, nil
}
