package slack

import (
	"context"
	"strconv"
	"strings"

	"slackdb/pkg/models"
)

type wireChannel struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsPrivate  bool   `json:"is_private"`
	IsArchived bool   `json:"is_archived"`
}

func (w wireChannel) model() models.Channel {
	return models.Channel{ID: w.ID, Name: w.Name, Private: w.IsPrivate, Archived: w.IsArchived}
}

func (c *Client) ListChannels(ctx context.Context, cursor string) (models.ChannelPage, error) {
	args := map[string]string{
		"types":            "public_channel,private_channel",
		"exclude_archived": "true",
		"limit":            strconv.Itoa(200),
	}
	if cursor != "" {
		args["cursor"] = cursor
	}
	var out struct {
		Channels         []wireChannel    `json:"channels"`
		ResponseMetadata responseMetadata `json:"response_metadata"`
	}
	if err := c.call(ctx, "conversations.list", c.cfg.BotToken, args, &out); err != nil {
		return models.ChannelPage{}, err
	}
	page := models.ChannelPage{NextCursor: out.ResponseMetadata.NextCursor}
	for _, w := range out.Channels {
		page.Channels = append(page.Channels, w.model())
	}
	return page, nil
}

func (c *Client) CreateChannel(ctx context.Context, name string, private bool) (models.Channel, error) {
	var out struct {
		Channel wireChannel `json:"channel"`
	}
	err := c.call(ctx, "conversations.create", c.cfg.BotToken, map[string]string{
		"name":       name,
		"is_private": strconv.FormatBool(private),
	}, &out)
	if err != nil {
		return models.Channel{}, err
	}
	return out.Channel.model(), nil
}

func (c *Client) ArchiveChannel(ctx context.Context, channelID string) error {
	return c.call(ctx, "conversations.archive", c.cfg.BotToken, map[string]string{"channel": channelID}, nil)
}

func (c *Client) InviteUsers(ctx context.Context, channelID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	return c.call(ctx, "conversations.invite", c.cfg.BotToken, map[string]string{
		"channel": channelID,
		"users":   strings.Join(userIDs, ","),
	}, nil)
}
