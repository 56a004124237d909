package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Reaction is an emoji reaction tally attached to a message.
type Reaction struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Message is a substrate message as seen by the core. ThreadTS is empty for
// top-level messages and equals the parent's TS for replies.
type Message struct {
	ChannelID   string     `json:"channel_id"`
	ChannelName string     `json:"channel_name,omitempty"`
	TS          string     `json:"ts"`
	ThreadTS    string     `json:"thread_ts,omitempty"`
	User        string     `json:"user,omitempty"`
	Text        string     `json:"text"`
	Reactions   []Reaction `json:"reactions,omitempty"`
}

// IsReply reports whether the message lives inside another message's thread.
func (m Message) IsReply() bool {
	return m.ThreadTS != "" && m.ThreadTS != m.TS
}

// ReactionCount sums the counts of every reaction on the message.
func (m Message) ReactionCount() int {
	n := 0
	for _, r := range m.Reactions {
		n += r.Count
	}
	return n
}

// CompareTS orders two substrate timestamps ("<seconds>.<micros>")
// numerically, falling back to string order for anything unparseable.
func CompareTS(a, b string) int {
	as, af, aok := splitTS(a)
	bs, bf, bok := splitTS(b)
	if !aok || !bok {
		return strings.Compare(a, b)
	}
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	case af < bf:
		return -1
	case af > bf:
		return 1
	}
	return 0
}

func splitTS(ts string) (int64, int64, bool) {
	sec, frac, _ := strings.Cut(ts, ".")
	s, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	if frac == "" {
		return s, 0, true
	}
	// right-pad so "1.5" and "1.500000" compare equal
	for len(frac) < 6 {
		frac += "0"
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return s, f, true
}

// Channel is a substrate channel.
type Channel struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Private  bool   `json:"private,omitempty"`
	Archived bool   `json:"archived,omitempty"`
}

// SearchQuery scopes a phrase search to one channel and, optionally, one author.
type SearchQuery struct {
	ChannelID   string
	ChannelName string
	Author      string
	Phrase      string
}

// SearchPage is one page of ranked search results, most recent first.
type SearchPage struct {
	Matches   []Message
	Page      int
	PageCount int
}

// ReplyOptions controls a thread listing. Limit caps the number of replies
// per page (the parent is not counted). Newest asks for the most recent
// replies first; the parent message still leads a page fetched without a cursor.
type ReplyOptions struct {
	Cursor string
	Limit  int
	Newest bool
}

// ReplyPage is one page of a thread. Without a cursor the first message is
// the parent itself.
type ReplyPage struct {
	Messages   []Message
	NextCursor string
}

// ChannelPage is one page of the channel listing.
type ChannelPage struct {
	Channels   []Channel
	NextCursor string
}

// DeleteResult records the outcome of one delete issued by a wipe.
type DeleteResult struct {
	TS  string
	Err error
}

func (r DeleteResult) OK() bool { return r.Err == nil }

func (r DeleteResult) MarshalJSON() ([]byte, error) {
	out := struct {
		TS    string `json:"ts"`
		OK    bool   `json:"ok"`
		Error string `json:"error,omitempty"`
	}{TS: r.TS, OK: r.Err == nil}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}
