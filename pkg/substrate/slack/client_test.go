package slack

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"

	"slackdb/pkg/models"
	"slackdb/pkg/substrate"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

type seen struct {
	mu   sync.Mutex
	reqs []recorded
}

type recorded struct {
	method string
	auth   string
	args   map[string]string
}

func (s *seen) last() recorded {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reqs[len(s.reqs)-1]
}

// serve starts an in-memory Slack API whose responses come from routes,
// keyed by Web API method name.
func serve(t *testing.T, routes map[string]func(args map[string]string) (int, string)) (*Client, *seen) {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	rec := &seen{}
	srv := &fasthttp.Server{Handler: func(ctx *fasthttp.RequestCtx) {
		method := string(ctx.Path())[len("/api/"):]
		args := map[string]string{}
		ctx.PostArgs().VisitAll(func(k, v []byte) { args[string(k)] = string(v) })
		rec.mu.Lock()
		rec.reqs = append(rec.reqs, recorded{method: method, auth: string(ctx.Request.Header.Peek("Authorization")), args: args})
		rec.mu.Unlock()
		h, ok := routes[method]
		if !ok {
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			return
		}
		status, body := h(args)
		ctx.SetStatusCode(status)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(body)
	}}
	go srv.Serve(ln)
	t.Cleanup(func() { ln.Close() })

	c, err := New(Config{
		BaseURL:   "http://slack.test/api",
		BotToken:  "xoxb-bot",
		UserToken: "xoxp-user",
		RPS:       1000,
		Burst:     100,
		Dial:      func(addr string) (net.Conn, error) { return ln.Dial() },
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c, rec
}

func ok(body string) func(map[string]string) (int, string) {
	return func(map[string]string) (int, string) { return fasthttp.StatusOK, body }
}

func TestNewRequiresBotToken(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSearchUsesUserTokenAndQueryModifiers(t *testing.T) {
	c, rec := serve(t, map[string]func(map[string]string) (int, string){
		"search.messages": ok(`{"ok":true,"messages":{"matches":[{"channel":{"id":"C1","name":"general"},"ts":"1.000002","user":"UBOT","text":"color :monkey:"}],"paging":{"page":2,"pages":3}}}`),
	})
	page, err := c.Search(context.Background(), models.SearchQuery{ChannelName: "general", Author: "UBOT", Phrase: `say "hi"`}, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if page.Page != 2 || page.PageCount != 3 || len(page.Matches) != 1 || page.Matches[0].ChannelID != "C1" {
		t.Fatalf("unexpected page %+v", page)
	}
	r := rec.last()
	if r.auth != "Bearer xoxp-user" {
		t.Fatalf("search should use the user token, got %q", r.auth)
	}
	if r.args["query"] != `"say  hi " in:#general from:<@UBOT>` {
		t.Fatalf("query = %q", r.args["query"])
	}
	if r.args["sort"] != "timestamp" || r.args["sort_dir"] != "desc" || r.args["page"] != "2" {
		t.Fatalf("args = %v", r.args)
	}
}

func TestPostMessageInThread(t *testing.T) {
	c, rec := serve(t, map[string]func(map[string]string) (int, string){
		"chat.postMessage": ok(`{"ok":true,"channel":"C1","ts":"2.000001","message":{"text":"v","user":"UBOT"}}`),
	})
	m, err := c.PostMessage(context.Background(), "C1", "v", "1.000000")
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if m.TS != "2.000001" || m.ThreadTS != "1.000000" || m.ChannelID != "C1" {
		t.Fatalf("unexpected message %+v", m)
	}
	r := rec.last()
	if r.auth != "Bearer xoxb-bot" || r.args["thread_ts"] != "1.000000" || r.args["text"] != "v" {
		t.Fatalf("unexpected request %+v", r)
	}
}

func TestAPIErrors(t *testing.T) {
	c, _ := serve(t, map[string]func(map[string]string) (int, string){
		"chat.delete":           ok(`{"ok":false,"error":"message_not_found"}`),
		"conversations.archive": func(map[string]string) (int, string) { return fasthttp.StatusTooManyRequests, `` },
	})
	var apiErr *substrate.APIError
	err := c.DeleteMessage(context.Background(), "C1", "1.0")
	if !errors.As(err, &apiErr) || apiErr.Code != "message_not_found" || apiErr.Method != "chat.delete" {
		t.Fatalf("unexpected error %v", err)
	}
	err = c.ArchiveChannel(context.Background(), "C1")
	if !errors.As(err, &apiErr) || apiErr.Code != "ratelimited" {
		t.Fatalf("expected ratelimited, got %v", err)
	}
}

func TestListRepliesCursor(t *testing.T) {
	c, rec := serve(t, map[string]func(map[string]string) (int, string){
		"conversations.replies": func(args map[string]string) (int, string) {
			if args["cursor"] == "" {
				return 200, `{"ok":true,"messages":[{"ts":"1.0","text":"k :family:"},{"ts":"1.1","thread_ts":"1.0","text":"a"}],"has_more":true,"response_metadata":{"next_cursor":"abc"}}`
			}
			return 200, `{"ok":true,"messages":[{"ts":"1.2","thread_ts":"1.0","text":"b","reactions":[{"name":"tada","count":2}]}],"has_more":false}`
		},
	})
	replies, err := substrate.CollectReplies(context.Background(), c, "C1", "1.0", 1)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(replies) != 2 || replies[0].Text != "a" || replies[1].ReactionCount() != 2 {
		t.Fatalf("unexpected replies %+v", replies)
	}
	if r := rec.last(); r.args["cursor"] != "abc" || r.args["limit"] != "1" {
		t.Fatalf("unexpected args %v", r.args)
	}
}

func TestListRepliesNewest(t *testing.T) {
	c, rec := serve(t, map[string]func(map[string]string) (int, string){
		"conversations.replies": func(args map[string]string) (int, string) {
			if args["oldest"] == "" {
				return 200, `{"ok":true,"messages":[{"ts":"1.0","text":"k :monkey:","latest_reply":"1.9","reply_count":9}],"has_more":true}`
			}
			return 200, `{"ok":true,"messages":[{"ts":"1.0","text":"k :monkey:"},{"ts":"1.9","thread_ts":"1.0","text":"last"}]}`
		},
	})
	page, err := c.ListReplies(context.Background(), "C1", "1.0", models.ReplyOptions{Limit: 1, Newest: true})
	if err != nil {
		t.Fatalf("replies: %v", err)
	}
	if len(page.Messages) != 2 || page.Messages[1].Text != "last" {
		t.Fatalf("unexpected page %+v", page)
	}
	if r := rec.last(); r.args["oldest"] != "1.9" || r.args["inclusive"] != "true" {
		t.Fatalf("unexpected args %v", r.args)
	}
}

func TestListChannelsAndInvite(t *testing.T) {
	c, rec := serve(t, map[string]func(map[string]string) (int, string){
		"conversations.list":   ok(`{"ok":true,"channels":[{"id":"C1","name":"general"},{"id":"C2","name":"ops","is_private":true}],"response_metadata":{"next_cursor":""}}`),
		"conversations.invite": ok(`{"ok":true}`),
	})
	all, err := substrate.CollectChannels(context.Background(), c)
	if err != nil || len(all) != 2 || !all[1].Private {
		t.Fatalf("channels: %+v %v", all, err)
	}
	if err := c.InviteUsers(context.Background(), "C2", []string{"U1", "U2"}); err != nil {
		t.Fatalf("invite: %v", err)
	}
	if r := rec.last(); r.args["users"] != "U1,U2" {
		t.Fatalf("users = %q", r.args["users"])
	}
}
