package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"slackdb/pkg/kv"
	"slackdb/pkg/kverr"
	"slackdb/pkg/models"
	"slackdb/pkg/substrate/substratetest"

	"github.com/valyala/fasthttp"
)

func setup(t *testing.T) (fasthttp.RequestHandler, *Handlers, *substratetest.Fake) {
	t.Helper()
	f := substratetest.New("UBOT")
	f.AddChannel("CSUP", "supervisor")
	store, err := kv.Open(context.Background(), f, []kv.ServerConfig{{
		Name:       "acme",
		BotUserID:  "UBOT",
		Supervisor: models.Channel{ID: "CSUP", Name: "supervisor"},
	}}, kv.Options{WipeConcurrency: 2})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(store.Close)
	h := New(store, 0)
	return h.Handler(), h, f
}

func do(handler fasthttp.RequestHandler, method, path, body string) *fasthttp.RequestCtx {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	if body != "" {
		ctx.Request.SetBodyString(body)
	}
	handler(&ctx)
	return &ctx
}

func decodeBody(t *testing.T, ctx *fasthttp.RequestCtx, dst any) {
	t.Helper()
	if err := json.Unmarshal(ctx.Response.Body(), dst); err != nil {
		t.Fatalf("decode %q: %v", ctx.Response.Body(), err)
	}
}

func TestHealthAndReadiness(t *testing.T) {
	handler, h, _ := setup(t)
	if ctx := do(handler, "GET", "/healthz", ""); ctx.Response.StatusCode() != 200 {
		t.Fatalf("healthz: %d", ctx.Response.StatusCode())
	}
	if ctx := do(handler, "GET", "/readyz", ""); ctx.Response.StatusCode() != 503 {
		t.Fatalf("readyz before ready: %d", ctx.Response.StatusCode())
	}
	h.SetReady(true)
	if ctx := do(handler, "GET", "/readyz", ""); ctx.Response.StatusCode() != 200 {
		t.Fatalf("readyz: %d", ctx.Response.StatusCode())
	}
	if ctx := do(handler, "GET", "/nowhere", ""); ctx.Response.StatusCode() != 404 {
		t.Fatalf("unknown route: %d", ctx.Response.StatusCode())
	}
}

func TestKeyLifecycleOverHTTP(t *testing.T) {
	handler, _, _ := setup(t)

	ctx := do(handler, "POST", "/v1/acme/channels", `{"name":"team-x"}`)
	if ctx.Response.StatusCode() != 201 {
		t.Fatalf("register channel: %d %s", ctx.Response.StatusCode(), ctx.Response.Body())
	}

	ctx = do(handler, "POST", "/v1/acme/channels/team-x/keys", `{"phrase":"todo","type":"multiple","values":["a","b"]}`)
	if ctx.Response.StatusCode() != 201 {
		t.Fatalf("create: %d %s", ctx.Response.StatusCode(), ctx.Response.Body())
	}
	if loc := string(ctx.Response.Header.Peek("Location")); loc != "/v1/acme/channels/team-x/keys/todo" {
		t.Fatalf("location %q", loc)
	}

	ctx = do(handler, "POST", "/v1/acme/channels/team-x/keys/todo/values", `{"values":["c"]}`)
	if ctx.Response.StatusCode() != 200 {
		t.Fatalf("append: %d %s", ctx.Response.StatusCode(), ctx.Response.Body())
	}

	var entry kv.Entry
	ctx = do(handler, "GET", "/v1/acme/channels/team-x/keys/todo", "")
	decodeBody(t, ctx, &entry)
	if got := strings.Join(entry.Value.Texts, ","); got != "a,b,c" {
		t.Fatalf("value %q", got)
	}

	ctx = do(handler, "PUT", "/v1/acme/channels/team-x/keys/todo", `{"values":["z"]}`)
	if ctx.Response.StatusCode() != 200 {
		t.Fatalf("update: %d %s", ctx.Response.StatusCode(), ctx.Response.Body())
	}
	ctx = do(handler, "GET", "/v1/acme/channels/team-x/keys/todo", "")
	decodeBody(t, ctx, &entry)
	if got := strings.Join(entry.Value.Texts, ","); got != "z" {
		t.Fatalf("value after update %q", got)
	}

	ctx = do(handler, "DELETE", "/v1/acme/channels/team-x/keys/todo", "")
	var del struct {
		Results []struct {
			TS string `json:"ts"`
			OK bool   `json:"ok"`
		} `json:"results"`
	}
	decodeBody(t, ctx, &del)
	if ctx.Response.StatusCode() != 200 || len(del.Results) != 2 {
		t.Fatalf("delete: %d %s", ctx.Response.StatusCode(), ctx.Response.Body())
	}

	ctx = do(handler, "GET", "/v1/acme/channels/team-x/keys/todo", "")
	if ctx.Response.StatusCode() != 404 {
		t.Fatalf("read after delete: %d", ctx.Response.StatusCode())
	}
}

func TestErrorMapping(t *testing.T) {
	handler, _, f := setup(t)
	do(handler, "POST", "/v1/acme/channels", `{"name":"ops"}`)
	do(handler, "POST", "/v1/acme/channels/ops/keys", `{"phrase":"pinned","type":"singleBack","modifiers":["undeletable"],"values":["x"]}`)

	cases := []struct {
		name, method, path, body string
		status                   int
		kind                     string
	}{
		{"unknown server", "GET", "/v1/nope/channels/ops/keys/k", "", 400, "config_error"},
		{"missing key", "GET", "/v1/acme/channels/ops/keys/ghost", "", 404, "not_found"},
		{"bad type", "POST", "/v1/acme/channels/ops/keys", `{"phrase":"k","type":"weird"}`, 400, "schema_error"},
		{"bad modifier", "POST", "/v1/acme/channels/ops/keys", `{"phrase":"k","type":"multiple","modifiers":["unknown"]}`, 400, "schema_error"},
		{"undeletable", "DELETE", "/v1/acme/channels/ops/keys/pinned", "", 403, "forbidden"},
		{"archive supervisor", "DELETE", "/v1/acme/channels/supervisor", "", 403, "forbidden"},
	}
	for _, tc := range cases {
		ctx := do(handler, tc.method, tc.path, tc.body)
		var resp errorResponse
		decodeBody(t, ctx, &resp)
		if ctx.Response.StatusCode() != tc.status || resp.Kind != tc.kind {
			t.Fatalf("%s: got %d %q, want %d %q", tc.name, ctx.Response.StatusCode(), resp.Kind, tc.status, tc.kind)
		}
	}

	ctx := do(handler, "POST", "/v1/acme/channels/ops/keys", `{not json`)
	if ctx.Response.StatusCode() != 400 {
		t.Fatalf("invalid json: %d", ctx.Response.StatusCode())
	}

	f.SearchErr = errors.New("search down")
	ctx = do(handler, "GET", "/v1/acme/channels/ops/keys/pinned", "")
	if ctx.Response.StatusCode() != 502 {
		t.Fatalf("upstream: %d %s", ctx.Response.StatusCode(), ctx.Response.Body())
	}
}

func TestPartialDeleteReturnsResults(t *testing.T) {
	handler, _, f := setup(t)
	do(handler, "POST", "/v1/acme/channels", `{"name":"ops"}`)
	do(handler, "POST", "/v1/acme/channels/ops/keys", `{"phrase":"list","type":"multiple","values":["a","b"]}`)

	f.FailDelete = func(string) error { return errors.New("cant_delete_message") }
	ctx := do(handler, "DELETE", "/v1/acme/channels/ops/keys/list", "")
	if ctx.Response.StatusCode() != 207 {
		t.Fatalf("status %d %s", ctx.Response.StatusCode(), ctx.Response.Body())
	}
	var resp struct {
		Kind    string `json:"kind"`
		Results []struct {
			OK    bool   `json:"ok"`
			Error string `json:"error"`
		} `json:"results"`
	}
	decodeBody(t, ctx, &resp)
	if resp.Kind != "partial_failure" || len(resp.Results) != 3 {
		t.Fatalf("unexpected body %s", ctx.Response.Body())
	}
	for _, r := range resp.Results {
		if r.OK || r.Error == "" {
			t.Fatalf("expected every delete to fail: %+v", r)
		}
	}
}

func TestLocationEscapesSegments(t *testing.T) {
	handler, _, _ := setup(t)
	do(handler, "POST", "/v1/acme/channels", `{"name":"ops"}`)
	ctx := do(handler, "POST", "/v1/acme/channels/ops/keys", `{"phrase":"lunch plan/v2","type":"singleBack","values":["x"]}`)
	if ctx.Response.StatusCode() != 201 {
		t.Fatalf("create: %d %s", ctx.Response.StatusCode(), ctx.Response.Body())
	}
	loc := string(ctx.Response.Header.Peek("Location"))
	if loc != "/v1/acme/channels/ops/keys/lunch%20plan%2Fv2" {
		t.Fatalf("location %q", loc)
	}

	var entry kv.Entry
	ctx = do(handler, "GET", loc, "")
	decodeBody(t, ctx, &entry)
	if ctx.Response.StatusCode() != 200 || entry.Value.Text != "x" {
		t.Fatalf("read via location: %d %s", ctx.Response.StatusCode(), ctx.Response.Body())
	}
}

func TestRequestID(t *testing.T) {
	handler, _, _ := setup(t)
	ctx := do(handler, "GET", "/healthz", "")
	if id := ctx.Response.Header.Peek(requestIDHeader); len(id) != 36 {
		t.Fatalf("expected a generated uuid, got %q", id)
	}

	var in fasthttp.RequestCtx
	in.Request.Header.SetMethod("GET")
	in.Request.SetRequestURI("/healthz")
	in.Request.Header.Set(requestIDHeader, "abc-123")
	handler(&in)
	if id := string(in.Response.Header.Peek(requestIDHeader)); id != "abc-123" {
		t.Fatalf("request id not propagated: %q", id)
	}
}

func TestStatusFor(t *testing.T) {
	want := map[kverr.Kind]int{
		kverr.Config:         400,
		kverr.Schema:         400,
		kverr.NotFound:       404,
		kverr.Forbidden:      403,
		kverr.Upstream:       502,
		kverr.PartialFailure: 207,
		0:                    500,
	}
	for k, status := range want {
		if got := StatusFor(k); got != status {
			t.Fatalf("%v: got %d want %d", k, got, status)
		}
	}
}
