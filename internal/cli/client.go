package cli

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

type dialFunc func(addr string) (net.Conn, error)

// apiError is a non-2xx reply from the API. Body holds the decoded payload
// so partial failures can still be printed.
type apiError struct {
	Status int
	Kind   string
	Msg    string
	Body   any
}

func (e *apiError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Msg)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Msg)
}

type client struct {
	base string
	http *fasthttp.Client
}

func newClient(o *options) *client {
	c := &fasthttp.Client{Name: "slackdbctl"}
	if o.dial != nil {
		c.Dial = fasthttp.DialFunc(o.dial)
	}
	return &client{base: strings.TrimRight(o.url, "/"), http: c}
}

func keyPath(server, channel string, rest ...string) string {
	parts := []string{"v1", url.PathEscape(server), "channels", url.PathEscape(channel), "keys"}
	for _, r := range rest {
		parts = append(parts, url.PathEscape(r))
	}
	return "/" + strings.Join(parts, "/")
}

// do sends body as JSON and decodes the reply into a generic value.
func (c *client) do(method, path string, body any) (any, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(method)
	req.SetRequestURI(c.base + path)
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		req.Header.SetContentType("application/json")
		req.SetBody(b)
	}
	if err := c.http.DoTimeout(req, resp, 5*time.Minute); err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	var out any
	if len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), &out); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}
	status := resp.StatusCode()
	if status >= 200 && status < 300 && status != fasthttp.StatusMultiStatus {
		return out, nil
	}
	e := &apiError{Status: status, Body: out}
	if m, ok := out.(map[string]any); ok {
		e.Kind, _ = m["kind"].(string)
		e.Msg, _ = m["error"].(string)
	}
	return nil, e
}
