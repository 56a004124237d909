// Package slack implements substrate.Substrate on the Slack Web API.
package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"slackdb/pkg/logger"
	"slackdb/pkg/substrate"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"
)

var calls = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "slackdb_substrate_calls_total",
	Help: "Slack Web API calls by method and outcome.",
}, []string{"method", "outcome"})

func init() {
	prometheus.MustRegister(calls)
}

const DefaultBaseURL = "https://slack.com/api"

type Config struct {
	BaseURL string
	// BotToken authorizes every method except search.messages, which
	// needs a user token.
	BotToken  string
	UserToken string
	Timeout   time.Duration
	// RPS and Burst shape a token bucket shared by all calls.
	RPS   float64
	Burst int
	// MaxResponseBytes caps response bodies. Zero means fasthttp's default.
	MaxResponseBytes int
	SearchPageSize   int
	ReplyPageSize    int
	// Dial replaces the network dialer. Tests point it at an in-memory listener.
	Dial fasthttp.DialFunc
}

type Client struct {
	cfg     Config
	http    *fasthttp.Client
	limiter *rate.Limiter
}

var _ substrate.Substrate = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.SearchPageSize <= 0 {
		cfg.SearchPageSize = 20
	}
	if cfg.ReplyPageSize <= 0 {
		cfg.ReplyPageSize = 200
	}
	return &Client{
		cfg: cfg,
		http: &fasthttp.Client{
			Name:                "slackdb",
			Dial:                cfg.Dial,
			ReadTimeout:         cfg.Timeout,
			WriteTimeout:        cfg.Timeout,
			MaxResponseBodySize: cfg.MaxResponseBytes,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
	}, nil
}

// envelope is the part every Web API response shares.
type envelope struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

type responseMetadata struct {
	NextCursor string `json:"next_cursor"`
}

// call posts form args to method and decodes the response into out. Calls
// wait on the limiter; a 429 or ok:false becomes a substrate.APIError.
func (c *Client) call(ctx context.Context, method, token string, args map[string]string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	form := fasthttp.AcquireArgs()
	defer fasthttp.ReleaseArgs(form)
	for k, v := range args {
		form.Set(k, v)
	}
	req.SetRequestURI(c.cfg.BaseURL + "/" + method)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+token)
	req.SetBody(form.QueryString())

	timeout := c.cfg.Timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}
	start := time.Now()
	if err := c.http.DoTimeout(req, resp, timeout); err != nil {
		calls.WithLabelValues(method, "transport_error").Inc()
		return fmt.Errorf("%s: %w", method, err)
	}
	logger.Debug("slack_call", "method", method, "status", resp.StatusCode(), "elapsed", time.Since(start))

	if resp.StatusCode() == fasthttp.StatusTooManyRequests {
		calls.WithLabelValues(method, "ratelimited").Inc()
		logger.Warn("slack_ratelimited", "method", method, "retry_after", string(resp.Header.Peek("Retry-After")))
		return &substrate.APIError{Method: method, Code: "ratelimited"}
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		calls.WithLabelValues(method, "http_error").Inc()
		return &substrate.APIError{Method: method, Code: fmt.Sprintf("http_%d", resp.StatusCode())}
	}
	body := resp.Body()
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		calls.WithLabelValues(method, "decode_error").Inc()
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	if !env.OK {
		calls.WithLabelValues(method, "api_error").Inc()
		return &substrate.APIError{Method: method, Code: env.Error}
	}
	calls.WithLabelValues(method, "ok").Inc()
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	return nil
}

func (c *Client) searchToken() string {
	if c.cfg.UserToken != "" {
		return c.cfg.UserToken
	}
	return c.cfg.BotToken
}
