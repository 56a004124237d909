// Package api serves the store over JSON HTTP on fasthttp.
package api

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"slackdb/pkg/kv"
	"slackdb/pkg/models"
	"slackdb/pkg/router"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Store is the part of kv.Store the API serves.
type Store interface {
	Servers() []string
	Create(ctx context.Context, server, channel, phrase string, values []string, meta models.Metadata) (models.Key, error)
	Read(ctx context.Context, server, channel, phrase string) (kv.Entry, error)
	Update(ctx context.Context, server, channel, phrase string, values []string) (models.Key, error)
	Append(ctx context.Context, server, channel, phrase string, values []string) (models.Key, error)
	Delete(ctx context.Context, server, channel, phrase string) ([]models.DeleteResult, error)
	RegisterChannel(ctx context.Context, server, name string, private bool) (models.Channel, error)
	IncludeExistingChannel(ctx context.Context, server, name string) (models.Channel, error)
	ArchiveChannel(ctx context.Context, server, name string) error
	DumpRegistry(ctx context.Context, server string) (map[string]string, error)
}

// DefaultOpTimeout bounds a single store operation started by a request.
const DefaultOpTimeout = 2 * time.Minute

type Handlers struct {
	store   Store
	timeout time.Duration
	ready   atomic.Bool
}

// New returns handlers over store. A zero timeout selects DefaultOpTimeout.
func New(store Store, timeout time.Duration) *Handlers {
	if timeout <= 0 {
		timeout = DefaultOpTimeout
	}
	return &Handlers{store: store, timeout: timeout}
}

func (h *Handlers) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), h.timeout)
}

// SetReady sets what /readyz reports.
func (h *Handlers) SetReady(v bool) { h.ready.Store(v) }

func wrapHTTPHandler(hh http.Handler) fasthttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(hh)
}

// RegisterRoutes wires all API routes onto r.
func (h *Handlers) RegisterRoutes(r *router.Router) {
	r.GET("/healthz", h.health)
	r.GET("/readyz", h.readiness)
	r.GET("/metrics", wrapHTTPHandler(promhttp.Handler()))

	r.GET("/v1/servers", h.listServers)
	r.GET("/v1/{server}/channels", h.dumpRegistry)
	r.POST("/v1/{server}/channels", h.addChannel)
	r.DELETE("/v1/{server}/channels/{channel}", h.archiveChannel)

	r.POST("/v1/{server}/channels/{channel}/keys", h.createKey)
	r.GET("/v1/{server}/channels/{channel}/keys/{phrase}", h.readKey)
	r.PUT("/v1/{server}/channels/{channel}/keys/{phrase}", h.updateKey)
	r.DELETE("/v1/{server}/channels/{channel}/keys/{phrase}", h.deleteKey)
	r.POST("/v1/{server}/channels/{channel}/keys/{phrase}/values", h.appendValues)
}

// Handler returns the fasthttp handler for the API.
func (h *Handlers) Handler() fasthttp.RequestHandler {
	r := router.New()
	r.Use(RequestID)
	r.Use(AccessLog)
	r.NotFound(func(ctx *fasthttp.RequestCtx) {
		router.WriteJSONError(ctx, fasthttp.StatusNotFound, "route not found")
	})
	h.RegisterRoutes(r)
	return r.Handler()
}

func (h *Handlers) health(ctx *fasthttp.RequestCtx) {
	router.WriteJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) readiness(ctx *fasthttp.RequestCtx) {
	if !h.ready.Load() {
		router.WriteJSON(ctx, fasthttp.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	router.WriteJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ready"})
}
