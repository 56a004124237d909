package api

import (
	"time"

	"slackdb/pkg/logger"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

const requestIDHeader = "X-Request-Id"

// RequestID propagates the caller's X-Request-Id or assigns a new one.
func RequestID(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		id := string(ctx.Request.Header.Peek(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		ctx.SetUserValue("reqid", id)
		ctx.Response.Header.Set(requestIDHeader, id)
		next(ctx)
	}
}

// AccessLog logs one line per request.
func AccessLog(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		next(ctx)
		reqID, _ := ctx.UserValue("reqid").(string)
		logger.Info("http_request",
			"reqid", reqID,
			"method", string(ctx.Method()),
			"path", string(ctx.Path()),
			"status", ctx.Response.StatusCode(),
			"elapsed", time.Since(start),
		)
	}
}
