package app

import (
	"time"

	"slackdb/pkg/logger"

	"github.com/valyala/fasthttp"
)

// printBanner logs the startup summary and build info.
func (a *App) printBanner() {
	ver := a.version
	if a.commit != "" && a.commit != "none" {
		ver += " (" + a.commit + ")"
	}
	if a.buildDate != "" && a.buildDate != "unknown" {
		ver += " @ " + a.buildDate
	}
	items := append([]string{"version: " + ver, "source: " + a.eff.Source}, a.eff.Config.Summary()...)
	logger.LogConfigSummary("slackdb", items)
}

// startHTTP builds and starts the fasthttp server, returning a channel that delivers errors.
func (a *App) startHTTP() <-chan error {
	const (
		readBufferSize       = 64 * 1024
		readTimeout          = 30 * time.Second
		writeTimeout         = 5 * time.Minute // wipes of long threads run inside the request
		idleTimeout          = 30 * time.Second
		maxKeepaliveDuration = 2 * time.Minute
	)
	a.srvFast = &fasthttp.Server{
		Name:                 "slackdb",
		Handler:              a.handlers.Handler(),
		ReadBufferSize:       readBufferSize,
		MaxRequestBodySize:   int(a.eff.Config.Server.MaxRequestBody.Int64()),
		ReduceMemoryUsage:    true,
		ReadTimeout:          readTimeout,
		WriteTimeout:         writeTimeout,
		IdleTimeout:          idleTimeout,
		MaxKeepaliveDuration: maxKeepaliveDuration,
	}

	errCh := make(chan error, 1)
	go func() {
		if a.ln != nil {
			errCh <- a.srvFast.Serve(a.ln)
			return
		}
		logger.Info("http_listening", "addr", a.eff.Addr)
		errCh <- a.srvFast.ListenAndServe(a.eff.Addr)
	}()
	return errCh
}
