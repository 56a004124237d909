package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"slackdb/pkg/logger"
)

// Shutdown stops the HTTP server and scheduler, then closes the store and
// substrate. ctx bounds the HTTP drain.
func (a *App) Shutdown(ctx context.Context) error {
	a.state = "shutting_down"
	logger.Info("shutdown_requested")
	a.handlers.SetReady(false)

	if a.srvFast != nil {
		done := make(chan error, 1)
		go func() { done <- a.srvFast.Shutdown() }()
		select {
		case err := <-done:
			if err != nil {
				logger.Error("shutdown_http_error", "error", err)
			}
		case <-ctx.Done():
			logger.Warn("shutdown_http_timeout", "error", ctx.Err())
		}
	}
	if a.reconcileCancel != nil {
		a.reconcileCancel()
	}
	a.store.Close()

	var err error
	if a.closeSub != nil {
		if err = a.closeSub(); err != nil {
			logger.Error("shutdown_substrate_close_error", "error", err)
		}
	}
	a.state = "stopped"
	logger.Info("shutdown_complete")
	return err
}

// SetupSignalHandler returns a context cancelled on SIGINT or SIGTERM.
func SetupSignalHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case s := <-sigc:
			logger.Info("signal_received", "signal", s.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigc)
	}()
	return ctx, cancel
}
