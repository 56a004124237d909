package main

import (
	"context"
	"fmt"
	"os"

	"slackdb/internal/app"
	"slackdb/pkg/config"
	"slackdb/pkg/logger"

	"github.com/joho/godotenv"
)

// set build metadata
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func abort(msg string, err error) {
	logger.Error("fatal", "msg", msg, "error", err)
	logger.Sync()
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}

func main() {
	// load .env file if present
	_ = godotenv.Load(".env")

	flags, err := config.ParseConfigFlags(os.Args[1:])
	if err != nil {
		abort("invalid flags", err)
	}

	fileCfg, fileExists, err := config.ParseConfigFile(flags)
	if err != nil {
		abort("failed to load config file", err)
	}
	envCfg, envUsed, err := config.ParseConfigEnvs()
	if err != nil {
		abort("failed to read environment", err)
	}

	eff := config.LoadEffectiveConfig(flags, fileCfg, fileExists, envCfg, envUsed)
	if err := eff.Config.ValidateConfig(); err != nil {
		abort("invalid configuration", err)
	}
	eff.Addr = eff.Config.Addr()

	// initialize logger after config is fully loaded
	logger.Init(eff.Config.Logging.Level)
	defer logger.Sync()
	logger.Info("effective_config_loaded", "source", eff.Source, "addr", eff.Addr)

	ctx, cancel := app.SetupSignalHandler(context.Background())
	defer cancel()

	a, err := app.New(ctx, eff, version, commit, buildDate)
	if err != nil {
		abort("failed to initialize app", err)
	}

	runErr := a.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), eff.Config.Server.ShutdownTimeout.Duration())
	defer shutdownCancel()
	_ = a.Shutdown(shutdownCtx)

	if runErr != nil {
		abort("app run failed", runErr)
	}
}
