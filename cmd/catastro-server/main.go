package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/mohammed-shakir/catastro-tool/internal/app"
	"github.com/mohammed-shakir/catastro-tool/internal/core/config"
	"github.com/mohammed-shakir/catastro-tool/internal/core/server"
	"github.com/mohammed-shakir/catastro-tool/internal/jobs/kafkaconsumer"
	"github.com/mohammed-shakir/catastro-tool/internal/logger"
	"github.com/mohammed-shakir/catastro-tool/internal/metrics"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// a missing .env is fine; the environment may already be set
	_ = godotenv.Load()

	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole || logger.IsTerminal(),
		Component: "catastro-server",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prov := metrics.Init(metrics.Config{
		Enabled: cfg.MetricsEnabled,
		Build: metrics.BuildInfo{
			Version:   Version,
			Revision:  os.Getenv("BUILD_REVISION"),
			BuildDate: os.Getenv("BUILD_DATE"),
		},
	})

	a, err := app.Build(ctx, cfg, appLog)
	if err != nil {
		appLog.Error("setup failed", "err", err)
		return 1
	}
	defer a.Close()

	appLog.Info("starting catastro server",
		"addr", cfg.Addr,
		"version", Version,
		"output_dir", cfg.OutputDir,
		"overlay", cfg.OverlayEnabled,
		"layer_cache", a.LayerCache != nil,
		"jobs", cfg.Jobs.Enabled)

	var wg sync.WaitGroup
	if cfg.Jobs.Enabled {
		consumer := kafkaconsumer.New(kafkaconsumer.FromConfig(cfg.Jobs), appLog, a.Pipeline, a)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Start(ctx); err != nil {
				appLog.Error("job consumer stopped", "err", err)
			}
		}()
	}

	deps := server.Deps{
		Runner:     a.Pipeline,
		Refs:       a.Layout,
		Ortophotos: a.Ortophotos,
		Ready:      a.ReadinessChecks(),
	}
	if a.Local != nil {
		deps.Layers = a.Local
	}
	if prov.Enabled() {
		deps.Metrics = prov.Handler()
	}

	code := 0
	if err := server.Run(ctx, cfg, appLog, deps); err != nil {
		appLog.Error("server error", "err", err)
		code = 1
		stop()
	}
	wg.Wait()
	appLog.Info("catastro server stopped")
	return code
}
