package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/catastro-tool/internal/app"
	"github.com/mohammed-shakir/catastro-tool/internal/core/config"
	"github.com/mohammed-shakir/catastro-tool/internal/core/model"
	"github.com/mohammed-shakir/catastro-tool/internal/logger"
)

var errRunsFailed = errors.New("one or more references failed")

type rootOpts struct {
	envFile   string
	logLevel  string
	outputDir string
	noOverlay bool
	asJSON    bool
}

func newRootCmd() *cobra.Command {
	o := &rootOpts{}
	root := &cobra.Command{
		Use:          "catastro",
		Short:        "Download cadastral data and environmental affectations for Spanish parcels",
		Version:      Version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&o.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	root.PersistentFlags().StringVar(&o.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")
	root.PersistentFlags().StringVarP(&o.outputDir, "output", "o", "", "output directory; overrides OUTPUT_DIR")
	root.PersistentFlags().BoolVar(&o.noOverlay, "no-overlay", false, "skip the environmental overlay analysis")
	root.PersistentFlags().BoolVar(&o.asJSON, "json", false, "print run results as JSON")

	root.AddCommand(newProcessCmd(o), newBatchCmd(o), newOrtophotosCmd(o), newLayersCmd(o), newVersionCmd())
	return root
}

// load reads config the same way the server does, then applies flag
// overrides.
func (o *rootOpts) load() (config.Config, *slog.Logger) {
	if o.envFile != "" {
		_ = godotenv.Load(o.envFile)
	}
	cfg := config.FromEnv()
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.outputDir != "" {
		cfg.OutputDir = o.outputDir
	}
	if o.noOverlay {
		cfg.OverlayEnabled = false
	}

	// logs go to stderr so --json output stays parseable
	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole || logger.IsTerminal(),
		Component: "catastro-cli",
	}, os.Stderr)
	return cfg, logger.NewSlog(&zl)
}

// withApp builds the application for the lifetime of fn, cancelling on
// SIGINT/SIGTERM.
func (o *rootOpts) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, log := o.load()
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	defer a.Close()
	return fn(ctx, a)
}

func (o *rootOpts) report(w io.Writer, results []model.RunResult) error {
	if o.asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			printResult(w, r)
		}
	}
	for _, r := range results {
		if r.Status == model.StatusFailed {
			return errRunsFailed
		}
	}
	return nil
}

func printResult(w io.Writer, r model.RunResult) {
	ok, total := r.Tally()
	ref := r.Reference
	if ref == "" {
		ref = r.Input
	}
	_, _ = fmt.Fprintf(w, "%-22s %-8s %d/%d steps", ref, r.Status, ok, total)
	if r.ZipPath != "" {
		_, _ = fmt.Fprintf(w, "  %s", r.ZipPath)
	}
	if r.Error != "" {
		_, _ = fmt.Fprintf(w, "  error: %s", r.Error)
	}
	_, _ = fmt.Fprintln(w)
	for _, s := range r.Steps {
		if !s.OK && s.Error != "" {
			_, _ = fmt.Fprintf(w, "    %-18s %s\n", s.Name, s.Error)
		}
	}
	for _, a := range r.Affectations {
		if a.Detected {
			_, _ = fmt.Fprintf(w, "    affected by %s: %.2f m2 (%.2f%%)\n", a.Layer, a.AffectedAreaM2, a.PercentOfParcel)
		}
	}
}
