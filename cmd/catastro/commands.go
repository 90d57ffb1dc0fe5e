package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/catastro-tool/internal/app"
	"github.com/mohammed-shakir/catastro-tool/internal/core/model"
	"github.com/mohammed-shakir/catastro-tool/internal/export"
	"github.com/mohammed-shakir/catastro-tool/internal/overlay"
	"github.com/mohammed-shakir/catastro-tool/internal/refcat"
)

func newProcessCmd(o *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "process REF...",
		Short: "Process one or more cadastral references",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(cmd, func(ctx context.Context, a *app.App) error {
				var results []model.RunResult
				if len(args) == 1 {
					results = append(results, a.Pipeline.Process(ctx, args[0]))
				} else {
					results = ordered(args, a.Pipeline.Batch(ctx, args))
				}
				return o.report(cmd.OutOrStdout(), results)
			})
		},
	}
}

// csvAuto is the value of a bare --csv: write into the output directory.
const csvAuto = "auto"

func newBatchCmd(o *rootOpts) *cobra.Command {
	var file, csvPath string
	c := &cobra.Command{
		Use:   "batch",
		Short: "Process every reference listed in a text file",
		Long: `Reads references separated by commas, spaces or newlines. Entries shorter
than 11 characters are ignored. Use "-" to read from stdin.

With --csv a one-row-per-reference summary is written; a bare --csv puts it
at <output>/` + export.BatchCSVName + `.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			refs, err := readReferences(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if len(refs) == 0 {
				return fmt.Errorf("no references found in %s", file)
			}
			return o.withApp(cmd, func(ctx context.Context, a *app.App) error {
				results := ordered(refs, a.Pipeline.Batch(ctx, refs))
				if csvPath != "" {
					p := csvTarget(csvPath, a.Layout.Root)
					if err := export.WriteBatchCSV(p, results); err != nil {
						return fmt.Errorf("batch summary: %w", err)
					}
					_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "summary written to", p)
				}
				return o.report(cmd.OutOrStdout(), results)
			})
		},
	}
	c.Flags().StringVarP(&file, "file", "f", "", "file with references")
	c.Flags().StringVar(&csvPath, "csv", "", "write a CSV summary to this path")
	c.Flags().Lookup("csv").NoOptDefVal = csvAuto
	_ = c.MarkFlagRequired("file")
	return c
}

func csvTarget(flag, outputRoot string) string {
	if flag == csvAuto {
		return filepath.Join(outputRoot, export.BatchCSVName)
	}
	return flag
}

func newOrtophotosCmd(o *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "ortophotos REF",
		Short: "Render regional, local and detailed maps of a reference from the local layers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(cmd, func(ctx context.Context, a *app.App) error {
				out, err := a.Ortophotos.Generate(ctx, args[0])
				if err != nil {
					return err
				}
				if o.asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(out)
				}
				for _, p := range out {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%-16s %6dm  %d layers  %s\n", p.Title, p.Buffer, p.Layers, p.Path)
				}
				return nil
			})
		},
	}
}

func newLayersCmd(o *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "layers",
		Short: "List the environmental layers used by the overlay analysis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log := o.load()
			local, err := overlay.NewLocalSource(cfg.LayersDir, cfg.LocalLayerCacheSize, log)
			if err != nil {
				return err
			}
			specs, err := overlay.BuildCatalog(cfg.LayerCatalogFile, local)
			if err != nil {
				return err
			}
			if o.asJSON {
				info, err := local.Info()
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"layers": specs, "local": info})
			}
			printLayers(cmd.OutOrStdout(), specs)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "catastro", Version)
		},
	}
}

func readReferences(path string, stdin io.Reader) ([]string, error) {
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read references: %w", err)
	}
	return refcat.SplitList(string(b)), nil
}

// ordered returns batch results in input order. Batch keys results by the
// raw input, so duplicates collapse into one entry.
func ordered(inputs []string, byInput map[string]model.RunResult) []model.RunResult {
	out := make([]model.RunResult, 0, len(byInput))
	seen := make(map[string]struct{}, len(inputs))
	for _, in := range inputs {
		if _, dup := seen[in]; dup {
			continue
		}
		seen[in] = struct{}{}
		if r, ok := byInput[in]; ok {
			out = append(out, r)
		}
	}
	return out
}

func printLayers(w io.Writer, specs []overlay.LayerSpec) {
	for _, s := range specs {
		where := s.URL
		if s.Source == overlay.SourceLocal {
			where = s.Path
		}
		impact := s.Impact
		if impact == "" {
			impact = "-"
		}
		_, _ = fmt.Fprintf(w, "%-22s %-7s %-10s %s\n", s.Name, s.Source, impact, strings.TrimSpace(where))
	}
}
