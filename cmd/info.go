package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/drpaneas/vitisexpert/internal/chart"
	"github.com/drpaneas/vitisexpert/internal/journal"
	"github.com/drpaneas/vitisexpert/internal/server"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) weatherCommand() *cobra.Command {
	var (
		lat, lon float64
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "weather",
		Short: "Show the pruning-relevant weather outlook for a location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			aw, err := a.deps.weather(a.cfg).ForPruning(cmd.Context(), lat, lon)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), aw)
			}
			printWeather(cmd.OutOrStdout(), aw)
			return nil
		},
	}
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&lon, "lon", 0, "longitude")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lon")
	return cmd
}

func (a *app) stagesCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stages [bbch]",
		Short: "List the BBCH stages or show one in detail",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.catalog()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				if asJSON {
					return writeJSON(out, cat.Stages())
				}
				printStageList(out, cat.Stages())
				return nil
			}
			st, ok := cat.Lookup(args[0])
			if !ok {
				return fmt.Errorf("unknown BBCH stage %q", args[0])
			}
			if asJSON {
				return writeJSON(out, st)
			}
			printStage(out, st)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func (a *app) chartCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "chart",
		Short: "Render the pruning suitability chart as SVG",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.catalog()
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				return chart.Render(cmd.OutOrStdout(), cat.Chart())
			}
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating %s: %w", output, err)
			}
			if err := chart.Render(f, cat.Chart()); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("writing %s: %w", output, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func (a *app) historyCommand() *cobra.Command {
	var (
		limit       int
		asJSON      bool
		journalPath string
	)
	cmd := &cobra.Command{
		Use:   "history [id]",
		Short: "List recorded recommendations, newest first, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("journal") {
				a.cfg.JournalPath = journalPath
			}
			if a.cfg.JournalPath == "" {
				return fmt.Errorf("no journal configured: set --journal, VITIS_JOURNAL or journal in the config file")
			}
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			j, err := journal.Open(cmd.Context(), a.cfg.JournalPath)
			if err != nil {
				return err
			}
			defer j.Close()

			if len(args) == 1 {
				e, err := j.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), e)
				}
				printEntry(cmd.OutOrStdout(), e)
				return nil
			}

			entries, err := j.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), entries)
			}
			printHistory(cmd.OutOrStdout(), entries)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", journal.DefaultLimit, "maximum number of entries")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.Flags().StringVar(&journalPath, "journal", "", "SQLite journal file")
	return cmd
}

func (a *app) schemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schemas of the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeJSON(cmd.OutOrStdout(), server.APISchema())
		},
	}
}
