package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/drpaneas/vitisexpert/internal/advice"
	"github.com/drpaneas/vitisexpert/internal/imageedit"
	"github.com/drpaneas/vitisexpert/internal/journal"
	"github.com/drpaneas/vitisexpert/internal/phenology"
	"github.com/drpaneas/vitisexpert/internal/server"
)

func (a *app) serveCommand() *cobra.Command {
	var addr, stagesFile, journalPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web app",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("addr") {
				a.cfg.Addr = addr
			}
			if flags.Changed("stages-file") {
				a.cfg.StagesFile = stagesFile
			}
			if flags.Changed("journal") {
				a.cfg.JournalPath = journalPath
			}
			ctx := cmd.Context()

			provider, err := a.newProvider()
			if err != nil {
				return err
			}

			cat, err := a.catalog()
			if err != nil {
				return err
			}
			stages := phenology.NewStore(cat)
			if a.cfg.StagesFile != "" {
				go func() {
					if err := stages.Watch(ctx, a.cfg.StagesFile); err != nil {
						slog.Error("watching stage catalogue stopped", "path", a.cfg.StagesFile, "err", err)
					}
				}()
			}

			opts := server.Options{
				Advisor:  advice.New(provider),
				Weather:  a.deps.weather(a.cfg),
				Stages:   stages,
				Provider: string(a.cfg.Provider),
				Model:    a.cfg.Model,
			}

			if backend, err := a.deps.imageEditor(a.cfg); err != nil {
				slog.Warn("photo editing disabled", "err", err)
			} else {
				opts.Images = imageedit.New(backend)
			}

			if a.cfg.JournalPath != "" {
				j, err := journal.Open(ctx, a.cfg.JournalPath)
				if err != nil {
					return err
				}
				defer j.Close()
				opts.Journal = j
			}

			srv, err := server.New(opts)
			if err != nil {
				return err
			}
			slog.Info("starting vitisexpert", "addr", a.cfg.Addr, "provider", a.cfg.Provider, "model", a.cfg.Model)
			return srv.ListenAndServe(ctx, a.cfg.Addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	cmd.Flags().StringVar(&stagesFile, "stages-file", "", "YAML stage catalogue, reloaded on change")
	cmd.Flags().StringVar(&journalPath, "journal", "", "SQLite file for the recommendation history")
	return cmd
}
