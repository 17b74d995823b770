package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/drpaneas/vitisexpert/internal/advice"
	"github.com/drpaneas/vitisexpert/internal/journal"
	"github.com/drpaneas/vitisexpert/internal/weather"
)

func (a *app) adviseCommand() *cobra.Command {
	in := advice.DefaultInput()
	var (
		lat, lon    float64
		asJSON      bool
		journalPath string
	)

	cmd := &cobra.Command{
		Use:   "advise",
		Short: "Ask for a pruning recommendation",
		Long: `advise asks the LLM whether to prune now. Select values may be abbreviated:
--phenology 05 picks "BBCH 05: Wollestadium", --goal ertrag picks "Hoher Ertrag".
With --lat and --lon the weather fields are filled from the forecast.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			flags := cmd.Flags()
			if flags.Changed("journal") {
				a.cfg.JournalPath = journalPath
			}

			in.TrainingSystem = matchOption(in.TrainingSystem, advice.TrainingSystems)
			in.Phenology = matchOption(in.Phenology, advice.PhenologyOptions)
			in.Goal = matchOption(in.Goal, advice.Goals)

			if flags.Changed("lat") || flags.Changed("lon") {
				if !flags.Changed("lat") || !flags.Changed("lon") {
					return fmt.Errorf("--lat and --lon must be given together")
				}
				aw, err := a.deps.weather(a.cfg).ForPruning(ctx, lat, lon)
				if err != nil {
					return err
				}
				applyWeather(&in, aw, flags.Changed)
			}
			in.TempTrend = matchOption(in.TempTrend, advice.TempTrends)
			in.FrostRisk = matchOption(in.FrostRisk, advice.FrostRisks)

			provider, err := a.newProvider()
			if err != nil {
				return err
			}
			rec, err := advice.New(provider).Advise(ctx, in)
			if err != nil {
				return err
			}

			if a.cfg.JournalPath != "" {
				if err := a.recordAdvice(cmd, in, rec); err != nil {
					slog.Warn("recording advice failed", "err", err)
				}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, rec)
			}
			printRecommendation(out, rec)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&in.Variety, "variety", "", "grape variety, e.g. Riesling")
	f.StringVar(&in.Region, "region", "", "wine region, e.g. Mosel")
	f.StringVar(&in.Altitude, "altitude", "", "altitude, e.g. 180 m")
	f.StringVar(&in.TrainingSystem, "training", in.TrainingSystem, "training system: "+strings.Join(advice.TrainingSystems, ", "))
	f.StringVar(&in.Phenology, "phenology", in.Phenology, "phenological stage: "+strings.Join(advice.PhenologyOptions, ", "))
	f.StringVar(&in.TempTrend, "trend", in.TempTrend, "temperature trend: "+strings.Join(advice.TempTrends, ", "))
	f.StringVar(&in.FrostRisk, "frost", in.FrostRisk, "late frost risk: "+strings.Join(advice.FrostRisks, ", "))
	f.StringVar(&in.Goal, "goal", in.Goal, "grower's goal: "+strings.Join(advice.Goals, ", "))
	f.StringVar(&in.Precipitation, "precipitation", "", "precipitation outlook, e.g. 12 mm")
	f.StringVar(&in.WindSpeed, "wind", "", "wind outlook, e.g. 25 km/h")
	f.Float64Var(&lat, "lat", 0, "latitude for the weather lookup")
	f.Float64Var(&lon, "lon", 0, "longitude for the weather lookup")
	f.BoolVar(&asJSON, "json", false, "print the recommendation as JSON")
	f.StringVar(&journalPath, "journal", "", "SQLite file to record the recommendation in")
	_ = cmd.MarkFlagRequired("variety")
	return cmd
}

// applyWeather copies the looked-up weather into in, keeping values the
// user set explicitly.
func applyWeather(in *advice.Input, aw *weather.AutoWeather, changed func(string) bool) {
	if !changed("region") && aw.Region != "" && aw.Region != weather.UnknownRegion {
		in.Region = aw.Region
	}
	if !changed("trend") {
		in.TempTrend = aw.TempTrend
	}
	if !changed("frost") {
		in.FrostRisk = aw.FrostRisk
	}
	if !changed("precipitation") {
		in.Precipitation = aw.Precipitation
	}
	if !changed("wind") {
		in.WindSpeed = aw.WindSpeed
	}
}

// matchOption resolves an abbreviated value against the offered options.
// An exact match wins, then a unique case-insensitive substring match.
// Anything else is passed through as free text.
func matchOption(value string, options []string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return v
	}
	lower := strings.ToLower(v)
	var found []string
	for _, o := range options {
		if strings.EqualFold(o, v) {
			return o
		}
		if strings.Contains(strings.ToLower(o), lower) {
			found = append(found, o)
		}
	}
	if len(found) == 1 {
		return found[0]
	}
	return v
}

func (a *app) recordAdvice(cmd *cobra.Command, in advice.Input, rec *advice.Recommendation) error {
	j, err := journal.Open(cmd.Context(), a.cfg.JournalPath)
	if err != nil {
		return err
	}
	defer j.Close()

	e, err := j.Record(cmd.Context(), journal.Entry{
		Input:          in,
		Recommendation: *rec,
		Provider:       string(a.cfg.Provider),
		Model:          a.cfg.Model,
	})
	if err != nil {
		return err
	}
	slog.Debug("recorded advice", "id", e.ID)
	return nil
}
