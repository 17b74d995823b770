// Package cmd implements the vitisexpert command line.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/drpaneas/vitisexpert/internal/config"
	"github.com/drpaneas/vitisexpert/internal/llm"
	"github.com/drpaneas/vitisexpert/internal/phenology"
	"github.com/drpaneas/vitisexpert/internal/weather"
)

// deps builds the external collaborators. Tests replace them with fakes.
type deps struct {
	provider    func(cfg config.Config) (llm.Provider, error)
	imageEditor func(cfg config.Config) (llm.ImageEditor, error)
	weather     func(cfg config.Config) weatherService
}

type weatherService interface {
	ForPruning(ctx context.Context, lat, lon float64) (*weather.AutoWeather, error)
}

func defaultDeps() deps {
	return deps{
		provider: func(cfg config.Config) (llm.Provider, error) {
			return llm.NewProvider(llm.ProviderConfig{
				Name:       cfg.Provider,
				APIKey:     cfg.APIKey,
				Model:      cfg.Model,
				ImageModel: cfg.ImageModel,
				OllamaHost: cfg.OllamaHost,
			})
		},
		imageEditor: func(cfg config.Config) (llm.ImageEditor, error) {
			return llm.NewImageEditor(cfg.GeminiAPIKey, cfg.ImageModel)
		},
		weather: func(cfg config.Config) weatherService {
			return weather.NewClient(cfg.NominatimURL, cfg.OpenMeteoURL, cfg.HTTPTimeout)
		},
	}
}

// app carries the global flags and the resolved configuration.
type app struct {
	deps deps

	configPath string
	provider   string
	model      string
	verbose    bool

	cfg config.Config
}

// Execute runs the command line with the given context.
func Execute(ctx context.Context) error {
	return newRootCommand(defaultDeps()).ExecuteContext(ctx)
}

func newRootCommand(d deps) *cobra.Command {
	a := &app{deps: d}

	root := &cobra.Command{
		Use:   "vitisexpert",
		Short: "Pruning advice, BBCH stage guide and photo editing for vineyards",
		Long: `vitisexpert helps winegrowers decide when to prune. It combines the current
phenological stage, the local weather outlook and the grower's goal into a
recommendation from an LLM, and ships a BBCH stage guide and a photo editor.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return a.load(cmd) },
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "YAML config file")
	pf.StringVar(&a.provider, "provider", string(llm.ProviderGemini), "LLM provider: gemini, openai, anthropic, ollama")
	pf.StringVar(&a.model, "model", "", "LLM model (default: per-provider)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose logging")

	root.AddCommand(
		a.serveCommand(),
		a.adviseCommand(),
		a.weatherCommand(),
		a.stagesCommand(),
		a.chartCommand(),
		a.editImageCommand(),
		a.historyCommand(),
		a.schemaCommand(),
	)
	return root
}

// load resolves the configuration: defaults, then the config file, then the
// environment, then flags.
func (a *app) load(cmd *cobra.Command) error {
	cfg := config.Default()
	if err := cfg.LoadFile(a.configPath); err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("provider") {
		cfg.Provider = llm.ProviderName(a.provider)
	}
	cfg.LoadFromEnv()
	if flags.Changed("model") {
		cfg.Model = a.model
	}
	if flags.Changed("verbose") {
		cfg.Verbose = a.verbose
	}
	if cfg.Model == "" {
		cfg.Model = config.DefaultModel(cfg.Provider)
	}

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	a.cfg = cfg
	return nil
}

func (a *app) newProvider() (llm.Provider, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}
	slog.Debug("using provider", "provider", a.cfg.Provider, "model", a.cfg.Model)
	p, err := a.deps.provider(a.cfg)
	if err != nil {
		return nil, fmt.Errorf("creating LLM provider: %w", err)
	}
	return p, nil
}

// catalog returns the configured stage catalogue, or the built-in one.
func (a *app) catalog() (*phenology.Catalog, error) {
	if a.cfg.StagesFile == "" {
		return phenology.Default(), nil
	}
	return phenology.Load(a.cfg.StagesFile)
}
