// Package phenology holds the BBCH stage guide for grapevines and the data
// behind the pruning window chart.
package phenology

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed stages.yaml
var defaultStages []byte

// RiskFactor rates how risky pruning and handling are during a stage.
type RiskFactor string

const (
	RiskLow    RiskFactor = "Niedrig"
	RiskMedium RiskFactor = "Mittel"
	RiskHigh   RiskFactor = "Hoch"
)

// BadgeClass returns the CSS classes used to render the risk badge.
func (r RiskFactor) BadgeClass() string {
	switch r {
	case RiskHigh:
		return "badge badge-red"
	case RiskMedium:
		return "badge badge-amber"
	default:
		return "badge badge-emerald"
	}
}

func (r RiskFactor) valid() bool {
	return r == RiskLow || r == RiskMedium || r == RiskHigh
}

// Stage describes one BBCH development stage.
type Stage struct {
	BBCH          string     `yaml:"bbch" json:"bbch"`
	Name          string     `yaml:"name" json:"name"`
	Summary       string     `yaml:"summary" json:"summary"`
	Description   string     `yaml:"description" json:"description"`
	Tip           string     `yaml:"tip" json:"vitisExpertTip"`
	VisualMarkers []string   `yaml:"visual_markers" json:"visualMarkers"`
	Risk          RiskFactor `yaml:"risk" json:"riskFactor"`
}

// ChartPoint is one sample of the pruning window chart.
type ChartPoint struct {
	BBCH        string  `yaml:"bbch" json:"bbch"`
	Label       string  `yaml:"label" json:"label"`
	Suitability float64 `yaml:"suitability" json:"suitability"`
	Risk        string  `yaml:"risk" json:"risk"`
	Color       string  `yaml:"color" json:"color"`
}

// Window is a labelled range of the pruning calendar.
type Window struct {
	Title  string
	Range  string
	Danger bool
}

// DelayNoteTitle and DelayNote explain phenological pruning delay.
const (
	DelayNoteTitle = "Phänologische Schnittverzögerung"
	DelayNote      = `Ein gezielter Schnitt im Wollestadium (BBCH 05) kann den Austrieb um bis zu 10 Tage verzögern. ` +
		`Dies ist besonders in Regionen mit hoher Spätfrostgefahr (Eisheilige) eine effektive Versicherung für den Ertrag. ` +
		`Der "Blutverlust" (Stadium 01) schwächt die Rebe hingegen kaum, schützt aber vor dem Austrocknen der Schnittwunden durch den Frost.`
)

// Windows summarises the chart for readers.
var Windows = []Window{
	{Title: "Ideales Fenster", Range: "BBCH 00 - 01"},
	{Title: "Strategischer Spätschnitt", Range: "BBCH 05 (Wolle)"},
	{Title: "Schnittstopp", Range: "Ab BBCH 07 (Grünspitzen)", Danger: true},
}

var bbchCode = regexp.MustCompile(`^\d{2}$`)

// Catalog is an immutable, validated set of stages and chart points.
type Catalog struct {
	stages []Stage
	chart  []ChartPoint
	index  map[string]int
}

type catalogFile struct {
	Stages []Stage      `yaml:"stages"`
	Chart  []ChartPoint `yaml:"chart"`
}

// Default returns the built-in catalogue.
func Default() *Catalog {
	c, err := Parse(defaultStages)
	if err != nil {
		panic(fmt.Sprintf("embedded stage catalogue is invalid: %v", err))
	}
	return c
}

// Load reads and validates a catalogue from a YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading stage catalogue: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("stage catalogue %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a YAML catalogue.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	if len(f.Stages) == 0 {
		return nil, fmt.Errorf("no stages defined")
	}

	index := make(map[string]int, len(f.Stages))
	for i, s := range f.Stages {
		if !bbchCode.MatchString(s.BBCH) {
			return nil, fmt.Errorf("stage %d: invalid BBCH code %q", i, s.BBCH)
		}
		if _, dup := index[s.BBCH]; dup {
			return nil, fmt.Errorf("duplicate BBCH code %s", s.BBCH)
		}
		if strings.TrimSpace(s.Name) == "" {
			return nil, fmt.Errorf("stage %s: name is required", s.BBCH)
		}
		if !s.Risk.valid() {
			return nil, fmt.Errorf("stage %s: unknown risk factor %q", s.BBCH, s.Risk)
		}
		index[s.BBCH] = i
	}

	if len(f.Chart) < 2 {
		return nil, fmt.Errorf("chart needs at least two points, got %d", len(f.Chart))
	}
	for _, p := range f.Chart {
		if p.Suitability < 0 || p.Suitability > 100 {
			return nil, fmt.Errorf("chart point %s: suitability %v out of range 0-100", p.BBCH, p.Suitability)
		}
	}

	return &Catalog{stages: f.Stages, chart: f.Chart, index: index}, nil
}

// Stages returns the stages in catalogue order.
func (c *Catalog) Stages() []Stage {
	out := make([]Stage, len(c.stages))
	copy(out, c.stages)
	return out
}

// Chart returns the pruning window chart points.
func (c *Catalog) Chart() []ChartPoint {
	out := make([]ChartPoint, len(c.chart))
	copy(out, c.chart)
	return out
}

// Lookup finds a stage by BBCH code. Single digits and a "BBCH " prefix are
// accepted, so "5", "05" and "BBCH 05" all resolve.
func (c *Catalog) Lookup(code string) (Stage, bool) {
	code = strings.TrimSpace(strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(code)), "BBCH"))
	if len(code) == 1 {
		code = "0" + code
	}
	i, ok := c.index[code]
	if !ok {
		return Stage{}, false
	}
	return c.stages[i], true
}
