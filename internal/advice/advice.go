package advice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/drpaneas/vitisexpert/internal/llm"
	"github.com/drpaneas/vitisexpert/internal/textutil"
)

var (
	// ErrInvalidInput reports a pruning request with missing required fields.
	ErrInvalidInput = errors.New("ungültige Eingabe")
	// ErrParse reports an LLM answer that could not be turned into a Recommendation.
	ErrParse = errors.New("Fehler beim Verarbeiten der Empfehlung")
)

var listMarker = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+`)

// Verdict is the headline recommendation.
type Verdict string

const (
	VerdictPruneNow    Verdict = "jetzt schneiden"
	VerdictWait        Verdict = "noch warten"
	VerdictPrepareOnly Verdict = "nur vorbereitende Arbeiten"
)

// Verdicts lists the allowed verdicts in display order.
var Verdicts = []Verdict{VerdictPruneNow, VerdictWait, VerdictPrepareOnly}

// Input is what the grower tells us about the vineyard.
type Input struct {
	Variety        string `json:"variety" jsonschema:"title=Rebsorte"`
	Region         string `json:"region" jsonschema:"title=Region"`
	Altitude       string `json:"altitude" jsonschema:"title=Höhenlage"`
	TrainingSystem string `json:"trainingSystem" jsonschema:"title=Erziehungsform"`
	Phenology      string `json:"phenology" jsonschema:"title=Phänologisches Stadium"`
	TempTrend      string `json:"tempTrend" jsonschema:"title=Temperaturtrend"`
	FrostRisk      string `json:"frostRisk" jsonschema:"title=Frostrisiko"`
	Goal           string `json:"goal" jsonschema:"title=Winzer-Ziel"`
	Precipitation  string `json:"precipitation,omitempty" jsonschema:"title=Niederschlag"`
	WindSpeed      string `json:"windSpeed,omitempty" jsonschema:"title=Wind"`
}

// Recommendation is the structured answer of the model.
type Recommendation struct {
	Verdict             Verdict  `json:"verdict" jsonschema:"enum=jetzt schneiden,enum=noch warten,enum=nur vorbereitende Arbeiten"`
	Justification       string   `json:"justification"`
	CommonMistakes      []string `json:"commonMistakes"`
	AlternativeStrategy string   `json:"alternativeStrategy,omitempty"`
}

// Validate reports missing required fields. Altitude, training system and
// the weather extras may stay empty.
func (in Input) Validate() error {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"variety", in.Variety},
		{"region", in.Region},
		{"phenology", in.Phenology},
		{"tempTrend", in.TempTrend},
		{"frostRisk", in.FrostRisk},
		{"goal", in.Goal},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: fehlende Felder: %s", ErrInvalidInput, strings.Join(missing, ", "))
	}
	return nil
}

// BuildPrompt renders the pruning prompt for in.
func BuildPrompt(in Input) string {
	return fmt.Sprintf(pruningPrompt,
		in.Variety,
		in.Region, in.Altitude,
		in.TrainingSystem,
		in.Phenology,
		in.TempTrend,
		in.FrostRisk,
		orNotSpecified(in.Precipitation),
		orNotSpecified(in.WindSpeed),
		in.Goal,
	)
}

func orNotSpecified(s string) string {
	if strings.TrimSpace(s) == "" {
		return notSpecified
	}
	return s
}

// ResponseSchema is the JSON shape requested from the model.
func ResponseSchema() *llm.Schema {
	enum := make([]string, len(Verdicts))
	for i, v := range Verdicts {
		enum[i] = string(v)
	}
	return &llm.Schema{
		Type: llm.TypeObject,
		Properties: map[string]*llm.Schema{
			"verdict": {
				Type:        llm.TypeString,
				Description: "Muss eines sein von: " + strings.Join(enum, ", "),
				Enum:        enum,
			},
			"justification": {Type: llm.TypeString},
			"commonMistakes": {
				Type:  llm.TypeArray,
				Items: &llm.Schema{Type: llm.TypeString},
			},
			"alternativeStrategy": {Type: llm.TypeString},
		},
		PropertyOrder: []string{"verdict", "justification", "commonMistakes", "alternativeStrategy"},
		Required:      []string{"verdict", "justification", "commonMistakes"},
	}
}

// Advisor asks an LLM provider for pruning recommendations.
type Advisor struct {
	provider llm.Provider
}

// New returns an Advisor that uses the given LLM provider.
func New(provider llm.Provider) *Advisor {
	return &Advisor{provider: provider}
}

// Advise validates in, sends a single request to the provider and parses
// the structured answer. There is no retry.
func (a *Advisor) Advise(ctx context.Context, in Input) (*Recommendation, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	slog.Info("requesting pruning advice", "variety", in.Variety, "phenology", in.Phenology)
	raw, err := a.provider.Complete(ctx, systemPrompt, BuildPrompt(in), &llm.CompleteOptions{
		Schema: ResponseSchema(),
	})
	if err != nil {
		return nil, fmt.Errorf("pruning advice: %w", err)
	}
	rec, err := ParseRecommendation(raw)
	if err != nil {
		return nil, err
	}
	slog.Info("received pruning advice", "verdict", rec.Verdict, "mistakes", len(rec.CommonMistakes))
	return rec, nil
}

// ParseRecommendation extracts a Recommendation from the model response. It
// handles raw JSON, JSON wrapped in markdown code fences, list fields sent as
// a single string and string fields sent as lists.
func ParseRecommendation(raw string) (*Recommendation, error) {
	text := textutil.StripCodeFence(raw)
	if text == "" {
		text = "{}"
	}

	var rawMap map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &rawMap); err != nil {
		if err2 := json.Unmarshal([]byte(textutil.SanitizeJSON(text)), &rawMap); err2 != nil {
			return nil, fmt.Errorf("%w: invalid JSON from LLM: %w (response: %s)",
				ErrParse, err, textutil.Snippet(raw))
		}
	}

	for _, k := range []string{"justification", "alternativeStrategy"} {
		if v, ok := rawMap[k]; ok {
			rawMap[k] = joinList(v)
		}
	}
	if v, ok := rawMap["commonMistakes"]; ok {
		rawMap["commonMistakes"] = splitList(v)
	}

	normalized, err := json.Marshal(rawMap)
	if err != nil {
		return nil, fmt.Errorf("%w: re-marshaling normalized JSON: %w", ErrParse, err)
	}
	var rec Recommendation
	if err := json.Unmarshal(normalized, &rec); err != nil {
		return nil, fmt.Errorf("%w: %w (response: %s)", ErrParse, err, textutil.Snippet(raw))
	}

	if _, ok := rawMap["commonMistakes"]; !ok || rec.Verdict == "" || strings.TrimSpace(rec.Justification) == "" {
		return nil, fmt.Errorf("%w: missing required fields (response: %s)", ErrParse, textutil.Snippet(raw))
	}
	if rec.CommonMistakes == nil {
		rec.CommonMistakes = []string{}
	}
	if v, ok := NormalizeVerdict(string(rec.Verdict)); ok {
		rec.Verdict = v
	} else {
		slog.Warn("model returned unknown verdict", "verdict", rec.Verdict)
	}
	return &rec, nil
}

// NormalizeVerdict maps s onto one of the known verdicts, ignoring case and
// surrounding whitespace or punctuation.
func NormalizeVerdict(s string) (Verdict, bool) {
	clean := strings.ToLower(strings.Join(strings.Fields(s), " "))
	clean = strings.Trim(clean, ".!\"' ")
	for _, v := range Verdicts {
		if clean == string(v) {
			return v, true
		}
	}
	return Verdict(strings.TrimSpace(s)), false
}

// joinList turns a JSON array of strings into a single newline-joined string.
func joinList(v json.RawMessage) json.RawMessage {
	trimmed := strings.TrimSpace(string(v))
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return v
	}
	var items []string
	if err := json.Unmarshal(v, &items); err != nil {
		return v
	}
	joined, _ := json.Marshal(strings.Join(items, "\n"))
	return joined
}

// splitList turns a JSON string into an array of its non-empty lines with
// list markers stripped.
func splitList(v json.RawMessage) json.RawMessage {
	trimmed := strings.TrimSpace(string(v))
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return v
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return v
	}
	items := []string{}
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(listMarker.ReplaceAllString(line, ""))
		if line != "" {
			items = append(items, line)
		}
	}
	out, _ := json.Marshal(items)
	return out
}
