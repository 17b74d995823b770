package server

import (
	"github.com/invopop/jsonschema"

	"github.com/drpaneas/vitisexpert/internal/advice"
	"github.com/drpaneas/vitisexpert/internal/journal"
	"github.com/drpaneas/vitisexpert/internal/phenology"
	"github.com/drpaneas/vitisexpert/internal/weather"
)

// APISchema returns JSON Schemas for the request and response bodies of the
// JSON API, keyed by type.
func APISchema() map[string]*jsonschema.Schema {
	r := &jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}

	schemas := map[string]*jsonschema.Schema{
		"PruningInput":          r.Reflect(&advice.Input{}),
		"PruningRecommendation": r.Reflect(&advice.Recommendation{}),
		"AutoWeather":           r.Reflect(&weather.AutoWeather{}),
		"ImageEditRequest":      r.Reflect(&ImageEditRequest{}),
		"ImageEditResponse":     r.Reflect(&ImageEditResponse{}),
		"Stage":                 r.Reflect(&phenology.Stage{}),
		"HistoryEntry":          r.Reflect(&journal.Entry{}),
	}
	schemas["PruningInput"].Title = "Eingaben für die Schnittempfehlung"
	schemas["PruningRecommendation"].Title = "Schnittempfehlung"
	return schemas
}
