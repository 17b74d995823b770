package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/drpaneas/vitisexpert/internal/advice"
	"github.com/drpaneas/vitisexpert/internal/journal"
	"github.com/drpaneas/vitisexpert/internal/phenology"
	"github.com/drpaneas/vitisexpert/internal/weather"
)

var (
	colorEmerald = lipgloss.Color("#059669")
	colorAmber   = lipgloss.Color("#b45309")
	colorBlue    = lipgloss.Color("#1e40af")
	colorRed     = lipgloss.Color("#dc2626")
	colorMuted   = lipgloss.Color("#6b7280")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorEmerald)
	labelStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(colorMuted)
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(colorRed)
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 2)
)

func verdictColor(v advice.Verdict) lipgloss.Color {
	s := strings.ToLower(string(v))
	switch {
	case strings.Contains(s, "jetzt"):
		return colorEmerald
	case strings.Contains(s, "warten"):
		return colorAmber
	default:
		return colorBlue
	}
}

func riskColor(r phenology.RiskFactor) lipgloss.Color {
	switch r {
	case phenology.RiskHigh:
		return colorRed
	case phenology.RiskMedium:
		return colorAmber
	default:
		return colorEmerald
	}
}

func printRecommendation(w io.Writer, rec *advice.Recommendation) {
	c := verdictColor(rec.Verdict)
	verdict := boxStyle.BorderForeground(c).Foreground(c).Bold(true).
		Render("Empfehlung: „" + string(rec.Verdict) + "“")
	fmt.Fprintln(w, verdict)
	fmt.Fprintln(w)

	fmt.Fprintln(w, titleStyle.Render("Fachliche Begründung"))
	fmt.Fprintln(w, rec.Justification)
	fmt.Fprintln(w)

	fmt.Fprintln(w, errorStyle.Render("Typische Fehler"))
	for _, m := range rec.CommonMistakes {
		fmt.Fprintf(w, "  • %s\n", m)
	}
	if rec.AlternativeStrategy != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, labelStyle.Foreground(colorBlue).Render("Alternative Strategie"))
		fmt.Fprintln(w, rec.AlternativeStrategy)
	}
}

func printWeather(w io.Writer, aw *weather.AutoWeather) {
	rows := [][2]string{
		{"Region", aw.Region},
		{"Temperaturtrend", aw.TempTrend},
		{"Frostrisiko", aw.FrostRisk},
		{"Niederschlag", aw.Precipitation},
		{"Wind", aw.WindSpeed},
	}
	for _, r := range rows {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Width(17).Render(r[0]+":"), r[1])
	}
}

func printStageList(w io.Writer, stages []phenology.Stage) {
	for _, s := range stages {
		risk := lipgloss.NewStyle().Foreground(riskColor(s.Risk)).Render("Risiko: " + string(s.Risk))
		fmt.Fprintf(w, "%s  %s  %s\n", titleStyle.Render("BBCH "+s.BBCH), labelStyle.Render(s.Name), risk)
		fmt.Fprintf(w, "         %s\n", mutedStyle.Render(s.Summary))
	}
}

func printStage(w io.Writer, s phenology.Stage) {
	fmt.Fprintf(w, "%s  %s\n", titleStyle.Render("BBCH "+s.BBCH), labelStyle.Render(s.Name))
	fmt.Fprintln(w, lipgloss.NewStyle().Foreground(riskColor(s.Risk)).Render("Risiko: "+string(s.Risk)))
	fmt.Fprintln(w)
	fmt.Fprintln(w, labelStyle.Render("Beschreibung"))
	fmt.Fprintln(w, s.Description)
	fmt.Fprintln(w)
	fmt.Fprintln(w, labelStyle.Render("Erkennungsmerkmale"))
	for _, m := range s.VisualMarkers {
		fmt.Fprintf(w, "  ✓ %s\n", m)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, boxStyle.BorderForeground(colorEmerald).Render("VitisExpert Tipp\n\""+s.Tip+"\""))
}

func printHistory(w io.Writer, entries []journal.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("Noch keine Empfehlungen gespeichert."))
		return
	}
	for _, e := range entries {
		verdict := lipgloss.NewStyle().Foreground(verdictColor(e.Recommendation.Verdict)).
			Render(string(e.Recommendation.Verdict))
		fmt.Fprintf(w, "%s  %s  %s, %s  %s\n",
			mutedStyle.Render(e.CreatedAt.Local().Format("2006-01-02 15:04")),
			verdict,
			e.Input.Variety, e.Input.Region,
			mutedStyle.Render(e.ID))
	}
}

func printEntry(w io.Writer, e journal.Entry) {
	fmt.Fprintf(w, "%s  %s\n", mutedStyle.Render(e.CreatedAt.Local().Format("2006-01-02 15:04")), mutedStyle.Render(e.ID))
	fmt.Fprintf(w, "%s, %s (%s)\n", labelStyle.Render(e.Input.Variety), e.Input.Region, e.Input.Phenology)
	if e.Provider != "" {
		fmt.Fprintln(w, mutedStyle.Render(e.Provider+" / "+e.Model))
	}
	fmt.Fprintln(w)
	printRecommendation(w, &e.Recommendation)
}
