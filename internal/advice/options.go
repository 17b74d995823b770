package advice

// Select lists offered by the pruning form. Free text is still accepted;
// these only drive the UI and CLI help.
var (
	TrainingSystems = []string{
		"Spalier (Guyot)",
		"Zapfenschnitt (Kordon)",
		"Umkehr-Erziehung",
		"Pfahlerziehung",
		"Hausrebe (Pergola)",
	}

	PhenologyOptions = []string{
		"BBCH 00: Winterruhe",
		"BBCH 01: Beginn des Saftflusses (Bluten)",
		"BBCH 03: Knospenschwellen",
		"BBCH 05: Wollestadium",
		"BBCH 07: Beginn des Aufbruchs (Grünspitzen)",
		"BBCH 09: Blattaustrieb",
		"BBCH 53+: Nach Austrieb (Wachstum/Blüte)",
	}

	TempTrends = []string{
		"Ansteigend",
		"Stabil (mild)",
		"Stabil (frostig)",
		"Sinkend",
	}

	FrostRisks = []string{
		"Gering",
		"Mittel",
		"Hoch (Spätfrostgefahr)",
	}

	Goals = []string{
		"Maximale Weinqualität",
		"Hoher Ertrag",
		"Rebenvitalität & Langlebigkeit",
		"Minimale Arbeitszeit",
		"Verjüngung der Rebe",
		"Sanfter Rebschnitt (Simonit & Sirch)",
	}
)

// DefaultInput returns the form's initial values.
func DefaultInput() Input {
	return Input{
		TrainingSystem: TrainingSystems[0],
		Phenology:      PhenologyOptions[0],
		TempTrend:      "Stabil (mild)",
		FrostRisk:      FrostRisks[0],
		Goal:           Goals[0],
	}
}
