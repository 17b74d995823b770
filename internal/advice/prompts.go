package advice

const systemPrompt = `Du antwortest immer auf Deutsch und ausschließlich im geforderten JSON-Format.`

const pruningPrompt = `Du bist ein fachlich präziser Weinbau-Assistent für Hobby-Winzer in Mitteleuropa.
Beurteile basierend auf folgenden Daten, ob ein Rebschnitt aktuell sinnvoll ist.

DATEN:
Rebsorte: %s
Standort: %s, %s
Erziehungsform: %s
Aktuelles Stadium: %s
Wettertrend: %s
Frostrisiko: %s
Niederschlag aktuell: %s
Windgeschwindigkeit aktuell: %s
Ziel: %s

ANFORDERUNG:
- Gib eine klare Empfehlung (jetzt schneiden, noch warten, nur vorbereitende Arbeiten).
- Begründe fachlich (Vitalität vor Ertrag). Berücksichtige dabei auch die Wundheilung (Feuchtigkeit fördert Infektionen wie ESCA).
- Nenne max. 3 typische Fehler.
- Gib ggf. eine alternative Strategie.
- Ton: sachlich, verständlich, kein Overkill an Jargon.`

// notSpecified stands in for optional weather fields the user left empty.
const notSpecified = "keine Angabe"
