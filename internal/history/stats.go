package history

// Bar is one model's share of the retained history.
type Bar struct {
	Model    string  `json:"model"`
	Count    int     `json:"count"`
	Fraction float64 `json:"fraction"` // Count / max(1, total)
}

// Counts tallies entries per model.
func Counts(entries []Entry) map[string]int {
	counts := make(map[string]int)
	for _, e := range entries {
		counts[e.ModelType]++
	}
	return counts
}

// Bars returns one bar per model in models, proportional to the number of
// retained entries. Entries for models not listed still count toward the
// total. An empty history yields zero-height bars.
func Bars(entries []Entry, models []string) []Bar {
	counts := Counts(entries)
	total := len(entries)
	denom := total
	if denom < 1 {
		denom = 1
	}

	bars := make([]Bar, 0, len(models))
	for _, m := range models {
		n := counts[m]
		bars = append(bars, Bar{
			Model:    m,
			Count:    n,
			Fraction: float64(n) / float64(denom),
		})
	}
	return bars
}
