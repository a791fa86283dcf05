package iris

import "math"

// ModelType identifies a model variant served by the backend.
type ModelType string

const (
	ModelLogReg ModelType = "logreg"
	ModelKMeans ModelType = "kmeans"
)

// DefaultModel is selected on a fresh form.
const DefaultModel = ModelLogReg

// Models returns the selectable models in display order.
func Models() []ModelType {
	return []ModelType{ModelLogReg, ModelKMeans}
}

// ModelNames returns Models() as strings.
func ModelNames() []string {
	models := Models()
	names := make([]string, len(models))
	for i, m := range models {
		names[i] = string(m)
	}
	return names
}

// Known reports whether m is one of Models().
func (m ModelType) Known() bool {
	for _, k := range Models() {
		if k == m {
			return true
		}
	}
	return false
}

// species maps class indexes returned by the classifier to names.
var species = map[int]string{
	0: "Setosa",
	1: "Versicolor",
	2: "Virginica",
}

// SpeciesName returns the species for a numeric prediction, if it is one of
// the three known class indexes.
func SpeciesName(pred float64) (string, bool) {
	if pred != math.Trunc(pred) || math.IsInf(pred, 0) {
		return "", false
	}
	name, ok := species[int(pred)]
	return name, ok
}
