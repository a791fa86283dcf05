// Package iris holds the domain types of the iris prediction console: feature
// vectors, model identifiers, predictions, form drafts and shareable links.
package iris

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// NumFeatures is the length of every FeatureVector.
const NumFeatures = 4

// FeatureVector is sepal length, sepal width, petal length, petal width.
type FeatureVector [NumFeatures]float64

// FeatureNames lists the form fields in vector order.
var FeatureNames = [NumFeatures]string{"sepal_length", "sepal_width", "petal_length", "petal_width"}

// Slice returns the vector as a slice, the shape the backend expects.
func (v FeatureVector) Slice() []float64 {
	out := make([]float64, NumFeatures)
	copy(out, v[:])
	return out
}

var numericPrefix = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// ParseFeature parses one raw input the way a browser number field is read:
// leading whitespace is skipped and the longest numeric prefix wins
// ("5.1cm" is 5.1). Empty, non-numeric and non-finite input fails.
func ParseFeature(raw string) (float64, bool) {
	s := strings.TrimLeftFunc(raw, unicode.IsSpace)
	m := numericPrefix.FindString(s)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ParseFeatures parses the four raw inputs. Any failure yields a validation error.
func ParseFeatures(raw [NumFeatures]string) (FeatureVector, error) {
	var v FeatureVector
	for i, s := range raw {
		f, ok := ParseFeature(s)
		if !ok {
			return FeatureVector{}, NewError(KindValidation, 0, MsgInvalidFeatures, nil)
		}
		v[i] = f
	}
	return v, nil
}

// FormatFeature renders a value the way it is written back into a form field.
func FormatFeature(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
