package iris

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Draft is the raw state of the prediction form: the text of the four inputs
// and the selected model.
type Draft struct {
	Inputs [NumFeatures]string `json:"inputs"`
	Model  ModelType           `json:"model"`
}

// presets are the example flowers offered by the form.
var presets = map[string]FeatureVector{
	"setosa":     {5.1, 3.5, 1.4, 0.2},
	"versicolor": {6.0, 2.9, 4.5, 1.5},
	"virginica":  {6.3, 3.3, 6.0, 2.5},
}

// NewDraft returns the form as first shown: the setosa preset with the default model.
func NewDraft() Draft {
	d := Draft{Model: DefaultModel}
	d.Fill(presets["setosa"])
	return d
}

// PresetNames returns the preset keys in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for k := range presets {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Preset returns the features of a named preset.
func Preset(name string) (FeatureVector, bool) {
	v, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	return v, ok
}

// PresetTitle is the display form of a preset name ("Versicolor").
func PresetTitle(name string) string {
	return cases.Title(language.English).String(strings.ToLower(name))
}

// Fill writes v into the four inputs.
func (d *Draft) Fill(v FeatureVector) {
	for i, f := range v {
		d.Inputs[i] = FormatFeature(f)
	}
}

// ApplyPreset fills the inputs from a named preset.
func (d *Draft) ApplyPreset(name string) error {
	v, ok := Preset(name)
	if !ok {
		return fmt.Errorf("unknown preset %q (want one of %s)", name, strings.Join(PresetNames(), ", "))
	}
	d.Fill(v)
	return nil
}

// Clear empties the four inputs; the model selection is kept.
func (d *Draft) Clear() {
	d.Inputs = [NumFeatures]string{}
}

// Features validates the inputs.
func (d Draft) Features() (FeatureVector, error) {
	return ParseFeatures(d.Inputs)
}

// Query parameter names used by shareable links.
const (
	ParamSepalLength = "sl"
	ParamSepalWidth  = "sw"
	ParamPetalLength = "pl"
	ParamPetalWidth  = "pw"
	ParamModel       = "model"
	ParamAPI         = "api"
)

var inputParams = [NumFeatures]string{ParamSepalLength, ParamSepalWidth, ParamPetalLength, ParamPetalWidth}

// Values encodes the draft as query parameters.
func (d Draft) Values() url.Values {
	q := url.Values{}
	for i, p := range inputParams {
		q.Set(p, d.Inputs[i])
	}
	q.Set(ParamModel, string(d.Model))
	return q
}

// Hydrate overwrites draft fields with any parameters present in q. Each
// field is independent; absent parameters leave the field untouched.
func (d *Draft) Hydrate(q url.Values) {
	for i, p := range inputParams {
		if _, ok := q[p]; ok {
			d.Inputs[i] = q.Get(p)
		}
	}
	if _, ok := q[ParamModel]; ok {
		d.Model = ModelType(q.Get(ParamModel))
	}
}

// ShareLink returns page with the draft (and apiBase, if non-empty) encoded
// in its query string. Existing query parameters on page are kept.
func ShareLink(page string, d Draft, apiBase string) (string, error) {
	u, err := url.Parse(page)
	if err != nil {
		return "", fmt.Errorf("parse page url: %w", err)
	}
	q := u.Query()
	for k, v := range d.Values() {
		q[k] = v
	}
	if apiBase != "" {
		q.Set(ParamAPI, apiBase)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ParseShareLink hydrates base from the query of link and returns the api
// parameter, if any.
func ParseShareLink(link string, base Draft) (Draft, string, error) {
	u, err := url.Parse(link)
	if err != nil {
		return base, "", fmt.Errorf("parse share link: %w", err)
	}
	q := u.Query()
	base.Hydrate(q)
	return base, q.Get(ParamAPI), nil
}
