package iris

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Prediction is the raw prediction value: a number or a string.
type Prediction struct {
	num    float64
	text   string
	isNum  bool
	isText bool
}

// NumberPrediction wraps a numeric prediction.
func NumberPrediction(f float64) Prediction { return Prediction{num: f, isNum: true} }

// TextPrediction wraps a string prediction.
func TextPrediction(s string) Prediction { return Prediction{text: s, isText: true} }

// Number returns the numeric value and whether the prediction is numeric.
func (p Prediction) Number() (float64, bool) { return p.num, p.isNum }

// IsZero reports whether no prediction was set.
func (p Prediction) IsZero() bool { return !p.isNum && !p.isText }

// String renders the value as displayed: 0, 1.5, setosa.
func (p Prediction) String() string {
	switch {
	case p.isNum:
		if math.Abs(p.num) >= 1e21 {
			return strconv.FormatFloat(p.num, 'g', -1, 64)
		}
		return strconv.FormatFloat(p.num, 'f', -1, 64)
	case p.isText:
		return p.text
	default:
		return ""
	}
}

func (p Prediction) MarshalJSON() ([]byte, error) {
	switch {
	case p.isNum:
		return json.Marshal(p.num)
	case p.isText:
		return json.Marshal(p.text)
	default:
		return []byte("null"), nil
	}
}

func (p *Prediction) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	got, err := PredictionFrom(v)
	if err != nil {
		return err
	}
	*p = got
	return nil
}

// PredictionFrom converts a decoded JSON scalar. nil yields the zero Prediction.
func PredictionFrom(v any) (Prediction, error) {
	switch x := v.(type) {
	case nil:
		return Prediction{}, nil
	case float64:
		return NumberPrediction(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Prediction{}, fmt.Errorf("prediction %q: %w", x.String(), err)
		}
		return NumberPrediction(f), nil
	case string:
		return TextPrediction(x), nil
	case bool:
		return TextPrediction(strconv.FormatBool(x)), nil
	default:
		return Prediction{}, fmt.Errorf("unsupported prediction type %T", v)
	}
}

// Request is the body of POST /predict.
type Request struct {
	ModelType ModelType `json:"model_type"`
	Features  []float64 `json:"features"`
}

// NewRequest builds a Request from a validated vector.
func NewRequest(model ModelType, v FeatureVector) Request {
	return Request{ModelType: model, Features: v.Slice()}
}

// Result is a successful /predict answer.
type Result struct {
	ModelType   string     `json:"model_type"`
	Features    []float64  `json:"features"`
	Prediction  Prediction `json:"prediction"`
	ServerLabel string     `json:"label,omitempty"`
}

// Label returns the species name when the prediction is a known class index,
// otherwise the server-supplied label. Empty means no label is shown.
func (r Result) Label() string {
	if n, ok := r.Prediction.Number(); ok {
		if name, ok := SpeciesName(n); ok {
			return name
		}
	}
	return r.ServerLabel
}

// FeaturesText renders the echoed features as a JSON array.
func (r Result) FeaturesText() string {
	b, err := json.Marshal(r.Features)
	if err != nil {
		return fmt.Sprint(r.Features)
	}
	return string(b)
}
