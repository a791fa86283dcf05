package lifecycle

import (
	"fmt"
	"io"
	"sync"

	"iris-predict/internal/history"
	"iris-predict/internal/iris"
)

// ResultView is a rendered prediction.
type ResultView struct {
	ModelType  string `json:"model_type"`
	Features   string `json:"features"`
	Prediction string `json:"prediction"`
	Label      string `json:"label,omitempty"`
}

// NewResultView renders res the way the page shows it.
func NewResultView(res iris.Result) ResultView {
	return ResultView{
		ModelType:  res.ModelType,
		Features:   res.FeaturesText(),
		Prediction: res.Prediction.String(),
		Label:      res.Label(),
	}
}

// State is everything a View currently shows.
type State struct {
	Busy    bool            `json:"busy"`
	Result  *ResultView     `json:"result"`
	Error   string          `json:"error,omitempty"`
	History []history.Entry `json:"history"`
	Bars    []history.Bar   `json:"bars"`
	Renders int             `json:"renders"` // results and errors shown so far
}

// StateView keeps the rendered state in memory. The UI server serves it
// and tests inspect it.
type StateView struct {
	mu    sync.Mutex
	state State
}

// NewStateView returns an idle view with no result.
func NewStateView() *StateView {
	return &StateView{state: State{History: []history.Entry{}, Bars: []history.Bar{}}}
}

func (v *StateView) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.Error = ""
	v.state.Result = nil
	v.state.Busy = true
}

func (v *StateView) SetBusy(busy bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.Busy = busy
}

func (v *StateView) ShowResult(res iris.Result) {
	rv := NewResultView(res)
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.Result = &rv
	v.state.Error = ""
	v.state.Renders++
}

func (v *StateView) ShowError(msg string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.Error = msg
	v.state.Result = nil
	v.state.Renders++
}

func (v *StateView) ShowHistory(entries []history.Entry, bars []history.Bar) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.History = append([]history.Entry{}, entries...)
	v.state.Bars = append([]history.Bar{}, bars...)
}

// State returns a copy of the current state.
func (v *StateView) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	s := v.state
	if s.Result != nil {
		r := *s.Result
		s.Result = &r
	}
	s.History = append([]history.Entry{}, s.History...)
	s.Bars = append([]history.Bar{}, s.Bars...)
	return s
}

// TextView prints results and errors for the command line.
type TextView struct {
	Out         io.Writer
	ShowEntries bool // also print history after a recorded prediction
}

func (v *TextView) Reset()            {}
func (v *TextView) SetBusy(busy bool) {}

func (v *TextView) ShowResult(res iris.Result) {
	rv := NewResultView(res)
	fmt.Fprintf(v.Out, "model:      %s\n", rv.ModelType)
	fmt.Fprintf(v.Out, "features:   %s\n", rv.Features)
	fmt.Fprintf(v.Out, "prediction: %s\n", rv.Prediction)
	if rv.Label != "" {
		fmt.Fprintf(v.Out, "label:      %s\n", rv.Label)
	}
}

func (v *TextView) ShowError(msg string) {
	fmt.Fprintf(v.Out, "error: %s\n", msg)
}

func (v *TextView) ShowHistory(entries []history.Entry, bars []history.Bar) {
	if !v.ShowEntries {
		return
	}
	fmt.Fprintf(v.Out, "history: %d entries\n", len(entries))
	for _, b := range bars {
		fmt.Fprintf(v.Out, "  %-8s %d (%.0f%%)\n", b.Model, b.Count, b.Fraction*100)
	}
}
