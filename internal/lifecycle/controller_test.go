package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"iris-predict/internal/backend"
	"iris-predict/internal/history"
	"iris-predict/internal/iris"
	"iris-predict/internal/supervisor"
)

func fastRetry() supervisor.RetryConfig {
	return supervisor.RetryConfig{
		Timeouts:          []time.Duration{200 * time.Millisecond, 2 * time.Second},
		RetryClientErrors: true,
	}
}

func newBackend(t *testing.T, h http.HandlerFunc) (*backend.Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	c, err := backend.NewClient(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	return c, &calls
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}

func draft(inputs ...string) iris.Draft {
	d := iris.NewDraft()
	copy(d.Inputs[:], inputs)
	return d
}

func TestSubmit_InvalidInputMakesNoCalls(t *testing.T) {
	client, calls := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"prediction":0}`)
	})

	for i := 0; i < iris.NumFeatures; i++ {
		for _, bad := range []string{"", "abc", "  ", "NaN"} {
			view := NewStateView()
			c := New(client, view, Options{Retry: fastRetry()})

			d := iris.NewDraft()
			d.Inputs[i] = bad
			_, err := c.Submit(context.Background(), d)
			if iris.KindOf(err) != iris.KindValidation {
				t.Fatalf("input %d=%q: err = %v, want validation", i, bad, err)
			}
			st := view.State()
			if st.Error != iris.MsgInvalidFeatures || st.Result != nil || st.Busy {
				t.Errorf("input %d=%q: state = %+v", i, bad, st)
			}
		}
	}
	if n := calls.Load(); n != 0 {
		t.Errorf("network calls = %d, want 0", n)
	}
}

func TestSubmit_LogregSetosaExample(t *testing.T) {
	var gotBody string
	client, calls := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		writeJSON(w, 200, `{"model_type":"logreg","features":[5.1,3.5,1.4,0.2],"prediction":0}`)
	})
	view := NewStateView()
	c := New(client, view, Options{Retry: fastRetry()})

	out, err := c.Submit(context.Background(), draft("5.1", "3.5", "1.4", "0.2"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if calls.Load() != 1 || out.Attempts != 1 {
		t.Errorf("calls=%d attempts=%d", calls.Load(), out.Attempts)
	}
	if gotBody != `{"model_type":"logreg","features":[5.1,3.5,1.4,0.2]}` {
		t.Errorf("request body = %s", gotBody)
	}
	st := view.State()
	if st.Result == nil {
		t.Fatal("no result rendered")
	}
	if st.Result.Prediction != "0" || st.Result.Label != "Setosa" || st.Result.ModelType != "logreg" {
		t.Errorf("result = %+v", st.Result)
	}
	if st.Result.Features != "[5.1,3.5,1.4,0.2]" {
		t.Errorf("features = %s", st.Result.Features)
	}
	if out.Label != "Setosa" {
		t.Errorf("outcome label = %q", out.Label)
	}
}

func TestSubmit_TimeoutThenSuccess(t *testing.T) {
	var n atomic.Int32
	client, calls := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if n.Add(1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(3 * time.Second):
			}
			return
		}
		writeJSON(w, 200, `{"model_type":"kmeans","features":[6,2.9,4.5,1.5],"prediction":1}`)
	})
	view := NewStateView()
	c := New(client, view, Options{Retry: fastRetry()})

	d := draft("6.0", "2.9", "4.5", "1.5")
	d.Model = iris.ModelKMeans
	out, err := c.Submit(context.Background(), d)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if calls.Load() != 2 || out.Attempts != 2 {
		t.Errorf("calls=%d attempts=%d, want 2", calls.Load(), out.Attempts)
	}
	st := view.State()
	if st.Result == nil || st.Result.Prediction != "1" || st.Result.Label != "Versicolor" {
		t.Errorf("result = %+v", st.Result)
	}
	if st.Error != "" {
		t.Errorf("error = %q", st.Error)
	}
}

func TestSubmit_BothAttemptsFailShowsRetryError(t *testing.T) {
	var n atomic.Int32
	client, calls := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if n.Add(1) == 1 {
			writeJSON(w, 500, `{"error":"first failure"}`)
			return
		}
		writeJSON(w, 503, `{"error":"second failure"}`)
	})
	view := NewStateView()
	c := New(client, view, Options{Retry: fastRetry()})

	_, err := c.Submit(context.Background(), iris.NewDraft())
	if iris.KindOf(err) != iris.KindServer {
		t.Fatalf("err = %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
	if st := view.State(); st.Error != "second failure" {
		t.Errorf("error = %q, want second failure", st.Error)
	}
}

func TestSubmit_FailureMessages(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
		kind    iris.Kind
	}{
		{"malformed", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, 200, `<html>`)
		}, iris.MsgInvalidJSON, iris.KindMalformed},
		{"malformed error status", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, 502, `bad gateway`)
		}, iris.MsgInvalidJSON, iris.KindMalformed},
		{"status without message", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, 500, `{}`)
		}, "HTTP 500", iris.KindServer},
		{"missing prediction", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, 200, `{"model_type":"logreg"}`)
		}, iris.MsgInvalidJSON, iris.KindMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, calls := newBackend(t, tt.handler)
			view := NewStateView()
			c := New(client, view, Options{Retry: fastRetry()})

			_, err := c.Submit(context.Background(), iris.NewDraft())
			if iris.KindOf(err) != tt.kind {
				t.Errorf("kind = %v, want %v", iris.KindOf(err), tt.kind)
			}
			if calls.Load() != 2 {
				t.Errorf("calls = %d, want 2", calls.Load())
			}
			if st := view.State(); st.Error != tt.want {
				t.Errorf("error = %q, want %q", st.Error, tt.want)
			}
		})
	}
}

func TestSubmit_ClientErrorsNotRetriedWhenDisabled(t *testing.T) {
	client, calls := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 400, `{"error":"unknown model_type"}`)
	})
	cfg := fastRetry()
	cfg.RetryClientErrors = false
	view := NewStateView()
	c := New(client, view, Options{Retry: cfg})

	d := iris.NewDraft()
	d.Model = "svm"
	c.Submit(context.Background(), d)
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
	if st := view.State(); st.Error != "unknown model_type" {
		t.Errorf("error = %q", st.Error)
	}
}

func TestSubmit_NetworkError(t *testing.T) {
	client, err := backend.NewClient("http://127.0.0.1:1")
	if err != nil {
		t.Fatal(err)
	}
	view := NewStateView()
	c := New(client, view, Options{Retry: fastRetry()})

	out, err := c.Submit(context.Background(), iris.NewDraft())
	if iris.KindOf(err) != iris.KindNetwork {
		t.Fatalf("err = %v", err)
	}
	if out.Attempts != 2 {
		t.Errorf("attempts = %d", out.Attempts)
	}
	if view.State().Error == "" {
		t.Error("expected an error to be shown")
	}
}

// gatedPredictor answers each call only when its gate is released and
// ignores cancellation, so completions can arrive in any order.
type gatedPredictor struct {
	mu      sync.Mutex
	calls   int
	gates   []chan reply
	started chan int
}

type reply struct {
	res iris.Result
	err error
}

func newGatedPredictor(n int) *gatedPredictor {
	p := &gatedPredictor{started: make(chan int, n)}
	for i := 0; i < n; i++ {
		p.gates = append(p.gates, make(chan reply, 1))
	}
	return p
}

func (p *gatedPredictor) Predict(ctx context.Context, req iris.Request) (iris.Result, error) {
	p.mu.Lock()
	i := p.calls
	p.calls++
	p.mu.Unlock()
	p.started <- i
	r := <-p.gates[i]
	return r.res, r.err
}

func (p *gatedPredictor) waitStarted(t *testing.T, want int) {
	t.Helper()
	select {
	case got := <-p.started:
		if got != want {
			t.Fatalf("started call %d, want %d", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("call %d never started", want)
	}
}

func result(pred float64) iris.Result {
	return iris.Result{ModelType: "logreg", Features: []float64{1, 2, 3, 4}, Prediction: iris.NumberPrediction(pred)}
}

type submission struct {
	out Outcome
	err error
}

func submitAsync(c *Controller, d iris.Draft) <-chan submission {
	ch := make(chan submission, 1)
	go func() {
		out, err := c.Submit(context.Background(), d)
		ch <- submission{out, err}
	}()
	return ch
}

func TestSubmit_SupersededActionNeverRenders(t *testing.T) {
	for _, newerFirst := range []bool{true, false} {
		t.Run(fmt.Sprintf("newer_completes_first=%v", newerFirst), func(t *testing.T) {
			p := newGatedPredictor(2)
			view := NewStateView()
			store := history.NewMemoryStore(history.MaxEntries)
			c := New(p, view, Options{Retry: fastRetry(), History: store, Record: true})

			first := submitAsync(c, iris.NewDraft())
			p.waitStarted(t, 0)
			second := submitAsync(c, iris.NewDraft())
			p.waitStarted(t, 1)

			var s1, s2 submission
			if newerFirst {
				p.gates[1] <- reply{res: result(2)}
				s2 = <-second
				p.gates[0] <- reply{res: result(0)}
				s1 = <-first
			} else {
				p.gates[0] <- reply{err: iris.NewError(iris.KindServer, 500, "late failure", nil)}
				s1 = <-first
				p.gates[1] <- reply{res: result(2)}
				s2 = <-second
			}

			if !errors.Is(s1.err, iris.ErrCancelled) || !s1.out.Stale {
				t.Errorf("first action: out=%+v err=%v, want stale cancellation", s1.out, s1.err)
			}
			if s2.err != nil || s2.out.Label != "Virginica" {
				t.Errorf("second action: out=%+v err=%v", s2.out, s2.err)
			}

			st := view.State()
			if st.Result == nil || st.Result.Label != "Virginica" || st.Error != "" {
				t.Errorf("state = %+v", st)
			}
			if st.Renders != 1 {
				t.Errorf("renders = %d, want 1", st.Renders)
			}
			entries, _ := store.List()
			if len(entries) != 1 {
				t.Errorf("history len = %d, want 1", len(entries))
			}
		})
	}
}

func TestSubmit_SupersedeAbortsInFlightRequest(t *testing.T) {
	released := make(chan struct{})
	var n atomic.Int32
	client, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if n.Add(1) == 1 {
			<-r.Context().Done()
			close(released)
			return
		}
		writeJSON(w, 200, `{"model_type":"logreg","prediction":2}`)
	})
	view := NewStateView()
	c := New(client, view, Options{Retry: supervisor.RetryConfig{Timeouts: []time.Duration{10 * time.Second, 10 * time.Second}}})

	first := submitAsync(c, iris.NewDraft())
	// Let the first request reach the server.
	deadline := time.Now().Add(2 * time.Second)
	for n.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	start := time.Now()
	if _, err := c.Submit(context.Background(), iris.NewDraft()); err != nil {
		t.Fatalf("second submit: %v", err)
	}
	s1 := <-first
	if !errors.Is(s1.err, iris.ErrCancelled) {
		t.Errorf("first err = %v", s1.err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("superseded request was not aborted promptly")
	}
	select {
	case <-released:
	case <-time.After(2 * time.Second):
		t.Error("server never saw the first request aborted")
	}
	if st := view.State(); st.Result == nil || st.Result.Label != "Virginica" {
		t.Errorf("state = %+v", st)
	}
}

func TestCancel_RendersCancelled(t *testing.T) {
	p := newGatedPredictor(1)
	view := NewStateView()
	store := history.NewMemoryStore(history.MaxEntries)
	c := New(p, view, Options{Retry: fastRetry(), History: store, Record: true})

	if c.Cancel() {
		t.Error("Cancel with nothing in flight should report false")
	}

	pending := submitAsync(c, iris.NewDraft())
	p.waitStarted(t, 0)
	if !c.Busy() || !view.State().Busy {
		t.Error("expected busy while in flight")
	}
	if !c.Cancel() {
		t.Fatal("Cancel should report true")
	}

	st := view.State()
	if st.Error != iris.MsgCancelled || st.Busy {
		t.Errorf("state after cancel = %+v", st)
	}

	// A late success must not overwrite the cancellation.
	p.gates[0] <- reply{res: result(0)}
	s := <-pending
	if !errors.Is(s.err, iris.ErrCancelled) {
		t.Errorf("err = %v", s.err)
	}
	st = view.State()
	if st.Error != iris.MsgCancelled || st.Result != nil || st.Renders != 1 {
		t.Errorf("state after late completion = %+v", st)
	}
	if entries, _ := store.List(); len(entries) != 0 {
		t.Errorf("cancelled action recorded %d entries", len(entries))
	}
}

func TestSubmit_HistoryRecording(t *testing.T) {
	var fail atomic.Bool
	client, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			writeJSON(w, 500, `{"error":"boom"}`)
			return
		}
		writeJSON(w, 200, `{"model_type":"kmeans","features":[5.1,3.5,1.4,0.2],"prediction":1}`)
	})
	store := history.NewMemoryStore(history.MaxEntries)
	view := NewStateView()
	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := New(client, view, Options{
		Retry:   fastRetry(),
		History: store,
		Record:  true,
		Now:     func() time.Time { return clock },
	})

	for i := 0; i < history.MaxEntries+1; i++ {
		if _, err := c.Submit(context.Background(), iris.NewDraft()); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	st := view.State()
	if len(st.History) != history.MaxEntries {
		t.Fatalf("history len = %d", len(st.History))
	}
	if !st.History[0].Timestamp.Equal(clock) || st.History[0].Label != "Versicolor" {
		t.Errorf("entry = %+v", st.History[0])
	}
	if len(st.Bars) != 2 || st.Bars[1].Model != "kmeans" || st.Bars[1].Fraction != 1 {
		t.Errorf("bars = %+v", st.Bars)
	}

	fail.Store(true)
	c.Submit(context.Background(), iris.NewDraft())
	if entries, _ := store.List(); len(entries) != history.MaxEntries {
		t.Errorf("failed action changed history: %d", len(entries))
	}

	fail.Store(false)
	c.SetRecording(false)
	before, _ := store.List()
	c.Submit(context.Background(), iris.NewDraft())
	after, _ := store.List()
	if after[len(after)-1].ID != before[len(before)-1].ID {
		t.Error("recording disabled but entry appended")
	}

	if err := c.ClearHistory(); err != nil {
		t.Fatal(err)
	}
	if st := view.State(); len(st.History) != 0 || st.Bars[0].Fraction != 0 {
		t.Errorf("after clear: %+v", st)
	}
}

func TestSubmit_HistoryUsesRequestedModelWhenNotEchoed(t *testing.T) {
	client, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"prediction":1}`)
	})
	store := history.NewMemoryStore(history.MaxEntries)
	view := NewStateView()
	c := New(client, view, Options{Retry: fastRetry(), History: store, Record: true})

	d := iris.NewDraft()
	d.Model = "kmeans"
	if _, err := c.Submit(context.Background(), d); err != nil {
		t.Fatal(err)
	}
	entries, _ := store.List()
	if len(entries) != 1 || entries[0].ModelType != "kmeans" {
		t.Fatalf("entries = %+v", entries)
	}
	st := view.State()
	if len(st.Bars) != 2 || st.Bars[1].Model != "kmeans" || st.Bars[1].Count != 1 || st.Bars[1].Fraction != 1 {
		t.Errorf("bars = %+v", st.Bars)
	}
}

func TestSetRecording_EnablesWhenStartedOff(t *testing.T) {
	client, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"model_type":"logreg","prediction":0}`)
	})
	store := history.NewMemoryStore(history.MaxEntries)
	c := New(client, NewStateView(), Options{Retry: fastRetry(), History: store})
	if c.Recording() {
		t.Fatal("recording should start off")
	}
	c.Submit(context.Background(), iris.NewDraft())
	if entries, _ := store.List(); len(entries) != 0 {
		t.Fatalf("recorded while off: %d", len(entries))
	}

	c.SetRecording(true)
	if !c.Recording() {
		t.Fatal("recording not enabled")
	}
	if _, err := c.Submit(context.Background(), iris.NewDraft()); err != nil {
		t.Fatal(err)
	}
	if entries, _ := store.List(); len(entries) != 1 {
		t.Errorf("entries = %d, want 1", len(entries))
	}
}

func TestSubmit_PublishesTransitions(t *testing.T) {
	var n atomic.Int32
	client, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if n.Add(1) == 1 {
			writeJSON(w, 500, `{"error":"once"}`)
			return
		}
		writeJSON(w, 200, `{"prediction":0}`)
	})
	bus := supervisor.NewEventBus(64)
	defer bus.Shutdown()
	sub := bus.Subscribe()
	actions := NewActionLog(10)

	c := New(client, NewStateView(), Options{Retry: fastRetry(), Events: bus, Actions: actions})
	out, err := c.Submit(context.Background(), iris.NewDraft())
	if err != nil {
		t.Fatal(err)
	}

	want := []supervisor.EventType{
		supervisor.EventValidating,
		supervisor.EventSending,
		supervisor.EventRetrying,
		supervisor.EventSending,
		supervisor.EventSuccess,
	}
	for i, typ := range want {
		select {
		case ev := <-sub:
			if ev.Type != typ || ev.ActionID != out.ActionID {
				t.Fatalf("event %d = %+v, want %s", i, ev, typ)
			}
			if typ == supervisor.EventSending && ev.Timeout == 0 {
				t.Errorf("sending event without timeout: %+v", ev)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing event %d (%s)", i, typ)
		}
	}

	snap := actions.Snapshot()
	if len(snap.InFlight) != 0 || len(snap.Recent) != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if r := snap.Recent[0]; r.ID != out.ActionID || r.Outcome != "success" || r.Attempts != 2 {
		t.Errorf("recent = %+v", r)
	}
}
