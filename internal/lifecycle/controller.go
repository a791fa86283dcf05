// Package lifecycle turns predict actions into exactly one rendered result
// or one user-visible error, with at most one action live at a time.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"iris-predict/internal/history"
	"iris-predict/internal/iris"
	"iris-predict/internal/supervisor"
)

// Predictor sends one prediction request. *backend.Client implements it.
type Predictor interface {
	Predict(ctx context.Context, req iris.Request) (iris.Result, error)
}

// View receives every visible state change of the controller. Calls are
// serialised by the controller and never come from a superseded action.
type View interface {
	// Reset clears any prior error, shows the "no result" state and marks busy.
	Reset()
	SetBusy(busy bool)
	ShowResult(res iris.Result)
	ShowError(msg string)
	ShowHistory(entries []history.Entry, bars []history.Bar)
}

// Options configures a Controller. Zero values fall back to defaults, except
// Retry.RetryClientErrors which is used as given.
type Options struct {
	Retry   supervisor.RetryConfig
	History history.Store // nil disables recording regardless of Record
	Record  bool          // initial state of the history toggle
	Events  *supervisor.EventBus
	Metrics *supervisor.Metrics
	Actions *ActionLog
	Logger  *slog.Logger
	Now     func() time.Time
}

// Outcome describes how a predict action ended.
type Outcome struct {
	ActionID string         `json:"action_id"`
	Attempts int            `json:"attempts"`
	Result   *iris.Result   `json:"result,omitempty"`
	Label    string         `json:"label,omitempty"`
	Entry    *history.Entry `json:"entry,omitempty"`
	Stale    bool           `json:"stale,omitempty"`
}

// handle identifies one predict action. A completion is applied only while
// its handle is the controller's live one.
type handle struct {
	id     string
	model  string
	start  time.Time
	cancel context.CancelFunc
}

// Controller is the request lifecycle controller. It is the sole owner of
// the cancellation handle.
type Controller struct {
	mu   sync.Mutex
	live *handle

	predictor Predictor
	view      View
	retryer   *supervisor.Retryer
	timeouts  []time.Duration
	store     history.Store
	record    bool
	events    *supervisor.EventBus
	metrics   *supervisor.Metrics
	actions   *ActionLog
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a controller rendering into view.
func New(predictor Predictor, view View, opts Options) *Controller {
	if len(opts.Retry.Timeouts) == 0 {
		opts.Retry.Timeouts = supervisor.DefaultRetryConfig().Timeouts
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{
		predictor: predictor,
		view:      view,
		retryer:   supervisor.NewRetryer(opts.Retry),
		timeouts:  append([]time.Duration(nil), opts.Retry.Timeouts...),
		store:     opts.History,
		record:    opts.Record,
		events:    opts.Events,
		metrics:   opts.Metrics,
		actions:   opts.Actions,
		logger:    opts.Logger,
		now:       opts.Now,
	}
}

// SetRecording flips the history toggle.
func (c *Controller) SetRecording(on bool) {
	c.mu.Lock()
	c.record = on
	c.mu.Unlock()
}

// Recording reports the history toggle.
func (c *Controller) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record && c.store != nil
}

// Busy reports whether an action is live.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live != nil
}

// Submit runs one predict action for d. It blocks until the action ends.
// An action superseded by a newer Submit or aborted by Cancel returns
// iris.ErrCancelled and never touches the view afterwards.
func (c *Controller) Submit(ctx context.Context, d iris.Draft) (Outcome, error) {
	h, actx := c.begin(ctx, string(d.Model))
	defer h.cancel()
	out := Outcome{ActionID: h.id}

	c.publish(h, supervisor.Event{Type: supervisor.EventValidating})
	fv, err := d.Features()
	if err != nil {
		return c.fail(h, out, err)
	}

	req := iris.NewRequest(d.Model, fv)
	var res iris.Result
	rr := c.retryer.Do(actx, func(ctx context.Context, attempt int) error {
		c.publish(h, supervisor.Event{Type: supervisor.EventSending, Attempt: attempt, Timeout: c.timeout(attempt).Milliseconds()})
		r, err := c.predictor.Predict(ctx, req)
		if err != nil {
			c.metrics.RecordAttempt(h.model, string(kindOf(err)))
			c.logger.Debug("predict attempt failed", "action_id", h.id, "attempt", attempt, "err", err)
			return err
		}
		c.metrics.RecordAttempt(h.model, "ok")
		res = r
		return nil
	}, func(attempt int, err error) {
		c.metrics.RecordRetry(h.model)
		c.publish(h, supervisor.Event{Type: supervisor.EventRetrying, Attempt: attempt, ErrorKind: string(kindOf(err)), Error: iris.Message(err)})
	})
	out.Attempts = rr.Attempts

	if rr.LastError != nil {
		return c.fail(h, out, rr.LastError)
	}
	return c.succeed(h, out, res)
}

// Cancel aborts the live action, if any, and renders "request cancelled".
// It reports whether there was an action to cancel.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	h := c.live
	if h == nil {
		c.mu.Unlock()
		return false
	}
	h.cancel()
	c.live = nil
	c.view.ShowError(iris.MsgCancelled)
	c.view.SetBusy(false)
	c.metrics.SetInFlight(false)
	c.mu.Unlock()

	c.publish(h, supervisor.Event{Type: supervisor.EventError, ErrorKind: string(iris.KindCancelled), Error: iris.MsgCancelled})
	c.logger.Info("predict action cancelled", "action_id", h.id)
	return true
}

// begin supersedes any live action and installs a fresh handle.
func (c *Controller) begin(ctx context.Context, model string) (*handle, context.Context) {
	actx, cancel := context.WithCancel(ctx)
	h := &handle{
		id:     uuid.NewString(),
		model:  model,
		start:  c.now(),
		cancel: cancel,
	}

	c.mu.Lock()
	prev := c.live
	if prev != nil {
		prev.cancel()
	}
	c.live = h
	c.view.Reset()
	c.metrics.SetInFlight(true)
	c.mu.Unlock()

	if prev != nil {
		c.logger.Debug("superseded predict action", "action_id", prev.id, "by", h.id)
	}
	c.actions.start(h.id, model, h.start)
	return h, actx
}

// settle clears the live handle if it is still h. The caller must hold c.mu.
func (c *Controller) settle(h *handle) bool {
	if c.live != h {
		return false
	}
	c.live = nil
	return true
}

func (c *Controller) fail(h *handle, out Outcome, err error) (Outcome, error) {
	c.mu.Lock()
	current := c.settle(h)
	if current {
		c.view.ShowError(iris.Message(err))
		c.view.SetBusy(false)
		c.metrics.SetInFlight(false)
	}
	c.mu.Unlock()

	if !current {
		return c.stale(h, out, err)
	}

	kind := kindOf(err)
	c.metrics.RecordAction(h.model, string(kind), c.now().Sub(h.start))
	c.actions.finish(h.id, out.Attempts, string(kind), iris.Message(err), false)
	c.publish(h, supervisor.Event{Type: supervisor.EventError, Attempt: out.Attempts, ErrorKind: string(kind), Error: iris.Message(err)})
	if kind == iris.KindValidation {
		c.logger.Debug("rejected invalid features", "action_id", h.id)
	} else {
		c.logger.Warn("predict action failed", "action_id", h.id, "model", h.model, "attempts", out.Attempts, "kind", kind, "err", err)
	}
	return out, err
}

func (c *Controller) succeed(h *handle, out Outcome, res iris.Result) (Outcome, error) {
	c.mu.Lock()
	if !c.settle(h) {
		c.mu.Unlock()
		return c.stale(h, out, nil)
	}
	c.view.ShowResult(res)
	c.view.SetBusy(false)
	c.metrics.SetInFlight(false)
	record := c.record && c.store != nil
	var entries []history.Entry
	var entry *history.Entry
	if record {
		e := history.NewEntry(c.now(), res, h.model)
		if err := c.store.Append(e); err != nil {
			c.logger.Error("failed to record prediction", "action_id", h.id, "err", err)
		} else {
			entry = &e
			entries = c.listLocked()
			c.view.ShowHistory(entries, history.Bars(entries, iris.ModelNames()))
		}
	}
	c.mu.Unlock()

	out.Result = &res
	out.Label = res.Label()
	out.Entry = entry

	c.metrics.RecordAction(h.model, "success", c.now().Sub(h.start))
	c.actions.finish(h.id, out.Attempts, "success", "", false)
	c.publish(h, supervisor.Event{Type: supervisor.EventSuccess, Attempt: out.Attempts})
	if entry != nil {
		c.metrics.UpdateHistorySize(len(entries))
		c.publish(h, supervisor.Event{Type: supervisor.EventHistory})
	}
	c.logger.Info("prediction rendered", "action_id", h.id, "model", res.ModelType, "prediction", res.Prediction.String(), "label", out.Label, "attempts", out.Attempts)
	return out, nil
}

// stale reports the completion of a superseded action. The view is not
// touched; the caller still learns that its action was cancelled.
func (c *Controller) stale(h *handle, out Outcome, err error) (Outcome, error) {
	out.Stale = true
	c.metrics.RecordAction(h.model, string(iris.KindCancelled), c.now().Sub(h.start))
	c.actions.finish(h.id, out.Attempts, string(iris.KindCancelled), iris.MsgCancelled, true)
	c.publish(h, supervisor.Event{Type: supervisor.EventError, Attempt: out.Attempts, ErrorKind: string(iris.KindCancelled), Error: iris.MsgCancelled, Stale: true})
	if err != nil && !errors.Is(err, iris.ErrCancelled) {
		c.logger.Debug("ignored late failure of superseded action", "action_id", h.id, "err", err)
	} else {
		c.logger.Debug("ignored late completion of superseded action", "action_id", h.id)
	}
	return out, iris.ErrCancelled
}

// History returns the retained entries and their chart bars.
func (c *Controller) History() ([]history.Entry, []history.Bar, error) {
	if c.store == nil {
		return nil, history.Bars(nil, iris.ModelNames()), nil
	}
	entries, err := c.store.List()
	if err != nil {
		return nil, nil, err
	}
	return entries, history.Bars(entries, iris.ModelNames()), nil
}

// RefreshHistory re-renders the history from the store.
func (c *Controller) RefreshHistory() error {
	entries, bars, err := c.History()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.view.ShowHistory(entries, bars)
	c.mu.Unlock()
	c.metrics.UpdateHistorySize(len(entries))
	return nil
}

// ClearHistory empties the store and re-renders.
func (c *Controller) ClearHistory() error {
	if c.store == nil {
		return nil
	}
	if err := c.store.Clear(); err != nil {
		return err
	}
	return c.RefreshHistory()
}

// listLocked lists the store, logging failures. The caller must hold c.mu.
func (c *Controller) listLocked() []history.Entry {
	entries, err := c.store.List()
	if err != nil {
		c.logger.Error("failed to list history", "err", err)
		return nil
	}
	return entries
}

func (c *Controller) timeout(attempt int) time.Duration {
	if attempt < 1 || attempt > len(c.timeouts) {
		return 0
	}
	return c.timeouts[attempt-1]
}

func (c *Controller) publish(h *handle, ev supervisor.Event) {
	if c.events == nil {
		return
	}
	ev.ActionID = h.id
	ev.Model = h.model
	ev.Timestamp = c.now()
	c.events.Publish(ev)
}

// kindOf classifies err; unclassified failures count as network errors.
func kindOf(err error) iris.Kind {
	if k := iris.KindOf(err); k != "" {
		return k
	}
	return iris.KindNetwork
}
