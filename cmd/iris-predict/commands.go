package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"iris-predict/internal/backend"
	"iris-predict/internal/chart"
	"iris-predict/internal/config"
	"iris-predict/internal/history"
	"iris-predict/internal/iris"
	"iris-predict/internal/lifecycle"
	"iris-predict/internal/supervisor"
	"iris-predict/internal/ui"
	"iris-predict/web"
)

// errSilent reports failure after the command already told the user why.
var errSilent = errors.New("silent failure")

// formFlags are the flags shared by commands that build a form draft.
type formFlags struct {
	link   string
	preset string
	model  string
	api    string
}

func (f *formFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.link, "link", "", "shareable link to load the form (and api base) from")
	fs.StringVar(&f.preset, "preset", "", "fill the features from a preset: setosa, versicolor, virginica")
	fs.StringVar(&f.model, "model", "", "model type (default from IRIS_MODEL)")
	fs.StringVar(&f.api, "api", "", "prediction service base URL (default from IRIS_API_BASE)")
}

// draft builds the form state: the initial draft, then the link, then the
// preset, then positional feature values, then -model. It also resolves
// the API base; an api parameter in the link wins over -api and the config.
func (f *formFlags) draft(a *app, args []string) (iris.Draft, string, error) {
	d := iris.NewDraft()
	d.Model = iris.ModelType(a.cfg.Model)

	fallback := a.cfg.APIBase
	if f.api != "" {
		fallback = f.api
	}
	apiBase := config.NormalizeAPIBase(fallback)

	if f.link != "" {
		var linkAPI string
		var err error
		d, linkAPI, err = iris.ParseShareLink(f.link, d)
		if err != nil {
			return d, "", err
		}
		if linkAPI != "" {
			apiBase = config.NormalizeAPIBase(linkAPI)
		}
	}
	if f.preset != "" {
		if err := d.ApplyPreset(f.preset); err != nil {
			return d, "", err
		}
	}
	if len(args) > 0 {
		if len(args) != iris.NumFeatures {
			return d, "", fmt.Errorf("expected %d feature values, got %d", iris.NumFeatures, len(args))
		}
		copy(d.Inputs[:], args)
	}
	if f.model != "" {
		d.Model = iris.ModelType(f.model)
	}
	return d, apiBase, nil
}

func (a *app) client(base string) (*backend.Client, error) {
	c, err := backend.NewClient(base)
	if err != nil {
		return nil, err
	}
	c.MaxBodyBytes = a.cfg.ResponseMaxBytes
	return c, nil
}

func (a *app) retryConfig() supervisor.RetryConfig {
	return supervisor.RetryConfig{
		Timeouts:          []time.Duration{a.cfg.FirstAttemptTimeout, a.cfg.RetryTimeout},
		Backoff:           a.cfg.RetryBackoff,
		RetryClientErrors: a.cfg.RetryClientErrors,
	}
}

func (a *app) openHistory() (history.Store, error) {
	return history.Open(string(a.cfg.Storage), a.cfg.HistoryDir, a.logger)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runPredict(a *app, args []string) error {
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	var form formFlags
	form.register(fs)
	record := fs.Bool("record", a.cfg.HistoryEnabled, "append a successful prediction to the history")
	showHistory := fs.Bool("show-history", false, "print the history chart after recording")
	asJSON := fs.Bool("json", false, "print the outcome as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	d, apiBase, err := form.draft(a, fs.Args())
	if err != nil {
		return err
	}
	client, err := a.client(apiBase)
	if err != nil {
		return err
	}

	opts := lifecycle.Options{Retry: a.retryConfig(), Record: *record, Logger: a.logger}
	if *record {
		store, err := a.openHistory()
		if err != nil {
			return err
		}
		defer store.Close()
		opts.History = store
	}

	var view lifecycle.View = &lifecycle.TextView{Out: a.stdout, ShowEntries: *showHistory}
	if *asJSON {
		view = lifecycle.NewStateView()
	}
	ctrl := lifecycle.New(client, view, opts)

	ctx, stop := signalContext()
	defer stop()
	out, err := ctrl.Submit(ctx, d)
	if *asJSON {
		resp := ui.PredictResponse{Outcome: out, State: view.(*lifecycle.StateView).State()}
		if err != nil {
			resp.Error = iris.Message(err)
			resp.ErrorKind = iris.KindOf(err)
		}
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(resp); encErr != nil {
			return encErr
		}
	}
	if err != nil {
		return errSilent
	}
	return nil
}

func runHistory(a *app, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	clearAll := fs.Bool("clear", false, "remove every entry")
	asJSON := fs.Bool("json", false, "print entries as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := a.openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	if *clearAll {
		if err := store.Clear(); err != nil {
			return err
		}
		fmt.Fprintln(a.stdout, "history cleared")
		return nil
	}

	entries, err := store.List()
	if err != nil {
		return err
	}
	if *asJSON {
		if entries == nil {
			entries = []history.Entry{}
		}
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(a.stdout, "no predictions recorded")
		return nil
	}
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		feats, _ := json.Marshal(e.Features)
		fmt.Fprintf(a.stdout, "%s  %-7s %-22s %-6s %s\n",
			e.Timestamp.Local().Format(time.DateTime), e.ModelType, feats, e.Prediction, e.Label)
	}
	return nil
}

func runChart(a *app, args []string) error {
	fs := flag.NewFlagSet("chart", flag.ContinueOnError)
	png := fs.String("png", "", "write a PNG chart to this file instead of text")
	width := fs.Int("width", 40, "text bar width")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := a.openHistory()
	if err != nil {
		return err
	}
	defer store.Close()
	entries, err := store.List()
	if err != nil {
		return err
	}
	bars := history.Bars(entries, iris.ModelNames())

	if *png == "" {
		return chart.Text(a.stdout, bars, *width)
	}
	f, err := os.Create(*png)
	if err != nil {
		return err
	}
	if err := chart.PNG(f, bars); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func runHealth(a *app, args []string) error {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	api := fs.String("api", "", "prediction service base URL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	client, err := a.client(pick(*api, a.cfg.APIBase))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.HealthCheckTimeout)
	defer cancel()
	if err := client.Healthz(ctx); err != nil {
		fmt.Fprintf(a.stdout, "%s: down (%s)\n", client.Base(), iris.Message(err))
		return errSilent
	}
	fmt.Fprintf(a.stdout, "%s: ok\n", client.Base())
	return nil
}

func runVersion(a *app, args []string) error {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	api := fs.String("api", "", "prediction service base URL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	client, err := a.client(pick(*api, a.cfg.APIBase))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.HealthCheckTimeout)
	defer cancel()
	v, err := client.Version(ctx)
	if err != nil {
		return fmt.Errorf("version: %s", iris.Message(err))
	}
	fmt.Fprintln(a.stdout, v)
	return nil
}

func runLink(a *app, args []string) error {
	fs := flag.NewFlagSet("link", flag.ContinueOnError)
	var form formFlags
	form.register(fs)
	page := fs.String("page", a.cfg.PageURL, "page URL the link points at")
	withAPI := fs.Bool("with-api", false, "include the api base in the link")
	if err := fs.Parse(args); err != nil {
		return err
	}

	d, apiBase, err := form.draft(a, fs.Args())
	if err != nil {
		return err
	}
	if !*withAPI {
		apiBase = ""
	}
	link, err := iris.ShareLink(*page, d, apiBase)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, link)
	return nil
}

func runWatch(a *app, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	width := fs.Int("width", 40, "text bar width")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if a.cfg.Storage != config.StorageFile {
		return fmt.Errorf("watch needs file storage, have %s", a.cfg.Storage)
	}

	store, err := history.NewFileStore(a.cfg.HistoryDir, history.MaxEntries, a.logger)
	if err != nil {
		return err
	}
	draw := func() {
		if err := store.Reload(); err != nil {
			a.logger.Warn("failed to reload history", "err", err)
			return
		}
		entries, _ := store.List()
		fmt.Fprintf(a.stdout, "%s  %d entries\n", time.Now().Format(time.TimeOnly), len(entries))
		chart.Text(a.stdout, history.Bars(entries, iris.ModelNames()), *width)
	}

	ctx, stop := signalContext()
	defer stop()
	draw()
	a.logger.Info("watching history", "path", store.Path())
	return history.Watch(ctx, store.Path(), 100*time.Millisecond, draw)
}

func runServe(a *app, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	listen := fs.String("listen", a.cfg.ListenAddr, "listen address")
	link := fs.String("link", "", "shareable link whose api parameter selects the prediction service")
	api := fs.String("api", "", "prediction service base URL")
	if err := fs.Parse(args); err != nil {
		return err
	}

	apiBase := pick(*api, a.cfg.APIBase)
	if *link != "" {
		if _, linkAPI, err := iris.ParseShareLink(*link, iris.NewDraft()); err != nil {
			return err
		} else if linkAPI != "" {
			apiBase = linkAPI
		}
	}
	apiBase = config.NormalizeAPIBase(apiBase)

	logConfig(a.logger, a.cfg)

	client, err := a.client(apiBase)
	if err != nil {
		return err
	}

	// The store is opened even with history off so the page can turn recording on.
	store, err := a.openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	metrics := supervisor.NewMetrics()
	bus := supervisor.NewEventBus(256)
	defer bus.Shutdown()
	versions := backend.NewVersionCache(16, a.cfg.VersionCacheTTL)
	health := supervisor.NewHealthChecker(client, versions, a.cfg.HealthCheckInterval, a.cfg.HealthCheckTimeout, metrics, a.logger)
	defer health.Shutdown()

	view := lifecycle.NewStateView()
	actions := lifecycle.NewActionLog(50)
	ctrl := lifecycle.New(client, view, lifecycle.Options{
		Retry:   a.retryConfig(),
		History: store,
		Record:  a.cfg.HistoryEnabled,
		Events:  bus,
		Metrics: metrics,
		Actions: actions,
		Logger:  a.logger,
	})
	if err := ctrl.RefreshHistory(); err != nil {
		a.logger.Warn("failed to load history", "err", err)
	}

	assets, err := web.Assets()
	if err != nil {
		return err
	}
	hub := ui.NewHub(bus, a.cfg.CORSAllowOrigin, a.logger)
	defer hub.Close()

	handler := ui.NewServer(ui.Deps{
		Controller:      ctrl,
		View:            view,
		Actions:         actions,
		Health:          health,
		Hub:             hub,
		Assets:          assets,
		APIBase:         apiBase,
		PageURL:         a.cfg.PageURL,
		DefaultModel:    iris.ModelType(a.cfg.Model),
		CORSAllowOrigin: a.cfg.CORSAllowOrigin,
		Logger:          a.logger,
	})

	srv := &http.Server{
		Addr:              *listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signalContext()
	defer stop()

	// Other processes may append to a file-backed history.
	if fstore, ok := store.(*history.FileStore); ok {
		go func() {
			err := history.Watch(ctx, fstore.Path(), 100*time.Millisecond, func() {
				if err := fstore.Reload(); err != nil {
					a.logger.Warn("failed to reload history", "err", err)
					return
				}
				if err := ctrl.RefreshHistory(); err != nil {
					a.logger.Warn("failed to refresh history", "err", err)
				}
			})
			if err != nil {
				a.logger.Warn("history watcher stopped", "err", err)
			}
		}()
	}

	a.logger.Info("starting iris-predict console", "listen", *listen, "api_base", apiBase)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}
	a.logger.Info("shutting down")
	ctrl.Cancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func pick(flagValue, def string) string {
	if flagValue != "" {
		return flagValue
	}
	return def
}
