// Package ui serves the single-page prediction console and its JSON API.
package ui

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"iris-predict/internal/chart"
	"iris-predict/internal/config"
	"iris-predict/internal/history"
	"iris-predict/internal/iris"
	"iris-predict/internal/lifecycle"
)

// HealthStatus reports the prediction service's liveness and version.
// *supervisor.HealthChecker implements it.
type HealthStatus interface {
	Healthy() bool
	LastCheck() time.Time
	LastError() string
	Version() string
}

// Deps wires a Server. Health, Hub and Assets are optional.
type Deps struct {
	Controller      *lifecycle.Controller
	View            *lifecycle.StateView
	Actions         *lifecycle.ActionLog
	Health          HealthStatus
	Hub             *Hub
	Assets          fs.FS
	APIBase         string
	PageURL         string
	DefaultModel    iris.ModelType
	CORSAllowOrigin string
	Logger          *slog.Logger
}

// Server handles the console routes.
type Server struct {
	deps   Deps
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewServer creates the console server.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.DefaultModel == "" {
		deps.DefaultModel = iris.DefaultModel
	}
	s := &Server{deps: deps, logger: deps.Logger, mux: http.NewServeMux()}

	s.mux.HandleFunc("GET /ui/draft", s.handleDraft)
	s.mux.HandleFunc("POST /ui/predict", s.handlePredict)
	s.mux.HandleFunc("POST /ui/cancel", s.handleCancel)
	s.mux.HandleFunc("GET /ui/state", s.handleState)
	s.mux.HandleFunc("GET /ui/history", s.handleHistory)
	s.mux.HandleFunc("DELETE /ui/history", s.handleClearHistory)
	s.mux.HandleFunc("PUT /ui/history/recording", s.handleRecording)
	s.mux.HandleFunc("GET /ui/chart.png", s.handleChart)
	s.mux.HandleFunc("GET /ui/status", s.handleStatus)
	s.mux.HandleFunc("GET /ui/link", s.handleLink)
	s.mux.HandleFunc("GET /ui/actions", s.handleActions)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	if deps.Hub != nil {
		s.mux.Handle("GET /ui/events", deps.Hub)
	}
	if deps.Assets != nil {
		s.mux.Handle("GET /", http.FileServerFS(deps.Assets))
	}
	return s
}

// ServeHTTP handles console requests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if origin := s.deps.CORSAllowOrigin; origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	s.mux.ServeHTTP(w, r)
}

// DraftResponse is the initial form state for the page.
type DraftResponse struct {
	Inputs  [iris.NumFeatures]string `json:"inputs"`
	Model   iris.ModelType           `json:"model"`
	Models  []iris.ModelType         `json:"models"`
	Presets []PresetInfo             `json:"presets"`
	APIBase string                   `json:"api_base"`
	// LinkAPI is the api parameter carried by the page URL. The server keeps
	// calling APIBase; the page reports a mismatch instead of switching.
	LinkAPI string `json:"link_api,omitempty"`
}

// PresetInfo is one example button.
type PresetInfo struct {
	Name   string                   `json:"name"`
	Title  string                   `json:"title"`
	Values [iris.NumFeatures]string `json:"values"`
}

// handleDraft returns the initial draft hydrated from the page's query.
// GET /ui/draft?sl=&sw=&pl=&pw=&model=
func (s *Server) handleDraft(w http.ResponseWriter, r *http.Request) {
	d := s.initialDraft()
	d.Hydrate(r.URL.Query())

	resp := DraftResponse{
		Inputs:  d.Inputs,
		Model:   d.Model,
		Models:  iris.Models(),
		APIBase: s.deps.APIBase,
		LinkAPI: config.NormalizeAPIBase(r.URL.Query().Get("api")),
	}
	for _, name := range iris.PresetNames() {
		v, _ := iris.Preset(name)
		var p iris.Draft
		p.Fill(v)
		resp.Presets = append(resp.Presets, PresetInfo{Name: name, Title: iris.PresetTitle(name), Values: p.Inputs})
	}
	s.writeJSON(w, resp)
}

func (s *Server) initialDraft() iris.Draft {
	d := iris.NewDraft()
	d.Model = s.deps.DefaultModel
	return d
}

// PredictRequest is the body of POST /ui/predict.
type PredictRequest struct {
	Inputs [iris.NumFeatures]string `json:"inputs"`
	Model  iris.ModelType           `json:"model"`
	Record *bool                    `json:"record,omitempty"`
}

// PredictResponse reports the action's outcome and the resulting view.
type PredictResponse struct {
	Outcome   lifecycle.Outcome `json:"outcome"`
	Error     string            `json:"error,omitempty"`
	ErrorKind iris.Kind         `json:"error_kind,omitempty"`
	State     lifecycle.State   `json:"state"`
}

// handlePredict runs one predict action and blocks until it ends.
// POST /ui/predict
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Record != nil {
		s.deps.Controller.SetRecording(*req.Record)
	}
	d := iris.Draft{Inputs: req.Inputs, Model: req.Model}
	if d.Model == "" {
		d.Model = s.deps.DefaultModel
	}

	out, err := s.deps.Controller.Submit(r.Context(), d)
	resp := PredictResponse{Outcome: out, State: s.deps.View.State()}
	if err != nil {
		resp.Error = iris.Message(err)
		resp.ErrorKind = iris.KindOf(err)
	}
	s.writeJSON(w, resp)
}

// handleCancel aborts the in-flight action.
// POST /ui/cancel
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	cancelled := s.deps.Controller.Cancel()
	s.writeJSON(w, map[string]any{
		"cancelled": cancelled,
		"state":     s.deps.View.State(),
	})
}

// handleState returns what the view currently shows.
// GET /ui/state
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.deps.View.State())
}

// HistoryResponse lists retained entries, oldest first.
type HistoryResponse struct {
	Entries   []history.Entry `json:"entries"`
	Bars      []history.Bar   `json:"bars"`
	Recording bool            `json:"recording"`
}

// GET /ui/history
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, bars, err := s.deps.Controller.History()
	if err != nil {
		s.logger.Error("failed to list history", "err", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list history")
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	s.writeJSON(w, HistoryResponse{Entries: entries, Bars: bars, Recording: s.deps.Controller.Recording()})
}

// DELETE /ui/history
func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Controller.ClearHistory(); err != nil {
		s.logger.Error("failed to clear history", "err", err)
		s.writeError(w, http.StatusInternalServerError, "failed to clear history")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PUT /ui/history/recording {"enabled": bool}
func (s *Server) handleRecording(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.deps.Controller.SetRecording(body.Enabled)
	s.writeJSON(w, map[string]bool{"recording": s.deps.Controller.Recording()})
}

// GET /ui/chart.png
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	_, bars, err := s.deps.Controller.History()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list history")
		return
	}
	var buf bytes.Buffer
	if err := chart.PNG(&buf, bars); err != nil {
		s.logger.Error("failed to render chart", "err", err)
		s.writeError(w, http.StatusInternalServerError, "failed to render chart")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

// StatusResponse is the health and version of the prediction service.
type StatusResponse struct {
	APIBase   string     `json:"api_base"`
	Healthy   bool       `json:"healthy"`
	LastCheck *time.Time `json:"last_check,omitempty"`
	Error     string     `json:"error,omitempty"`
	Version   string     `json:"version,omitempty"`
	Busy      bool       `json:"busy"`
	Clients   int        `json:"ws_clients"`
}

// GET /ui/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{APIBase: s.deps.APIBase, Busy: s.deps.Controller.Busy()}
	if h := s.deps.Health; h != nil {
		resp.Healthy = h.Healthy()
		resp.Error = h.LastError()
		resp.Version = h.Version()
		if t := h.LastCheck(); !t.IsZero() {
			resp.LastCheck = &t
		}
	}
	if s.deps.Hub != nil {
		resp.Clients = s.deps.Hub.Clients()
	}
	s.writeJSON(w, resp)
}

// handleLink encodes the draft in the query into a shareable page link.
// GET /ui/link?sl=&sw=&pl=&pw=&model=
func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	d := s.initialDraft()
	d.Hydrate(r.URL.Query())
	link, err := iris.ShareLink(s.deps.PageURL, d, s.deps.APIBase)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to build link")
		return
	}
	s.writeJSON(w, map[string]string{"link": link})
}

// GET /ui/actions
func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.deps.Actions.Snapshot())
}

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		s.logger.Error("failed to encode JSON response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
