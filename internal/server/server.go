// Package server exposes the HTTP surface: webhook intake, health and
// metrics. Handlers classify and acknowledge immediately; pipeline work
// happens asynchronously on the dispatcher's workers.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/arc-components/arcci/internal/buildlog"
	"github.com/arc-components/arcci/internal/classify"
	"github.com/arc-components/arcci/internal/logfields"
	"github.com/arc-components/arcci/internal/metrics"
	"github.com/arc-components/arcci/internal/orchestrator"
	"github.com/arc-components/arcci/internal/webhook"
)

// maxBodySize caps webhook request bodies.
const maxBodySize = 1 << 20

// Server is the HTTP front of the build service.
type Server struct {
	classifier atomic.Pointer[classify.Classifier]
	dispatcher *orchestrator.Dispatcher
	log        *buildlog.Store
	recorder   metrics.Recorder
	registry   *prom.Registry

	httpServer *http.Server
}

// Options configures a Server.
type Options struct {
	Addr       string
	Classifier *classify.Classifier
	Dispatcher *orchestrator.Dispatcher
	Log        *buildlog.Store
	Recorder   metrics.Recorder
	Registry   *prom.Registry
}

func New(opts Options) *Server {
	s := &Server{
		dispatcher: opts.Dispatcher,
		log:        opts.Log,
		recorder:   opts.Recorder,
		registry:   opts.Registry,
	}
	if s.recorder == nil {
		s.recorder = metrics.NoopRecorder{}
	}
	s.classifier.Store(opts.Classifier)

	s.httpServer = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler builds the route table. Exposed for httptest use.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /build", s.handleGitHub)
	mux.HandleFunc("POST /travis-build", s.handleTravis)
	mux.HandleFunc("GET /travis-build/force-stage/{component}", s.handleForceStage)
	mux.HandleFunc("GET /pipelines/{id}", s.handlePipelineEvents)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	if s.registry != nil {
		mux.Handle("GET /metrics", metrics.HTTPHandler(s.registry))
	}

	return mux
}

// Start begins serving in the background.
func (s *Server) Start() {
	go func() {
		slog.Info("HTTP server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", logfields.Error(err))
		}
	}()
}

// SetClassifier swaps the classifier, applying a configuration reload to
// subsequent requests.
func (s *Server) SetClassifier(c *classify.Classifier) {
	s.classifier.Store(c)
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// handleGitHub accepts GitHub push and ping webhooks. The response goes
// out as soon as the intent is classified and queued.
func (s *Server) handleGitHub(w http.ResponseWriter, r *http.Request) {
	event := r.Header.Get(webhook.HeaderGitHubEvent)
	body, err := readBody(r)
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	payload, err := webhook.ParseGitHub(event, body)
	if err != nil {
		slog.Warn("Rejected github webhook", logfields.Event(event), logfields.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.classifyAndDispatch(w, payload)
}

// handleTravis accepts CI build reports.
func (s *Server) handleTravis(w http.ResponseWriter, r *http.Request) {
	event := r.Header.Get(webhook.HeaderTravisEvent)
	body, err := readBody(r)
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	payload, err := webhook.ParseTravis(event, body)
	if err != nil {
		slog.Warn("Rejected ci report", logfields.Event(event), logfields.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.classifyAndDispatch(w, payload)
}

// handleForceStage queues a stage build for a component without a CI
// report, for operators re-running a failed pipeline by hand.
func (s *Server) handleForceStage(w http.ResponseWriter, r *http.Request) {
	component := strings.TrimSpace(r.PathValue("component"))
	if component == "" {
		http.Error(w, "missing component", http.StatusBadRequest)
		return
	}

	intent := classify.Intent{
		Kind:        classify.IntentStageBuild,
		Reason:      "forced stage build",
		RepoName:    component,
		BuildNumber: "force",
		JobNumber:   "0",
	}
	s.dispatch(w, intent)
}

func (s *Server) classifyAndDispatch(w http.ResponseWriter, payload webhook.Payload) {
	intent := s.classifier.Load().Classify(payload)
	s.recorder.IncIntent(string(intent.Kind))

	if intent.Ignored() {
		slog.Info("Event ignored",
			logfields.Event(string(payload.SourceEvent)),
			logfields.Reason(intent.Reason),
			logfields.Repository(payload.RepoName))
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored", "reason": intent.Reason})
		return
	}

	s.dispatch(w, intent)
}

func (s *Server) dispatch(w http.ResponseWriter, intent classify.Intent) {
	if err := s.dispatcher.Dispatch(intent); err != nil {
		slog.Error("Failed to queue pipeline",
			logfields.Repository(intent.RepoName),
			logfields.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "rejected", "reason": err.Error()})
		return
	}

	slog.Info("Pipeline queued",
		logfields.Intent(string(intent.Kind)),
		logfields.Repository(intent.RepoName))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "intent": string(intent.Kind)})
}

// handlePipelineEvents returns the recorded events of one pipeline run.
func (s *Server) handlePipelineEvents(w http.ResponseWriter, r *http.Request) {
	if s.log == nil {
		http.Error(w, "build log not configured", http.StatusNotFound)
		return
	}

	events, err := s.log.ByPipeline(r.Context(), r.PathValue("id"))
	if err != nil {
		slog.Error("Failed to read pipeline events", logfields.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if len(events) == 0 {
		http.Error(w, "unknown pipeline", http.StatusNotFound)
		return
	}

	type eventOut struct {
		Stage     string    `json:"stage,omitempty"`
		EventType string    `json:"eventType"`
		Detail    string    `json:"detail,omitempty"`
		Timestamp time.Time `json:"timestamp"`
	}
	out := struct {
		PipelineID string     `json:"pipelineId"`
		Repo       string     `json:"repo"`
		Events     []eventOut `json:"events"`
	}{
		PipelineID: events[0].PipelineID,
		Repo:       events[0].Repo,
	}
	for _, e := range events {
		out.Events = append(out.Events, eventOut{
			Stage:     e.Stage,
			EventType: e.EventType,
			Detail:    e.Detail,
			Timestamp: e.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, maxBodySize))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to encode response", logfields.Error(err))
	}
}
