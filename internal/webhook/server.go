// internal/webhook/server.go
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/user/insightflow/internal/analysis"
	"github.com/user/insightflow/internal/engine"
	"github.com/user/insightflow/internal/state"
	"github.com/user/insightflow/internal/types"
	"github.com/user/insightflow/pkg/llm"
)

const maxBodyBytes = 1 << 20

// Server is the HTTP ingestion and query surface of an insight client.
type Server struct {
	client  *engine.Client
	metrics http.Handler
	mux     *http.ServeMux
}

// NewServer creates a Server for client. metrics, when non-nil, is served
// at /metrics.
func NewServer(client *engine.Client, metrics http.Handler) *Server {
	s := &Server{
		client:  client,
		metrics: metrics,
		mux:     http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /events", s.handleLogEvents)
	s.mux.HandleFunc("GET /events", s.handleGetEvents)
	s.mux.HandleFunc("POST /observations", s.handleObservation)
	s.mux.HandleFunc("GET /statistics", s.handleStatistics)
	s.mux.HandleFunc("POST /insights", s.handleGenerateInsight)
	s.mux.HandleFunc("GET /insights", s.handleInsightHistory)
	s.mux.HandleFunc("POST /sessions", s.handleStartSession)
	s.mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("POST /sessions/{id}/end", s.handleEndSession)
	s.mux.HandleFunc("POST /sessions/{id}/summary", s.handleSummarizeSession)
	if metrics != nil {
		s.mux.Handle("GET /metrics", metrics)
	}
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeEngineError maps the engine's error taxonomy onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, op string, err error) {
	var uw *analysis.UnknownWindowError
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &uw), errors.Is(err, engine.ErrInvalidEvent):
		status = http.StatusBadRequest
	case errors.Is(err, state.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrNotStarted):
		status = http.StatusServiceUnavailable
	case errors.Is(err, llm.ErrTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, llm.ErrUnavailable):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "op", op, "error", err)
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func windowParam(r *http.Request) string {
	if w := r.URL.Query().Get("window"); w != "" {
		return w
	}
	return "1h"
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.client.Health(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "degraded",
			"backend": s.client.BackendName(),
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "backend": s.client.BackendName()})
}

// handleLogEvents accepts a single event object or an array of events.
func (s *Server) handleLogEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "body too large")
		return
	}

	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '[' {
		var events []*types.Event
		if err := json.Unmarshal(trimmed, &events); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		ids, err := s.client.LogEvents(r.Context(), events)
		if err != nil {
			var se *state.StorageError
			if errors.As(err, &se) {
				slog.Error("batch ingest failed", "stored", len(ids), "error", err)
				writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "storage error", "ids": ids})
				return
			}
			writeEngineError(w, "log_events", err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"ids": ids})
		return
	}

	var event types.Event
	if err := json.Unmarshal(body, &event); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	id, err := s.client.LogEvent(r.Context(), &event)
	if err != nil {
		writeEngineError(w, "log_event", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

type observationRequest struct {
	Source    string         `json:"source"`
	Content   string         `json:"content"`
	SessionID string         `json:"session_id"`
	Tags      []string       `json:"tags"`
	Data      map[string]any `json:"data"`
}

func (s *Server) handleObservation(w http.ResponseWriter, r *http.Request) {
	var req observationRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	content := req.Content
	if looksLikeHTML(content) {
		md, err := htmltomarkdown.ConvertString(content)
		if err != nil {
			slog.Warn("html conversion failed, storing raw content", "source", req.Source, "error", err)
		} else {
			content = strings.TrimSpace(md)
		}
	}

	opts := []engine.EventOption{engine.WithTags(req.Tags...), engine.WithData(req.Data)}
	if req.SessionID != "" {
		opts = append(opts, engine.WithSession(types.SessionID(req.SessionID)))
	}
	id, err := s.client.LogObservation(r.Context(), req.Source, content, opts...)
	if err != nil {
		writeEngineError(w, "log_observation", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "content": content})
}

// looksLikeHTML reports whether s appears to be an HTML fragment.
func looksLikeHTML(s string) bool {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "<") || !strings.HasSuffix(t, ">") {
		return false
	}
	return strings.Contains(t, "</") || strings.Contains(t, "/>")
}

func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := types.EventFilter{
		Sources:   q["source"],
		SessionID: types.SessionID(q.Get("session_id")),
	}
	for _, t := range q["type"] {
		et, err := types.ParseEventType(t)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Types = append(filter.Types, et)
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}

	events, err := s.client.GetEvents(r.Context(), windowParam(r), filter)
	if err != nil {
		writeEngineError(w, "get_events", err)
		return
	}
	if events == nil {
		events = []*types.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	agg, err := s.client.GetStatistics(r.Context(), windowParam(r))
	if err != nil {
		writeEngineError(w, "get_statistics", err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

type insightRequest struct {
	Window       string   `json:"window"`
	Sources      []string `json:"sources"`
	Topic        string   `json:"topic"`
	SessionID    string   `json:"session_id"`
	CustomPrompt string   `json:"custom_prompt"`
	Save         *bool    `json:"save"`
}

func (s *Server) handleGenerateInsight(w http.ResponseWriter, r *http.Request) {
	var req insightRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	if req.Window == "" {
		req.Window = "1h"
	}

	opts := []engine.InsightOption{
		engine.WithSources(req.Sources...),
		engine.WithTopic(req.Topic),
		engine.WithCustomPrompt(req.CustomPrompt),
	}
	if req.SessionID != "" {
		opts = append(opts, engine.ForSession(types.SessionID(req.SessionID)))
	}
	if req.Save != nil && !*req.Save {
		opts = append(opts, engine.WithoutSave())
	}

	insight, err := s.client.GetInsight(r.Context(), req.Window, opts...)
	if err != nil {
		writeEngineError(w, "get_insight", err)
		return
	}
	writeJSON(w, http.StatusOK, insight)
}

func (s *Server) handleInsightHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := types.InsightFilter{Window: q.Get("window")}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		filter.Since = t
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}

	insights, err := s.client.GetInsightsHistory(r.Context(), filter)
	if err != nil {
		writeEngineError(w, "get_insights_history", err)
		return
	}
	if insights == nil {
		insights = []*types.Insight{}
	}
	writeJSON(w, http.StatusOK, insights)
}

type sessionRequest struct {
	Source string `json:"source"`
	Topic  string `json:"topic"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Source == "" {
		writeError(w, http.StatusBadRequest, "source is required")
		return
	}
	id, err := s.client.StartSession(r.Context(), req.Source, req.Topic)
	if err != nil {
		writeEngineError(w, "start_session", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"session_id": id})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.client.GetSession(r.Context(), types.SessionID(r.PathValue("id")))
	if err != nil {
		writeEngineError(w, "get_session", err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := types.SessionID(r.PathValue("id"))
	if err := s.client.EndSession(r.Context(), id); err != nil {
		writeEngineError(w, "end_session", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "status": types.SessionEnded})
}

func (s *Server) handleSummarizeSession(w http.ResponseWriter, r *http.Request) {
	summary, err := s.client.SummarizeSession(r.Context(), types.SessionID(r.PathValue("id")), r.URL.Query().Get("topic"))
	if err != nil {
		writeEngineError(w, "summarize_session", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"summary": summary})
}
