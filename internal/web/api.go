package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alokproc/geotutor/internal/observability"
	"github.com/alokproc/geotutor/internal/tutor"
)

// Tutor is the slice of the tutoring service the web server needs.
type Tutor interface {
	Ask(ctx context.Context, question string) (*tutor.Answer, error)
	AskStream(ctx context.Context, question string, fn func(delta string) error) (*tutor.Answer, error)
	Ingest(ctx context.Context, pdfPath string, progress func(done, total int)) (*tutor.IngestReport, error)
	Topics() []string
	Ready(ctx context.Context) bool
	StoreCount(ctx context.Context) (int, error)
	ProviderName() string
}

// Config holds web server configuration.
type Config struct {
	ListenAddr     string
	UploadDir      string
	MaxUploadBytes int64
}

// DefaultConfig returns sensible web server defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:     ":8080",
		MaxUploadBytes: 50 << 20,
	}
}

// Server serves the tutoring API and the single-page UI.
type Server struct {
	cfg     Config
	tutor   Tutor
	store   *Store
	hub     *Hub
	emitter *Emitter
	audit   *observability.AuditLogger
	metrics *Metrics
	log     *slog.Logger
	http    *http.Server
}

// NewServer creates a web server. audit and metrics may be nil.
func NewServer(cfg Config, t Tutor, audit *observability.AuditLogger, metrics *Metrics, log *slog.Logger) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultConfig().ListenAddr
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultConfig().MaxUploadBytes
	}
	if log == nil {
		log = slog.Default()
	}

	store := NewStore()
	hub := NewHub()

	s := &Server{
		cfg:     cfg,
		tutor:   t,
		store:   store,
		hub:     hub,
		emitter: NewEmitter(store, hub),
		audit:   audit,
		metrics: metrics,
		log:     log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/topics", s.handleTopics)
	mux.HandleFunc("/api/ask", s.handleAsk)
	mux.HandleFunc("/api/documents", s.handleUpload)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/health", s.handleHealth)

	s.http = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.withMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start begins serving. Blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.log.Info("web server listening", "addr", s.cfg.ListenAddr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)

		if !strings.HasPrefix(r.URL.Path, "/api/events") {
			s.log.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"duration", time.Since(start))
		}
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	serveIndex(w, r)
}

// GET /api/topics returns the suggested curriculum topics.
func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"topics": s.tutor.Topics(),
	})
}

type askRequest struct {
	Question string `json:"question"`
}

// POST /api/ask answers a question. With ?stream=1 the answer is
// streamed over SSE as delta events followed by a final answer event.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		respondError(w, http.StatusBadRequest, "question is required")
		return
	}

	if s.metrics != nil {
		s.metrics.QuestionsTotal.Inc()
	}
	if s.audit != nil {
		s.audit.LogQuestionAsked(question)
	}
	s.emitter.QuestionAsked(question)

	if r.URL.Query().Get("stream") == "1" {
		s.streamAnswer(w, r, question)
		return
	}

	start := time.Now()
	answer, err := s.tutor.Ask(r.Context(), question)
	if err != nil {
		s.recordFailure(question, err)
		respondError(w, http.StatusBadGateway, fmt.Sprintf("answer failed: %v", err))
		return
	}

	exchange := s.recordAnswer(question, answer, time.Since(start))
	respondJSON(w, http.StatusOK, exchange)
}

func (s *Server) streamAnswer(w http.ResponseWriter, r *http.Request, question string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeEvent := func(eventType string, data interface{}) {
		payload, err := json.Marshal(map[string]interface{}{
			"type": eventType,
			"data": data,
		})
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}

	start := time.Now()
	answer, err := s.tutor.AskStream(r.Context(), question, func(delta string) error {
		writeEvent("delta", delta)
		return nil
	})
	if err != nil {
		s.recordFailure(question, err)
		writeEvent("error", err.Error())
		return
	}

	exchange := s.recordAnswer(question, answer, time.Since(start))
	writeEvent("answer", exchange)
}

func (s *Server) recordAnswer(question string, answer *tutor.Answer, elapsed time.Duration) Exchange {
	exchange := Exchange{
		ID:       uuid.NewString(),
		Question: question,
		Answer:   answer.Text,
		Grounded: answer.Grounded,
		Sources:  answer.Sources,
		Model:    answer.Model,
		Tokens:   answer.InputTokens + answer.OutputTokens,
		AskedAt:  time.Now().UTC(),
		Duration: elapsed,
	}

	s.emitter.QuestionAnswered(exchange)
	if s.metrics != nil {
		s.metrics.TokensTotal.Add(float64(exchange.Tokens))
		s.metrics.AnswerLatency.Observe(elapsed.Seconds())
	}
	if s.audit != nil {
		s.audit.LogQuestionAnswered(question, answer.Grounded, elapsed,
			answer.InputTokens, answer.OutputTokens)
	}
	return exchange
}

func (s *Server) recordFailure(question string, err error) {
	s.emitter.QuestionFailed(question, err)
	if s.metrics != nil {
		s.metrics.QuestionErrors.Inc()
	}
	if s.audit != nil {
		s.audit.LogQuestionFailed(question, err)
	}
	s.log.Error("question failed", "error", err)
}

// POST /api/documents ingests an uploaded PDF into the vector store.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		respondError(w, http.StatusBadRequest, "only PDF uploads are supported")
		return
	}

	path, err := s.saveUpload(file, header.Filename)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("save upload: %v", err))
		return
	}

	source := filepath.Base(header.Filename)
	if s.metrics != nil {
		s.metrics.IngestsTotal.Inc()
	}
	if s.audit != nil {
		s.audit.LogIngestStarted(source)
	}
	s.emitter.IngestStarted(source)

	report, err := s.tutor.Ingest(r.Context(), path, func(done, total int) {
		s.emitter.IngestProgress(source, done, total)
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.IngestErrors.Inc()
		}
		if s.audit != nil {
			s.audit.LogIngestFailed(source, err)
		}
		s.emitter.IngestFailed(source, err)
		respondError(w, http.StatusUnprocessableEntity, fmt.Sprintf("ingest failed: %v", err))
		return
	}

	if s.audit != nil {
		s.audit.LogIngestCompleted(source, report.Pages, report.Chunks, report.Duration)
	}
	s.emitter.IngestCompleted(source, report.Pages, report.Chunks, report.Duration)

	respondJSON(w, http.StatusOK, report)
}

func (s *Server) saveUpload(file io.Reader, filename string) (string, error) {
	dir := s.cfg.UploadDir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "geotutor-upload-*")
		if err != nil {
			return "", err
		}
		dir = tmp
	} else if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	path := filepath.Join(dir, filepath.Base(filename))
	out, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		return "", err
	}
	return path, nil
}

// GET /api/history returns recent exchanges; DELETE clears the session.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit := 5
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"history": s.store.History(limit),
		})
	case http.MethodDelete:
		s.emitter.HistoryCleared()
		respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// GET /api/stats returns session statistics plus index readiness.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	stats := s.store.Stats()
	stats.Provider = s.tutor.ProviderName()
	if count, err := s.tutor.StoreCount(r.Context()); err == nil {
		stats.IndexedChunks = count
		stats.StoreReady = count > 0
	}

	respondJSON(w, http.StatusOK, stats)
}

// GET /api/events streams UI events over SSE.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	client, err := NewClient(s.hub, w)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.hub.Register(client)
	if s.metrics != nil {
		s.metrics.ActiveSSEConns.Inc()
	}
	defer func() {
		s.hub.Unregister(client)
		if s.metrics != nil {
			s.metrics.ActiveSSEConns.Dec()
		}
	}()

	client.SendPing()
	go client.KeepAlive(15 * time.Second)

	<-r.Context().Done()
}

// GET /api/health reports whether the service can answer questions.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ready := s.tutor.Ready(r.Context())
	status := http.StatusOK
	state := "ok"
	if !ready {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	respondJSON(w, status, map[string]interface{}{
		"status":   state,
		"provider": s.tutor.ProviderName(),
	})
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
