package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alokproc/geotutor/internal/observability"
	"github.com/alokproc/geotutor/internal/tutor"
)

type fakeTutor struct {
	answer     *tutor.Answer
	askErr     error
	report     *tutor.IngestReport
	ingestErr  error
	topics     []string
	ready      bool
	storeCount int
	deltas     []string
}

func (f *fakeTutor) Ask(ctx context.Context, question string) (*tutor.Answer, error) {
	if f.askErr != nil {
		return nil, f.askErr
	}
	return f.answer, nil
}

func (f *fakeTutor) AskStream(ctx context.Context, question string, fn func(delta string) error) (*tutor.Answer, error) {
	if f.askErr != nil {
		return nil, f.askErr
	}
	for _, d := range f.deltas {
		if err := fn(d); err != nil {
			return nil, err
		}
	}
	return f.answer, nil
}

func (f *fakeTutor) Ingest(ctx context.Context, pdfPath string, progress func(done, total int)) (*tutor.IngestReport, error) {
	if f.ingestErr != nil {
		return nil, f.ingestErr
	}
	if progress != nil {
		progress(10, 10)
	}
	return f.report, nil
}

func (f *fakeTutor) Topics() []string                          { return f.topics }
func (f *fakeTutor) Ready(ctx context.Context) bool            { return f.ready }
func (f *fakeTutor) StoreCount(ctx context.Context) (int, error) { return f.storeCount, nil }
func (f *fakeTutor) ProviderName() string                      { return "groq" }

func newTestServer(ft *fakeTutor) *Server {
	return NewServer(Config{}, ft, nil, nil, nil)
}

func defaultAnswer() *tutor.Answer {
	return &tutor.Answer{
		Question:     "q",
		Text:         "Alluvial soil is found in the northern plains.",
		Grounded:     true,
		Sources:      []tutor.Source{{PageStart: 7, PageEnd: 8, Score: 0.9, Snippet: "alluvial"}},
		Model:        "llama-3.1-8b-instant",
		InputTokens:  120,
		OutputTokens: 40,
	}
}

func TestHandleTopics(t *testing.T) {
	s := newTestServer(&fakeTutor{topics: []string{"Resources", "Agriculture"}})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/topics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var body struct {
		Topics []string `json:"topics"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Topics) != 2 || body.Topics[0] != "Resources" {
		t.Errorf("unexpected topics: %v", body.Topics)
	}
}

func TestHandleTopics_MethodNotAllowed(t *testing.T) {
	s := newTestServer(&fakeTutor{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/topics", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func askRequestBody(t *testing.T, question string) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(map[string]string{"question": question})
	if err != nil {
		t.Fatal(err)
	}
	return bytes.NewBuffer(body)
}

func TestHandleAsk(t *testing.T) {
	ft := &fakeTutor{answer: defaultAnswer()}
	s := newTestServer(ft)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/ask", askRequestBody(t, "Where is alluvial soil found?"))
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	var exchange Exchange
	if err := json.NewDecoder(rec.Body).Decode(&exchange); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if exchange.ID == "" {
		t.Error("expected generated exchange ID")
	}
	if exchange.Answer != ft.answer.Text {
		t.Errorf("unexpected answer: %q", exchange.Answer)
	}
	if !exchange.Grounded || len(exchange.Sources) != 1 {
		t.Errorf("grounding lost: grounded=%v sources=%d", exchange.Grounded, len(exchange.Sources))
	}
	if exchange.Tokens != 160 {
		t.Errorf("expected 160 tokens, got %d", exchange.Tokens)
	}

	// The exchange lands in the session history
	history := s.store.History(0)
	if len(history) != 1 || history[0].ID != exchange.ID {
		t.Errorf("exchange not recorded in history")
	}
}

func TestHandleAsk_EmptyQuestion(t *testing.T) {
	s := newTestServer(&fakeTutor{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/ask", askRequestBody(t, "   "))
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandleAsk_InvalidBody(t *testing.T) {
	s := newTestServer(&fakeTutor{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader("not json"))
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandleAsk_TutorFailure(t *testing.T) {
	s := newTestServer(&fakeTutor{askErr: errors.New("provider unavailable")})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/ask", askRequestBody(t, "q"))
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rec.Code)
	}
}

func TestHandleAsk_Streaming(t *testing.T) {
	ft := &fakeTutor{answer: defaultAnswer(), deltas: []string{"Alluvial ", "soil."}}
	s := newTestServer(ft)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/ask?stream=1", askRequestBody(t, "q"))
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("unexpected content type: %q", ct)
	}

	var types []string
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var frame struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame); err != nil {
			t.Fatalf("bad frame %q: %v", line, err)
		}
		types = append(types, frame.Type)
	}

	want := []string{"delta", "delta", "answer"}
	if len(types) != len(want) {
		t.Fatalf("expected frames %v, got %v", want, types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("frame %d: got %q, want %q", i, types[i], want[i])
		}
	}
}

func TestHandleAsk_StreamingError(t *testing.T) {
	s := newTestServer(&fakeTutor{askErr: errors.New("boom")})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/ask?stream=1", askRequestBody(t, "q"))
	s.Handler().ServeHTTP(rec, req)

	if !strings.Contains(rec.Body.String(), `"type":"error"`) {
		t.Errorf("expected error frame, got: %s", rec.Body.String())
	}
}

func multipartUpload(t *testing.T, field, filename string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	fmt.Fprint(part, "%PDF-1.4 fake content")
	w.Close()
	return &buf, w.FormDataContentType()
}

func TestHandleUpload(t *testing.T) {
	ft := &fakeTutor{report: &tutor.IngestReport{Source: "geo.pdf", Pages: 20, Chunks: 50}}
	s := newTestServer(ft)
	s.cfg.UploadDir = t.TempDir()

	body, contentType := multipartUpload(t, "file", "geo.pdf")
	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var report tutor.IngestReport
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Chunks != 50 {
		t.Errorf("unexpected report: %+v", report)
	}
	if s.store.Stats().DocumentsIngested != 1 {
		t.Error("ingest not recorded in session stats")
	}
}

func TestHandleUpload_RejectsNonPDF(t *testing.T) {
	s := newTestServer(&fakeTutor{})

	body, contentType := multipartUpload(t, "file", "notes.txt")
	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for non-PDF, got %d", rec.Code)
	}
}

func TestHandleUpload_MissingFileField(t *testing.T) {
	s := newTestServer(&fakeTutor{})

	body, contentType := multipartUpload(t, "wrong", "geo.pdf")
	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing field, got %d", rec.Code)
	}
}

func TestHandleUpload_IngestFailure(t *testing.T) {
	s := newTestServer(&fakeTutor{ingestErr: errors.New("unreadable pdf")})
	s.cfg.UploadDir = t.TempDir()

	body, contentType := multipartUpload(t, "file", "geo.pdf")
	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 on ingest failure, got %d", rec.Code)
	}
}

func TestHandleHistory(t *testing.T) {
	s := newTestServer(&fakeTutor{})
	for i := 0; i < 8; i++ {
		s.store.AddExchange(Exchange{ID: fmt.Sprintf("q%d", i)})
	}

	// Default limit is 5
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history", nil))
	var body struct {
		History []Exchange `json:"history"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.History) != 5 {
		t.Errorf("expected 5 entries by default, got %d", len(body.History))
	}
	if body.History[0].ID != "q7" {
		t.Errorf("expected most recent first, got %s", body.History[0].ID)
	}

	// Explicit limit
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history?limit=2", nil))
	body.History = nil
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.History) != 2 {
		t.Errorf("expected 2 entries, got %d", len(body.History))
	}
}

func TestHandleHistory_Delete(t *testing.T) {
	s := newTestServer(&fakeTutor{})
	s.store.AddExchange(Exchange{ID: "a"})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/history", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if len(s.store.History(0)) != 0 {
		t.Error("history should be empty after DELETE")
	}
}

func TestHandleStats(t *testing.T) {
	ft := &fakeTutor{ready: true, storeCount: 42}
	s := newTestServer(ft)
	s.store.AddExchange(Exchange{Grounded: true, Tokens: 10})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	var stats SessionStats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.IndexedChunks != 42 || !stats.StoreReady {
		t.Errorf("store state not reported: %+v", stats)
	}
	if stats.Provider != "groq" {
		t.Errorf("unexpected provider: %q", stats.Provider)
	}
	if stats.QuestionsAsked != 1 || stats.GroundedAnswers != 1 {
		t.Errorf("session counters wrong: %+v", stats)
	}
}

func TestHandleHealth(t *testing.T) {
	cases := []struct {
		name       string
		ready      bool
		wantStatus int
		wantState  string
	}{
		{"ready", true, http.StatusOK, "ok"},
		{"empty index", false, http.StatusServiceUnavailable, "degraded"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(&fakeTutor{ready: tc.ready})

			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

			if rec.Code != tc.wantStatus {
				t.Errorf("status: got %d, want %d", rec.Code, tc.wantStatus)
			}
			var body map[string]interface{}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["status"] != tc.wantState {
				t.Errorf("state: got %v, want %q", body["status"], tc.wantState)
			}
		})
	}
}

func TestHandleEvents_SSEHeaders(t *testing.T) {
	s := newTestServer(&fakeTutor{})

	// A pre-cancelled context makes the handler return immediately after
	// registering and pinging.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("unexpected content type: %q", ct)
	}
	if !strings.Contains(rec.Body.String(), ": ping") {
		t.Errorf("expected keepalive ping, got: %q", rec.Body.String())
	}
	if s.hub.ClientCount() != 0 {
		t.Errorf("client not unregistered, count %d", s.hub.ClientCount())
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(&fakeTutor{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/ask", nil))

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204 for preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

func TestIndex_NotFoundForUnknownPath(t *testing.T) {
	s := newTestServer(&fakeTutor{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestMetricsRecording(t *testing.T) {
	metrics := NewMetrics(observability.NewMetricsRegistry())
	ft := &fakeTutor{answer: defaultAnswer()}
	s := NewServer(Config{}, ft, nil, metrics, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/ask", askRequestBody(t, "q"))
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if got := metrics.QuestionsTotal.Value(); got != 1 {
		t.Errorf("questions counter: got %f, want 1", got)
	}
	if got := metrics.TokensTotal.Value(); got != 160 {
		t.Errorf("tokens counter: got %f, want 160", got)
	}
}
