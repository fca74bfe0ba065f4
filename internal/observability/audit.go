package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// AuditEventType categorizes audit events.
type AuditEventType string

const (
	AuditEventQuestionAsked    AuditEventType = "question.asked"
	AuditEventQuestionAnswered AuditEventType = "question.answered"
	AuditEventQuestionFailed   AuditEventType = "question.failed"
	AuditEventIngestStarted    AuditEventType = "ingest.started"
	AuditEventIngestCompleted  AuditEventType = "ingest.completed"
	AuditEventIngestFailed     AuditEventType = "ingest.failed"
	AuditEventStoreReset       AuditEventType = "store.reset"
)

// AuditEvent represents a single audit log entry.
type AuditEvent struct {
	Timestamp   time.Time              `json:"timestamp"`
	EventType   AuditEventType         `json:"event_type"`
	SessionID   string                 `json:"session_id"`
	Success     bool                   `json:"success"`
	Duration    time.Duration          `json:"duration_ms,omitempty"`
	Message     string                 `json:"message,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
	ErrorDetail string                 `json:"error_detail,omitempty"`
}

// AuditLogger writes JSONL audit events for a tutoring session.
type AuditLogger struct {
	mu        sync.Mutex
	writer    io.Writer
	closer    io.Closer
	sessionID string
	enabled   bool
}

// AuditConfig configures the audit logger.
type AuditConfig struct {
	Enabled    bool
	OutputPath string // File path or "stdout"/"stderr"
	SessionID  string
}

// DefaultAuditConfig returns default audit configuration.
func DefaultAuditConfig() *AuditConfig {
	return &AuditConfig{
		Enabled:    true,
		OutputPath: "stdout",
	}
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(config *AuditConfig) (*AuditLogger, error) {
	if config == nil {
		config = DefaultAuditConfig()
	}

	var writer io.Writer
	var closer io.Closer
	switch config.OutputPath {
	case "stdout", "":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		f, err := os.OpenFile(config.OutputPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		writer = f
		closer = f
	}

	sessionID := config.SessionID
	if sessionID == "" {
		sessionID = fmt.Sprintf("session-%d", time.Now().UnixNano())
	}

	return &AuditLogger{
		writer:    writer,
		closer:    closer,
		sessionID: sessionID,
		enabled:   config.Enabled,
	}, nil
}

// Log writes an audit event.
func (l *AuditLogger) Log(event *AuditEvent) error {
	if !l.enabled {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.SessionID == "" {
		event.SessionID = l.sessionID
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	_, err = fmt.Fprintf(l.writer, "%s\n", data)
	return err
}

// LogQuestionAsked records an incoming question.
func (l *AuditLogger) LogQuestionAsked(question string) {
	l.Log(&AuditEvent{
		EventType: AuditEventQuestionAsked,
		Success:   true,
		Message:   "Question received",
		Details: map[string]interface{}{
			"question": question,
		},
	})
}

// LogQuestionAnswered records a successful answer.
func (l *AuditLogger) LogQuestionAnswered(question string, grounded bool, duration time.Duration, inputTokens, outputTokens int) {
	l.Log(&AuditEvent{
		EventType: AuditEventQuestionAnswered,
		Success:   true,
		Duration:  duration,
		Message:   "Question answered",
		Details: map[string]interface{}{
			"question":      question,
			"grounded":      grounded,
			"input_tokens":  inputTokens,
			"output_tokens": outputTokens,
			"total_tokens":  inputTokens + outputTokens,
		},
	})
}

// LogQuestionFailed records a failed answer attempt.
func (l *AuditLogger) LogQuestionFailed(question string, err error) {
	l.Log(&AuditEvent{
		EventType:   AuditEventQuestionFailed,
		Success:     false,
		Message:     "Question failed",
		ErrorDetail: err.Error(),
		Details: map[string]interface{}{
			"question": question,
		},
	})
}

// LogIngestStarted records the start of a PDF ingest.
func (l *AuditLogger) LogIngestStarted(source string) {
	l.Log(&AuditEvent{
		EventType: AuditEventIngestStarted,
		Success:   true,
		Message:   fmt.Sprintf("Ingest started: %s", source),
		Details: map[string]interface{}{
			"source": source,
		},
	})
}

// LogIngestCompleted records a finished ingest run.
func (l *AuditLogger) LogIngestCompleted(source string, pages, chunks int, duration time.Duration) {
	l.Log(&AuditEvent{
		EventType: AuditEventIngestCompleted,
		Success:   true,
		Duration:  duration,
		Message:   fmt.Sprintf("Ingest completed: %s", source),
		Details: map[string]interface{}{
			"source": source,
			"pages":  pages,
			"chunks": chunks,
		},
	})
}

// LogIngestFailed records a failed ingest run.
func (l *AuditLogger) LogIngestFailed(source string, err error) {
	l.Log(&AuditEvent{
		EventType:   AuditEventIngestFailed,
		Success:     false,
		Message:     fmt.Sprintf("Ingest failed: %s", source),
		ErrorDetail: err.Error(),
		Details: map[string]interface{}{
			"source": source,
		},
	})
}

// LogStoreReset records a vector store reset.
func (l *AuditLogger) LogStoreReset() {
	l.Log(&AuditEvent{
		EventType: AuditEventStoreReset,
		Success:   true,
		Message:   "Vector store reset",
	})
}

// Close flushes and closes the underlying file, when there is one.
func (l *AuditLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}
