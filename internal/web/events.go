package web

import "time"

// Event types published to the UI.
const (
	EventQuestionAsked    = "question_asked"
	EventQuestionAnswered = "question_answered"
	EventQuestionFailed   = "question_failed"
	EventIngestStarted    = "ingest_started"
	EventIngestProgress   = "ingest_progress"
	EventIngestCompleted  = "ingest_completed"
	EventIngestFailed     = "ingest_failed"
	EventHistoryCleared   = "history_cleared"
)

// Emitter publishes tutoring events to the store and broadcasts them to
// SSE clients.
type Emitter struct {
	store *Store
	hub   *Hub
}

// NewEmitter creates an emitter bound to a store and hub.
func NewEmitter(store *Store, hub *Hub) *Emitter {
	return &Emitter{store: store, hub: hub}
}

func (e *Emitter) emit(eventType string, data interface{}) {
	e.hub.Broadcast(&Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
}

// QuestionAsked announces an incoming question.
func (e *Emitter) QuestionAsked(question string) {
	e.emit(EventQuestionAsked, map[string]interface{}{
		"question": question,
	})
}

// QuestionAnswered records the exchange and announces the answer.
func (e *Emitter) QuestionAnswered(exchange Exchange) {
	e.store.AddExchange(exchange)
	e.emit(EventQuestionAnswered, exchange)
}

// QuestionFailed announces a failed answer attempt.
func (e *Emitter) QuestionFailed(question string, err error) {
	e.emit(EventQuestionFailed, map[string]interface{}{
		"question": question,
		"error":    err.Error(),
	})
}

// IngestStarted announces the start of a document ingest.
func (e *Emitter) IngestStarted(source string) {
	e.emit(EventIngestStarted, map[string]interface{}{
		"source": source,
	})
}

// IngestProgress announces indexing progress for a running ingest.
func (e *Emitter) IngestProgress(source string, done, total int) {
	e.emit(EventIngestProgress, map[string]interface{}{
		"source": source,
		"done":   done,
		"total":  total,
	})
}

// IngestCompleted records and announces a finished ingest.
func (e *Emitter) IngestCompleted(source string, pages, chunks int, duration time.Duration) {
	e.store.RecordIngest()
	e.emit(EventIngestCompleted, map[string]interface{}{
		"source":      source,
		"pages":       pages,
		"chunks":      chunks,
		"duration_ms": duration.Milliseconds(),
	})
}

// IngestFailed announces a failed ingest.
func (e *Emitter) IngestFailed(source string, err error) {
	e.emit(EventIngestFailed, map[string]interface{}{
		"source": source,
		"error":  err.Error(),
	})
}

// HistoryCleared announces that the session history was dropped.
func (e *Emitter) HistoryCleared() {
	e.store.Clear()
	e.emit(EventHistoryCleared, nil)
}
