package web

import (
	"time"

	"github.com/alokproc/geotutor/internal/tutor"
)

// Exchange is one question/answer pair in the session history.
type Exchange struct {
	ID       string         `json:"id"`
	Question string         `json:"question"`
	Answer   string         `json:"answer"`
	Grounded bool           `json:"grounded"`
	Sources  []tutor.Source `json:"sources,omitempty"`
	Model    string         `json:"model,omitempty"`
	Tokens   int            `json:"tokens,omitempty"`
	AskedAt  time.Time      `json:"asked_at"`
	Duration time.Duration  `json:"duration_ms"`
}

// SessionStats holds aggregate statistics for the UI sidebar.
type SessionStats struct {
	QuestionsAsked    int     `json:"questions_asked"`
	GroundedAnswers   int     `json:"grounded_answers"`
	TotalTokens       int     `json:"total_tokens"`
	AvgDuration       float64 `json:"avg_duration_seconds"`
	IndexedChunks     int     `json:"indexed_chunks"`
	StoreReady        bool    `json:"store_ready"`
	Provider          string  `json:"provider,omitempty"`
	DocumentsIngested int     `json:"documents_ingested"`
}

// Event is a real-time UI event delivered over SSE.
type Event struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}
