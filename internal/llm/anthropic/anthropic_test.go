package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alokproc/geotutor/internal/llm"
)

func TestComplete(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if key := r.Header.Get("x-api-key"); key != "test-key" {
			t.Errorf("unexpected api key header: %s", key)
		}
		if v := r.Header.Get("anthropic-version"); v != "2023-06-01" {
			t.Errorf("unexpected version header: %s", v)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"content":     []map[string]string{{"type": "text", "text": "Black soil suits cotton."}},
			"model":       "claude-sonnet-4-20250514",
			"stop_reason": "end_turn",
			"usage":       map[string]int{"input_tokens": 40, "output_tokens": 8},
		})
	}))
	defer srv.Close()

	client := New("test-key", "claude-sonnet-4-20250514", srv.URL)

	resp, err := client.Complete(context.Background(), &llm.Prompt{
		SystemPrompt: "You are a geography tutor.",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "Which soil suits cotton?"}},
	}, &llm.RequestOptions{MaxTokens: llm.Int(256)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Content != "Black soil suits cotton." {
		t.Errorf("unexpected content: %q", resp.Content)
	}
	if resp.StopReason != "end_turn" {
		t.Errorf("unexpected stop reason: %q", resp.StopReason)
	}
	if resp.InputTokens != 40 || resp.OutputTokens != 8 {
		t.Errorf("unexpected token counts: %d/%d", resp.InputTokens, resp.OutputTokens)
	}

	// System prompt travels in the top-level field, not the messages array
	if gotBody["system"] != "You are a geography tutor." {
		t.Errorf("expected system field, got %v", gotBody["system"])
	}
	if gotBody["max_tokens"].(float64) != 256 {
		t.Errorf("expected max_tokens 256, got %v", gotBody["max_tokens"])
	}
	msgs := gotBody["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
}

func TestComplete_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "invalid x-api-key"}}`))
	}))
	defer srv.Close()

	client := New("bad-key", "claude-sonnet-4-20250514", srv.URL)
	_, err := client.Complete(context.Background(), &llm.Prompt{}, nil)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
}

func TestEmbed_NotSupported(t *testing.T) {
	client := New("k", "m", "")
	_, err := client.Embed(context.Background(), []string{"text"})
	if err == nil {
		t.Fatal("expected embedding to be unsupported")
	}
}

func TestNew_DefaultBaseURL(t *testing.T) {
	c := New("k", "m", "")
	if c.baseURL != defaultBaseURL {
		t.Errorf("expected default base URL, got %s", c.baseURL)
	}
}
