package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BroWo1/factcheck-backend/pkg/circuitbreaker"
	"github.com/BroWo1/factcheck-backend/pkg/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(config.LLMConfig{
		APIKey:       "test-key",
		BaseURL:      srv.URL,
		Model:        "gpt-4o",
		SearchModel:  "gpt-4.1",
		SummaryModel: "gpt-4o-mini",
		Temperature:  0.1,
		MaxTokens:    500,
		TimeoutSec:   5,
	})
}

func chatReply(content string) string {
	reply := map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  "gpt-4o",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
		"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 8, "total_tokens": 20},
	}
	data, _ := json.Marshal(reply)
	return string(data)
}

func TestCompleteSendsImageAsDataURL(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		io.WriteString(w, chatReply(`{"main_topic": "x"}`))
	})

	png := []byte("\x89PNG\r\n\x1a\n0000")
	resp, err := client.Complete(context.Background(), CompletionRequest{UserPrompt: "look", Image: png})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != `{"main_topic": "x"}` || resp.Usage.TotalTokens != 20 || resp.Model != "gpt-4o" {
		t.Errorf("response = %+v", resp)
	}

	messages := body["messages"].([]any)
	user := messages[len(messages)-1].(map[string]any)
	parts, ok := user["content"].([]any)
	if !ok || len(parts) != 2 {
		t.Fatalf("user content = %v, want two parts", user["content"])
	}
	image := parts[1].(map[string]any)["image_url"].(map[string]any)
	if !strings.HasPrefix(image["url"].(string), "data:image/png;base64,") {
		t.Errorf("image url = %v", image["url"])
	}
}

func TestCompleteDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error": {"message": "invalid api key", "type": "invalid_request_error"}}`)
	})

	if _, err := client.Complete(context.Background(), CompletionRequest{UserPrompt: "hi"}); err == nil {
		t.Fatal("Complete() error = nil, want an auth error")
	}
	if calls != 1 {
		t.Errorf("server called %d times, want 1", calls)
	}
}

const responsesBody = `{
  "model": "gpt-4.1-2025-04-14",
  "output": [
    {"type": "web_search_call", "id": "ws_1", "status": "completed"},
    {"type": "message", "content": [{
      "type": "output_text",
      "text": "{\"main_topic\": \"moon\"}",
      "annotations": [
        {"type": "url_citation", "url": "https://nasa.gov/apollo", "title": "Apollo", "start_index": 1, "end_index": 12},
        {"type": "file_citation", "url": ""}
      ]
    }]}
  ],
  "usage": {"input_tokens": 100, "output_tokens": 50, "total_tokens": 150}
}`

func TestWebSearchParsesCitations(t *testing.T) {
	var req responsesRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/responses" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		io.WriteString(w, responsesBody)
	})

	resp, err := client.WebSearch(context.Background(), "check this", nil)
	if err != nil {
		t.Fatalf("WebSearch() error = %v", err)
	}

	if req.Model != "gpt-4.1" || len(req.Tools) != 1 || req.Tools[0].Type != "web_search_preview" {
		t.Errorf("request = %+v", req)
	}
	if resp.Content != `{"main_topic": "moon"}` {
		t.Errorf("content = %q", resp.Content)
	}
	if len(resp.Citations) != 1 || resp.Citations[0].URL != "https://nasa.gov/apollo" || resp.Citations[0].EndIndex != 12 {
		t.Errorf("citations = %+v", resp.Citations)
	}
	if resp.Usage.TotalTokens != 150 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestWebSearchStatusError(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"error": "bad model"}`, http.StatusBadRequest)
	})

	_, err := client.WebSearch(context.Background(), "check", nil)
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("WebSearch() error = %v, want a 400 status error", err)
	}
	if calls != 1 {
		t.Errorf("server called %d times, want 1", calls)
	}
}

func TestAnalystSummarizeStepUsesSummaryModel(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		io.WriteString(w, chatReply(`"Found three credible sources."`))
	})

	summary, err := NewAnalyst(client).SummarizeStep(context.Background(), 2, map[string]any{
		"step":      2,
		"citations": []string{"x"},
		"results":   []string{"a", "b"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if summary != "Found three credible sources." {
		t.Errorf("summary = %q", summary)
	}
	if body["model"] != "gpt-4o-mini" {
		t.Errorf("model = %v, want gpt-4o-mini", body["model"])
	}
	prompt := body["messages"].([]any)[0].(map[string]any)["content"].(string)
	if strings.Contains(prompt, "citations") {
		t.Error("summary prompt includes bookkeeping fields")
	}
}

func TestAnalystSearchRepliesCarryCitations(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, responsesBody)
	})

	reply, err := NewAnalyst(client).InitialSearch(context.Background(), "claim", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(reply.Citations) != 1 || reply.TokensUsed != 150 || reply.Prompt == "" {
		t.Errorf("reply = %+v", reply)
	}
}

func TestOpenBreakerRejectsCompletion(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error": {"message": "bad request", "type": "invalid_request_error"}}`)
	})
	c.cb = circuitbreaker.New("llm", circuitbreaker.Settings{TripAfter: 1, Cooldown: time.Hour})

	if _, err := c.Complete(context.Background(), CompletionRequest{UserPrompt: "Is the moon made of cheese?"}); err == nil {
		t.Fatal("Complete() error = nil, want API error")
	}
	if c.cb.State() != circuitbreaker.StateOpen {
		t.Fatalf("breaker state = %s, want open", c.cb.State())
	}

	_, err := c.WebSearch(context.Background(), "Is the moon made of cheese?", nil)
	if !circuitbreaker.IsOpen(err) {
		t.Fatalf("WebSearch() error = %v, want breaker rejection", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("upstream called %d times, want 1", got)
	}
}
