package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mailtriage/internal/config"
)

func testConfig(baseURL string) config.Config {
	return config.Config{
		ModelBaseURL:   baseURL,
		ModelAPIKey:    "test-key",
		ModelName:      "test-model",
		ModelTimeoutMs: 2000,
		ModelRateRPS:   100,
	}
}

func completionResponse(content string) map[string]any {
	return map[string]any{
		"id":     "chatcmpl-test",
		"object": "chat.completion",
		"model":  "test-model",
		"choices": []map[string]any{
			{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			},
		},
	}
}

func TestComplete(t *testing.T) {
	var gotBody struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("path=%s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(completionResponse(`{"request_type":"Fee Payment"}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL + "/v1"))
	out, err := client.Complete(context.Background(), "system text", "user prompt")
	if err != nil {
		t.Fatal(err)
	}
	if out != `{"request_type":"Fee Payment"}` {
		t.Fatalf("out=%q", out)
	}
	if gotBody.Model != "test-model" {
		t.Fatalf("model=%q", gotBody.Model)
	}
	if len(gotBody.Messages) != 2 || gotBody.Messages[0].Role != "system" || gotBody.Messages[1].Content != "user prompt" {
		t.Fatalf("messages=%+v", gotBody.Messages)
	}
}

func TestCompleteNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "x", "object": "chat.completion", "choices": []any{}})
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL + "/v1"))
	if _, err := client.Complete(context.Background(), "s", "p"); err == nil {
		t.Fatal("expected error")
	}
}

func TestCompleteTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL + "/v1")
	cfg.ModelTimeoutMs = 50
	client := NewClient(cfg)

	start := time.Now()
	if _, err := client.Complete(context.Background(), "s", "p"); err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("timeout not applied")
	}
}

func TestRateLimiterPacing(t *testing.T) {
	limiter := NewRateLimiter(50)

	start := time.Now()
	for i := 0; i < 3; i++ {
		limiter.WaitTurn()
	}
	// 50 rps -> 20ms between slots; third call is scheduled at +40ms.
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("elapsed=%s", elapsed)
	}
}
