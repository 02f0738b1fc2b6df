package ollama_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/garnizeh/qna/internal/config"
	"github.com/garnizeh/qna/pkg/ollama"
)

// writeSequence writes each object as a JSON line and flushes, the way Ollama streams.
func writeSequence(w http.ResponseWriter, seq []map[string]any, delay time.Duration) {
	enc := json.NewEncoder(w)
	for i, obj := range seq {
		_ = enc.Encode(obj)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		if i < len(seq)-1 && delay > 0 {
			time.Sleep(delay)
		}
	}
}

func TestClient_Generate_SendsSystemAndOptions(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeSequence(w, []map[string]any{{"response": "ok", "done": true}}, 0)
	}))
	defer srv.Close()

	client := newTestClient(t, srv, config.OllamaConfig{})
	_, err := client.Generate(context.Background(), ollama.GenerateRequest{
		Model: "llama3", Prompt: "p", System: "be brief", Temperature: 0.2, TopP: 0.9,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if got["system"] != "be brief" || got["model"] != "llama3" {
		t.Fatalf("unexpected request: %#v", got)
	}
	opts, _ := got["options"].(map[string]any)
	if opts["temperature"] != 0.2 || opts["top_p"] != 0.9 {
		t.Fatalf("unexpected options: %#v", opts)
	}
}

func TestClient_Generate_Retries_Backoff_Succeeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			a := atomic.AddInt32(&attempts, 1)
			if a == 1 {
				http.Error(w, "temporary", http.StatusInternalServerError)
				return
			}
			writeSequence(w, []map[string]any{{"response": "ok", "done": true}}, 0)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	cfg := config.OllamaConfig{Retries: 2, Backoff: 10 * time.Millisecond, CircuitFailureThreshold: 10}
	client := newTestClient(t, srv, cfg)

	res, err := client.Generate(context.Background(), ollama.GenerateRequest{Model: "m", Prompt: "p"})
	if err != nil {
		t.Fatalf("Generate expected success after retry, got error: %v", err)
	}
	if _, ok := res.Meta["latency_ms"]; !ok {
		t.Fatalf("expected latency_ms in meta")
	}
	if atomic.LoadInt32(&attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestClient_Generate_BackoffHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := config.OllamaConfig{Retries: 3, Backoff: time.Minute, CircuitFailureThreshold: 10}
	client := newTestClient(t, srv, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := client.Generate(ctx, ollama.GenerateRequest{Model: "m", Prompt: "p"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("backoff ignored the context")
	}
}

func TestClient_CircuitBreaker_Opens(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			atomic.AddInt32(&attempts, 1)
			http.Error(w, "permanent", http.StatusInternalServerError)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	cfg := config.OllamaConfig{Timeout: time.Second, Retries: 0, Backoff: time.Millisecond, CircuitFailureThreshold: 2, CircuitReset: time.Minute}
	client := newTestClient(t, srv, cfg)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := client.Generate(ctx, ollama.GenerateRequest{Model: "m", Prompt: "p"}); err == nil {
			t.Fatalf("expected error on attempt %d", i+1)
		}
	}

	if _, err := client.Generate(ctx, ollama.GenerateRequest{Model: "m", Prompt: "p"}); err != ollama.ErrCircuitOpen {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if n := atomic.LoadInt32(&attempts); n != 2 {
		t.Fatalf("expected 2 upstream calls, got %d", n)
	}
}

func TestRenderTemplate(t *testing.T) {
	out, err := ollama.RenderTemplate(`{{.Title}} [{{join .Tags ", "}}]`, map[string]any{"Title": "Refund", "Tags": []string{"a", "b"}})
	if err != nil {
		t.Fatalf("RenderTemplate: %v", err)
	}
	if out != "Refund [a, b]" {
		t.Fatalf("unexpected render: %q", out)
	}

	if _, err := ollama.RenderTemplate(`{{.Missing}}`, map[string]any{}); err == nil {
		t.Fatalf("expected missing key error")
	}
	if _, err := ollama.RenderTemplate(`{{`, nil); err == nil {
		t.Fatalf("expected parse error")
	}
}
