package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestPickHTTPClientHonorsCustomClient(t *testing.T) {
	custom := &http.Client{Timeout: 42 * time.Second}
	if got := pickHTTPClient(custom); got != custom {
		t.Fatalf("expected custom client to be returned")
	}
}

func TestPickHTTPClientUsesLongerTimeout(t *testing.T) {
	client := pickHTTPClient(nil)
	if client.Timeout != defaultLLMHTTPTimeout {
		t.Fatalf("expected default timeout %s, got %s", defaultLLMHTTPTimeout, client.Timeout)
	}
}

func TestNewFromEnvFallsBackToOllama(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "http://gpu-box:11434/")
	t.Setenv("OLLAMA_MODEL", "qwen3:8b")

	client, err := NewFromEnv(Config{})
	if err != nil {
		t.Fatalf("NewFromEnv() error = %v", err)
	}
	oc := client.(*openAIClient)
	if oc.base != "http://gpu-box:11434/v1" || oc.model != "qwen3:8b" {
		t.Fatalf("unexpected client %+v", oc)
	}
}

func newTestClient(server *httptest.Server) *openAIClient {
	return &openAIClient{apiKey: "sk-test", model: "m", base: server.URL, client: server.Client()}
}

func TestStreamChatDeliversDeltasInOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing bearer token")
		}
		var payload chatRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("failed to decode payload: %v", err)
		}
		if !payload.Stream || len(payload.Messages) != 2 {
			t.Errorf("unexpected payload %+v", payload)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(strings.Join([]string{
			`data: {"choices":[{"delta":{"content":"Hello"}}]}`,
			``,
			`data: {not json`,
			`: keep-alive`,
			`data: {"choices":[{"delta":{"content":" world"}}]}`,
			`data: [DONE]`,
			``,
		}, "\n")))
	}))
	defer server.Close()

	var got []string
	err := newTestClient(server).StreamChat(context.Background(), []Message{
		{Role: RoleSystem, Content: "s"},
		{Role: RoleUser, Content: "q"},
	}, func(delta string) error {
		got = append(got, delta)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamChat() error = %v", err)
	}
	if strings.Join(got, "") != "Hello world" || len(got) != 2 {
		t.Fatalf("unexpected deltas %q", got)
	}
}

func TestStreamChatWithoutSentinelIsTruncated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}\n"))
	}))
	defer server.Close()

	err := newTestClient(server).StreamChat(context.Background(), []Message{{Role: RoleUser, Content: "q"}}, func(string) error { return nil })
	if !errors.Is(err, ErrStreamTruncated) {
		t.Fatalf("expected ErrStreamTruncated, got %v", err)
	}
}

func TestStreamChatSurfacesHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	err := newTestClient(server).StreamChat(context.Background(), []Message{{Role: RoleUser, Content: "q"}}, nil)
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected 429 error, got %v", err)
	}
}

func TestStreamChatStopsWhenHandlerFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\ndata: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\ndata: [DONE]\n"))
	}))
	defer server.Close()

	stop := errors.New("stop")
	calls := 0
	err := newTestClient(server).StreamChat(context.Background(), []Message{{Role: RoleUser, Content: "q"}}, func(string) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Fatalf("expected handler error after one call, got %v (%d calls)", err, calls)
	}
}

func TestChatReturnsMessageContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload chatRequest
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if payload.Stream {
			t.Errorf("expected non-streaming request")
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  [] "}}]}`))
	}))
	defer server.Close()

	got, err := newTestClient(server).Chat(context.Background(), []Message{{Role: RoleUser, Content: "q"}})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if got != "[]" {
		t.Fatalf("unexpected content %q", got)
	}
}
