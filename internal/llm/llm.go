package llm

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	defaultModel    = "ministral-3:latest"
	defaultEndpoint = "http://localhost:11434/v1"

	// Excerpt budgets keep requests well below provider request-size limits.
	maxContentExcerptChars = 6_000
	maxSummaryChars        = 3_000
	maxDescriptionChars    = 1_000
	maxQuickSummaryChars   = 8_000
)

const defaultLLMHTTPTimeout = 3 * time.Minute

// ErrStreamTruncated is returned when a stream closes before the [DONE] sentinel.
var ErrStreamTruncated = errors.New("llm: stream ended before completion marker")

// Role is a chat turn author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn on the wire.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Config describes how to build an LLM client.
type Config struct {
	Model         string
	Endpoint      string
	APIKey        string
	HTTPClient    *http.Client
	StreamTimeout time.Duration
}

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client interface {
	// StreamChat delivers each decoded text fragment to onDelta in arrival
	// order. It returns nil only after the terminal sentinel.
	StreamChat(ctx context.Context, messages []Message, onDelta func(delta string) error) error
	Chat(ctx context.Context, messages []Message) (string, error)
	Name() string
}

// NewFromEnv builds a client, falling back to OLLAMA_HOST / OLLAMA_MODEL and
// then to a local Ollama server's OpenAI-compatible API.
func NewFromEnv(cfg Config) (Client, error) {
	base := strings.TrimRight(cfg.Endpoint, "/")
	if base == "" {
		if env := os.Getenv("OLLAMA_HOST"); env != "" {
			base = strings.TrimRight(env, "/") + "/v1"
		} else {
			base = defaultEndpoint
		}
	}
	model := cfg.Model
	if model == "" {
		if env := os.Getenv("OLLAMA_MODEL"); env != "" {
			model = env
		} else {
			model = defaultModel
		}
	}
	return &openAIClient{
		apiKey:        cfg.APIKey,
		model:         model,
		base:          base,
		client:        pickHTTPClient(cfg.HTTPClient),
		streamTimeout: cfg.StreamTimeout,
	}, nil
}

func pickHTTPClient(custom *http.Client) *http.Client {
	if custom != nil {
		return custom
	}
	// Local models often need >60s; the caller's context still cancels earlier.
	return &http.Client{Timeout: defaultLLMHTTPTimeout}
}
