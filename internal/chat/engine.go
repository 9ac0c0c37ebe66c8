// Package chat runs the lecture assistant conversation.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/csheth/lecturepad/internal/llm"
	"github.com/csheth/lecturepad/internal/logger"
)

// ErrBlankMessage rejects empty sends.
var ErrBlankMessage = errors.New("chat: message is blank")

// Replies shown in place of a reply that could not be produced.
const (
	ErrorReply     = "Sorry, I couldn't generate a response right now. Please try again."
	CancelledReply = "_Response cancelled._"
)

const (
	defaultStreamTimeout = 2 * time.Minute
	quickQuestionTimeout = 30 * time.Second
)

var (
	errStale    = errors.New("chat: stream superseded")
	errNoClient = errors.New("chat: no assistant configured")
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation entry. Once Streaming turns false it stays false.
type Message struct {
	ID        string
	Role      Role
	Content   string
	CreatedAt time.Time
	Streaming bool
}

// Config wires an Engine.
type Config struct {
	Client        llm.Client
	StreamTimeout time.Duration
	Log           *logger.Logger
	Now           func() time.Time
	NewID         func() string
}

// Engine keeps an append-only conversation and at most one active stream. A
// new send, a lecture change, or Cancel supersedes the active stream; chunks
// that arrive afterwards are dropped.
type Engine struct {
	cfg Config
	log *logger.Logger

	mu        sync.Mutex
	messages  []Message
	lecture   llm.LectureContext
	gen       uint64
	activeID  string
	cancel    context.CancelFunc
	done      chan struct{}
	listeners map[int]func()
	nextID    int
}

// New returns an Engine.
func New(cfg Config) *Engine {
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = defaultStreamTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{cfg: cfg, log: log.With("component", "chat"), listeners: map[int]func(){}}
}

// Subscribe registers fn to run after every conversation change.
func (e *Engine) Subscribe(fn func()) func() {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = fn
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

// Messages returns a copy of the conversation.
func (e *Engine) Messages() []Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Message(nil), e.messages...)
}

// Streaming reports whether a reply is in flight.
func (e *Engine) Streaming() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeID != ""
}

// SetLecture cancels the active stream and swaps the prompt context. The
// conversation itself is kept.
func (e *Engine) SetLecture(lc llm.LectureContext) {
	e.mu.Lock()
	changed := e.supersedeLocked()
	e.lecture = lc
	e.mu.Unlock()
	if changed {
		e.notify()
	}
}

// SetContext replaces the prompt context and leaves the active stream alone.
func (e *Engine) SetContext(lc llm.LectureContext) {
	e.mu.Lock()
	e.lecture = lc
	e.mu.Unlock()
}

// Cancel stops the active stream, keeping any partial reply.
func (e *Engine) Cancel() {
	e.mu.Lock()
	changed := e.supersedeLocked()
	e.mu.Unlock()
	if changed {
		e.notify()
	}
}

// Send appends the user turn and a streaming placeholder, then streams the
// reply in the background. It returns the placeholder.
func (e *Engine) Send(ctx context.Context, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrBlankMessage
	}

	e.mu.Lock()
	e.supersedeLocked()
	now := e.cfg.Now().UTC()
	e.messages = append(e.messages, Message{ID: e.cfg.NewID(), Role: RoleUser, Content: text, CreatedAt: now})
	placeholder := Message{ID: e.cfg.NewID(), Role: RoleAssistant, CreatedAt: now, Streaming: true}
	e.messages = append(e.messages, placeholder)

	e.gen++
	gen := e.gen
	streamCtx, cancel := context.WithTimeout(ctx, e.cfg.StreamTimeout)
	done := make(chan struct{})
	e.activeID = placeholder.ID
	e.cancel = cancel
	e.done = done
	prompt := llm.BuildChatMessages(e.lecture, text)
	e.mu.Unlock()
	e.notify()

	go e.stream(streamCtx, cancel, gen, placeholder.ID, prompt, done)
	return placeholder, nil
}

func (e *Engine) stream(ctx context.Context, cancel context.CancelFunc, gen uint64, id string, prompt []llm.Message, done chan struct{}) {
	defer close(done)
	defer cancel()

	if e.cfg.Client == nil {
		e.finish(gen, id, errNoClient)
		return
	}
	err := e.cfg.Client.StreamChat(ctx, prompt, func(delta string) error {
		e.mu.Lock()
		if e.gen != gen {
			e.mu.Unlock()
			return errStale
		}
		if i := e.indexLocked(id); i >= 0 {
			e.messages[i].Content += delta
		}
		e.mu.Unlock()
		e.notify()
		return nil
	})
	e.finish(gen, id, err)
}

func (e *Engine) finish(gen uint64, id string, err error) {
	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		return
	}
	if i := e.indexLocked(id); i >= 0 {
		if err != nil {
			e.log.Warn("assistant stream failed", "message_id", id, "error", err)
			e.messages[i].Content = ErrorReply
		}
		e.messages[i].Streaming = false
	}
	e.activeID = ""
	e.cancel = nil
	e.mu.Unlock()
	e.notify()
}

// supersedeLocked finalizes the active placeholder and invalidates its stream.
func (e *Engine) supersedeLocked() bool {
	if e.activeID == "" {
		return false
	}
	if i := e.indexLocked(e.activeID); i >= 0 {
		if e.messages[i].Content == "" {
			e.messages[i].Content = CancelledReply
		}
		e.messages[i].Streaming = false
	}
	e.gen++
	if e.cancel != nil {
		e.cancel()
	}
	e.activeID = ""
	e.cancel = nil
	return true
}

// Wait blocks until the most recent stream goroutine has exited.
func (e *Engine) Wait(ctx context.Context) error {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// QuickQuestions asks the model for preset questions about summary. Any
// failure yields the default set.
func (e *Engine) QuickQuestions(ctx context.Context, title, summary string) []llm.QuickQuestion {
	if strings.TrimSpace(summary) == "" || e.cfg.Client == nil {
		return llm.DefaultQuickQuestions()
	}
	ctx, cancel := context.WithTimeout(ctx, quickQuestionTimeout)
	defer cancel()

	raw, err := e.cfg.Client.Chat(ctx, llm.BuildQuickQuestionsMessages(title, summary))
	if err != nil {
		e.log.Warn("quick question generation failed", "error", err)
		return llm.DefaultQuickQuestions()
	}
	questions, err := llm.ParseQuickQuestions(raw)
	if err != nil {
		e.log.Debug("quick question payload unparseable", "error", err)
		return llm.DefaultQuickQuestions()
	}
	return questions
}

func (e *Engine) indexLocked(id string) int {
	for i := len(e.messages) - 1; i >= 0; i-- {
		if e.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (e *Engine) notify() {
	e.mu.Lock()
	fns := make([]func(), 0, len(e.listeners))
	for id := 0; id < e.nextID; id++ {
		if fn, ok := e.listeners[id]; ok {
			fns = append(fns, fn)
		}
	}
	e.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
