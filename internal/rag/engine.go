package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/ragline-platform/ragline/internal/memory"
	"github.com/ragline-platform/ragline/internal/metrics"
)

// MemoryStore is the slice of the memory store the engine needs.
type MemoryStore interface {
	Save(ctx context.Context, content, source, userID string) (*memory.Entry, error)
	SaveAll(ctx context.Context, contents []string, source, userID string) error
	Search(ctx context.Context, query, userID string, k int) ([]memory.Entry, error)
}

// ModelGateway is the slice of the LLM client the engine needs.
type ModelGateway interface {
	ListModels(ctx context.Context) ([]string, error)
	Generate(ctx context.Context, model, prompt string) (string, error)
	GenerateStream(ctx context.Context, model, prompt string, fn func(chunk string) error) error
	Probe(ctx context.Context, model string) error
}

// EventsSink receives notifications about completed exchanges. A nil sink
// disables publishing.
type EventsSink interface {
	ExchangeSaved(ctx context.Context, userID, question, answer string)
}

// SourceDocument is one retrieved memory entry as reported to clients.
type SourceDocument struct {
	PageContent string         `json:"page_content"`
	Metadata    map[string]any `json:"metadata"`
}

// Event types on the streaming channel.
const (
	EventSources = "sources"
	EventContent = "content"
	EventError   = "error"
	EventDone    = "done"
)

// Event is one frame on the streaming answer channel.
type Event struct {
	Type    string
	Sources []SourceDocument
	Content string
	Err     error
}

// Model switch failures.
var (
	ErrUnknownModel     = errors.New("model is not served by the gateway")
	ErrModelUnavailable = errors.New("model failed the readiness probe")
)

// apologyFormat is returned to the user when generation fails in blocking mode.
const apologyFormat = "Sorry, something went wrong while handling your request: %v"

// thinkPattern matches reasoning scratchpad blocks emitted by thinking models.
var thinkPattern = regexp.MustCompile(`(?s)<think>.*?</think>`)

// Engine orchestrates the full answer pipeline: retrieval, prompt assembly,
// generation and persistence of the exchange.
type Engine struct {
	retriever *Retriever
	gateway   ModelGateway
	session   *Session
	store     MemoryStore
	events    EventsSink
}

// NewEngine creates the answer engine. events may be nil.
func NewEngine(retriever *Retriever, gateway ModelGateway, session *Session, store MemoryStore, events EventsSink) *Engine {
	return &Engine{
		retriever: retriever,
		gateway:   gateway,
		session:   session,
		store:     store,
		events:    events,
	}
}

// Ask answers a question in blocking mode. Generation failures turn into an
// apology answer rather than an error, so the caller always has something to
// show; only retrieval failures abort the request. The returned answer has
// think blocks stripped, while the persisted exchange keeps the raw output.
func (e *Engine) Ask(ctx context.Context, question, userID string) (string, []SourceDocument, error) {
	history, sources, err := e.retriever.Retrieve(ctx, question, userID)
	if err != nil {
		metrics.AsksTotal.WithLabelValues("blocking", "error").Inc()
		return "", nil, err
	}

	prompt := BuildAnswerPrompt(history, question)
	raw, err := e.gateway.Generate(ctx, e.session.CurrentModel(), prompt)
	if err != nil {
		slog.Error("generation failed", "error", err, "user_id", userID)
		metrics.AsksTotal.WithLabelValues("blocking", "error").Inc()
		return fmt.Sprintf(apologyFormat, err), sources, nil
	}

	e.saveExchange(ctx, question, raw, userID)
	metrics.AsksTotal.WithLabelValues("blocking", "ok").Inc()

	answer := strings.TrimSpace(thinkPattern.ReplaceAllString(raw, ""))
	return answer, sources, nil
}

// AskStream answers a question in streaming mode. The returned channel is
// unbuffered and closed after the terminal done event; a sources event leads
// when retrieval found anything, then content fragments follow in generation
// order.
// The exchange is persisted only after the model stream finishes cleanly; a
// mid-stream failure discards the partial answer and surfaces an error event
// before the done sentinel.
func (e *Engine) AskStream(ctx context.Context, question, userID string) <-chan Event {
	ch := make(chan Event)

	go func() {
		defer close(ch)

		send := func(ev Event) bool {
			if ctx.Err() != nil {
				return false
			}
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		history, sources, err := e.retriever.Retrieve(ctx, question, userID)
		if err != nil {
			metrics.AsksTotal.WithLabelValues("streaming", "error").Inc()
			if send(Event{Type: EventError, Err: err}) {
				send(Event{Type: EventDone})
			}
			return
		}

		if len(sources) > 0 {
			if !send(Event{Type: EventSources, Sources: sources}) {
				return
			}
		}

		prompt := BuildAnswerPrompt(history, question)
		var buf strings.Builder
		streamErr := e.gateway.GenerateStream(ctx, e.session.CurrentModel(), prompt, func(chunk string) error {
			buf.WriteString(chunk)
			if !send(Event{Type: EventContent, Content: chunk}) {
				return ctx.Err()
			}
			metrics.StreamChunksTotal.Inc()
			return nil
		})

		if streamErr != nil {
			slog.Error("streaming generation failed", "error", streamErr, "user_id", userID)
			metrics.AsksTotal.WithLabelValues("streaming", "error").Inc()
			if send(Event{Type: EventError, Err: streamErr}) {
				send(Event{Type: EventDone})
			}
			return
		}

		e.saveExchange(ctx, question, buf.String(), userID)
		metrics.AsksTotal.WithLabelValues("streaming", "ok").Inc()
		send(Event{Type: EventDone})
	}()

	return ch
}

// SwitchModel validates and commits a new active model: the name must be in
// the served list (refreshed on a miss) and the model must pass a readiness
// probe before it becomes current.
func (e *Engine) SwitchModel(ctx context.Context, model string) error {
	if !e.session.Has(model) {
		models, err := e.gateway.ListModels(ctx)
		if err == nil {
			e.session.SetAvailable(models)
		}
		if !e.session.Has(model) {
			metrics.ModelSwitchesTotal.WithLabelValues("rejected").Inc()
			return fmt.Errorf("%w: %s", ErrUnknownModel, model)
		}
	}

	if err := e.gateway.Probe(ctx, model); err != nil {
		metrics.ModelSwitchesTotal.WithLabelValues("rejected").Inc()
		return fmt.Errorf("%w: %s: %v", ErrModelUnavailable, model, err)
	}

	e.session.SetCurrentModel(model)
	metrics.ModelSwitchesTotal.WithLabelValues("ok").Inc()
	slog.Info("active model switched", "model", model)
	return nil
}

// saveExchange persists the question/answer pair as one conversation memory.
// The raw model output is stored unmodified; an effectively empty answer is
// not worth remembering.
func (e *Engine) saveExchange(ctx context.Context, question, answer, userID string) {
	if strings.TrimSpace(answer) == "" {
		slog.Debug("skipping persistence of empty answer", "user_id", userID)
		return
	}

	content := fmt.Sprintf("Question: %s\nAnswer: %s", question, answer)
	if _, err := e.store.Save(ctx, content, memory.SourceConversation, userID); err != nil {
		slog.Error("persisting exchange", "error", err, "user_id", userID)
		return
	}
	metrics.MemoryEntriesSavedTotal.WithLabelValues(memory.SourceConversation).Inc()

	if e.events != nil {
		e.events.ExchangeSaved(ctx, userID, question, answer)
	}
}
