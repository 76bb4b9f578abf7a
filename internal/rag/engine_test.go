package rag

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragline-platform/ragline/internal/memory"
)

type fakeStore struct {
	saved        []memory.Entry
	searchResult []memory.Entry
	searchErr    error
	saveErr      error
}

func (f *fakeStore) Save(_ context.Context, content, source, userID string) (*memory.Entry, error) {
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	e := memory.Entry{UserID: userID, Source: source, Content: content}
	f.saved = append(f.saved, e)
	return &e, nil
}

func (f *fakeStore) SaveAll(_ context.Context, contents []string, source, userID string) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	for _, c := range contents {
		f.saved = append(f.saved, memory.Entry{UserID: userID, Source: source, Content: c})
	}
	return nil
}

func (f *fakeStore) Search(_ context.Context, _, _ string, _ int) ([]memory.Entry, error) {
	return f.searchResult, f.searchErr
}

type fakeGateway struct {
	models    []string
	listErr   error
	reply     string
	genErr    error
	chunks    []string
	streamErr error
	probeErr  error

	prompts     []string
	probedModel string
}

func (f *fakeGateway) ListModels(_ context.Context) ([]string, error) {
	return f.models, f.listErr
}

func (f *fakeGateway) Generate(_ context.Context, _, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.genErr
}

func (f *fakeGateway) GenerateStream(_ context.Context, _, prompt string, fn func(string) error) error {
	f.prompts = append(f.prompts, prompt)
	for _, c := range f.chunks {
		if err := fn(c); err != nil {
			return err
		}
	}
	return f.streamErr
}

func (f *fakeGateway) Probe(_ context.Context, model string) error {
	f.probedModel = model
	return f.probeErr
}

func newTestEngine(store *fakeStore, gw *fakeGateway) (*Engine, *Session) {
	session := NewSession("llama3", []string{"llama3", "qwen3:30b"}, true)
	summarizer := NewSummarizer(gw, session)
	retriever := NewRetriever(store, session, summarizer, 3, 2000)
	return NewEngine(retriever, gw, session, store, nil), session
}

func TestAsk_StripsThinkBlocksButPersistsRaw(t *testing.T) {
	store := &fakeStore{searchResult: []memory.Entry{{Content: "earlier exchange"}}}
	gw := &fakeGateway{reply: "<think>working it out</think>The answer is 42."}
	engine, _ := newTestEngine(store, gw)

	answer, sources, err := engine.Ask(context.Background(), "what is the answer", "alice")
	require.NoError(t, err)

	assert.Equal(t, "The answer is 42.", answer)
	require.Len(t, sources, 1)

	require.Len(t, store.saved, 1)
	assert.Equal(t, "Question: what is the answer\nAnswer: <think>working it out</think>The answer is 42.", store.saved[0].Content)
	assert.Equal(t, memory.SourceConversation, store.saved[0].Source)
	assert.Equal(t, "alice", store.saved[0].UserID)
}

func TestAsk_GenerationFailureYieldsApologyWithoutPersisting(t *testing.T) {
	store := &fakeStore{}
	gw := &fakeGateway{genErr: fmt.Errorf("model crashed")}
	engine, _ := newTestEngine(store, gw)

	answer, _, err := engine.Ask(context.Background(), "hi", "alice")
	require.NoError(t, err)

	assert.Contains(t, answer, "Sorry, something went wrong")
	assert.Contains(t, answer, "model crashed")
	assert.Empty(t, store.saved)
}

func TestAsk_RetrievalFailureAborts(t *testing.T) {
	store := &fakeStore{searchErr: fmt.Errorf("db down")}
	gw := &fakeGateway{reply: "never reached"}
	engine, _ := newTestEngine(store, gw)

	_, _, err := engine.Ask(context.Background(), "hi", "alice")
	assert.Error(t, err)
	assert.Empty(t, gw.prompts)
}

func TestAsk_BlankAnswerIsNotPersisted(t *testing.T) {
	store := &fakeStore{}
	gw := &fakeGateway{reply: "   \n"}
	engine, _ := newTestEngine(store, gw)

	answer, _, err := engine.Ask(context.Background(), "hi", "alice")
	require.NoError(t, err)
	assert.Equal(t, "", answer)
	assert.Empty(t, store.saved)
}

func TestAskStream_BlankAnswerIsNotPersisted(t *testing.T) {
	store := &fakeStore{}
	gw := &fakeGateway{chunks: []string{"  ", "\n"}}
	engine, _ := newTestEngine(store, gw)

	events := collect(engine.AskStream(context.Background(), "hi", "alice"))
	assert.Equal(t, EventDone, events[len(events)-1].Type)
	assert.Empty(t, store.saved)
}

func collect(ch <-chan Event) []Event {
	var events []Event
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func TestAskStream_SourcesThenContentThenDone(t *testing.T) {
	store := &fakeStore{searchResult: []memory.Entry{{Content: "earlier exchange"}}}
	gw := &fakeGateway{chunks: []string{"The ", "answer ", "is 42."}}
	engine, _ := newTestEngine(store, gw)

	events := collect(engine.AskStream(context.Background(), "what is the answer", "alice"))
	require.Len(t, events, 5)

	assert.Equal(t, EventSources, events[0].Type)
	require.Len(t, events[0].Sources, 1)
	assert.Equal(t, "earlier exchange", events[0].Sources[0].PageContent)

	var full strings.Builder
	for _, ev := range events[1:4] {
		assert.Equal(t, EventContent, ev.Type)
		full.WriteString(ev.Content)
	}
	assert.Equal(t, "The answer is 42.", full.String())
	assert.Equal(t, EventDone, events[4].Type)

	require.Len(t, store.saved, 1)
	assert.Equal(t, "Question: what is the answer\nAnswer: The answer is 42.", store.saved[0].Content)
}

func TestAskStream_MidStreamFailureDiscardsPartialAnswer(t *testing.T) {
	store := &fakeStore{}
	gw := &fakeGateway{chunks: []string{"partial "}, streamErr: fmt.Errorf("connection reset")}
	engine, _ := newTestEngine(store, gw)

	events := collect(engine.AskStream(context.Background(), "hi", "alice"))

	last := events[len(events)-1]
	assert.Equal(t, EventDone, last.Type)
	errEvent := events[len(events)-2]
	assert.Equal(t, EventError, errEvent.Type)
	assert.ErrorContains(t, errEvent.Err, "connection reset")

	assert.Empty(t, store.saved, "partial answers must not be persisted")
}

func TestAskStream_NoSourcesEventWhenNothingRetrieved(t *testing.T) {
	store := &fakeStore{}
	gw := &fakeGateway{chunks: []string{"answer"}}
	engine, _ := newTestEngine(store, gw)

	events := collect(engine.AskStream(context.Background(), "hi", "alice"))
	require.Len(t, events, 2)
	assert.Equal(t, EventContent, events[0].Type)
	assert.Equal(t, EventDone, events[1].Type)
}

func TestAskStream_RetrievalFailureEmitsErrorBeforeDone(t *testing.T) {
	store := &fakeStore{searchErr: fmt.Errorf("db down")}
	engine, _ := newTestEngine(store, &fakeGateway{})

	events := collect(engine.AskStream(context.Background(), "hi", "alice"))
	require.Len(t, events, 2)
	assert.Equal(t, EventError, events[0].Type)
	assert.Equal(t, EventDone, events[1].Type)
}

func TestAskStream_CanceledConsumerStopsProducer(t *testing.T) {
	store := &fakeStore{}
	gw := &fakeGateway{chunks: []string{"a", "b", "c"}}
	engine, _ := newTestEngine(store, gw)

	ctx, cancel := context.WithCancel(context.Background())
	ch := engine.AskStream(ctx, "hi", "alice")

	// Take the first event, then walk away.
	<-ch
	cancel()

	for range ch {
	}
	assert.Empty(t, store.saved)
}

func TestSwitchModel(t *testing.T) {
	t.Run("commits a served model that passes the probe", func(t *testing.T) {
		gw := &fakeGateway{models: []string{"llama3", "qwen3:30b"}}
		engine, session := newTestEngine(&fakeStore{}, gw)

		require.NoError(t, engine.SwitchModel(context.Background(), "qwen3:30b"))
		assert.Equal(t, "qwen3:30b", session.CurrentModel())
		assert.Equal(t, "qwen3:30b", gw.probedModel)
	})

	t.Run("rejects a model the gateway does not serve", func(t *testing.T) {
		gw := &fakeGateway{models: []string{"llama3"}}
		engine, session := newTestEngine(&fakeStore{}, gw)

		err := engine.SwitchModel(context.Background(), "mystery")
		assert.ErrorIs(t, err, ErrUnknownModel)
		assert.Equal(t, "llama3", session.CurrentModel())
	})

	t.Run("rejects a model that fails the probe", func(t *testing.T) {
		gw := &fakeGateway{models: []string{"llama3", "broken"}, probeErr: fmt.Errorf("out of memory")}
		engine, session := newTestEngine(&fakeStore{}, gw)

		err := engine.SwitchModel(context.Background(), "broken")
		assert.ErrorIs(t, err, ErrModelUnavailable)
		assert.Equal(t, "llama3", session.CurrentModel())
	})

	t.Run("refreshes the served list on a miss", func(t *testing.T) {
		gw := &fakeGateway{models: []string{"llama3", "freshly-pulled"}}
		engine, session := newTestEngine(&fakeStore{}, gw)
		session.SetAvailable([]string{"llama3"})

		require.NoError(t, engine.SwitchModel(context.Background(), "freshly-pulled"))
		assert.Equal(t, "freshly-pulled", session.CurrentModel())
	})
}

func TestNewSession_FallsBackWhenDefaultNotServed(t *testing.T) {
	session := NewSession("missing", []string{"llama3", "qwen3:30b"}, true)
	assert.Equal(t, "llama3", session.CurrentModel())

	session = NewSession("missing", nil, true)
	assert.Equal(t, "missing", session.CurrentModel())
}
