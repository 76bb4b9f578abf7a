// Package events publishes domain events to NATS JetStream so downstream
// consumers can react to completed exchanges and ingested documents. The
// publisher is best-effort: a failed publish is logged, never surfaced.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	streamName = "RAGLINE_EVENTS"

	subjectExchangeSaved    = "ragline.events.exchange.saved"
	subjectDocumentIngested = "ragline.events.document.ingested"
)

// ExchangeSavedEvent is emitted after a question/answer pair is persisted.
type ExchangeSavedEvent struct {
	UserID    string    `json:"user_id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Timestamp time.Time `json:"timestamp"`
}

// DocumentIngestedEvent is emitted after a document is chunked and stored.
type DocumentIngestedEvent struct {
	UserID    string    `json:"user_id"`
	Filename  string    `json:"filename"`
	Chunks    int       `json:"chunks"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher writes events to JetStream.
type Publisher struct {
	nc *nats.Conn
	js nats.JetStreamContext
}

// NewPublisher connects to NATS and ensures the event stream exists.
func NewPublisher(url string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("ragline-api"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("getting jetstream context: %w", err)
	}

	if _, err := js.StreamInfo(streamName); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:      streamName,
			Subjects:  []string{"ragline.events.>"},
			Retention: nats.LimitsPolicy,
			MaxAge:    7 * 24 * time.Hour,
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("creating event stream: %w", err)
		}
	}

	slog.Info("event publisher connected", "stream", streamName)
	return &Publisher{nc: nc, js: js}, nil
}

// Close drains the connection.
func (p *Publisher) Close() {
	if err := p.nc.Drain(); err != nil {
		slog.Warn("draining nats connection", "error", err)
	}
}

// ExchangeSaved publishes a completed exchange.
func (p *Publisher) ExchangeSaved(ctx context.Context, userID, question, answer string) {
	p.publish(ctx, subjectExchangeSaved, ExchangeSavedEvent{
		UserID:    userID,
		Question:  question,
		Answer:    answer,
		Timestamp: time.Now(),
	})
}

// DocumentIngested publishes a completed document ingest.
func (p *Publisher) DocumentIngested(ctx context.Context, userID, filename string, chunks int) {
	p.publish(ctx, subjectDocumentIngested, DocumentIngestedEvent{
		UserID:    userID,
		Filename:  filename,
		Chunks:    chunks,
		Timestamp: time.Now(),
	})
}

func (p *Publisher) publish(ctx context.Context, subject string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("marshaling event", "subject", subject, "error", err)
		return
	}
	if _, err := p.js.Publish(subject, payload, nats.Context(ctx)); err != nil {
		slog.Warn("publishing event", "subject", subject, "error", err)
	}
}
