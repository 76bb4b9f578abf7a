package line

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultReplyEndpoint = "https://api.line.me/v2/bot/message/reply"

// fallbackReply is sent when answering fails entirely.
const fallbackReply = "Sorry, something went wrong while handling your request."

// Asker answers a question on behalf of a messaging user.
type Asker interface {
	Ask(ctx context.Context, question, userID string) (string, error)
}

// WebhookHandler verifies and dispatches LINE webhook events: each text
// message is answered through the Asker and the reply is pushed back over the
// Messaging API.
type WebhookHandler struct {
	channelSecret []byte
	tokens        *TokenSource
	asker         Asker

	replyEndpoint string
	httpClient    *http.Client
}

// NewWebhookHandler creates the webhook handler.
func NewWebhookHandler(channelSecret string, tokens *TokenSource, asker Asker) *WebhookHandler {
	return &WebhookHandler{
		channelSecret: []byte(channelSecret),
		tokens:        tokens,
		asker:         asker,
		replyEndpoint: defaultReplyEndpoint,
		httpClient:    &http.Client{Timeout: 60 * time.Second},
	}
}

type webhookBody struct {
	Events []webhookEvent `json:"events"`
}

type webhookEvent struct {
	Type       string `json:"type"`
	ReplyToken string `json:"replyToken"`
	Source     struct {
		UserID string `json:"userId"`
	} `json:"source"`
	Message struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"message"`
}

// ServeHTTP handles POST /line/webhook. The signature check runs over the raw
// body before any parsing; an invalid signature is a hard reject.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "reading body", http.StatusBadRequest)
		return
	}

	if !h.verifySignature(body, r.Header.Get("X-Line-Signature")) {
		slog.Warn("rejecting webhook with bad signature")
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	var payload webhookBody
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	for _, ev := range payload.Events {
		if ev.Type != "message" || ev.Message.Type != "text" {
			continue
		}
		h.handleMessage(r.Context(), ev)
	}

	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) verifySignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, h.channelSecret)
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (h *WebhookHandler) handleMessage(ctx context.Context, ev webhookEvent) {
	answer, err := h.asker.Ask(ctx, ev.Message.Text, ev.Source.UserID)
	if err != nil {
		slog.Error("answering webhook message", "error", err, "user_id", ev.Source.UserID)
		answer = fallbackReply
	}

	if err := h.reply(ctx, ev.ReplyToken, answer); err != nil {
		slog.Error("sending reply", "error", err, "user_id", ev.Source.UserID)
	}
}

func (h *WebhookHandler) reply(ctx context.Context, replyToken, text string) error {
	token, err := h.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("getting channel token: %w", err)
	}

	payload, err := json.Marshal(map[string]any{
		"replyToken": replyToken,
		"messages": []map[string]string{
			{"type": "text", "text": text},
		},
	})
	if err != nil {
		return fmt.Errorf("marshaling reply: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.replyEndpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating reply request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting reply: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("reply endpoint returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
