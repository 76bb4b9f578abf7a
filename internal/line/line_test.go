package line

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestKey(t *testing.T) (string, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	path := filepath.Join(t.TempDir(), "channel.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))
	return path, key
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestTokenSource_IssuesAndCaches(t *testing.T) {
	keyPath, key := writeTestKey(t)
	rdb := newTestRedis(t)

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		assert.Equal(t, assertionType, r.Form.Get("client_assertion_type"))

		assertion := r.Form.Get("client_assertion")
		parsed, err := jwt.Parse(assertion, func(token *jwt.Token) (any, error) {
			return &key.PublicKey, nil
		}, jwt.WithValidMethods([]string{"RS256"}), jwt.WithAudience("https://api.line.me/"))
		require.NoError(t, err)
		assert.Equal(t, "test-kid", parsed.Header["kid"])

		claims := parsed.Claims.(jwt.MapClaims)
		assert.Equal(t, "1234567890", claims["iss"])
		assert.Equal(t, float64(2592000), claims["token_exp"])

		fmt.Fprint(w, `{"access_token":"channel-token","expires_in":2592000,"token_type":"Bearer"}`)
	}))
	t.Cleanup(srv.Close)

	ts, err := NewTokenSource(rdb, "1234567890", "test-kid", keyPath)
	require.NoError(t, err)
	ts.endpoint = srv.URL

	token, err := ts.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "channel-token", token)
	assert.Equal(t, 1, calls)

	// Second call comes from the cache.
	token, err = ts.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "channel-token", token)
	assert.Equal(t, 1, calls)
}

func TestTokenSource_EndpointError(t *testing.T) {
	keyPath, _ := writeTestKey(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	ts, err := NewTokenSource(newTestRedis(t), "1234567890", "test-kid", keyPath)
	require.NoError(t, err)
	ts.endpoint = srv.URL

	_, err = ts.Token(context.Background())
	assert.Error(t, err)
}

type fakeAsker struct {
	answer string
	err    error

	question string
	userID   string
}

func (f *fakeAsker) Ask(_ context.Context, question, userID string) (string, error) {
	f.question = question
	f.userID = userID
	return f.answer, f.err
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func newTestWebhook(t *testing.T, asker Asker) (*WebhookHandler, *[]map[string]any) {
	t.Helper()
	keyPath, _ := writeTestKey(t)

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access_token":"channel-token","expires_in":2592000}`)
	}))
	t.Cleanup(tokenSrv.Close)

	var replies []map[string]any
	replySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer channel-token", r.Header.Get("Authorization"))
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		replies = append(replies, payload)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(replySrv.Close)

	ts, err := NewTokenSource(newTestRedis(t), "1234567890", "test-kid", keyPath)
	require.NoError(t, err)
	ts.endpoint = tokenSrv.URL

	h := NewWebhookHandler("channel-secret", ts, asker)
	h.replyEndpoint = replySrv.URL
	h.httpClient = &http.Client{Timeout: 5 * time.Second}
	return h, &replies
}

func webhookPayload(text string) []byte {
	body, _ := json.Marshal(map[string]any{
		"events": []map[string]any{
			{
				"type":       "message",
				"replyToken": "reply-123",
				"source":     map[string]string{"userId": "U123"},
				"message":    map[string]string{"type": "text", "text": text},
			},
		},
	})
	return body
}

func TestWebhook_AnswersTextMessage(t *testing.T) {
	asker := &fakeAsker{answer: "The answer is 42."}
	handler, replies := newTestWebhook(t, asker)

	body := webhookPayload("what is the answer")
	req := httptest.NewRequest(http.MethodPost, "/line/webhook", bytes.NewReader(body))
	req.Header.Set("X-Line-Signature", signBody("channel-secret", body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "what is the answer", asker.question)
	assert.Equal(t, "U123", asker.userID)

	require.Len(t, *replies, 1)
	reply := (*replies)[0]
	assert.Equal(t, "reply-123", reply["replyToken"])
	messages := reply["messages"].([]any)
	require.Len(t, messages, 1)
	assert.Equal(t, "The answer is 42.", messages[0].(map[string]any)["text"])
}

func TestWebhook_RejectsBadSignature(t *testing.T) {
	asker := &fakeAsker{answer: "never used"}
	handler, replies := newTestWebhook(t, asker)

	body := webhookPayload("hello")
	req := httptest.NewRequest(http.MethodPost, "/line/webhook", bytes.NewReader(body))
	req.Header.Set("X-Line-Signature", signBody("wrong-secret", body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, *replies)
	assert.Empty(t, asker.question)
}

func TestWebhook_FallbackReplyOnAskError(t *testing.T) {
	asker := &fakeAsker{err: fmt.Errorf("engine down")}
	handler, replies := newTestWebhook(t, asker)

	body := webhookPayload("hello")
	req := httptest.NewRequest(http.MethodPost, "/line/webhook", bytes.NewReader(body))
	req.Header.Set("X-Line-Signature", signBody("channel-secret", body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, *replies, 1)
	messages := (*replies)[0]["messages"].([]any)
	assert.Equal(t, fallbackReply, messages[0].(map[string]any)["text"])
}

func TestWebhook_IgnoresNonTextEvents(t *testing.T) {
	asker := &fakeAsker{answer: "never used"}
	handler, replies := newTestWebhook(t, asker)

	body, _ := json.Marshal(map[string]any{
		"events": []map[string]any{
			{"type": "follow", "source": map[string]string{"userId": "U123"}},
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/line/webhook", bytes.NewReader(body))
	req.Header.Set("X-Line-Signature", signBody("channel-secret", body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, *replies)
}
