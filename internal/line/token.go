// Package line integrates the LINE Messaging API: webhook verification,
// reply delivery and the channel access token lifecycle.
package line

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

const (
	defaultTokenEndpoint = "https://api.line.me/oauth2/v2.1/token"
	tokenCacheKey        = "line:channel_token"

	// Cached tokens are dropped this long before they actually expire.
	tokenExpiryMargin = 300 * time.Second

	// Requested channel token lifetime, 30 days in seconds.
	channelTokenTTL = 2592000

	assertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"
)

// TokenSource issues channel access tokens via the v2.1 client-assertion flow
// and caches them in Redis until shortly before expiry.
type TokenSource struct {
	rdb        *redis.Client
	channelID  string
	keyID      string
	privateKey *rsa.PrivateKey

	endpoint   string
	httpClient *http.Client
}

// NewTokenSource loads the channel's RSA private key from privateKeyPath and
// builds a token source.
func NewTokenSource(rdb *redis.Client, channelID, keyID, privateKeyPath string) (*TokenSource, error) {
	pem, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading channel private key: %w", err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("parsing channel private key: %w", err)
	}

	return &TokenSource{
		rdb:        rdb,
		channelID:  channelID,
		keyID:      keyID,
		privateKey: key,
		endpoint:   defaultTokenEndpoint,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// Token returns a valid channel access token, from cache when possible.
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	cached, err := ts.rdb.Get(ctx, tokenCacheKey).Result()
	if err == nil && cached != "" {
		return cached, nil
	}
	if err != nil && err != redis.Nil {
		slog.Warn("reading cached channel token", "error", err)
	}

	token, ttl, err := ts.issue(ctx)
	if err != nil {
		return "", err
	}

	if ttl > tokenExpiryMargin {
		if err := ts.rdb.Set(ctx, tokenCacheKey, token, ttl-tokenExpiryMargin).Err(); err != nil {
			slog.Warn("caching channel token", "error", err)
		}
	}
	return token, nil
}

func (ts *TokenSource) issue(ctx context.Context) (string, time.Duration, error) {
	assertion, err := ts.clientAssertion()
	if err != nil {
		return "", 0, err
	}

	form := url.Values{
		"grant_type":            {"client_credentials"},
		"client_assertion_type": {assertionType},
		"client_assertion":      {assertion},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("requesting channel token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", 0, fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", 0, fmt.Errorf("decoding token response: %w", err)
	}
	if out.AccessToken == "" {
		return "", 0, fmt.Errorf("token endpoint returned an empty token")
	}

	slog.Info("issued new channel access token", "expires_in", out.ExpiresIn)
	return out.AccessToken, time.Duration(out.ExpiresIn) * time.Second, nil
}

// clientAssertion builds the signed JWT that authenticates the channel to the
// token endpoint.
func (ts *TokenSource) clientAssertion() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":       ts.channelID,
		"sub":       ts.channelID,
		"aud":       "https://api.line.me/",
		"exp":       now.Add(30 * time.Minute).Unix(),
		"token_exp": channelTokenTTL,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = ts.keyID
	token.Header["typ"] = "JWT"

	signed, err := token.SignedString(ts.privateKey)
	if err != nil {
		return "", fmt.Errorf("signing client assertion: %w", err)
	}
	return signed, nil
}
