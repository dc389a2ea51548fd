package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"zagent/pkg/logger"
)

// retrySubstrings are the upstream error fragments that, when seen from a
// github-copilot Responses-stream attempt, mean "fall back to
// Chat-Completions once" rather than "surface the error" (§4.2 rule 2).
var retrySubstrings = []string{
	"forbidden",
	"Terms of Service",
	"not supported",
	"model_not_supported",
}

func shouldRetryOnChatCompletions(detail string) bool {
	for _, s := range retrySubstrings {
		if strings.Contains(detail, s) {
			return true
		}
	}
	return false
}

// copilotBearerCache caches the token-exchange result for a raw GitHub
// token so repeated turns in the same session don't re-exchange on every
// call; the exchanged token carries its own short expiry which this cache
// respects.
type copilotBearerCache struct {
	mu      sync.Mutex
	raw     string
	bearer  string
	expires time.Time
}

var copilotCache copilotBearerCache

// resolveCopilotBearer implements the github-copilot bearer-resolution
// heuristic: a JWT-shaped key (looks like a signed token already, not a
// raw PAT) is used as-is; anything else is exchanged via the provider's
// token-exchange endpoint, falling back to the raw key if the exchange
// fails so callers can still attempt the call and surface a clean
// provider error instead of failing before the request is even sent.
func resolveCopilotBearer(ctx context.Context, client *http.Client, tokenExchangeURL, rawKey string) string {
	if looksLikeJWT(rawKey) {
		return rawKey
	}

	copilotCache.mu.Lock()
	if copilotCache.raw == rawKey && time.Now().Before(copilotCache.expires) {
		bearer := copilotCache.bearer
		copilotCache.mu.Unlock()
		return bearer
	}
	copilotCache.mu.Unlock()

	bearer, expiresAt, err := exchangeCopilotToken(ctx, client, tokenExchangeURL, rawKey)
	if err != nil {
		logger.Warn("Provider", "copilot token exchange failed, using raw key", map[string]interface{}{
			"error": err.Error(),
		})
		return rawKey
	}

	copilotCache.mu.Lock()
	copilotCache.raw = rawKey
	copilotCache.bearer = bearer
	copilotCache.expires = expiresAt
	copilotCache.mu.Unlock()

	return bearer
}

// looksLikeJWT applies the heuristic from §4.2: two or three dot-separated
// base64url segments that parse as a JWT header, meaning the key is
// already a signed bearer token rather than a raw personal-access token.
func looksLikeJWT(key string) bool {
	if strings.Count(key, ".") < 2 {
		return false
	}
	parser := jwt.NewParser()
	_, _, err := parser.ParseUnverified(key, jwt.MapClaims{})
	return err == nil
}

type copilotTokenExchangeResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

func exchangeCopilotToken(ctx context.Context, client *http.Client, url, rawKey string) (string, time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("build token-exchange request: %w", err)
	}
	req.Header.Set("Authorization", "token "+rawKey)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token-exchange call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("read token-exchange body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, fmt.Errorf("token-exchange status %d: %s", resp.StatusCode, excerpt(string(body), 300))
	}

	var parsed copilotTokenExchangeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", time.Time{}, fmt.Errorf("parse token-exchange response: %w", err)
	}
	if parsed.Token == "" {
		return "", time.Time{}, fmt.Errorf("token-exchange response missing token")
	}

	expires := time.Now().Add(20 * time.Minute)
	if parsed.ExpiresAt > 0 {
		expires = time.Unix(parsed.ExpiresAt, 0)
	}
	return parsed.Token, expires, nil
}
