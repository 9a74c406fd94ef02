package llmstream

import (
	"context"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// TokenSource supplies and refreshes bearer credentials for providers whose
// tokens expire mid-session.
type TokenSource interface {
	// Token returns the current credential.
	Token(ctx context.Context) (string, error)

	// Refresh obtains a fresh credential after an authentication failure.
	Refresh(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource for plain, non-expiring API keys.
type StaticToken string

func (t StaticToken) Token(ctx context.Context) (string, error)   { return string(t), nil }
func (t StaticToken) Refresh(ctx context.Context) (string, error) { return string(t), nil }

// DoWithAuthRefresh performs an HTTP request with a bounded auth-retry
// protocol: on an authentication-shaped response (401/403) the credential is
// refreshed once and the request retried exactly once more. The second
// outcome, success or failure, is returned as-is; the retry is invisible to
// the caller except for latency. Context cancellation aborts immediately.
func DoWithAuthRefresh(
	ctx context.Context,
	client *http.Client,
	logger *zap.Logger,
	tokens TokenSource,
	build func(token string) (*http.Request, error),
) (*http.Response, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	token, err := tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := build(token)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if !isAuthStatus(resp.StatusCode) {
		return resp, nil
	}

	// Auth-shaped failure: refresh once, retry once.
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	logger.Debug("auth failure, refreshing credentials",
		zap.Int("status", resp.StatusCode),
	)

	token, err = tokens.Refresh(ctx)
	if err != nil {
		return nil, err
	}

	req, err = build(token)
	if err != nil {
		return nil, err
	}

	return client.Do(req)
}

func isAuthStatus(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}
