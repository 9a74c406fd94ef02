package llmstream

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// countingTokens is a TokenSource that counts refreshes and switches to a
// second credential after the first refresh.
type countingTokens struct {
	refreshes int32
}

func (c *countingTokens) Token(ctx context.Context) (string, error) {
	if atomic.LoadInt32(&c.refreshes) > 0 {
		return "fresh-token", nil
	}
	return "stale-token", nil
}

func (c *countingTokens) Refresh(ctx context.Context) (string, error) {
	atomic.AddInt32(&c.refreshes, 1)
	return "fresh-token", nil
}

func buildFor(url string) func(token string) (*http.Request, error) {
	return func(token string) (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return req, nil
	}
}

func TestDoWithAuthRefreshHappyPath(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "ok")
	}))
	defer server.Close()

	tokens := &countingTokens{}
	resp, err := DoWithAuthRefresh(context.Background(), server.Client(), nil, tokens, buildFor(server.URL))
	if err != nil {
		t.Fatalf("DoWithAuthRefresh: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("server calls = %d, want 1", n)
	}
	if n := atomic.LoadInt32(&tokens.refreshes); n != 0 {
		t.Errorf("refreshes = %d, want 0", n)
	}
}

func TestDoWithAuthRefreshRetriesOnceOn401(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer fresh-token" {
			w.WriteHeader(http.StatusOK)
			io.WriteString(w, "ok")
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	tokens := &countingTokens{}
	resp, err := DoWithAuthRefresh(context.Background(), server.Client(), nil, tokens, buildFor(server.URL))
	if err != nil {
		t.Fatalf("DoWithAuthRefresh: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200 after refresh", resp.StatusCode)
	}
	if n := atomic.LoadInt32(&tokens.refreshes); n != 1 {
		t.Errorf("refreshes = %d, want 1", n)
	}
}

func TestDoWithAuthRefreshNoSecondRetry(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	tokens := &countingTokens{}
	resp, err := DoWithAuthRefresh(context.Background(), server.Client(), nil, tokens, buildFor(server.URL))
	if err != nil {
		t.Fatalf("DoWithAuthRefresh: %v", err)
	}
	defer resp.Body.Close()

	// The second 401 is returned as-is; no retry loop.
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("server calls = %d, want exactly 2", n)
	}
	if n := atomic.LoadInt32(&tokens.refreshes); n != 1 {
		t.Errorf("refreshes = %d, want 1", n)
	}
}

func TestDoWithAuthRefreshOn403(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tokens := &countingTokens{}
	resp, err := DoWithAuthRefresh(context.Background(), server.Client(), nil, tokens, buildFor(server.URL))
	if err != nil {
		t.Fatalf("DoWithAuthRefresh: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestDoWithAuthRefreshNonAuthErrorNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	tokens := &countingTokens{}
	resp, err := DoWithAuthRefresh(context.Background(), server.Client(), nil, tokens, buildFor(server.URL))
	if err != nil {
		t.Fatalf("DoWithAuthRefresh: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("server calls = %d, want 1 (429 is not auth-shaped)", n)
	}
	if n := atomic.LoadInt32(&tokens.refreshes); n != 0 {
		t.Errorf("refreshes = %d, want 0", n)
	}
}

func TestStaticToken(t *testing.T) {
	tok := StaticToken("sk-123")
	got, err := tok.Token(context.Background())
	if err != nil || got != "sk-123" {
		t.Errorf("Token = %q, %v", got, err)
	}
	got, err = tok.Refresh(context.Background())
	if err != nil || got != "sk-123" {
		t.Errorf("Refresh = %q, %v", got, err)
	}
}
