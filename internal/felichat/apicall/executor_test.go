package apicall

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/felichat/felichat/common/retry"
)

func fastRetry(attempts int) retry.Config {
	return retry.Config{
		MaxAttempts: attempts,
		Cooldown:    time.Millisecond,
		Backoff:     1.5,
		MaxDelay:    2 * time.Millisecond,
	}
}

func TestPostJSON_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected application/json, got %q", ct)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected Authorization: %q", auth)
		}

		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["hello"] != "world" {
			t.Errorf("payload not forwarded: %v", req)
		}

		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(Config{Retry: fastRetry(3)})
	env := c.PostJSON(context.Background(), srv.URL,
		map[string]string{"Authorization": "Bearer test-key"},
		map[string]string{"hello": "world"},
	)

	if !env.OK() {
		t.Fatalf("expected success, got status %v: %s", env.Status, env.Message)
	}
	if string(env.Body) != `{"ok":true}` {
		t.Errorf("unexpected body: %s", env.Body)
	}
}

func TestPostJSON_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "upstream busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(Config{Retry: fastRetry(3)})
	env := c.PostJSON(context.Background(), srv.URL, nil, map[string]string{})

	if !env.OK() {
		t.Fatalf("expected success after retries, got %v: %s", env.Status, env.Message)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestPostJSON_ExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "kaboom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{Retry: fastRetry(3)})
	env := c.PostJSON(context.Background(), srv.URL, nil, map[string]string{})

	if env.OK() {
		t.Fatal("expected failure")
	}
	if env.Status != StatusTransport {
		t.Errorf("expected StatusTransport, got %v", env.Status)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", got)
	}
	if !strings.Contains(env.Message, "500") {
		t.Errorf("message should carry the last observed status: %q", env.Message)
	}
	if !strings.Contains(env.Message, "3 attempts") {
		t.Errorf("message should mention the attempt count: %q", env.Message)
	}
}

func TestPostJSON_RetriesGarbled2xxBody(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Write([]byte(`not json at all`))
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(Config{Retry: fastRetry(3)})
	env := c.PostJSON(context.Background(), srv.URL, nil, map[string]string{})

	if !env.OK() {
		t.Fatalf("expected success once the body recovers, got %v: %s", env.Status, env.Message)
	}
	if string(env.Body) != `{"ok":true}` {
		t.Errorf("retries never saw the healthy response: %s", env.Body)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("expected 2 attempts, got %d", got)
	}
}

func TestPostJSON_PersistentGarbled2xxBodyExhausts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`<html>definitely not json</html>`))
	}))
	defer srv.Close()

	c := New(Config{Retry: fastRetry(3)})
	env := c.PostJSON(context.Background(), srv.URL, nil, map[string]string{})

	if env.Status != StatusTransport {
		t.Fatalf("expected StatusTransport, got %v", env.Status)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
	if !strings.Contains(env.Message, "not valid JSON") {
		t.Errorf("message should carry the decode failure: %q", env.Message)
	}
}

func TestPostJSON_NoFurtherAttemptsAfterSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(Config{Retry: fastRetry(5)})
	env := c.PostJSON(context.Background(), srv.URL, nil, map[string]string{})
	if !env.OK() {
		t.Fatalf("expected success: %s", env.Message)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 attempt, got %d", got)
	}
}

func TestPostJSON_RedactsHeaderValues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Echo the credential back in the error body, as a hostile or
		// misconfigured upstream might.
		http.Error(w, "bad key: "+r.Header.Get("Authorization"), http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(Config{Retry: fastRetry(2)})
	env := c.PostJSON(context.Background(), srv.URL,
		map[string]string{"Authorization": "Bearer super-secret-key"},
		map[string]string{},
	)

	if env.OK() {
		t.Fatal("expected failure")
	}
	if strings.Contains(env.Message, "super-secret-key") {
		t.Errorf("credential leaked into envelope message: %q", env.Message)
	}
}

func TestPostJSON_ContextCancelled(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(Config{Retry: retry.Config{MaxAttempts: 3, Cooldown: 10 * time.Second, Backoff: 1.5, MaxDelay: 10 * time.Second}})
	start := time.Now()
	env := c.PostJSON(ctx, srv.URL, nil, map[string]string{})

	if env.OK() {
		t.Fatal("expected failure on cancelled context")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cancelled call should return promptly, took %v", elapsed)
	}
}

func TestStatusString(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusOK, "ok"},
		{StatusTransport, "transport_failure"},
		{StatusMalformed, "malformed_response"},
		{StatusBudget, "budget_infeasible"},
		{Status(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}
