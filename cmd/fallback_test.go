package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeHTTPClient struct {
	do func(req *http.Request) (*http.Response, error)
}

func (f *fakeHTTPClient) Do(req *http.Request) (*http.Response, error) { return f.do(req) }

func newTestFallbackClient(sess *ChatSessionContext, policy RetryPolicy) (*FallbackClient, *[]time.Duration) {
	c := NewFallbackClient(sess)
	c.policy = policy
	var sleeps []time.Duration
	c.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	return c, &sleeps
}

func TestFallbackAskSuccess(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("X-Session-ID"); got != "sess-1" {
			t.Errorf("expected session header, got %q", got)
		}
		w.Write([]byte(`{"success": true, "answer": "Rest and hydrate."}`))
	}))
	defer ts.Close()

	sess := &ChatSessionContext{ServerURL: ts.URL, SessionID: "sess-1", HTTPClient: &DefaultHTTPClient{}}
	c, sleeps := newTestFallbackClient(sess, defaultRetryPolicy)

	answer, err := c.Ask(context.Background(), "what should I do for a cold?")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if answer != "Rest and hydrate." {
		t.Fatalf("unexpected answer %q", answer)
	}
	if len(*sleeps) != 0 {
		t.Fatalf("successful first attempt should not sleep, got %v", *sleeps)
	}
}

func TestFallbackRetriesOnlyTimeouts(t *testing.T) {
	attempts := 0
	sess := &ChatSessionContext{
		ServerURL: "http://localhost:0",
		HTTPClient: &fakeHTTPClient{do: func(req *http.Request) (*http.Response, error) {
			attempts++
			return nil, context.DeadlineExceeded
		}},
	}
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: 2 * time.Second, MaxDelay: 8 * time.Second, Multiplier: 2.0, AttemptTimeout: time.Second}
	c, sleeps := newTestFallbackClient(sess, policy)

	var connected *bool
	c.onConnectivity = func(ok bool) { connected = &ok }

	_, err := c.Ask(context.Background(), "q")
	if err == nil {
		t.Fatalf("expected failure after exhausting retries")
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(*sleeps) != len(want) {
		t.Fatalf("expected sleeps %v, got %v", want, *sleeps)
	}
	for i, d := range want {
		if (*sleeps)[i] != d {
			t.Fatalf("expected sleeps %v, got %v", want, *sleeps)
		}
	}

	var fbErr *FallbackError
	if !errors.As(err, &fbErr) || fbErr.Class != FailureTimeout {
		t.Fatalf("expected timeout classification, got %v", err)
	}
	if connected == nil || *connected {
		t.Fatalf("expected connectivity reported down")
	}
}

func TestFallbackDelayIsCapped(t *testing.T) {
	sess := &ChatSessionContext{
		ServerURL: "http://localhost:0",
		HTTPClient: &fakeHTTPClient{do: func(req *http.Request) (*http.Response, error) {
			return nil, context.DeadlineExceeded
		}},
	}
	policy := RetryPolicy{MaxAttempts: 4, BaseDelay: 2 * time.Second, MaxDelay: 3 * time.Second, Multiplier: 2.0, AttemptTimeout: time.Second}
	c, sleeps := newTestFallbackClient(sess, policy)

	c.Ask(context.Background(), "q")

	want := []time.Duration{2 * time.Second, 3 * time.Second, 3 * time.Second}
	if len(*sleeps) != len(want) {
		t.Fatalf("expected sleeps %v, got %v", want, *sleeps)
	}
	for i, d := range want {
		if (*sleeps)[i] != d {
			t.Fatalf("expected sleeps %v, got %v", want, *sleeps)
		}
	}
}

func TestFallbackServerErrorFailsFast(t *testing.T) {
	attempts := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"success": false, "error": "model exploded"}`))
	}))
	defer ts.Close()

	sess := &ChatSessionContext{ServerURL: ts.URL, HTTPClient: &DefaultHTTPClient{}}
	c, sleeps := newTestFallbackClient(sess, defaultRetryPolicy)

	_, err := c.Ask(context.Background(), "q")
	if err == nil {
		t.Fatalf("expected failure")
	}
	if attempts != 1 {
		t.Fatalf("server errors must not be retried, got %d attempts", attempts)
	}
	if len(*sleeps) != 0 {
		t.Fatalf("expected no sleeps, got %v", *sleeps)
	}
	var fbErr *FallbackError
	if !errors.As(err, &fbErr) || fbErr.Class != FailureServer {
		t.Fatalf("expected server classification, got %v", err)
	}
}

func TestFallbackUnsuccessfulResponseIsServerFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false, "error": "no question provided"}`))
	}))
	defer ts.Close()

	sess := &ChatSessionContext{ServerURL: ts.URL, HTTPClient: &DefaultHTTPClient{}}
	c, _ := newTestFallbackClient(sess, defaultRetryPolicy)

	_, err := c.Ask(context.Background(), "q")
	var fbErr *FallbackError
	if !errors.As(err, &fbErr) || fbErr.Class != FailureServer {
		t.Fatalf("expected server classification, got %v", err)
	}
}

func TestClassifyFailure(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want FailureClass
	}{
		{"nil", nil, FailureUnknown},
		{"deadline", context.DeadlineExceeded, FailureTimeout},
		{"net timeout", &net.DNSError{IsTimeout: true}, FailureTimeout},
		{"net op error", &net.OpError{Op: "dial", Err: errors.New("refused")}, FailureNetwork},
		{"server", &serverError{status: 500, message: "boom"}, FailureServer},
		{"client timeout text", errors.New("Post: (Client.Timeout exceeded while awaiting headers)"), FailureTimeout},
		{"refused text", errors.New("dial tcp: connection refused"), FailureNetwork},
		{"other", errors.New("mystery"), FailureUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classifyFailure(tc.err); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestFailureClassUserMessages(t *testing.T) {
	for _, class := range []FailureClass{FailureTimeout, FailureNetwork, FailureServer, FailureUnknown} {
		if class.UserMessage() == "" {
			t.Fatalf("class %v has no user message", class)
		}
	}
}
