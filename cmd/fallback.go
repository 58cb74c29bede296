package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// FailureClass buckets a final fallback failure for user-facing copy.
type FailureClass int

const (
	FailureTimeout FailureClass = iota
	FailureNetwork
	FailureServer
	FailureUnknown
)

func (c FailureClass) String() string {
	switch c {
	case FailureTimeout:
		return "timeout"
	case FailureNetwork:
		return "network"
	case FailureServer:
		return "server"
	}
	return "unknown"
}

// UserMessage returns the in-conversation copy for this failure class.
func (c FailureClass) UserMessage() string {
	switch c {
	case FailureTimeout:
		return "The server is taking too long to respond. Please try again in a moment."
	case FailureNetwork:
		return "Cannot reach the server. Check your connection and try again."
	case FailureServer:
		return "The server had a problem answering your question. Please try again."
	}
	return "Something went wrong while getting your answer. Please try again."
}

// FallbackError is the terminal error of an exhausted fallback request.
type FallbackError struct {
	Class FailureClass
	Err   error
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("fallback request failed (%s): %v", e.Class, e.Err)
}

func (e *FallbackError) Unwrap() error { return e.Err }

// serverError marks a non-success response from the fallback endpoint.
type serverError struct {
	status  int
	message string
}

func (e *serverError) Error() string {
	if e.message != "" {
		return fmt.Sprintf("server error %d: %s", e.status, e.message)
	}
	return fmt.Sprintf("server error %d", e.status)
}

// RetryPolicy is the immutable retry configuration for the fallback path.
type RetryPolicy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	AttemptTimeout time.Duration
}

// defaultRetryPolicy is the process-wide policy; it is never mutated at runtime.
var defaultRetryPolicy = RetryPolicy{
	MaxAttempts:    3,
	BaseDelay:      2 * time.Second,
	MaxDelay:       8 * time.Second,
	Multiplier:     2.0,
	AttemptTimeout: 30 * time.Second,
}

// FallbackClient issues the non-streaming chat request when streaming failed
// at the transport level. Only per-attempt timeouts are retried; any other
// failure is final immediately.
type FallbackClient struct {
	sess   *ChatSessionContext
	policy RetryPolicy

	// sleep and onConnectivity are injectable for tests. onConnectivity
	// feeds the shared connectivity indicator.
	sleep          func(time.Duration)
	onConnectivity func(connected bool)
}

func NewFallbackClient(sess *ChatSessionContext) *FallbackClient {
	return &FallbackClient{
		sess:           sess,
		policy:         defaultRetryPolicy,
		sleep:          time.Sleep,
		onConnectivity: func(bool) {},
	}
}

type fallbackResponse struct {
	Success bool   `json:"success"`
	Answer  string `json:"answer"`
	Error   string `json:"error"`
}

// Ask performs one logical fallback request under the retry policy and
// returns the complete answer text.
func (c *FallbackClient) Ask(ctx context.Context, question string) (string, error) {
	delay := c.policy.BaseDelay
	var lastErr error

	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		answer, err := c.askOnce(ctx, question)
		if err == nil {
			c.onConnectivity(true)
			return answer, nil
		}
		lastErr = err
		logDebug(fmt.Sprintf("fallback attempt %d/%d failed: %v", attempt, c.policy.MaxAttempts, err))

		if classifyFailure(err) != FailureTimeout || attempt == c.policy.MaxAttempts {
			break
		}
		c.sleep(delay)
		delay = time.Duration(float64(delay) * c.policy.Multiplier)
		if delay > c.policy.MaxDelay {
			delay = c.policy.MaxDelay
		}
	}

	c.onConnectivity(false)
	return "", &FallbackError{Class: classifyFailure(lastErr), Err: lastErr}
}

func (c *FallbackClient) askOnce(ctx context.Context, question string) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.policy.AttemptTimeout)
	defer cancel()

	jsonData, err := json.Marshal(chatQuestion{Question: question})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, buildAskURL(c.sess), bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.sess.SessionID != "" {
		req.Header.Set("X-Session-ID", c.sess.SessionID)
	}

	resp, err := c.sess.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &serverError{status: resp.StatusCode, message: prettyServerError(resp, body)}
	}

	var parsed fallbackResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if !parsed.Success {
		msg := parsed.Error
		if msg == "" {
			msg = "request was not successful"
		}
		return "", &serverError{status: resp.StatusCode, message: msg}
	}
	return parsed.Answer, nil
}

// classifyFailure inspects the failure signal and buckets it.
func classifyFailure(err error) FailureClass {
	if err == nil {
		return FailureUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return FailureTimeout
		}
		return FailureNetwork
	}
	var srvErr *serverError
	if errors.As(err, &srvErr) {
		return FailureServer
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return FailureNetwork
	}
	// http.Client wraps timeouts into url.Error with a textual hint.
	if strings.Contains(err.Error(), "Client.Timeout") || strings.Contains(err.Error(), "context deadline exceeded") {
		return FailureTimeout
	}
	if strings.Contains(err.Error(), "connection refused") || strings.Contains(err.Error(), "no such host") {
		return FailureNetwork
	}
	return FailureUnknown
}
