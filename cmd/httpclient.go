package cmd

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"
)

// HTTPClient interface for testing
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DefaultHTTPClient is the default HTTP client
type DefaultHTTPClient struct{ Timeout time.Duration }

// Do implements the HTTPClient interface
func (c *DefaultHTTPClient) Do(req *http.Request) (*http.Response, error) {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	return client.Do(req)
}

var httpClient HTTPClient = &DefaultHTTPClient{}

// VerboseHTTPClient wraps another HTTPClient and logs request/response basics and headers.
type VerboseHTTPClient struct{ Inner HTTPClient }

func (v *VerboseHTTPClient) Do(req *http.Request) (*http.Response, error) {
	inner := v.Inner
	if inner == nil {
		inner = &DefaultHTTPClient{}
	}
	logDebug("HTTP " + req.Method + " " + req.URL.String())
	logHeaders("request", req.Header)
	resp, err := inner.Do(req)
	if err != nil {
		logDebug("  -> error: " + err.Error())
		return nil, err
	}
	logDebug("  -> " + resp.Status)
	logHeaders("response", resp.Header)
	return resp, nil
}

func getHTTPClient() HTTPClient {
	return &VerboseHTTPClient{Inner: httpClient}
}

func logHeaders(kind string, hdr http.Header) {
	if len(hdr) == 0 {
		return
	}
	sensitiveHeaders := map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"x-session-id":  {},
		"set-cookie":    {},
	}
	keys := make([]string, 0, len(hdr))
	for k := range hdr {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		vals := hdr.Values(k)
		_, isSensitive := sensitiveHeaders[strings.ToLower(k)]
		for _, v := range vals {
			if isSensitive {
				logDebug("  " + kind + " header: " + k + ": [REDACTED]")
			} else {
				logDebug("  " + kind + " header: " + k + ": " + v)
			}
		}
	}
}

// prettyServerError extracts a readable message from a server error response body.
// The chatbot service answers errors as {"success": false, "error": "..."}, but
// we also accept the common {"message":...} and {"detail":...} envelopes.
func prettyServerError(resp *http.Response, body []byte) string {
	var env struct {
		Success *bool  `json:"success"`
		Error   string `json:"error"`
		Message string `json:"message"`
		Detail  any    `json:"detail"`
	}
	if json.Unmarshal(body, &env) == nil {
		if env.Error != "" {
			return env.Error
		}
		if env.Message != "" {
			return env.Message
		}
		if s, ok := env.Detail.(string); ok && s != "" {
			return s
		}
	}
	s := strings.TrimSpace(string(body))
	if s == "" {
		return http.StatusText(resp.StatusCode)
	}
	return s
}
