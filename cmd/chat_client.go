package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"medchat-cli/cmd/utils"

	"gopkg.in/yaml.v2"
)

// ChatSessionContext encapsulates connection state for one CLI session.
type ChatSessionContext struct {
	ServerURL  string
	SessionID  string
	HTTPClient HTTPClient
}

func newDefaultSessionContext() *ChatSessionContext {
	ctx := &ChatSessionContext{
		ServerURL:  serverURL,
		HTTPClient: getHTTPClient(),
	}
	if existing, err := readSessionContext(); err != nil {
		logDebug(fmt.Sprintf("Failed to read session context: %v", err))
	} else if existing != nil {
		ctx.SessionID = existing.SessionID
		logDebug(fmt.Sprintf("Using existing session ID: %s", existing.SessionID))
	}
	return ctx
}

type chatQuestion struct {
	Question string `json:"question"`
}

func buildStreamURL(ctx *ChatSessionContext) string {
	return strings.TrimSuffix(ctx.ServerURL, "/") + "/api/chat-stream"
}

func buildAskURL(ctx *ChatSessionContext) string {
	return strings.TrimSuffix(ctx.ServerURL, "/") + "/api/chat"
}

func buildHistoryURL(ctx *ChatSessionContext) string {
	return strings.TrimSuffix(ctx.ServerURL, "/") + "/api/history"
}

func buildClearURL(ctx *ChatSessionContext) string {
	return strings.TrimSuffix(ctx.ServerURL, "/") + "/api/clear"
}

func buildReactionURL(ctx *ChatSessionContext) string {
	return strings.TrimSuffix(ctx.ServerURL, "/") + "/api/reactions"
}

func buildFileChatURL(ctx *ChatSessionContext) string {
	return strings.TrimSuffix(ctx.ServerURL, "/") + "/api/chat-with-file"
}

// askAboutFile sends a question together with a document in one multipart
// request. The server extracts the document text and answers in the same
// envelope as the plain chat endpoint. File questions are not streamed.
func askAboutFile(sess *ChatSessionContext, path, question string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("question", question); err != nil {
		return "", err
	}
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequest(http.MethodPost, buildFileChatURL(sess), &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if sess.SessionID != "" {
		req.Header.Set("X-Session-ID", sess.SessionID)
	}
	logDebug(fmt.Sprintf("HTTP %s %s", req.Method, req.URL.String()))

	resp, err := sess.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return "", fmt.Errorf("failed to read response: %w", readErr)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("server returned error %d: %s", resp.StatusCode, prettyServerError(resp, body))
	}
	if id := resp.Header.Get("X-Session-ID"); id != "" && id != sess.SessionID {
		sess.SessionID = id
		if err := writeSessionContext(id); err != nil {
			logDebug(fmt.Sprintf("Failed to write session context: %v", err))
		}
	}

	var parsed fallbackResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if !parsed.Success {
		msg := parsed.Error
		if msg == "" {
			msg = "the server could not answer about this file"
		}
		return "", fmt.Errorf("%s", msg)
	}
	return parsed.Answer, nil
}

// openAnswerStream issues the streaming chat request and hands back the raw
// response body for the frame loop. A non-success status or unreadable body
// is a transport open failure.
func openAnswerStream(reqCtx context.Context, question string, sess *ChatSessionContext) (io.ReadCloser, error) {
	jsonData, err := json.Marshal(chatQuestion{Question: question})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, buildStreamURL(sess), bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if sess.SessionID != "" {
		req.Header.Set("X-Session-ID", sess.SessionID)
	}
	logDebug(fmt.Sprintf("HTTP %s %s", req.Method, req.URL.String()))
	logHeaders("request", req.Header)

	// No client timeout here: the stream stays open as long as the answer
	// takes. Stalls surface through the caller's context.
	hc := &http.Client{Timeout: 0, Transport: &http.Transport{DisableCompression: true, IdleConnTimeout: 0}}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("server returned error %d and body read failed: %v", resp.StatusCode, readErr)
		}
		return nil, fmt.Errorf("server returned error %d: %s", resp.StatusCode, prettyServerError(resp, body))
	}
	if resp.Body == nil {
		return nil, fmt.Errorf("server returned no readable body")
	}

	logDebug(fmt.Sprintf("  -> %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
	logHeaders("response", resp.Header)
	if id := resp.Header.Get("X-Session-ID"); id != "" && id != sess.SessionID {
		sess.SessionID = id
		if err := writeSessionContext(id); err != nil {
			logDebug(fmt.Sprintf("Failed to write session context: %v", err))
		}
	}

	return resp.Body, nil
}

// clearServerMemory asks the service to drop the conversation memory for the
// current session. Best effort.
func clearServerMemory(sess *ChatSessionContext) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, buildClearURL(sess), nil)
	if err != nil {
		return err
	}
	if sess.SessionID != "" {
		req.Header.Set("X-Session-ID", sess.SessionID)
	}
	resp, err := sess.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("clear failed with status %d", resp.StatusCode)
	}
	return nil
}

// SessionContext represents the structure of the persisted session file.
type SessionContext struct {
	SessionID string `yaml:"session_id"`
	Timestamp string `yaml:"timestamp"`
}

func sessionFilePath() (string, error) {
	dataDir, err := utils.GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "session.yaml"), nil
}

// readSessionContext reads the persisted session ID if one exists. A missing
// file or an empty session ID is not an error, just "no session".
func readSessionContext() (*SessionContext, error) {
	path, err := sessionFilePath()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	var sc SessionContext
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse session YAML: %w", err)
	}
	if sc.SessionID == "" {
		return nil, nil
	}
	return &sc, nil
}

// writeSessionContext persists the session ID so later invocations continue
// the same server-side conversation.
func writeSessionContext(sessionID string) error {
	if sessionID == "" {
		return nil
	}
	path, err := sessionFilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	yamlData, err := yaml.Marshal(map[string]interface{}{
		"session_id": sessionID,
		"timestamp":  time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal session data: %w", err)
	}
	if err := os.WriteFile(path, yamlData, 0o644); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

// deleteSessionContext forgets the persisted session ID.
func deleteSessionContext() {
	path, err := sessionFilePath()
	if err != nil {
		return
	}
	_ = os.Remove(path)
}
