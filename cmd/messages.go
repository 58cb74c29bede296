package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"medchat-cli/internal/store"

	"github.com/google/uuid"
)

// MessageState is the lifecycle state of a chat entry.
type MessageState int

const (
	MessagePending MessageState = iota
	MessageStreaming
	MessageComplete
	MessageErrored
)

// ChatEntry is one message in the visible conversation. Display text is
// mutable while streaming and frozen once the entry completes or errors.
type ChatEntry struct {
	ID        string
	Role      string // "user", "assistant", or "client" for local notices
	Content   string
	State     MessageState
	CreatedAt time.Time
}

// ErrNoOrigin is returned by Retry when no original input is recorded for
// the message.
var ErrNoOrigin = errors.New("no original input recorded for this message")

// Conversation owns the visible message list and the original-input index
// that backs retry. Completed and errored entries never transition again; a
// retry removes the old entry and produces a brand-new identity.
type Conversation struct {
	entries []ChatEntry
	origins map[string]string
}

func NewConversation() *Conversation {
	return &Conversation{origins: make(map[string]string)}
}

// Entries returns the visible messages in order.
func (c *Conversation) Entries() []ChatEntry { return c.entries }

// AddUser appends a user message and records its input for retry.
func (c *Conversation) AddUser(text string) ChatEntry {
	entry := ChatEntry{
		ID:        uuid.New().String(),
		Role:      "user",
		Content:   text,
		State:     MessageComplete,
		CreatedAt: time.Now(),
	}
	c.entries = append(c.entries, entry)
	c.origins[entry.ID] = text
	return entry
}

// AddNotice appends a local client-side notice (help text, status lines).
func (c *Conversation) AddNotice(text string) ChatEntry {
	entry := ChatEntry{
		ID:        uuid.New().String(),
		Role:      "client",
		Content:   text,
		State:     MessageComplete,
		CreatedAt: time.Now(),
	}
	c.entries = append(c.entries, entry)
	return entry
}

// BeginAssistant appends a pending assistant entry for an in-flight answer.
func (c *Conversation) BeginAssistant() ChatEntry {
	entry := ChatEntry{
		ID:        uuid.New().String(),
		Role:      "assistant",
		State:     MessagePending,
		CreatedAt: time.Now(),
	}
	c.entries = append(c.entries, entry)
	return entry
}

// UpdateStreaming replaces the display text of an in-flight entry. No-op for
// entries already finalized.
func (c *Conversation) UpdateStreaming(id, text string) {
	for i := range c.entries {
		if c.entries[i].ID != id {
			continue
		}
		if c.entries[i].State == MessageComplete || c.entries[i].State == MessageErrored {
			return
		}
		c.entries[i].State = MessageStreaming
		c.entries[i].Content = text
		return
	}
}

// Complete finalizes an entry with its rendered text. No-op if already final.
func (c *Conversation) Complete(id, text string) {
	for i := range c.entries {
		if c.entries[i].ID != id {
			continue
		}
		if c.entries[i].State == MessageComplete || c.entries[i].State == MessageErrored {
			return
		}
		c.entries[i].State = MessageComplete
		c.entries[i].Content = text
		return
	}
}

// Fail marks an entry errored with the given message and records the
// originating input so the entry can be retried.
func (c *Conversation) Fail(id, message, originInput string) {
	for i := range c.entries {
		if c.entries[i].ID != id {
			continue
		}
		if c.entries[i].State == MessageComplete || c.entries[i].State == MessageErrored {
			return
		}
		c.entries[i].State = MessageErrored
		c.entries[i].Content = message
		if originInput != "" {
			c.origins[id] = originInput
		}
		return
	}
}

// Remove deletes an entry from the visible list.
func (c *Conversation) Remove(id string) {
	for i := range c.entries {
		if c.entries[i].ID == id {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return
		}
	}
}

// LastAssistant returns the most recent assistant entry, if any.
func (c *Conversation) LastAssistant() (ChatEntry, bool) {
	for i := len(c.entries) - 1; i >= 0; i-- {
		if c.entries[i].Role == "assistant" {
			return c.entries[i], true
		}
	}
	return ChatEntry{}, false
}

// LastErrored returns the most recent errored entry, if any.
func (c *Conversation) LastErrored() (ChatEntry, bool) {
	for i := len(c.entries) - 1; i >= 0; i-- {
		if c.entries[i].State == MessageErrored {
			return c.entries[i], true
		}
	}
	return ChatEntry{}, false
}

// OriginFor looks up the original user input behind a message identity.
func (c *Conversation) OriginFor(id string) (string, bool) {
	origin, ok := c.origins[id]
	return origin, ok
}

// Retry removes the errored message from the visible list and returns its
// original input for resubmission. The resubmission runs the full pipeline
// and produces a fresh message identity; the old one is gone, not resurrected.
func (c *Conversation) Retry(id string) (string, error) {
	origin, ok := c.origins[id]
	if !ok || origin == "" {
		return "", ErrNoOrigin
	}
	c.Remove(id)
	return origin, nil
}

// Clear drops all entries and the origin index.
func (c *Conversation) Clear() {
	c.entries = nil
	c.origins = make(map[string]string)
}

// truncateExcerpt caps the excerpt at max bytes without splitting a UTF-8
// sequence, so the payload always carries valid text.
func truncateExcerpt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// reactionPayload is what the analytics sink accepts.
type reactionPayload struct {
	MessageID string `json:"message_id"`
	Reaction  string `json:"reaction"` // "like", "dislike", or "" to clear
	Excerpt   string `json:"excerpt,omitempty"`
}

// postReaction forwards a reaction to the analytics sink. Strictly best
// effort: failures are logged and never affect local reaction state.
func postReaction(sess *ChatSessionContext, messageID string, r store.Reaction, excerpt string) {
	excerpt = truncateExcerpt(excerpt, 200)
	jsonData, err := json.Marshal(reactionPayload{MessageID: messageID, Reaction: string(r), Excerpt: excerpt})
	if err != nil {
		logDebug(fmt.Sprintf("reaction sink: marshal failed: %v", err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, buildReactionURL(sess), bytes.NewReader(jsonData))
	if err != nil {
		logDebug(fmt.Sprintf("reaction sink: request failed: %v", err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := sess.HTTPClient.Do(req)
	if err != nil {
		logDebug(fmt.Sprintf("reaction sink: send failed: %v", err))
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		logDebug(fmt.Sprintf("reaction sink: status %d", resp.StatusCode))
	}
}
