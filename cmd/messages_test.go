package cmd

import (
	"errors"
	"testing"
	"unicode/utf8"
)

func TestConversationStreamingLifecycle(t *testing.T) {
	c := NewConversation()
	c.AddUser("what is hypertension?")
	entry := c.BeginAssistant()

	c.UpdateStreaming(entry.ID, "High blood")
	c.UpdateStreaming(entry.ID, "High blood pressure.")
	c.Complete(entry.ID, "High blood pressure.")

	entries := c.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	got := entries[1]
	if got.State != MessageComplete || got.Content != "High blood pressure." {
		t.Fatalf("unexpected final entry %+v", got)
	}
}

func TestConversationFinalizedEntriesAreImmutable(t *testing.T) {
	c := NewConversation()
	entry := c.BeginAssistant()
	c.Complete(entry.ID, "final")

	c.UpdateStreaming(entry.ID, "late chunk")
	c.Fail(entry.ID, "late failure", "")
	c.Complete(entry.ID, "second completion")

	got := c.Entries()[0]
	if got.State != MessageComplete || got.Content != "final" {
		t.Fatalf("finalized entry changed: %+v", got)
	}
}

func TestConversationRetryProducesFreshIdentity(t *testing.T) {
	c := NewConversation()
	c.AddUser("tell me about insulin")
	entry := c.BeginAssistant()
	c.Fail(entry.ID, "The network connection was lost.", "tell me about insulin")

	origin, err := c.Retry(entry.ID)
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if origin != "tell me about insulin" {
		t.Fatalf("unexpected origin %q", origin)
	}

	// The errored entry is gone from the visible list.
	for _, e := range c.Entries() {
		if e.ID == entry.ID {
			t.Fatalf("errored entry still visible after retry")
		}
	}

	// The resubmission gets a brand-new identity.
	fresh := c.BeginAssistant()
	if fresh.ID == entry.ID {
		t.Fatalf("retry must not reuse the old identity")
	}
}

func TestConversationRetryWithoutOrigin(t *testing.T) {
	c := NewConversation()
	entry := c.BeginAssistant()
	// Failed without an origin recorded (e.g. restored from elsewhere).
	c.Fail(entry.ID, "failed", "")

	if _, err := c.Retry(entry.ID); !errors.Is(err, ErrNoOrigin) {
		t.Fatalf("expected ErrNoOrigin, got %v", err)
	}
	// The entry stays visible when retry is impossible.
	if len(c.Entries()) != 1 {
		t.Fatalf("entry should remain when retry fails")
	}
}

func TestConversationLastErroredAndLastAssistant(t *testing.T) {
	c := NewConversation()
	c.AddUser("q1")
	first := c.BeginAssistant()
	c.Complete(first.ID, "a1")
	c.AddUser("q2")
	second := c.BeginAssistant()
	c.Fail(second.ID, "failed", "q2")

	errored, ok := c.LastErrored()
	if !ok || errored.ID != second.ID {
		t.Fatalf("expected last errored to be the second answer")
	}
	last, ok := c.LastAssistant()
	if !ok || last.ID != second.ID {
		t.Fatalf("expected last assistant to be the second answer")
	}
}

func TestConversationClear(t *testing.T) {
	c := NewConversation()
	c.AddUser("q")
	entry := c.BeginAssistant()
	c.Fail(entry.ID, "failed", "q")

	c.Clear()
	if len(c.Entries()) != 0 {
		t.Fatalf("expected no entries after clear")
	}
	if _, ok := c.OriginFor(entry.ID); ok {
		t.Fatalf("origin index must be dropped on clear")
	}
}

func TestTruncateExcerptKeepsValidUTF8(t *testing.T) {
	tests := []struct {
		name  string
		input string
		max   int
		want  string
	}{
		{"short passes through", "blood pressure", 200, "blood pressure"},
		{"ascii cut at limit", "abcdef", 4, "abcd"},
		{"multi-byte rune not split", "abé", 3, "ab"},
		{"cut lands inside emoji", "care \U0001f44d always", 8, "care "},
		{"exact boundary kept", "abé", 4, "abé"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateExcerpt(tt.input, tt.max)
			if got != tt.want {
				t.Errorf("truncateExcerpt(%q, %d) = %q, want %q", tt.input, tt.max, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncateExcerpt(%q, %d) produced invalid UTF-8: %q", tt.input, tt.max, got)
			}
		})
	}
}
