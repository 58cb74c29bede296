package cmd

import (
	"strings"
	"testing"
)

func TestRenderStreamingTextStripsEmphasisMarkers(t *testing.T) {
	cases := []struct{ in, want string }{
		{"**bold** and *italic*", "bold and italic"},
		{"__low__ and _em_", "low and em"},
		{"inline `code` span", "inline code span"},
		{"no markers here", "no markers here"},
	}
	for _, tc := range cases {
		if got := renderStreamingText(tc.in); got != tc.want {
			t.Fatalf("expected %q, got %q", tc.want, got)
		}
	}
}

func TestSplitFencedSegments(t *testing.T) {
	text := "Take these steps:\n```python\nprint(\"hi\")\n```\nThen rest."
	segments := splitFencedSegments(text)
	if len(segments) != 3 {
		t.Fatalf("expected prose/code/prose, got %d segments", len(segments))
	}
	if segments[0].code != nil || segments[0].prose != "Take these steps:" {
		t.Fatalf("unexpected first segment %+v", segments[0])
	}
	code := segments[1].code
	if code == nil || code.Language != "python" || code.Source != "print(\"hi\")" {
		t.Fatalf("unexpected code segment %+v", segments[1])
	}
	if segments[2].prose != "Then rest." {
		t.Fatalf("unexpected trailing prose %+v", segments[2])
	}
}

func TestSplitFencedSegmentsUnterminatedFence(t *testing.T) {
	text := "Before\n```\nraw code to the end"
	segments := splitFencedSegments(text)
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}
	code := segments[1].code
	if code == nil || code.Source != "raw code to the end" {
		t.Fatalf("unterminated fence should run to the end, got %+v", segments[1])
	}
}

func TestRenderFinalAnswerCollectsCodeBlocks(t *testing.T) {
	text := "One:\n```python\na = 1\n```\nTwo:\n```\nplain\n```"
	answer := renderFinalAnswer(text, 80)

	if len(answer.CodeBlocks) != 2 {
		t.Fatalf("expected 2 code blocks, got %d", len(answer.CodeBlocks))
	}
	if answer.CodeBlocks[0].Source != "a = 1" || answer.CodeBlocks[1].Source != "plain" {
		t.Fatalf("unexpected block sources %+v", answer.CodeBlocks)
	}
	if !strings.Contains(answer.Text, "/copy 1") || !strings.Contains(answer.Text, "/copy 2") {
		t.Fatalf("expected copy hints in rendered output")
	}
}

func TestRenderFinalAnswerPlainProse(t *testing.T) {
	answer := renderFinalAnswer("Drink plenty of water.", 80)
	if len(answer.CodeBlocks) != 0 {
		t.Fatalf("expected no code blocks")
	}
	if !strings.Contains(answer.Text, "Drink plenty of water.") {
		t.Fatalf("prose lost in rendering: %q", answer.Text)
	}
}

func TestSanitizeTerminalStripsEscapes(t *testing.T) {
	in := "safe \x1b[31mred\x1b[0m text \x1b"
	if got := sanitizeTerminal(in); got != "safe red text " {
		t.Fatalf("expected escapes stripped, got %q", got)
	}
}

func TestRenderErrorTextNeutralizesControlSequences(t *testing.T) {
	rendered := renderErrorText("bad \x1b[2Jthing")
	if strings.Contains(rendered, "\x1b[2J") {
		t.Fatalf("error rendering must not pass through control sequences")
	}
	if !strings.Contains(rendered, "bad thing") {
		t.Fatalf("error message lost: %q", rendered)
	}
}
