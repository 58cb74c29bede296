package cmd

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// CodeBlock is a fenced code block lifted out of a completed answer, kept
// around so the host can offer copy-to-clipboard on the raw source.
type CodeBlock struct {
	Language string
	Source   string
}

// RenderedAnswer is the final structured rendering of a completed answer.
type RenderedAnswer struct {
	// Text is the full ANSI-styled output ready for the terminal.
	Text string
	// CodeBlocks holds the raw source of each fenced block, in order.
	CodeBlocks []CodeBlock
}

var (
	emphasisMarkers = strings.NewReplacer("**", "", "*", "", "__", "", "_", "", "`", "")

	// Terminal control sequences have no business coming out of a model.
	ansiEscape = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]|\x1b`)

	fenceOpen = regexp.MustCompile("^```([A-Za-z0-9+#._-]*)\\s*$")

	codeLabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Bold(true)
	codeBodyStyle  = lipgloss.NewStyle().PaddingLeft(2)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// renderStreamingText prepares the running reassembled text for display while
// the stream is still open: plain text only, with literal emphasis markers
// stripped so partial markup never flashes unstyled.
func renderStreamingText(text string) string {
	return emphasisMarkers.Replace(text)
}

// renderErrorText styles a terminal failure message. No markup pass is run
// over error content.
func renderErrorText(msg string) string {
	return errorStyle.Render(sanitizeTerminal(msg))
}

// renderFinalAnswer runs the completion pass over a finalized answer:
// prose is rendered as lightweight markup (headings, lists, emphasis) and
// each fenced code block becomes a labeled, highlighted block.
func renderFinalAnswer(text string, width int) RenderedAnswer {
	var out strings.Builder
	var blocks []CodeBlock

	if width < 20 {
		width = 80
	}

	for _, segment := range splitFencedSegments(text) {
		if segment.code == nil {
			out.WriteString(renderProse(segment.prose, width))
			continue
		}
		blocks = append(blocks, *segment.code)
		out.WriteString(renderCodeBlock(*segment.code, len(blocks)))
	}

	return RenderedAnswer{Text: strings.TrimRight(out.String(), "\n") + "\n", CodeBlocks: blocks}
}

type answerSegment struct {
	prose string
	code  *CodeBlock
}

// splitFencedSegments walks the answer line by line, separating prose from
// fenced code blocks. An unterminated fence runs to the end of the text.
func splitFencedSegments(text string) []answerSegment {
	var segments []answerSegment
	var prose []string
	var code []string
	var lang string
	inFence := false

	flushProse := func() {
		if len(prose) > 0 {
			segments = append(segments, answerSegment{prose: strings.Join(prose, "\n")})
			prose = nil
		}
	}

	for _, line := range strings.Split(text, "\n") {
		if !inFence {
			if m := fenceOpen.FindStringSubmatch(strings.TrimRight(line, " \t")); m != nil {
				flushProse()
				inFence = true
				lang = m[1]
				code = nil
				continue
			}
			prose = append(prose, line)
			continue
		}
		if strings.TrimRight(line, " \t") == "```" {
			inFence = false
			segments = append(segments, answerSegment{code: &CodeBlock{Language: lang, Source: strings.Join(code, "\n")}})
			continue
		}
		code = append(code, line)
	}
	if inFence {
		segments = append(segments, answerSegment{code: &CodeBlock{Language: lang, Source: strings.Join(code, "\n")}})
	} else {
		flushProse()
	}
	return segments
}

func renderProse(text string, width int) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err == nil {
		if rendered, rerr := renderer.Render(text); rerr == nil {
			return rendered
		}
	}
	// Plain fallback: the text is untrusted, neutralize control sequences.
	return sanitizeTerminal(text) + "\n"
}

// renderCodeBlock renders one fenced block with a language label and a hint
// for the copy affordance. Highlighting is attempted only when a lexer for
// the declared language exists; otherwise the raw source is shown sanitized.
func renderCodeBlock(block CodeBlock, index int) string {
	lang := block.Language
	if lang == "" {
		lang = "text"
	}
	label := codeLabelStyle.Render("[" + lang + "] (copy with /copy " + strconv.Itoa(index) + ")")

	body := sanitizeTerminal(block.Source)
	if lexers.Get(block.Language) != nil {
		var highlighted strings.Builder
		if err := quick.Highlight(&highlighted, sanitizeTerminal(block.Source), block.Language, "terminal256", "monokai"); err == nil {
			body = highlighted.String()
		}
	}

	return label + "\n" + codeBodyStyle.Render(strings.TrimRight(body, "\n")) + "\n\n"
}

// sanitizeTerminal strips ANSI escape sequences so model output cannot
// inject terminal control when rendered raw.
func sanitizeTerminal(text string) string {
	return ansiEscape.ReplaceAllString(text, "")
}
