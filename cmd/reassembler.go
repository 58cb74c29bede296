package cmd

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Boundary characters on each side of a chunk seam. When the running text
// ends and the next payload begins with characters outside these sets, the
// chunks are word fragments and a single separating space is inserted.
// These are hand-curated to the artifacts of one upstream chunker; do not
// grow them into a tokenizer.
var (
	trailingBoundarySet = map[rune]struct{}{
		' ': {}, '\t': {}, '\n': {},
		'.': {}, ',': {}, ';': {}, ':': {}, '!': {}, '?': {}, '-': {},
		')': {}, ']': {}, '"': {}, '\'': {},
	}
	leadingBoundarySet = map[rune]struct{}{
		' ': {}, '\t': {}, '\n': {},
		'.': {}, ',': {}, ';': {}, ':': {}, '!': {}, '?': {}, '-': {},
		'(': {}, '[': {}, '"': {}, '\'': {},
	}
)

// splitWordRepairs is a fixed table of known mid-word split artifacts
// observed in streamed answers, applied once to the finalized text. Patterns
// are case-insensitive and whitespace-tolerant; anything not listed here is
// left alone.
var splitWordRepairs = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(?i)\bdi\s+abetes\b`), "diabetes"},
	{regexp.MustCompile(`(?i)\bdia\s+gnosis\b`), "diagnosis"},
	{regexp.MustCompile(`(?i)\bhyper\s+tension\b`), "hypertension"},
	{regexp.MustCompile(`(?i)\bin\s+sulin\b`), "insulin"},
	{regexp.MustCompile(`(?i)\bsympt\s+oms\b`), "symptoms"},
	{regexp.MustCompile(`(?i)\bmedi\s+cation\b`), "medication"},
	{regexp.MustCompile(`(?i)\btreat\s+ment\b`), "treatment"},
}

// runOnListItem matches a sentence terminator directly followed by an
// enumerated item ("2. text") with no line break between them.
var runOnListItem = regexp.MustCompile(`([.!?:])\s*(\d{1,3})\.\s`)

// Reassembler merges ordered content payloads for one in-flight answer into
// a single logical text. Scoped to one stream session.
type Reassembler struct {
	text strings.Builder
	last rune
}

func NewReassembler() *Reassembler { return &Reassembler{} }

// Push appends a content payload, inserting a separating space when the seam
// would otherwise fuse two word fragments.
func (r *Reassembler) Push(payload string) {
	if payload == "" {
		return
	}
	if r.text.Len() > 0 {
		first, _ := utf8.DecodeRuneInString(payload)
		if !isTrailingBoundary(r.last) && !isLeadingBoundary(first) {
			r.text.WriteByte(' ')
		}
	}
	r.text.WriteString(payload)
	r.last, _ = utf8.DecodeLastRuneInString(payload)
}

// Text returns the running concatenation, for incremental display.
func (r *Reassembler) Text() string { return r.text.String() }

// Finalize returns the completed text with the one-time cosmetic repairs
// applied: the split-word table and the run-on enumerated list fix. Not used
// during incremental display.
func (r *Reassembler) Finalize() string {
	return repairRunOnLists(repairSplitWords(r.text.String()))
}

func isTrailingBoundary(ch rune) bool {
	_, ok := trailingBoundarySet[ch]
	return ok
}

func isLeadingBoundary(ch rune) bool {
	_, ok := leadingBoundarySet[ch]
	return ok
}

// repairSplitWords applies the fixed artifact table, preserving the case of
// the first letter of the original fragment.
func repairSplitWords(text string) string {
	for _, repair := range splitWordRepairs {
		replacement := repair.replacement
		text = repair.pattern.ReplaceAllStringFunc(text, func(matched string) string {
			return matchLeadingCase(matched, replacement)
		})
	}
	return text
}

func matchLeadingCase(original, replacement string) string {
	first, _ := utf8.DecodeRuneInString(original)
	if !unicode.IsUpper(first) {
		return replacement
	}
	head, size := utf8.DecodeRuneInString(replacement)
	return string(unicode.ToUpper(head)) + replacement[size:]
}

// repairRunOnLists breaks an enumerated list that ran on within a single
// line into one item per line.
func repairRunOnLists(text string) string {
	return runOnListItem.ReplaceAllString(text, "$1\n$2. ")
}
