package framework

import (
	"fmt"
	"strings"
)

// compressedContextMarker is appended to a compressed system message so the
// model knows capabilities were elided, not absent.
const compressedContextMarker = "[context compressed: tool instructions elided to fit the window]"

// Summarizer compresses a message body into a bounded placeholder. The
// default is deterministic so rendering the same history twice produces the
// same prompt; an LLM-backed implementation can be swapped in.
type Summarizer interface {
	Summarize(content string, limit int) string
}

// PlaceholderSummarizer keeps the leading line of the content, truncated to
// the limit, and appends a fixed marker. Crude, but the system context opens
// by naming the assistant role, which is the part worth keeping.
type PlaceholderSummarizer struct{}

// Summarize implements Summarizer.
func (PlaceholderSummarizer) Summarize(content string, limit int) string {
	if content == "" {
		return ""
	}
	first := content
	if idx := strings.IndexByte(content, '\n'); idx >= 0 {
		first = content[:idx]
	}
	return truncateParagraph(first, limit) + "\n" + compressedContextMarker
}

func truncateParagraph(value string, max int) string {
	if max <= 0 || len(value) <= max {
		return strings.TrimSpace(value)
	}
	trim := strings.TrimSpace(value[:max])
	return fmt.Sprintf("%s...", trim)
}
