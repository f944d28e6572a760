package search

import (
	"regexp"
	"strings"
)

// CleanMarkdown strips markdown decoration that would pollute token sets:
// heading markers, bullet/numbered-list markers, emphasis characters, and
// fenced code blocks. The knowledge base is authored as markdown but indexed
// as plain prose.
func CleanMarkdown(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	inFence := false
	for _, ln := range lines {
		trimmed := strings.TrimSpace(ln)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		trimmed = headingRE.ReplaceAllString(trimmed, "")
		trimmed = bulletRE.ReplaceAllString(trimmed, "")
		trimmed = strings.NewReplacer("**", "", "__", "", "`", "").Replace(trimmed)
		out = append(out, trimmed)
	}
	return strings.Join(out, "\n")
}

// SplitParagraphs splits prose on blank lines, dropping empty chunks.
func SplitParagraphs(s string) []string {
	chunks := paraSplitRE.Split(s, -1)
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if t := strings.TrimSpace(c); t != "" {
			out = append(out, t)
		}
	}
	return out
}

var (
	headingRE   = regexp.MustCompile(`^#{1,6}\s+`)
	bulletRE    = regexp.MustCompile(`^([-*+]|\d+[.)])\s+`)
	paraSplitRE = regexp.MustCompile(`\n\s*\n`)
)
