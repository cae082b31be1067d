// Package markdown provides the text primitives the revision engine is built
// on: stripping markdown syntax to plain text, normalizing text for evidence
// comparison, sentence splitting, and content hashing.
package markdown

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	codeFenceRe   = regexp.MustCompile("```[\\s\\S]*?```")
	inlineCodeRe  = regexp.MustCompile("`[^`]+`")
	headingRe     = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	boldRe        = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicRe      = regexp.MustCompile(`\*([^*]+)\*`)
	boldUnderRe   = regexp.MustCompile(`__([^_]+)__`)
	italicUnderRe = regexp.MustCompile(`_([^_]+)_`)
	imageRe       = regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`)
	linkRe        = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	bulletRe      = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	numberedRe    = regexp.MustCompile(`(?m)^\s*\d+\.\s+`)
	quoteRe       = regexp.MustCompile(`(?m)^\s*>\s+`)
	blankRunRe    = regexp.MustCompile(`\n\s*\n`)

	spaceRunRe = regexp.MustCompile(`\s+`)
	punctRe    = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)

	headingLineRe = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
)

// Strip removes markdown syntax and returns plain text. Fenced and inline
// code are dropped entirely; emphasis, links and images keep their text.
func Strip(text string) string {
	text = codeFenceRe.ReplaceAllString(text, "")
	text = inlineCodeRe.ReplaceAllString(text, "")
	text = headingRe.ReplaceAllString(text, "")
	text = boldRe.ReplaceAllString(text, "$1")
	text = italicRe.ReplaceAllString(text, "$1")
	text = boldUnderRe.ReplaceAllString(text, "$1")
	text = italicUnderRe.ReplaceAllString(text, "$1")
	// images before links: a link pass on ![alt](url) would leave a stray "!"
	text = imageRe.ReplaceAllString(text, "$1")
	text = linkRe.ReplaceAllString(text, "$1")
	text = bulletRe.ReplaceAllString(text, "")
	text = numberedRe.ReplaceAllString(text, "")
	text = quoteRe.ReplaceAllString(text, "")
	text = blankRunRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Normalize prepares text for evidence comparison: lowercase, collapse
// whitespace runs to single spaces, drop punctuation.
func Normalize(text string) string {
	text = strings.ToLower(text)
	text = spaceRunRe.ReplaceAllString(text, " ")
	text = punctRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// HashContent returns the hex SHA-256 of the content bytes.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// sentence terminators: CJK full stop, period, both semicolons, newline
func isSentenceEnd(r rune) bool {
	switch r {
	case '。', '.', ';', '；', '\n':
		return true
	}
	return false
}

// SplitSentences splits text at sentence terminators, keeping each
// terminator attached to its sentence. Whitespace-only pieces are dropped.
func SplitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for _, r := range text {
		current.WriteRune(r)
		if isSentenceEnd(r) {
			sentences = append(sentences, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		sentences = append(sentences, current.String())
	}

	result := sentences[:0]
	for _, s := range sentences {
		if strings.TrimSpace(s) != "" {
			result = append(result, s)
		}
	}
	return result
}

// ExtractHeading returns the heading level (1-6) and text of a heading line,
// or level 0 when the line is not a heading.
func ExtractHeading(line string) (int, string) {
	m := headingLineRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return 0, line
	}
	return len(m[1]), strings.TrimSpace(m[2])
}

// IsCodeFence reports whether the line opens or closes a fenced code block.
func IsCodeFence(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "```")
}

// IsListItem reports whether the line starts a bulleted or numbered list item.
func IsListItem(line string) bool {
	return bulletRe.MatchString(line) || numberedRe.MatchString(line)
}

// IsTableRow reports whether the line is a pipe-style table row.
func IsTableRow(line string) bool {
	return strings.Contains(line, "|") && strings.HasPrefix(strings.TrimSpace(line), "|")
}
