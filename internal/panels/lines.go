package panels

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// quoteToken quotes a token that would not read back bare: empty tokens,
// the "-" placeholder and anything holding a separator.
func quoteToken(token string) string {
	if token == "" || token == emptyPattern || strings.ContainsAny(token, " \t\n\",&=:;\\") {
		return strconv.Quote(token)
	}
	return token
}

// readToken reads a quoted token, or a bare one up to the first stop
// character.
func readToken(text, stops string) (string, string, error) {
	if strings.HasPrefix(text, `"`) {
		quoted, err := strconv.QuotedPrefix(text)
		if err != nil {
			return "", "", errors.New("unterminated quote")
		}
		token, err := strconv.Unquote(quoted)
		if err != nil {
			return "", "", fmt.Errorf("bad quote: %w", err)
		}
		return token, text[len(quoted):], nil
	}
	if i := strings.IndexAny(text, stops); i >= 0 {
		return strings.TrimSpace(text[:i]), text[i:], nil
	}
	return strings.TrimSpace(text), "", nil
}

// JoinLines puts a one-entry-per-line field onto a single input line.
func JoinLines(text string) string {
	return strings.ReplaceAll(text, "\n", "; ")
}

// SplitLine turns an input line back into one entry per line. Semicolons
// inside quoted tokens do not split.
func SplitLine(line string) string {
	var (
		parts   []string
		current strings.Builder
		quoted  bool
		escaped bool
	)
	for _, r := range line {
		switch {
		case escaped:
			escaped = false
		case quoted && r == '\\':
			escaped = true
		case r == '"':
			quoted = !quoted
		case r == ';' && !quoted:
			parts = append(parts, strings.TrimSpace(current.String()))
			current.Reset()
			continue
		}
		current.WriteRune(r)
	}
	parts = append(parts, strings.TrimSpace(current.String()))
	return strings.Join(parts, "\n")
}

// nonEmptyLines returns the trimmed lines of text with their 1-based line
// numbers, skipping blank ones.
func nonEmptyLines(text string) ([]string, []int) {
	var (
		lines   []string
		numbers []int
	)
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
		numbers = append(numbers, i+1)
	}
	return lines, numbers
}
