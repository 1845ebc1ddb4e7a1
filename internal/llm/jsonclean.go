// internal/llm/jsonclean.go
package llm

import (
	"strings"
	"unicode"
)

// isNoise reports runes that are dropped around and between JSON tokens.
func isNoise(r rune) bool {
	switch r {
	case '\ufeff', '\u200b', '\u200c', '\u200d', '\u2060':
		return true
	}
	return unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t'
}

func isEdge(r rune) bool {
	return unicode.IsSpace(r) || isNoise(r)
}

// stripFences removes a markdown fence opening the reply and one closing it.
// Fences elsewhere are left for the balanced scan to step over.
func stripFences(s string) string {
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl != -1 {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimPrefix(s, "```"), "json"), "JSON")
		}
	}
	s = strings.TrimRightFunc(s, isEdge)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimFunc(s, isEdge)
}

// cleanBetweenTokens drops noise runes outside string literals and turns
// exotic spaces there into plain ones. String contents are kept as sent.
func cleanBetweenTokens(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false
	for _, r := range s {
		if inString {
			b.WriteRune(r)
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch {
		case r == '"':
			inString = true
			b.WriteRune(r)
		case isNoise(r):
		case r == '\u00a0':
			b.WriteByte(' ')
		case r == '\u2028' || r == '\u2029':
			b.WriteByte('\n')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CleanJSON strips markdown fences and surrounding prose from a model reply
// and returns the first balanced JSON object or array in it. Text with no
// JSON start character is returned trimmed.
func CleanJSON(s string) string {
	if s == "" {
		return s
	}

	s = stripFences(strings.TrimFunc(s, isEdge))

	start := strings.IndexAny(s, "[{")
	if start == -1 {
		return s
	}
	s = s[start:]

	open, closing := byte('{'), byte('}')
	if s[0] == '[' {
		open, closing = '[', ']'
	}

	balance := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			balance++
		case c == closing:
			balance--
			if balance == 0 {
				return cleanBetweenTokens(s[:i+1])
			}
		}
	}

	// unbalanced: fall back to the last closing character
	if end := strings.LastIndexByte(s, closing); end != -1 {
		return cleanBetweenTokens(s[:end+1])
	}
	return cleanBetweenTokens(s)
}
