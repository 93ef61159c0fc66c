package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSONFound is returned when no valid JSON object/array is found in the input
var ErrNoJSONFound = errors.New("no valid JSON object or array found in response")

var fencedBlock = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.+?)\\s*```")

// ExtractJSON pulls the JSON value out of model output that may be wrapped
// in markdown fences or surrounded by prose. It returns ErrNoJSONFound when
// nothing valid can be salvaged. Only lengths are logged, never content.
func ExtractJSON(response string) (string, error) {
	if strings.TrimSpace(response) == "" {
		return "", ErrNoJSONFound
	}

	body := unfence(response)
	if json.Valid([]byte(body)) {
		return body, nil
	}

	if v := firstBalanced(body); v != "" {
		return v, nil
	}

	if v := outermost(response); v != "" {
		L().Debug("json extracted after trimming surrounding text", "input_len", len(response), "json_len", len(v))
		return v, nil
	}

	if v := stripControl(outermostSpan(body, '{', '}')); v != "" && json.Valid([]byte(v)) {
		L().Debug("json extracted after removing control characters", "input_len", len(response), "json_len", len(v))
		return v, nil
	}

	return "", fmt.Errorf("%w: response length=%d", ErrNoJSONFound, len(response))
}

// unfence returns the contents of the first ``` block, or s trimmed
func unfence(s string) string {
	if m := fencedBlock.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(s)
}

// firstBalanced returns the first bracket-balanced value in s that parses.
// Objects are tried before arrays so prose like "option [1]" ahead of the
// reply does not win.
func firstBalanced(s string) string {
	for _, pair := range [][2]byte{{'{', '}'}, {'[', ']'}} {
		for start := 0; start < len(s); start++ {
			if s[start] != pair[0] {
				continue
			}
			end := matchBracket(s, start, pair[0], pair[1])
			if end < 0 {
				continue
			}
			if candidate := s[start:end]; json.Valid([]byte(candidate)) {
				return candidate
			}
		}
	}
	return ""
}

// matchBracket returns the index just past the bracket closing s[start], or -1
func matchBracket(s string, start int, open, close byte) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			depth++
		case c == close:
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

// outermost tries the span from the first opener to the last closer, objects first
func outermost(s string) string {
	for _, pair := range [][2]byte{{'{', '}'}, {'[', ']'}} {
		if v := outermostSpan(s, pair[0], pair[1]); v != "" && json.Valid([]byte(v)) {
			return v
		}
	}
	return ""
}

func outermostSpan(s string, open, close byte) string {
	first := strings.IndexByte(s, open)
	last := strings.LastIndexByte(s, close)
	if first < 0 || last <= first {
		return ""
	}
	return s[first : last+1]
}

// stripControl drops control characters other than tab, CR and LF
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\n' && r != '\r' && r != '\t' || r == 127 {
			return -1
		}
		return r
	}, s)
}
