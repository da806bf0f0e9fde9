package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON strips code-fence markers, locates the first balanced
// {...} or [...] substring, and parses it strictly.
// On any failure it returns ErrMalformedPayload so the caller can treat
// the current provider attempt as failed.
func ExtractJSON(completion string, out any) error {
	raw := stripCodeFences(completion)
	block, err := firstBalancedBlock(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	dec := json.NewDecoder(strings.NewReader(block))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

// stripCodeFences removes leading/trailing ``` or ```json fences.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(s[:nl])
		if firstLine == "" || isLangTag(firstLine) {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func isLangTag(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return len(s) > 0
}

// firstBalancedBlock scans for the first '{' or '[' and returns the
// substring up to its matching closing bracket, accounting for nested
// brackets and string literals (so a brace inside a quoted string does
// not confuse the scan).
func firstBalancedBlock(s string) (string, error) {
	start := -1
	var open, close byte
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			start, open, close = i, '{', '}'
		case '[':
			start, open, close = i, '[', ']'
		default:
			continue
		}
		break
	}
	if start < 0 {
		return "", fmt.Errorf("no JSON object or array found")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced JSON block")
}
