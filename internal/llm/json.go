package llm

import (
	"fmt"
	"strings"
)

// ExtractJSON pulls the first balanced {...} object out of possibly
// messy model output (prose around it, markdown fences, and so on).
func ExtractJSON(text string) (string, error) {
	return extractBalanced(stripFences(text), '{', '}')
}

// ExtractJSONArray pulls the first balanced [...] array.
func ExtractJSONArray(text string) (string, error) {
	return extractBalanced(stripFences(text), '[', ']')
}

// stripFences removes a surrounding markdown code fence if present.
func stripFences(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	if idx := strings.Index(t, "\n"); idx >= 0 {
		// Drop the language tag line ("json", "JSON", empty).
		first := strings.TrimSpace(t[:idx])
		if len(first) <= 8 {
			t = t[idx+1:]
		}
	}
	if idx := strings.LastIndex(t, "```"); idx >= 0 {
		t = t[:idx]
	}
	return strings.TrimSpace(t)
}

func extractBalanced(text string, opener, closer byte) (string, error) {
	depth := 0
	start := -1
	inStr := false
	esc := false
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if esc {
			esc = false
			continue
		}
		switch ch {
		case '\\':
			if inStr {
				esc = true
			}
		case '"':
			inStr = !inStr
		case opener:
			if !inStr {
				if depth == 0 {
					start = i
				}
				depth++
			}
		case closer:
			if !inStr && depth > 0 {
				depth--
				if depth == 0 && start != -1 {
					return text[start : i+1], nil
				}
			}
		}
	}
	return "", fmt.Errorf("json not found")
}
