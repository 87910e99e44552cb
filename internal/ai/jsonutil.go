// jsonutil.go - Lenient decoding of JSON answers from the model

package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	codeFence    = regexp.MustCompile("```(json|text|plaintext)?\n?")
	jsonStringRe = regexp.MustCompile(`"([^"\\]*(?:\\.[^"\\]*)*)"`)
)

// stripCodeFences removes markdown fences the model adds despite instructions
func stripCodeFences(s string) string {
	s = codeFence.ReplaceAllString(s, "")
	return strings.ReplaceAll(s, "```", "")
}

// fixJSONEscaping escapes raw control characters inside JSON string values.
// Models sometimes emit literal newlines inside strings.
func fixJSONEscaping(jsonStr string) string {
	return jsonStringRe.ReplaceAllStringFunc(jsonStr, func(match string) string {
		if len(match) < 2 {
			return match
		}
		content := match[1 : len(match)-1]

		var b strings.Builder
		for _, ch := range content {
			switch {
			case ch == '\n':
				b.WriteString(`\n`)
			case ch == '\r':
				b.WriteString(`\r`)
			case ch == '\t':
				b.WriteString(`\t`)
			case ch < 0x20:
				fmt.Fprintf(&b, `\u%04x`, ch)
			default:
				b.WriteRune(ch)
			}
		}
		return `"` + b.String() + `"`
	})
}

// decodeJSONObject decodes a model answer into v, retrying once with repaired escaping
func decodeJSONObject(answer string, v any) error {
	cleaned := strings.TrimSpace(stripCodeFences(answer))
	if err := json.Unmarshal([]byte(cleaned), v); err == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(fixJSONEscaping(cleaned)), v); err != nil {
		return fmt.Errorf("failed to decode model answer: %w", err)
	}
	return nil
}
