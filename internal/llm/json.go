package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StripFences returns the body of the first ```json block, else the first ```
// block, else the trimmed input.
func StripFences(text string) string {
	if i := strings.Index(text, "```json"); i >= 0 {
		return untilFence(text[i+len("```json"):])
	}
	if i := strings.Index(text, "```"); i >= 0 {
		return untilFence(text[i+3:])
	}
	return strings.TrimSpace(text)
}

func untilFence(s string) string {
	if j := strings.Index(s, "```"); j >= 0 {
		s = s[:j]
	}
	return strings.TrimSpace(s)
}

// DecodeJSON strips Markdown fences from text and decodes it into v. Anything
// that does not then decode is ErrDecode; no partial object is recovered.
func DecodeJSON(text string, v any) error {
	body := StripFences(text)
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return fmt.Errorf("%w: %v (%s)", ErrDecode, err, preview(body, 200))
	}
	return nil
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
