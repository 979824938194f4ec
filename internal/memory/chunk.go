package memory

import "strings"

// ChunkText packs paragraphs into chunks of at most maxRunes runes. A single
// paragraph longer than maxRunes becomes its own chunk.
func ChunkText(text string, maxRunes int) []string {
	var (
		chunks  []string
		current strings.Builder
		size    int
	)
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n := len([]rune(p))
		if size > 0 && size+n > maxRunes {
			chunks = append(chunks, current.String())
			current.Reset()
			size = 0
		}
		if size > 0 {
			current.WriteString("\n\n")
			size += 2
		}
		current.WriteString(p)
		size += n
	}
	if size > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
