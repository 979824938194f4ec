package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixed(text string) Generator {
	return GeneratorFunc(func(context.Context, Request) (*Response, error) {
		return &Response{Text: text}, nil
	})
}

func TestEngineRouterFallsBack(t *testing.T) {
	r := NewEngineRouter(map[string]Generator{"gemini": fixed("g"), "ollama": fixed("o")}, "gemini")

	resp, err := r.Bind("ollama").Generate(context.Background(), Prompt("", "x"))
	require.NoError(t, err)
	assert.Equal(t, "o", resp.Text)

	resp, err = r.Bind("missing").Generate(context.Background(), Prompt("", "x"))
	require.NoError(t, err)
	assert.Equal(t, "g", resp.Text)

	assert.Equal(t, []string{"gemini", "ollama"}, r.Engines())
}

func TestRouterNoBackend(t *testing.T) {
	r := NewRouter(map[string]Generator{}, "none")
	_, err := r.Route("x")
	require.ErrorIs(t, err, ErrNoEngine)
}

func TestTextOnlyRejectsFiles(t *testing.T) {
	_, err := textOnly([]Part{TextPart("a"), FilePart(&File{})})
	require.ErrorIs(t, err, ErrFilePartsUnsupported)
}
