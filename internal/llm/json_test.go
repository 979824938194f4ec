package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"json fence", "here:\n```json\n{\"a\":1}\n```\nthanks", `{"a":1}`},
		{"bare fence", "```\n{\"a\":2}\n```", `{"a":2}`},
		{"no fence", "  {\"a\":3}\n", `{"a":3}`},
		{"unterminated fence", "```json\n{\"a\":4}", `{"a":4}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripFences(tt.in))
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Primary string `json:"primary_scene"`
	}
	require.NoError(t, DecodeJSON("```json\n{\"primary_scene\":\"family\"}\n```", &v))
	assert.Equal(t, "family", v.Primary)
}

func TestDecodeJSONRejectsObjectInProse(t *testing.T) {
	var v map[string]int
	err := DecodeJSON(`Sure! {"n": 5} hope this helps`, &v)
	require.ErrorIs(t, err, ErrDecode)
}

func TestDecodeJSONWrapsErrDecode(t *testing.T) {
	var v map[string]any
	err := DecodeJSON("not json at all", &v)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecode))
}
