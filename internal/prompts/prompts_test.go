package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFillReplacesEveryPlaceholder(t *testing.T) {
	got := Fill(Scene, map[string]string{"TRANSCRIPT": "A: 你好", "SCHEMA": "{}"})
	assert.Contains(t, got, "A: 你好")
	assert.NotContains(t, got, "%TRANSCRIPT%")
	assert.NotContains(t, got, "%SCHEMA%")
}

func TestFillLeavesUnknownPlaceholders(t *testing.T) {
	assert.Equal(t, "x %Y%", Fill("%X% %Y%", map[string]string{"X": "x"}))
}
