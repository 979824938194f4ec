package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLookupsFallBackWhenUnset(t *testing.T) {
	assert.Equal(t, "x", Str("ENV_TEST_UNSET_STR", "x"))
	assert.Equal(t, 7, Int("ENV_TEST_UNSET_INT", 7))
	assert.Equal(t, 0.3, Float("ENV_TEST_UNSET_FLOAT", 0.3))
	assert.True(t, Bool("ENV_TEST_UNSET_BOOL", true))
	assert.Equal(t, time.Minute, Duration("ENV_TEST_UNSET_DUR", time.Minute))
}

func TestLookupsParseSetValues(t *testing.T) {
	t.Setenv("ENV_TEST_STR", "relay")
	t.Setenv("ENV_TEST_INT", "18")
	t.Setenv("ENV_TEST_FLOAT", "0.6")
	t.Setenv("ENV_TEST_BOOL", "false")
	t.Setenv("ENV_TEST_DUR", "10m")

	assert.Equal(t, "relay", Str("ENV_TEST_STR", ""))
	assert.Equal(t, 18, Int("ENV_TEST_INT", 0))
	assert.Equal(t, 0.6, Float("ENV_TEST_FLOAT", 0))
	assert.False(t, Bool("ENV_TEST_BOOL", true))
	assert.Equal(t, 10*time.Minute, Duration("ENV_TEST_DUR", 0))
}

func TestMalformedValuesFallBack(t *testing.T) {
	t.Setenv("ENV_TEST_BAD_INT", "eighteen")
	t.Setenv("ENV_TEST_BAD_DUR", "soon")

	assert.Equal(t, 4, Int("ENV_TEST_BAD_INT", 4))
	assert.Equal(t, time.Second, Duration("ENV_TEST_BAD_DUR", time.Second))
}
