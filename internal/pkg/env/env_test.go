package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvPrefersLoadedFile(t *testing.T) {
	Env = map[string]string{"BILLING_TEST_KEY": "from-file"}
	t.Cleanup(func() { Env = nil })
	t.Setenv("BILLING_TEST_KEY", "from-os")

	assert.Equal(t, "from-file", GetEnv("BILLING_TEST_KEY", "def"))
	assert.Equal(t, "def", GetEnv("BILLING_TEST_MISSING", "def"))
}

func TestGetBoolAndDuration(t *testing.T) {
	Env = map[string]string{
		"FLAG_ON":   "true",
		"FLAG_BAD":  "maybe",
		"TIMEOUT":   "7s",
		"TIMEOUT_X": "soon",
	}
	t.Cleanup(func() { Env = nil })

	assert.True(t, GetBool("FLAG_ON", false))
	assert.True(t, GetBool("FLAG_BAD", true))
	assert.False(t, GetBool("FLAG_UNSET", false))
	assert.Equal(t, 7*time.Second, GetDuration("TIMEOUT", time.Second))
	assert.Equal(t, time.Second, GetDuration("TIMEOUT_X", time.Second))
}
