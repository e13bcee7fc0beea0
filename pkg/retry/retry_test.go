package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelayDoubles(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Second}

	assert.Equal(t, time.Second, p.Delay(0))
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))
	assert.Equal(t, 8*time.Second, p.Delay(3))
}

func TestDelayNegativeRetryCount(t *testing.T) {
	p := Default()
	assert.Equal(t, p.BaseDelay, p.Delay(-1))
}

func TestExhausted(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Second}

	assert.False(t, p.Exhausted(1))
	assert.False(t, p.Exhausted(2))
	assert.True(t, p.Exhausted(3))
	assert.True(t, p.Exhausted(4))
}
