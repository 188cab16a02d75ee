package identity

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResendLimiter(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("one request per interval", func(t *testing.T) {
		t.Parallel()

		l := newResendLimiter(time.Minute)
		ok, _ := l.allow("a@example.com", start)
		assert.True(t, ok)

		ok, wait := l.allow("a@example.com", start.Add(20*time.Second))
		assert.False(t, ok)
		assert.Equal(t, 40*time.Second, wait)

		ok, _ = l.allow("b@example.com", start.Add(20*time.Second))
		assert.True(t, ok, "limits are per email")

		ok, _ = l.allow("a@example.com", start.Add(time.Minute))
		assert.True(t, ok)
	})

	t.Run("denied attempts do not extend the wait", func(t *testing.T) {
		t.Parallel()

		l := newResendLimiter(time.Minute)
		l.allow("a@example.com", start)
		for i := 1; i < 5; i++ {
			ok, _ := l.allow("a@example.com", start.Add(time.Duration(i)*time.Second))
			assert.False(t, ok)
		}
		ok, _ := l.allow("a@example.com", start.Add(time.Minute))
		assert.True(t, ok)
	})

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()

		l := newResendLimiter(0)
		for range 3 {
			ok, _ := l.allow("a@example.com", start)
			assert.True(t, ok)
		}
		assert.Equal(t, 0, l.len())
	})

	t.Run("idle entries are pruned", func(t *testing.T) {
		t.Parallel()

		l := newResendLimiter(time.Minute)
		for i := range pruneThreshold + 1 {
			l.allow(fmt.Sprintf("u%d@example.com", i), start)
		}
		assert.Equal(t, pruneThreshold+1, l.len())

		l.allow("late@example.com", start.Add(2*time.Minute))
		assert.Equal(t, 1, l.len())
	})
}
