package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFake_AdvanceFiresInDeadlineOrder(t *testing.T) {
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	clk := NewFake(start)

	var fired []string
	clk.AfterFunc(3*time.Second, func() { fired = append(fired, "three") })
	clk.AfterFunc(1*time.Second, func() { fired = append(fired, "one") })
	clk.AfterFunc(2*time.Second, func() { fired = append(fired, "two") })

	clk.Advance(2 * time.Second)
	assert.Equal(t, []string{"one", "two"}, fired)
	assert.Equal(t, start.Add(2*time.Second), clk.Now())
	assert.Equal(t, 1, clk.Pending())

	clk.Advance(time.Second)
	assert.Equal(t, []string{"one", "two", "three"}, fired)
	assert.Equal(t, 0, clk.Pending())
}

func TestFake_StoppedTimerNeverFires(t *testing.T) {
	clk := NewFake(time.Unix(0, 0))

	fired := false
	timer := clk.AfterFunc(time.Second, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop(), "second stop reports already stopped")

	clk.Advance(time.Minute)
	assert.False(t, fired)
}

func TestFake_CallbackSeesDeadlineAsNow(t *testing.T) {
	start := time.Unix(100, 0)
	clk := NewFake(start)

	var seen time.Time
	clk.AfterFunc(5*time.Second, func() { seen = clk.Now() })

	clk.Advance(time.Minute)
	assert.Equal(t, start.Add(5*time.Second), seen)
	assert.Equal(t, start.Add(time.Minute), clk.Now())
}

func TestFake_TimerScheduledByCallbackFiresWithinWindow(t *testing.T) {
	clk := NewFake(time.Unix(0, 0))

	count := 0
	clk.AfterFunc(time.Second, func() {
		count++
		clk.AfterFunc(time.Second, func() { count++ })
	})

	clk.Advance(3 * time.Second)
	assert.Equal(t, 2, count)
}

func TestFake_SetIgnoresBackwards(t *testing.T) {
	start := time.Unix(1000, 0)
	clk := NewFake(start)

	clk.Set(start.Add(-time.Hour))
	assert.Equal(t, start, clk.Now())
}
