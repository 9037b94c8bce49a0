package gesture

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func shakeAt(ms int) Sample {
	return Sample{X: 20, Y: 20, Z: 9.8, Timestamp: epoch.Add(time.Duration(ms) * time.Millisecond)}
}

func calmAt(ms int) Sample {
	return Sample{X: 0.1, Y: 0.2, Z: 9.8, Timestamp: epoch.Add(time.Duration(ms) * time.Millisecond)}
}

func TestSample_Magnitude(t *testing.T) {
	assert.InDelta(t, 5.0, Sample{X: 3, Y: 4}.Magnitude(), 1e-9)
	assert.Greater(t, shakeAt(0).Magnitude(), ShakeThreshold)
	assert.Less(t, calmAt(0).Magnitude(), ShakeThreshold)
}

func TestDetector_TripleShake(t *testing.T) {
	d := NewDetector(Config{Available: true, ShakeToSOS: true})

	assert.Equal(t, None, d.Process(shakeAt(0), true))
	assert.Equal(t, 1, d.State().ShakeCount)
	assert.Equal(t, None, d.Process(shakeAt(500), true))
	assert.Equal(t, 2, d.State().ShakeCount)
	assert.Equal(t, TripleShake, d.Process(shakeAt(900), true))
	assert.Equal(t, 0, d.State().ShakeCount, "count resets after triggering")
}

func TestDetector_CountResetsToOneAfterWindow(t *testing.T) {
	d := NewDetector(Config{Available: true, ShakeToSOS: true})

	d.Process(shakeAt(0), true)
	d.Process(shakeAt(3500), true)
	assert.Equal(t, 1, d.State().ShakeCount, "gap beyond the reset window starts a fresh count of 1")

	d.Process(shakeAt(4000), true)
	assert.Equal(t, 2, d.State().ShakeCount)
}

func TestDetector_ResetWindowBoundary(t *testing.T) {
	d := NewDetector(Config{Available: true, ShakeToSOS: true})

	d.Process(shakeAt(0), true)
	d.Process(shakeAt(3000), true)
	assert.Equal(t, 2, d.State().ShakeCount, "exactly the reset window still increments")
}

func TestDetector_GlobalDebounce(t *testing.T) {
	d := NewDetector(Config{Available: true, ShakeToSOS: true})

	d.Process(shakeAt(0), true)
	assert.Equal(t, None, d.Process(shakeAt(399), true))
	assert.Equal(t, 1, d.State().ShakeCount, "shake inside the cooldown is not a shake event")
	assert.Equal(t, epoch, d.State().LastShakeAt)

	d.Process(shakeAt(400), true)
	assert.Equal(t, 2, d.State().ShakeCount, "shake exactly at the cooldown counts")
}

func TestDetector_ZeroTimestampStillDebounced(t *testing.T) {
	d := NewDetector(Config{Available: true, ShakeToSOS: true, SingleShake: true})
	shake := Sample{X: 30}

	assert.Equal(t, SingleShake, d.Process(shake, true))
	for i := 0; i < 5; i++ {
		assert.Equal(t, None, d.Process(shake, true), "repeated readings at one instant fall inside the cooldown")
	}
	assert.Equal(t, 1, d.State().ShakeCount)
}

func TestDetector_BelowThresholdIgnored(t *testing.T) {
	d := NewDetector(Config{Available: true, ShakeToSOS: true, SingleShake: true})

	for ms := 0; ms < 10000; ms += 100 {
		assert.Equal(t, None, d.Process(calmAt(ms), true))
	}
	assert.True(t, d.State().LastShakeAt.IsZero())
}

func TestDetector_SingleShakeCooldown(t *testing.T) {
	d := NewDetector(Config{Available: true, SingleShake: true})

	assert.Equal(t, SingleShake, d.Process(shakeAt(0), true))
	assert.Equal(t, None, d.Process(shakeAt(3000), true), "inside the single-shake cooldown")
	assert.Equal(t, SingleShake, d.Process(shakeAt(6000), true))
}

func TestDetector_SingleShakeNotArmed(t *testing.T) {
	d := NewDetector(Config{Available: true, SingleShake: true})

	assert.Equal(t, None, d.Process(shakeAt(0), false))
	assert.True(t, d.State().LastSingleShakeAt.IsZero(), "an unarmed shake does not consume the cooldown")
	assert.Equal(t, SingleShake, d.Process(shakeAt(500), true))
}

func TestDetector_TripleShakeSuppressesSingleShake(t *testing.T) {
	d := NewDetector(Config{Available: true, ShakeToSOS: true, SingleShake: true})

	assert.Equal(t, SingleShake, d.Process(shakeAt(0), true))
	assert.Equal(t, None, d.Process(shakeAt(500), true))
	assert.Equal(t, TripleShake, d.Process(shakeAt(900), true))

	// The single-shake cooldown is still measured from t=0 after a triple shake.
	assert.Equal(t, epoch, d.State().LastSingleShakeAt)
}

func TestDetector_Unavailable(t *testing.T) {
	d := NewDetector(Config{Available: false, ShakeToSOS: true, SingleShake: true})

	for ms := 0; ms < 5000; ms += 450 {
		assert.Equal(t, None, d.Process(shakeAt(ms), true))
	}
}

func TestDetector_DisabledBranches(t *testing.T) {
	d := NewDetector(Config{Available: true})

	for ms := 0; ms < 5000; ms += 450 {
		assert.Equal(t, None, d.Process(shakeAt(ms), true))
	}
	assert.Equal(t, 0, d.State().ShakeCount)
}

func TestDetector_UpdateConfigResetsCount(t *testing.T) {
	d := NewDetector(Config{Available: true, ShakeToSOS: true})

	d.Process(shakeAt(0), true)
	d.Process(shakeAt(500), true)
	require.Equal(t, 2, d.State().ShakeCount)

	d.UpdateConfig(Config{Available: true, ShakeToSOS: false})
	assert.Equal(t, 0, d.State().ShakeCount)
}

func TestDetector_NoTwoTripleShakesWithinCooldown(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 200; run++ {
		d := NewDetector(Config{Available: true, ShakeToSOS: true, SingleShake: true})

		var triggers []time.Time
		ms := 0
		for i := 0; i < 300; i++ {
			ms += rng.Intn(600)
			sample := Sample{
				X:         rng.Float64() * 30,
				Y:         rng.Float64() * 30,
				Z:         rng.Float64() * 30,
				Timestamp: epoch.Add(time.Duration(ms) * time.Millisecond),
			}
			if d.Process(sample, rng.Intn(2) == 0) == TripleShake {
				triggers = append(triggers, sample.Timestamp)
			}
		}

		for i := 1; i < len(triggers); i++ {
			require.GreaterOrEqual(t, triggers[i].Sub(triggers[i-1]), ShakeCooldown)
		}
	}
}

func TestEvent_String(t *testing.T) {
	assert.Equal(t, "none", None.String())
	assert.Equal(t, "triple_shake", TripleShake.String())
	assert.Equal(t, "single_shake", SingleShake.String())
}
