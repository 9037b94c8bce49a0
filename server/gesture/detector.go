// Package gesture turns raw acceleration samples into discrete shake gestures.
package gesture

import (
	"math"
	"time"
)

// Detection thresholds.
const (
	// ShakeThreshold is the acceleration magnitude (gravity included) a sample must exceed.
	ShakeThreshold = 25.0

	// ShakeCooldown is the global debounce between two shake events.
	ShakeCooldown = 400 * time.Millisecond

	// ShakeCountResetTime restarts the triple-shake count when exceeded between shakes.
	ShakeCountResetTime = 3000 * time.Millisecond

	// ShakesToTrigger is the number of shakes that make a triple shake.
	ShakesToTrigger = 3

	// SingleShakeCooldown is the minimum spacing between two single-shake triggers.
	SingleShakeCooldown = 5000 * time.Millisecond
)

// Sample is one 3-axis acceleration reading including gravity.
type Sample struct {
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Z         float64   `json:"z"`
	Timestamp time.Time `json:"timestamp"`
}

// Magnitude returns the euclidean norm of the sample.
func (s Sample) Magnitude() float64 {
	return math.Sqrt(s.X*s.X + s.Y*s.Y + s.Z*s.Z)
}

// Event is a gesture recognized from the sample stream.
type Event int

const (
	None Event = iota
	TripleShake
	SingleShake
)

func (e Event) String() string {
	switch e {
	case TripleShake:
		return "triple_shake"
	case SingleShake:
		return "single_shake"
	default:
		return "none"
	}
}

// Config selects which gesture branches are evaluated.
type Config struct {
	// Available is false when the device has no motion sensing; the detector is then inert.
	Available bool

	// ShakeToSOS enables the triple-shake branch.
	ShakeToSOS bool

	// SingleShake enables the single-shake branch that opens a phrase listening session.
	SingleShake bool
}

// State is a snapshot of the detector counters.
type State struct {
	ShakeCount        int       `json:"shakeCount"`
	LastShakeAt       time.Time `json:"lastShakeAt"`
	LastSingleShakeAt time.Time `json:"lastSingleShakeAt"`
}

// Detector applies thresholding and debounce to samples. It is not safe for concurrent use;
// the owner serializes calls.
type Detector struct {
	config            Config
	shakeCount        int
	lastShakeAt       time.Time
	lastSingleShakeAt time.Time

	// Set once the first shake or single shake is seen. A zero timestamp is a valid reading.
	shaken       bool
	singleShaken bool
}

// NewDetector creates a detector with the given configuration.
func NewDetector(config Config) *Detector {
	return &Detector{config: config}
}

// UpdateConfig swaps the configuration. The triple-shake count restarts when its branch is toggled.
func (d *Detector) UpdateConfig(config Config) {
	if config.ShakeToSOS != d.config.ShakeToSOS {
		d.shakeCount = 0
	}
	d.config = config
}

// Config returns the active configuration.
func (d *Detector) Config() Config {
	return d.config
}

// State returns the current counters.
func (d *Detector) State() State {
	return State{
		ShakeCount:        d.shakeCount,
		LastShakeAt:       d.lastShakeAt,
		LastSingleShakeAt: d.lastSingleShakeAt,
	}
}

// Process evaluates one sample. singleShakeArmed is false while the owner cannot start a
// listening session (a confirmation or countdown is active, or a session is already open).
//
// The triple-shake branch has priority: when it fires, the single-shake branch is not
// evaluated for the same shake.
func (d *Detector) Process(sample Sample, singleShakeArmed bool) Event {
	if !d.config.Available {
		return None
	}

	if sample.Magnitude() <= ShakeThreshold {
		return None
	}

	first := !d.shaken
	var sinceLast time.Duration
	if !first {
		sinceLast = sample.Timestamp.Sub(d.lastShakeAt)
		if sinceLast < ShakeCooldown {
			return None
		}
	}
	d.lastShakeAt = sample.Timestamp
	d.shaken = true

	if d.config.ShakeToSOS {
		if first || sinceLast > ShakeCountResetTime {
			d.shakeCount = 1
		} else {
			d.shakeCount++
		}

		if d.shakeCount >= ShakesToTrigger {
			d.shakeCount = 0
			return TripleShake
		}
	}

	if d.config.SingleShake && singleShakeArmed {
		if !d.singleShaken || sample.Timestamp.Sub(d.lastSingleShakeAt) >= SingleShakeCooldown {
			d.lastSingleShakeAt = sample.Timestamp
			d.singleShaken = true
			return SingleShake
		}
	}

	return None
}
