package sos

import (
	"time"
)

// State is the position of an AlertSession in the lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StateListening  State = "listening_for_phrase"
	StateConfirming State = "confirming_manual"
	StateCountdown  State = "countdown"
	StateActivated  State = "activated"
	StateCanceled   State = "canceled"
)

// Terminal reports whether the session has ended. A fresh session follows a terminal one.
func (s State) Terminal() bool {
	return s == StateActivated || s == StateCanceled
}

// Trigger is the input path that moved a session toward activation.
type Trigger string

const (
	TriggerShake  Trigger = "shake"
	TriggerPhrase Trigger = "phrase"
	TriggerHold   Trigger = "hold"
)

// Session is a snapshot of one device's AlertSession.
type Session struct {
	ID                string    `json:"id"`
	State             State     `json:"state"`
	ShakeCount        int       `json:"shakeCount"`
	LastShakeAt       time.Time `json:"lastShakeAt,omitempty"`
	LastSingleShakeAt time.Time `json:"lastSingleShakeAt,omitempty"`
	ListeningDeadline time.Time `json:"listeningDeadline,omitempty"`
	CountdownDeadline time.Time `json:"countdownDeadline,omitempty"`
	Trigger           Trigger   `json:"trigger,omitempty"`
	VideoRef          string    `json:"videoRef,omitempty"`
	AlertID           string    `json:"alertId,omitempty"`
}
