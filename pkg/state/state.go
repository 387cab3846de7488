// Package state holds the shared arbitration state for the robot
// runtime: the cross-cutting facts (face presence, trust, distance,
// audio mode, busy flags) that several workers consult to decide
// whether the microphone may open or the robot may move.
//
// The store is mutated only by replaying bus events, so its contents
// are reproducible from a recorded event log.
package state

import (
	"fmt"
	"strings"
	"time"
)

// TrustLevel ranks how much the currently recognized person is
// trusted. Higher levels unlock more capabilities.
type TrustLevel int

const (
	TrustUnknown TrustLevel = 0
	TrustGuest   TrustLevel = 1
	TrustFriend  TrustLevel = 2
	TrustOwner   TrustLevel = 3
)

// String returns the canonical literal for the trust level.
func (t TrustLevel) String() string {
	switch t {
	case TrustGuest:
		return "Guest"
	case TrustFriend:
		return "Friend"
	case TrustOwner:
		return "OWNER"
	default:
		return "Unknown"
	}
}

// ParseTrustLevel maps a trust literal to its level. Matching is
// case-insensitive; an unrecognized literal is an error so that bad
// configuration fails at startup instead of silently degrading.
func ParseTrustLevel(s string) (TrustLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "unknown", "":
		return TrustUnknown, nil
	case "guest":
		return TrustGuest, nil
	case "friend":
		return TrustFriend, nil
	case "owner":
		return TrustOwner, nil
	default:
		return TrustUnknown, fmt.Errorf("state: invalid trust level %q", s)
	}
}

// AudioMode is the 5-state conversational mode. Exactly one value at
// a time; transitions are driven by event replay in Store.Apply.
type AudioMode int

const (
	ModeIdle AudioMode = iota
	ModeEngaged
	ModeListening
	ModeThinking
	ModeSpeaking
)

// String returns a short lowercase name for the mode.
func (m AudioMode) String() string {
	switch m {
	case ModeEngaged:
		return "engaged"
	case ModeListening:
		return "listening"
	case ModeThinking:
		return "thinking"
	case ModeSpeaking:
		return "speaking"
	default:
		return "idle"
	}
}

// AudioState groups the audio-arbitration facts.
//
// Invariant: MicMuted is true whenever any of TTSPlaying, RobotMoving,
// BuzzerActive is true. Invariant: Mode == ModeSpeaking only while
// TTSPlaying is true.
type AudioState struct {
	Mode         AudioMode
	MicMuted     bool
	TTSPlaying   bool
	LLMThinking  bool
	RobotMoving  bool
	BuzzerActive bool

	// WakeUntil is the monotonic deadline of the current wake window;
	// zero means no window was ever granted.
	WakeUntil time.Time

	LastUtterancePath string
	LastUserText      string
	LastReplyText     string
	LastCommand       string
}

// Snapshot is a defensive copy of the store's state, safe to read
// without holding the store lock.
type Snapshot struct {
	FacePresent bool
	Trust       TrustLevel

	// DistanceCM is valid only when HasDistance is true.
	DistanceCM  float64
	HasDistance bool

	Audio AudioState
}

// WakeActive reports whether the wake window is open at time t.
func (s Snapshot) WakeActive(t time.Time) bool {
	return t.Before(s.Audio.WakeUntil)
}
