package state

import (
	"sync"
	"time"

	"github.com/botronka/botronka/pkg/bus"
)

// MinWakeWindow is the floor for a granted wake window.
const MinWakeWindow = 500 * time.Millisecond

// Store is the lock-guarded arbitration record. Apply is the sole
// mutator (called once per bus event by the dispatcher); everything
// else is a read or the one narrow SetAudioMode override. The lock is
// held only for the duration of a single read or replay step, never
// across I/O.
type Store struct {
	mu sync.Mutex
	s  Snapshot

	// now is swapped in tests for deterministic wake windows.
	now func() time.Time
}

// NewStore creates a store in the idle, nobody-present state.
func NewStore() *Store {
	return &Store{now: time.Now}
}

// Snapshot returns a defensive copy of the current state.
func (st *Store) Snapshot() Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s
}

// SetAudioMode force-sets the mode. This is a narrow escape hatch used
// only by the capture pipeline to close out a listening transition;
// all other transitions go through Apply.
func (st *Store) SetAudioMode(m AudioMode) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Audio.Mode = m
}

// CanOpenMic reports whether a capture session may start right now.
//
// Before evaluating, a self-correcting step demotes a stale ENGAGED
// mode to IDLE when the wake window has lapsed, no face is present,
// and no actuator is busy. Without this the mode could stay ENGAGED
// forever after a face disappears without a closing event.
func (st *Store) CanOpenMic() bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	now := st.now()
	a := &st.s.Audio
	wakeActive := now.Before(a.WakeUntil)

	if !wakeActive && !st.s.FacePresent && a.Mode == ModeEngaged &&
		!a.TTSPlaying && !a.RobotMoving && !a.BuzzerActive {
		a.Mode = ModeIdle
	}

	if a.MicMuted || a.TTSPlaying || a.RobotMoving || a.BuzzerActive {
		return false
	}
	if a.Mode != ModeEngaged && a.Mode != ModeIdle {
		return false
	}
	return st.s.FacePresent || wakeActive
}

// Apply replays one bus event into the store. Unknown tags are
// ignored; a malformed payload aborts that event's branch with the
// state unchanged.
func (st *Store) Apply(e bus.Event) {
	st.mu.Lock()
	defer st.mu.Unlock()

	switch e.Tag {
	case bus.TagDistanceCM:
		st.applyDistance(e)
	case bus.TagVisionIdentity:
		st.applyIdentity(e)
	case bus.TagListeningStarted:
		st.s.Audio.Mode = ModeListening
	case bus.TagListeningFinished:
		st.s.Audio.Mode = st.presenceMode()
	case bus.TagSTTText:
		st.applySTTText(e)
	case bus.TagLLMThinking:
		if v, ok := e.Bool("value"); ok {
			st.s.Audio.LLMThinking = v
		}
	case bus.TagAgentReply:
		st.applyAgentReply(e)
	case bus.TagTTSStarted:
		st.s.Audio.TTSPlaying = true
		st.s.Audio.MicMuted = true
		st.s.Audio.Mode = ModeSpeaking
	case bus.TagTTSFinished:
		st.s.Audio.TTSPlaying = false
		st.recomputeMuted()
		st.s.Audio.Mode = st.presenceMode()
	case bus.TagWakeDetected:
		st.applyWakeDetected(e)
	case bus.TagMotionState:
		if v, ok := e.Bool("moving"); ok {
			st.s.Audio.RobotMoving = v
			st.recomputeMuted()
		}
	case bus.TagBuzzerState:
		if v, ok := e.Bool("active"); ok {
			st.s.Audio.BuzzerActive = v
			st.recomputeMuted()
		}
	}
}

// presenceMode picks ENGAGED or IDLE from face presence and the wake
// window, for closing transitions (listening finished, tts finished).
func (st *Store) presenceMode() AudioMode {
	if st.s.FacePresent || st.now().Before(st.s.Audio.WakeUntil) {
		return ModeEngaged
	}
	return ModeIdle
}

// recomputeMuted derives MicMuted from the three actuator busy flags.
func (st *Store) recomputeMuted() {
	a := &st.s.Audio
	a.MicMuted = a.TTSPlaying || a.RobotMoving || a.BuzzerActive
}

func (st *Store) applyDistance(e bus.Event) {
	v, ok := e.Float("value")
	if !ok {
		return
	}
	st.s.DistanceCM = v
	st.s.HasDistance = true
}

func (st *Store) applyIdentity(e bus.Event) {
	face, ok := e.Bool("face_detected")
	if !ok {
		return
	}

	trust := st.s.Trust
	if raw, present := e.String("trust_level"); present {
		parsed, err := ParseTrustLevel(raw)
		if err != nil {
			return
		}
		trust = parsed
	}

	wasPresent := st.s.FacePresent
	st.s.FacePresent = face
	st.s.Trust = trust

	a := &st.s.Audio
	if face {
		if !wasPresent && a.Mode == ModeIdle {
			a.Mode = ModeEngaged
		}
	} else if a.Mode != ModeSpeaking {
		a.Mode = st.presenceMode()
	}
}

func (st *Store) applySTTText(e bus.Event) {
	text, ok := e.String("text")
	if !ok {
		return
	}
	st.s.Audio.LastUserText = text
	if path, has := e.String("wav_path"); has {
		st.s.Audio.LastUtterancePath = path
	}
	st.s.Audio.Mode = ModeThinking
}

func (st *Store) applyAgentReply(e bus.Event) {
	speak, ok := e.String("speak")
	if !ok {
		return
	}
	st.s.Audio.LastReplyText = speak
	if cmd, has := e.String("command"); has {
		st.s.Audio.LastCommand = cmd
	}
}

func (st *Store) applyWakeDetected(e bus.Event) {
	dur, ok := e.Float("duration_s")
	if !ok {
		return
	}

	window := time.Duration(dur * float64(time.Second))
	if window < MinWakeWindow {
		window = MinWakeWindow
	}
	st.s.Audio.WakeUntil = st.now().Add(window)
	if st.s.Audio.Mode == ModeIdle {
		st.s.Audio.Mode = ModeEngaged
	}
}
