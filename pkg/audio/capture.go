package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/botronka/botronka/internal/log"
	"github.com/botronka/botronka/pkg/bus"
	"github.com/botronka/botronka/pkg/state"
)

// CaptureConfig tunes the capture worker's polling and greeting
// behavior.
type CaptureConfig struct {
	UtteranceDir string

	PollInterval   time.Duration // idle sleep between eligibility polls
	ListenCooldown time.Duration // sleep after a full session

	// Greeting on a face-presence rising edge. Re-greeting is
	// suppressed unless the face was gone at least GreetingIdle.
	GreetingIdle    time.Duration
	GreetingDelay   time.Duration
	GreetingMinOpen time.Duration // forced-open window after a greeting
	GreetingKnown   string        // format string taking the name
	GreetingUnknown string

	// Wake probing while nobody is around.
	WakeListen       bool
	WakePollInterval time.Duration
	WakeMinOpen      time.Duration
	WakeMaxRecord    time.Duration
}

// DefaultCaptureConfig mirrors the on-robot tuning.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		UtteranceDir:     filepath.Join(os.TempDir(), "botronka_audio"),
		PollInterval:     150 * time.Millisecond,
		ListenCooldown:   200 * time.Millisecond,
		GreetingIdle:     20 * time.Second,
		GreetingDelay:    800 * time.Millisecond,
		GreetingMinOpen:  4 * time.Second,
		GreetingKnown:    "Greetings %s.",
		GreetingUnknown:  "Hi, who are you?",
		WakeListen:       true,
		WakePollInterval: 250 * time.Millisecond,
		WakeMinOpen:      1100 * time.Millisecond,
		WakeMaxRecord:    2200 * time.Millisecond,
	}
}

// CaptureWorker polls the arbitration store to decide whether the
// microphone may open, runs full or wake-probe sessions, and emits the
// captured-utterance events.
type CaptureWorker struct {
	bus   *bus.Bus
	store *state.Store
	src   FrameSource
	cfg   CaptureConfig
	vad   SessionConfig

	quit    chan struct{}
	stopped atomic.Bool

	mu           sync.Mutex
	facePresent  bool
	lastFaceLost time.Time // zero: face never lost
	greetedOnce  bool
	pendingName  string
	pendingDue   time.Time // zero: no greeting scheduled
	forceUntil   time.Time
}

// NewCaptureWorker wires the capture worker. src is the microphone
// frame source; vad is the full-session tuning.
func NewCaptureWorker(b *bus.Bus, store *state.Store, src FrameSource, cfg CaptureConfig, vad SessionConfig) *CaptureWorker {
	return &CaptureWorker{
		bus:   b,
		store: store,
		src:   src,
		cfg:   cfg,
		vad:   vad,
		quit:  make(chan struct{}),
	}
}

// Name implements bus.Worker.
func (w *CaptureWorker) Name() string { return "capture" }

// Stop implements bus.Worker. If a listening session is in flight it
// finishes first (cooperative cancellation); the mode override closes
// out any dangling LISTENING transition.
func (w *CaptureWorker) Stop() {
	if w.stopped.Swap(true) {
		return
	}
	close(w.quit)
	w.store.SetAudioMode(state.ModeIdle)
}

// OnEvent tracks face presence edges to schedule greetings. Runs on
// the dispatcher goroutine; only flips in-memory flags.
func (w *CaptureWorker) OnEvent(e bus.Event) {
	if e.Tag != bus.TagVisionIdentity {
		return
	}
	face, ok := e.Bool("face_detected")
	if !ok {
		return
	}

	name, _ := e.String("name")
	if name == "UNKNOWN" || name == "Unknown" {
		name = ""
	}

	now := time.Now()
	w.mu.Lock()
	defer w.mu.Unlock()

	if face && !w.facePresent {
		idleLongEnough := w.lastFaceLost.IsZero() ||
			now.Sub(w.lastFaceLost) >= w.cfg.GreetingIdle
		if !w.greetedOnce || idleLongEnough {
			w.pendingName = name
			w.pendingDue = now.Add(w.cfg.GreetingDelay)
		}
	}

	if face {
		// Upgrade a scheduled greeting once the name is known.
		if !w.pendingDue.IsZero() && name != "" {
			w.pendingName = name
		}
	} else if w.facePresent {
		w.lastFaceLost = now
	}

	w.facePresent = face
}

// nextGreeting consumes a due greeting, arming the forced-open window.
func (w *CaptureWorker) nextGreeting(now time.Time) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pendingDue.IsZero() || now.Before(w.pendingDue) {
		return "", false
	}

	name := w.pendingName
	w.pendingDue = time.Time{}
	w.pendingName = ""
	w.greetedOnce = true
	w.forceUntil = now.Add(w.cfg.GreetingMinOpen)

	if name != "" {
		return fmt.Sprintf(w.cfg.GreetingKnown, name), true
	}
	return w.cfg.GreetingUnknown, true
}

// forcedOpen reports whether the post-greeting window should hold the
// mic open even though CanOpenMic may still say no.
func (w *CaptureWorker) forcedOpen(now time.Time) bool {
	w.mu.Lock()
	until := w.forceUntil
	w.mu.Unlock()

	if !now.Before(until) {
		return false
	}
	snap := w.store.Snapshot()
	return snap.FacePresent &&
		!snap.Audio.MicMuted &&
		!snap.Audio.TTSPlaying &&
		!snap.Audio.RobotMoving &&
		!snap.Audio.LLMThinking
}

// shouldProbeWake reports whether a short wake-probe session may run:
// nobody present, no wake window, and every noisy channel quiet.
func (w *CaptureWorker) shouldProbeWake(now time.Time) bool {
	if !w.cfg.WakeListen {
		return false
	}
	snap := w.store.Snapshot()
	return !snap.FacePresent &&
		!snap.WakeActive(now) &&
		!snap.Audio.MicMuted &&
		!snap.Audio.TTSPlaying &&
		!snap.Audio.RobotMoving &&
		!snap.Audio.BuzzerActive &&
		!snap.Audio.LLMThinking
}

func (w *CaptureWorker) nextWAVPath() string {
	id := uuid.New().String()[:8]
	name := fmt.Sprintf("utt_%d_%s.wav", time.Now().UnixMilli(), id)
	return filepath.Join(w.cfg.UtteranceDir, name)
}

func (w *CaptureWorker) sleep(d time.Duration) bool {
	select {
	case <-w.quit:
		return false
	case <-time.After(d):
		return true
	}
}

// Run implements bus.Worker.
func (w *CaptureWorker) Run() {
	wakeVAD := w.vad.WakeProbe(w.cfg.WakeMinOpen, w.cfg.WakeMaxRecord)

	for !w.stopped.Load() {
		now := time.Now()

		if text, ok := w.nextGreeting(now); ok {
			w.bus.Publish(w.Name(), bus.TagTTSRequest, map[string]any{
				"text":        text,
				"is_filler":   false,
				"is_greeting": true,
				"created_at":  float64(time.Now().UnixNano()) / 1e9,
			})
		}

		shouldListen := w.store.CanOpenMic() || w.forcedOpen(now)
		if !shouldListen {
			if w.shouldProbeWake(now) {
				w.runWakeProbe(wakeVAD)
				if !w.sleep(w.cfg.WakePollInterval) {
					return
				}
				continue
			}
			if !w.sleep(w.cfg.PollInterval) {
				return
			}
			continue
		}

		w.runFullSession()
		if !w.sleep(w.cfg.ListenCooldown) {
			return
		}
	}
}

func (w *CaptureWorker) runWakeProbe(cfg SessionConfig) {
	wavPath := w.nextWAVPath()

	started := time.Now()
	hasSpeech, err := RecordUtterance(w.src, cfg, wavPath)
	if err != nil {
		log.Error("wake probe failed", "err", err)
		w.bus.Publish(w.Name(), bus.TagAudioError, map[string]any{
			"error": err.Error(),
			"ts":    float64(time.Now().UnixNano()) / 1e9,
		})
	} else {
		log.Info("audio timing",
			"stage", "vad", "mode", "wake",
			"duration_ms", time.Since(started).Milliseconds(),
			"has_speech", hasSpeech, "path", wavPath)
	}

	if hasSpeech {
		w.bus.Publish(w.Name(), bus.TagWakeCandidate, map[string]any{
			"wav_path": wavPath,
			"ts":       float64(time.Now().UnixNano()) / 1e9,
		})
	} else {
		os.Remove(wavPath)
	}
}

func (w *CaptureWorker) runFullSession() {
	wavPath := w.nextWAVPath()

	w.bus.Publish(w.Name(), bus.TagListeningStarted, map[string]any{
		"ts": float64(time.Now().UnixNano()) / 1e9,
	})

	started := time.Now()
	hasSpeech, err := RecordUtterance(w.src, w.vad, wavPath)
	if err != nil {
		log.Error("capture failed", "err", err)
		w.bus.Publish(w.Name(), bus.TagAudioError, map[string]any{
			"error": err.Error(),
			"ts":    float64(time.Now().UnixNano()) / 1e9,
		})
	} else {
		log.Info("audio timing",
			"stage", "vad", "mode", "normal",
			"duration_ms", time.Since(started).Milliseconds(),
			"has_speech", hasSpeech, "path", wavPath)
	}

	w.bus.Publish(w.Name(), bus.TagListeningFinished, map[string]any{
		"ts": float64(time.Now().UnixNano()) / 1e9,
	})

	if hasSpeech {
		w.bus.Publish(w.Name(), bus.TagAudioUtterance, map[string]any{
			"wav_path": wavPath,
			"ts":       float64(time.Now().UnixNano()) / 1e9,
		})
	} else {
		os.Remove(wavPath)
	}
}

var _ bus.Worker = (*CaptureWorker)(nil)
