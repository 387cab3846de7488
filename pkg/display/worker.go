package display

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/botronka/botronka/internal/log"
	"github.com/botronka/botronka/pkg/bus"
	"github.com/botronka/botronka/pkg/state"
)

// Config tunes the behavior engine.
type Config struct {
	LonelyAfter     time.Duration // no face for this long means lonely
	StuckDistanceCM float64       // closer than this counts toward stuck
	StuckAfter      time.Duration // sustained closeness before stuck
	Refresh         time.Duration // redraw poll interval
}

// DefaultConfig mirrors the on-robot tuning.
func DefaultConfig() Config {
	return Config{
		LonelyAfter:     30 * time.Second,
		StuckDistanceCM: 10,
		StuckAfter:      5 * time.Second,
		Refresh:         200 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.LonelyAfter <= 0 {
		c.LonelyAfter = d.LonelyAfter
	}
	if c.StuckDistanceCM <= 0 {
		c.StuckDistanceCM = d.StuckDistanceCM
	}
	if c.StuckAfter <= 0 {
		c.StuckAfter = d.StuckAfter
	}
	if c.Refresh <= 0 {
		c.Refresh = d.Refresh
	}
	return c
}

// Worker decides the face each tick. Emotion priority: a vision error
// is angry, a long-empty room is lonely, a sustained obstacle is
// stuck, an unrecognized face is suspicious, a face rising edge is a
// greeting, everything else is happy.
type Worker struct {
	bus      *bus.Bus
	renderer Renderer
	cfg      Config

	quit    chan struct{}
	stopped atomic.Bool

	now func() time.Time

	mu               sync.Mutex
	recognitionError bool
	distanceCM       float64
	hasDistance      bool
	faceDetected     bool
	facePresent      bool // faceDetected as of the previous tick
	trust            state.TrustLevel
	lastSeenName     string
	lastFace         time.Time
	stuckSince       time.Time

	lastEmotion  Emotion
	lastSubtitle string
	drawn        bool
}

// NewWorker wires the display worker. A nil renderer falls back to the
// no-op back-end.
func NewWorker(b *bus.Bus, renderer Renderer, cfg Config) *Worker {
	if renderer == nil {
		log.Warn("display: no hardware driver, using no-op")
		renderer = NoopRenderer{}
	}
	return &Worker{
		bus:          b,
		renderer:     renderer,
		cfg:          cfg.withDefaults(),
		quit:         make(chan struct{}),
		now:          time.Now,
		trust:        state.TrustUnknown,
		lastSeenName: "UNKNOWN",
	}
}

// Name implements bus.Worker.
func (w *Worker) Name() string { return "display" }

// Stop implements bus.Worker.
func (w *Worker) Stop() {
	if !w.stopped.Swap(true) {
		close(w.quit)
	}
}

// OnEvent implements bus.Worker. Updates are cheap field writes; the
// tick loop does the drawing.
func (w *Worker) OnEvent(e bus.Event) {
	switch e.Tag {
	case bus.TagDistanceCM:
		v, ok := e.Float("value")
		if !ok {
			return
		}
		w.mu.Lock()
		w.distanceCM = v
		w.hasDistance = true
		w.mu.Unlock()

	case bus.TagVisionIdentity:
		detected, _ := e.Bool("face_detected")
		name, hasName := e.String("name")
		if !hasName || name == "" {
			name = "UNKNOWN"
		}
		trust := state.TrustUnknown
		if lit, ok := e.String("trust_level"); ok {
			if lvl, err := state.ParseTrustLevel(lit); err == nil {
				trust = lvl
			}
		}

		w.mu.Lock()
		w.faceDetected = detected
		w.lastSeenName = name
		w.trust = trust
		if detected {
			w.lastFace = w.now()
		}
		w.mu.Unlock()

	case bus.TagVisionError:
		w.mu.Lock()
		w.recognitionError = true
		w.mu.Unlock()
	}
}

// Run implements bus.Worker.
func (w *Worker) Run() {
	defer func() {
		if err := w.renderer.Close(); err != nil {
			log.Warn("display close failed", "err", err)
		}
	}()

	ticker := time.NewTicker(w.cfg.Refresh)
	defer ticker.Stop()

	for {
		select {
		case <-w.quit:
			return
		case <-ticker.C:
			w.tick()
		}
	}
}

func (w *Worker) tick() {
	emotion, subtitle := w.evaluate(w.now())

	// Redrawing an unchanged frame only burns the I2C bus.
	if w.drawn && emotion == w.lastEmotion && subtitle == w.lastSubtitle {
		return
	}
	if err := w.renderer.Draw(emotion, subtitle); err != nil {
		log.Warn("display draw failed", "err", err)
		return
	}
	log.Debug("display", "emotion", emotion.String(), "subtitle", subtitle)
	w.lastEmotion = emotion
	w.lastSubtitle = subtitle
	w.drawn = true
}

// evaluate picks the emotion and subtitle for one tick and advances
// the face edge so a greeting shows exactly once per appearance.
func (w *Worker) evaluate(now time.Time) (Emotion, string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	emotion := w.decideEmotion(now)

	var parts []string
	if w.hasDistance {
		parts = append(parts, fmt.Sprintf("%.0fcm", w.distanceCM))
	}
	if w.faceDetected {
		parts = append(parts, w.lastSeenName, w.trust.String())
	}

	w.facePresent = w.faceDetected
	return emotion, strings.Join(parts, " ")
}

func (w *Worker) decideEmotion(now time.Time) Emotion {
	if w.recognitionError {
		return EmotionAngry
	}

	if now.Sub(w.lastFace) > w.cfg.LonelyAfter {
		return EmotionLonely
	}

	if w.hasDistance && w.distanceCM < w.cfg.StuckDistanceCM {
		if w.stuckSince.IsZero() {
			w.stuckSince = now
		} else if now.Sub(w.stuckSince) > w.cfg.StuckAfter {
			return EmotionStuck
		}
	} else {
		w.stuckSince = time.Time{}
	}

	if w.faceDetected && w.trust == state.TrustUnknown {
		return EmotionSuspicious
	}

	if w.faceDetected && !w.facePresent {
		return EmotionGreeting
	}

	return EmotionHappy
}

var _ bus.Worker = (*Worker)(nil)
