package speech

import (
	"sync/atomic"
	"time"

	"github.com/botronka/botronka/internal/log"
	"github.com/botronka/botronka/pkg/bus"
)

// Config tunes the TTS worker.
type Config struct {
	// PreGeneratePhrases are synthesized into the cache at startup.
	PreGeneratePhrases []string

	// SkipStaleFillers drops a queued filler phrase when the real reply
	// is already waiting behind it.
	SkipStaleFillers bool
}

// DefaultConfig mirrors the on-robot tuning.
func DefaultConfig() Config {
	return Config{
		PreGeneratePhrases: []string{
			"Hi, who are you?",
			"Working on it.",
			"Let me think.",
			"Hmm, gotcha.",
		},
		SkipStaleFillers: true,
	}
}

// Worker serializes speech output: one phrase at a time, with
// tts_started and tts_finished bracketing actual playback so the store
// can mute the mic for exactly the speaking interval.
type Worker struct {
	bus     *bus.Bus
	speaker Speaker
	cfg     Config

	inbox   chan bus.Event
	quit    chan struct{}
	stopped atomic.Bool
}

// NewWorker wires the TTS worker and warms the phrase cache when the
// speaker supports it.
func NewWorker(b *bus.Bus, speaker Speaker, cfg Config) *Worker {
	w := &Worker{
		bus:     b,
		speaker: speaker,
		cfg:     cfg,
		inbox:   make(chan bus.Event, 32),
		quit:    make(chan struct{}),
	}

	type preGenerator interface{ PreGenerate([]string) error }
	if pg, ok := speaker.(preGenerator); ok && len(cfg.PreGeneratePhrases) > 0 {
		if err := pg.PreGenerate(cfg.PreGeneratePhrases); err != nil {
			log.Warn("tts pre-generate failed", "err", err)
		}
	}
	return w
}

// Name implements bus.Worker.
func (w *Worker) Name() string { return "tts" }

// Stop implements bus.Worker.
func (w *Worker) Stop() {
	if !w.stopped.Swap(true) {
		close(w.quit)
	}
}

// OnEvent implements bus.Worker.
func (w *Worker) OnEvent(e bus.Event) {
	if e.Tag != bus.TagTTSRequest {
		return
	}
	select {
	case w.inbox <- e:
	default:
		log.Warn("tts inbox full, dropped request")
	}
}

// Run implements bus.Worker.
func (w *Worker) Run() {
	for {
		select {
		case <-w.quit:
			return
		case e := <-w.inbox:
			w.speak(e)
		}
	}
}

func (w *Worker) speak(e bus.Event) {
	text, _ := e.String("text")
	if text == "" {
		return
	}
	isFiller, _ := e.Bool("is_filler")
	command, _ := e.String("command")

	// A filler only masks LLM latency; if the real reply already
	// arrived, speaking the filler would delay it for nothing.
	if isFiller && w.cfg.SkipStaleFillers && len(w.inbox) > 0 {
		log.Debug("skipping stale filler", "text", text)
		return
	}

	w.bus.Publish(w.Name(), bus.TagTTSStarted, map[string]any{
		"ts":        float64(time.Now().UnixNano()) / 1e9,
		"text":      text,
		"is_filler": isFiller,
	})

	err := w.speaker.Speak(text)

	// tts_finished must follow tts_started even on failure, or the
	// store would keep the mic muted forever.
	w.bus.Publish(w.Name(), bus.TagTTSFinished, map[string]any{
		"ts":        float64(time.Now().UnixNano()) / 1e9,
		"text":      text,
		"is_filler": isFiller,
		"command":   command,
	})

	if err != nil {
		log.Error("tts playback failed", "err", err, "text", text)
		w.bus.Publish(w.Name(), bus.TagTTSError, map[string]any{
			"error": err.Error(),
			"text":  text,
		})
	}
}

var _ bus.Worker = (*Worker)(nil)
