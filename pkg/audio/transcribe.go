package audio

import (
	"context"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/botronka/botronka/internal/log"
	"github.com/botronka/botronka/pkg/bus"
)

// Transcriber converts a WAV file to text. The concrete backend
// (whisper subprocess, cloud STT) lives outside this package.
type Transcriber interface {
	Transcribe(ctx context.Context, wavPath string) (string, error)
}

// WakeTranscriber is an optional fast path for wake probes: a backend
// that can bias decoding toward the wake vocabulary implements this,
// and the worker uses it for wake candidates.
type WakeTranscriber interface {
	TranscribeWake(ctx context.Context, wavPath string) (string, error)
}

// TranscribeConfig tunes the transcription worker.
type TranscribeConfig struct {
	MinTextChars   int           // reject transcripts shorter than this
	DeleteWAVAfter bool          // remove utterance files once consumed
	WakeOpen       time.Duration // base wake window granted on detection
	WakeMaxAge     time.Duration // drop wake candidates older than this
}

// DefaultTranscribeConfig mirrors the on-robot tuning.
func DefaultTranscribeConfig() TranscribeConfig {
	return TranscribeConfig{
		MinTextChars:   2,
		DeleteWAVAfter: true,
		WakeOpen:       12 * time.Second,
		WakeMaxAge:     4 * time.Second,
	}
}

// TranscribeWorker consumes captured utterances. Normal utterances go
// through a FIFO; wake candidates go through a single latest-wins slot
// so repeated false triggers cannot build an STT backlog that delays a
// real wake phrase.
type TranscribeWorker struct {
	bus     *bus.Bus
	stt     Transcriber
	matcher *WakeMatcher
	cfg     TranscribeConfig

	inbox chan bus.Event

	wakeMu     sync.Mutex
	latestWake *bus.Event

	quit    chan struct{}
	stopped atomic.Bool
}

// NewTranscribeWorker wires the transcription worker.
func NewTranscribeWorker(b *bus.Bus, stt Transcriber, matcher *WakeMatcher, cfg TranscribeConfig) *TranscribeWorker {
	if matcher == nil {
		matcher = NewWakeMatcher()
	}
	return &TranscribeWorker{
		bus:     b,
		stt:     stt,
		matcher: matcher,
		cfg:     cfg,
		inbox:   make(chan bus.Event, 64),
		quit:    make(chan struct{}),
	}
}

// Name implements bus.Worker.
func (w *TranscribeWorker) Name() string { return "transcribe" }

// Stop implements bus.Worker.
func (w *TranscribeWorker) Stop() {
	if !w.stopped.Swap(true) {
		close(w.quit)
	}
}

// OnEvent routes utterances into the FIFO and wake candidates into the
// latest-wins slot, deleting the file of any replaced candidate.
func (w *TranscribeWorker) OnEvent(e bus.Event) {
	switch e.Tag {
	case bus.TagAudioUtterance:
		select {
		case w.inbox <- e:
		default:
			// Inbox full: drop the oldest-pending behavior is not worth
			// the complexity; drop this one and reclaim its file.
			if path, ok := e.String("wav_path"); ok {
				os.Remove(path)
			}
			log.Warn("transcribe inbox full, dropped utterance")
		}
	case bus.TagWakeCandidate:
		w.wakeMu.Lock()
		stale := w.latestWake
		copied := e
		w.latestWake = &copied
		w.wakeMu.Unlock()

		if stale != nil {
			if path, ok := stale.String("wav_path"); ok {
				os.Remove(path)
			}
			log.Debug("dropped stale wake candidate for newer sample")
		}
	}
}

func (w *TranscribeWorker) popLatestWake() *bus.Event {
	w.wakeMu.Lock()
	defer w.wakeMu.Unlock()
	e := w.latestWake
	w.latestWake = nil
	return e
}

// Run implements bus.Worker. A pending wake candidate is always
// preferred over the normal FIFO.
func (w *TranscribeWorker) Run() {
	for !w.stopped.Load() {
		var e bus.Event
		if wake := w.popLatestWake(); wake != nil {
			e = *wake
		} else {
			select {
			case <-w.quit:
				return
			case e = <-w.inbox:
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}
		w.process(e)
	}
}

func (w *TranscribeWorker) process(e bus.Event) {
	wavPath, ok := e.String("wav_path")
	if !ok || wavPath == "" {
		return
	}
	defer func() {
		if w.cfg.DeleteWAVAfter {
			os.Remove(wavPath)
		}
	}()

	isWake := e.Tag == bus.TagWakeCandidate
	if isWake {
		if age := time.Since(e.Time); age > w.cfg.WakeMaxAge {
			log.Info("dropping stale wake candidate",
				"age_s", age.Seconds(), "path", wavPath)
			return
		}
	}

	started := time.Now()
	var text string
	var err error
	if wt, ok := w.stt.(WakeTranscriber); ok && isWake {
		text, err = wt.TranscribeWake(context.Background(), wavPath)
	} else {
		text, err = w.stt.Transcribe(context.Background(), wavPath)
	}
	sttMS := float64(time.Since(started).Microseconds()) / 1000.0
	if err != nil {
		log.Error("transcription failed", "err", err, "path", wavPath)
		w.bus.Publish(w.Name(), bus.TagSTTError, map[string]any{
			"error": err.Error(),
			"ts":    eventTS(e),
		})
		return
	}

	text = strings.TrimSpace(text)
	accepted := len(text) >= w.cfg.MinTextChars
	log.Info("audio timing",
		"stage", "stt", "mode", e.Tag,
		"duration_ms", sttMS, "text_chars", len(text), "accepted", accepted)
	if !accepted {
		return
	}

	if isWake {
		w.finishWakeCandidate(e, text, sttMS)
		return
	}

	w.bus.Publish(w.Name(), bus.TagSTTText, map[string]any{
		"text":     text,
		"wav_path": wavPath,
		"ts":       eventTS(e),
	})
}

// finishWakeCandidate runs the wake matcher and, on a hit, grants a
// wake window inflated by the measured STT latency: on-device STT is
// slow, and the mic must stay open at least as long as the detection
// step itself took.
func (w *TranscribeWorker) finishWakeCandidate(e bus.Event, text string, sttMS float64) {
	if !w.matcher.Match(text) {
		log.Info("wake phrase rejected", "text", text)
		return
	}

	sttSec := sttMS / 1000.0
	if sttSec < 1.0 {
		sttSec = 1.0
	}
	durationS := w.cfg.WakeOpen.Seconds() + sttSec
	if durationS < 0.5 {
		durationS = 0.5
	}

	w.bus.Publish(w.Name(), bus.TagWakeDetected, map[string]any{
		"text":       text,
		"duration_s": durationS,
		"stt_ms":     sttMS,
		"ts":         eventTS(e),
	})
	w.bus.Publish(w.Name(), bus.TagBuzzerCountdown, map[string]any{
		"steps":      1,
		"interval_s": 0.05,
		"created_at": float64(time.Now().UnixNano()) / 1e9,
	})
	log.Info("wake phrase detected",
		"text", text, "wake_duration_s", durationS, "stt_ms", sttMS)
}

func eventTS(e bus.Event) float64 {
	if ts, ok := e.Float("ts"); ok {
		return ts
	}
	return float64(e.Time.UnixNano()) / 1e9
}

var _ bus.Worker = (*TranscribeWorker)(nil)
