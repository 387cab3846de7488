// Package buzzer drives the piezo buzzer: countdown beeps requested
// over the bus and a proximity alarm when something is too close.
package buzzer

import (
	"sync/atomic"
	"time"

	"github.com/botronka/botronka/internal/log"
	"github.com/botronka/botronka/pkg/bus"
)

// Beeper is the buzzer back-end. Chirp blocks for the given on-time.
type Beeper interface {
	Chirp(d time.Duration) error
	Close() error
}

// NoopBeeper is the fallback used when GPIO initialization fails.
type NoopBeeper struct{}

func (NoopBeeper) Chirp(time.Duration) error { return nil }
func (NoopBeeper) Close() error              { return nil }

// Config tunes the buzzer worker.
type Config struct {
	TooCloseCM       float64       // proximity alarm threshold
	TooCloseCooldown time.Duration // minimum gap between proximity alarms
}

// DefaultConfig mirrors the on-robot tuning.
func DefaultConfig() Config {
	return Config{
		TooCloseCM:       15,
		TooCloseCooldown: time.Second,
	}
}

// Worker plays buzzer patterns. buzzer_state brackets every pattern so
// the store mutes the mic while the buzzer is sounding.
type Worker struct {
	bus    *bus.Bus
	beeper Beeper
	cfg    Config

	inbox   chan bus.Event
	quit    chan struct{}
	stopped atomic.Bool

	lastTooClose time.Time
}

// NewWorker wires the buzzer worker. A nil beeper falls back to the
// no-op back-end.
func NewWorker(b *bus.Bus, beeper Beeper, cfg Config) *Worker {
	if beeper == nil {
		log.Warn("buzzer: no hardware driver, using no-op")
		beeper = NoopBeeper{}
	}
	if cfg.TooCloseCM <= 0 {
		cfg.TooCloseCM = DefaultConfig().TooCloseCM
	}
	if cfg.TooCloseCooldown <= 0 {
		cfg.TooCloseCooldown = DefaultConfig().TooCloseCooldown
	}
	return &Worker{
		bus:    b,
		beeper: beeper,
		cfg:    cfg,
		inbox:  make(chan bus.Event, 32),
		quit:   make(chan struct{}),
	}
}

// Name implements bus.Worker.
func (w *Worker) Name() string { return "buzzer" }

// Stop implements bus.Worker.
func (w *Worker) Stop() {
	if !w.stopped.Swap(true) {
		close(w.quit)
	}
}

// OnEvent implements bus.Worker.
func (w *Worker) OnEvent(e bus.Event) {
	switch e.Tag {
	case bus.TagBuzzerCountdown, bus.TagDistanceCM:
		select {
		case w.inbox <- e:
		default:
		}
	}
}

// Run implements bus.Worker.
func (w *Worker) Run() {
	defer func() {
		if err := w.beeper.Close(); err != nil {
			log.Warn("buzzer close failed", "err", err)
		}
	}()

	for {
		select {
		case <-w.quit:
			return
		case e := <-w.inbox:
			w.handle(e)
		}
	}
}

func (w *Worker) handle(e bus.Event) {
	switch e.Tag {
	case bus.TagBuzzerCountdown:
		steps := 3
		if v, ok := e.Float("steps"); ok {
			steps = int(v)
		}
		interval := 600 * time.Millisecond
		if v, ok := e.Float("interval_s"); ok && v > 0 {
			interval = time.Duration(v * float64(time.Second))
		}
		log.Info("buzzer countdown", "steps", steps, "interval", interval)
		w.withState(func() {
			w.patternCountdown(steps, interval)
		})

	case bus.TagDistanceCM:
		v, ok := e.Float("value")
		if !ok || v <= 0 || v >= w.cfg.TooCloseCM {
			return
		}
		if time.Since(w.lastTooClose) < w.cfg.TooCloseCooldown {
			return
		}
		w.lastTooClose = time.Now()
		log.Info("obstacle too close, sounding alarm", "distance_cm", v)
		w.withState(w.patternTooClose)
	}
}

// withState publishes the active bracket around a pattern. The false
// edge is published even if the pattern panics, since a stuck true
// would mute the mic permanently.
func (w *Worker) withState(pattern func()) {
	w.bus.Publish(w.Name(), bus.TagBuzzerState, map[string]any{"active": true})
	defer w.bus.Publish(w.Name(), bus.TagBuzzerState, map[string]any{"active": false})
	pattern()
}

func (w *Worker) chirp(d time.Duration) {
	if err := w.beeper.Chirp(d); err != nil {
		log.Warn("buzzer chirp failed", "err", err)
	}
}

func (w *Worker) patternCountdown(steps int, interval time.Duration) {
	for i := 0; i < steps; i++ {
		w.chirp(80 * time.Millisecond)
		gap := interval - 80*time.Millisecond
		if gap < 0 {
			gap = 0
		}
		if !w.sleep(gap) {
			return
		}
	}
}

func (w *Worker) patternTooClose() {
	for i := 0; i < 6; i++ {
		w.chirp(30 * time.Millisecond)
		if !w.sleep(30 * time.Millisecond) {
			return
		}
	}
}

func (w *Worker) sleep(d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-w.quit:
		return false
	case <-time.After(d):
		return true
	}
}

var (
	_ bus.Worker = (*Worker)(nil)
	_ Beeper     = NoopBeeper{}
)
