// Package sensors polls the robot's range hardware and feeds readings
// onto the bus.
package sensors

import (
	"sync/atomic"
	"time"

	"github.com/botronka/botronka/internal/log"
	"github.com/botronka/botronka/pkg/bus"
)

// RangeFinder is the forward distance sensor back-end, an HC-SR04
// ultrasonic module on the real robot.
type RangeFinder interface {
	ReadCM() (float64, error)
	Close() error
}

// Config tunes the range poller.
type Config struct {
	Interval time.Duration
}

// DefaultConfig mirrors the on-robot tuning.
func DefaultConfig() Config {
	return Config{Interval: 100 * time.Millisecond}
}

// RangePoller publishes distance_cm at a fixed rate. Read failures go
// out as distance_error and polling continues; a flaky sensor should
// degrade follow mode, not kill it.
type RangePoller struct {
	bus    *bus.Bus
	sensor RangeFinder
	cfg    Config

	quit    chan struct{}
	stopped atomic.Bool
}

// NewRangePoller wires the poller.
func NewRangePoller(b *bus.Bus, sensor RangeFinder, cfg Config) *RangePoller {
	if cfg.Interval < 20*time.Millisecond {
		cfg.Interval = DefaultConfig().Interval
	}
	return &RangePoller{
		bus:    b,
		sensor: sensor,
		cfg:    cfg,
		quit:   make(chan struct{}),
	}
}

// Name implements bus.Worker.
func (p *RangePoller) Name() string { return "ultrasonic" }

// Stop implements bus.Worker.
func (p *RangePoller) Stop() {
	if !p.stopped.Swap(true) {
		close(p.quit)
	}
}

// OnEvent implements bus.Worker. The poller only produces events.
func (p *RangePoller) OnEvent(bus.Event) {}

// Run implements bus.Worker.
func (p *RangePoller) Run() {
	defer func() {
		if err := p.sensor.Close(); err != nil {
			log.Warn("range sensor close failed", "err", err)
		}
	}()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.quit:
			return
		case <-ticker.C:
			v, err := p.sensor.ReadCM()
			if err != nil {
				log.Warn("range read failed", "err", err)
				p.bus.Publish(p.Name(), bus.TagDistanceError, map[string]any{
					"error": err.Error(),
				})
				continue
			}
			p.bus.Publish(p.Name(), bus.TagDistanceCM, map[string]any{
				"value": v,
			})
		}
	}
}

var _ bus.Worker = (*RangePoller)(nil)
