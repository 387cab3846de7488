package motion

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/botronka/botronka/internal/log"
	"github.com/botronka/botronka/pkg/bus"
)

// Config tunes the motion engine.
type Config struct {
	MoveDuration time.Duration // default straight-drive time
	TurnDuration time.Duration // default spin-turn time
	LoopSleep    time.Duration // tick interval

	// Follow controller: dead-band bang-bang with discrete pulses.
	FollowToleranceCM float64
	FollowPulse       time.Duration
	FollowReplan      time.Duration

	// Steering quantization: full steps from center to one extreme.
	StepsPerSide int
	StepDelay    time.Duration
}

// DefaultConfig mirrors the on-robot tuning.
func DefaultConfig() Config {
	return Config{
		MoveDuration:      800 * time.Millisecond,
		TurnDuration:      600 * time.Millisecond,
		LoopSleep:         50 * time.Millisecond,
		FollowToleranceCM: 3.0,
		FollowPulse:       250 * time.Millisecond,
		FollowReplan:      250 * time.Millisecond,
		StepsPerSide:      50,
		StepDelay:         10 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MoveDuration <= 0 {
		c.MoveDuration = d.MoveDuration
	}
	if c.TurnDuration <= 0 {
		c.TurnDuration = d.TurnDuration
	}
	if c.LoopSleep < 10*time.Millisecond {
		c.LoopSleep = d.LoopSleep
	}
	if c.FollowToleranceCM < 0.5 {
		c.FollowToleranceCM = d.FollowToleranceCM
	}
	if c.FollowPulse < 50*time.Millisecond {
		c.FollowPulse = d.FollowPulse
	}
	if c.FollowReplan < 50*time.Millisecond {
		c.FollowReplan = d.FollowReplan
	}
	if c.StepsPerSide < 1 {
		c.StepsPerSide = d.StepsPerSide
	}
	if c.StepDelay < 0 {
		c.StepDelay = 0
	}
	return c
}

// Engine is the motion worker. All MotionState fields are owned by the
// engine's own goroutine; the dispatcher only feeds its inbox.
type Engine struct {
	bus     *bus.Bus
	cfg     Config
	wheels  Wheels
	stepper Stepper

	inbox   chan bus.Event
	quit    chan struct{}
	stopped atomic.Bool

	// Loop-owned state.
	latestDistanceCM float64
	hasDistance      bool

	followEnabled bool
	followTarget  float64
	hasTarget     bool
	lastFollowAt  time.Time

	driveDirection Action // "" when no timed drive is active
	driveUntil     time.Time
	isMoving       bool

	steerSide int // -1 left extreme, 0 center, +1 right extreme
}

// NewEngine wires the motion engine. Nil wheels or stepper fall back
// to no-op drivers.
func NewEngine(b *bus.Bus, cfg Config, wheels Wheels, stepper Stepper) *Engine {
	if wheels == nil {
		log.Warn("motion: no wheels driver, using no-op")
		wheels = NoopWheels{}
	}
	if stepper == nil {
		log.Warn("motion: no stepper driver, using no-op")
		stepper = NoopStepper{}
	}
	return &Engine{
		bus:     b,
		cfg:     cfg.withDefaults(),
		wheels:  wheels,
		stepper: stepper,
		inbox:   make(chan bus.Event, 128),
		quit:    make(chan struct{}),
	}
}

// Name implements bus.Worker.
func (en *Engine) Name() string { return "motion" }

// Stop implements bus.Worker.
func (en *Engine) Stop() {
	if !en.stopped.Swap(true) {
		close(en.quit)
	}
}

// OnEvent implements bus.Worker: copy relevant events into the inbox.
func (en *Engine) OnEvent(e bus.Event) {
	switch e.Tag {
	case bus.TagMotionCommand, bus.TagDistanceCM:
		select {
		case en.inbox <- e:
		default:
			log.Warn("motion inbox full, dropped event", "tag", e.Tag)
		}
	}
}

// Run implements bus.Worker: drain the inbox, expire the active timed
// drive, evaluate the follow loop, repeat. Hardware is released on
// exit no matter how the loop ends.
func (en *Engine) Run() {
	defer en.shutdownHardware()

	for !en.stopped.Load() {
		now := time.Now()

	drain:
		for {
			select {
			case e := <-en.inbox:
				en.handleEvent(e)
			default:
				break drain
			}
		}

		en.tick(now)

		select {
		case <-en.quit:
			return
		case <-time.After(en.cfg.LoopSleep):
		}
	}
}

func (en *Engine) handleEvent(e bus.Event) {
	switch e.Tag {
	case bus.TagDistanceCM:
		if v, ok := e.Float("value"); ok {
			en.latestDistanceCM = v
			en.hasDistance = true
		}
	case bus.TagMotionCommand:
		cmd, ok := e.String("command")
		if !ok || cmd == "" {
			return
		}
		en.Execute(cmd)
	}
}

// Execute parses and applies one free-text motion instruction. Only
// called from the engine goroutine (and from tests driving the engine
// synchronously).
func (en *Engine) Execute(text string) {
	parsed := Parse(text)
	if parsed.Action == ActionUnknown {
		log.Warn("motion ignored unknown command", "command", text)
		return
	}
	log.Info("motion command", "raw", text, "action", string(parsed.Action))

	switch parsed.Action {
	case ActionStop:
		en.followEnabled = false
		en.hasTarget = false
		en.stopDrive()
		return

	case ActionFollow:
		en.stopDrive()
		// Follow keeps longitudinal distance, so steering must be
		// centered before the first pulse.
		en.setSteerSide(0)
		en.followEnabled = true
		if parsed.HasTarget {
			en.followTarget = parsed.FollowTargetCM
			en.hasTarget = true
		} else if en.hasDistance {
			en.followTarget = en.latestDistanceCM
			en.hasTarget = true
		} else {
			en.hasTarget = false
		}
		en.lastFollowAt = time.Time{}
		log.Info("follow mode enabled", "target_cm", en.followTarget, "has_target", en.hasTarget)
		return
	}

	// Any manual command exits follow mode.
	en.followEnabled = false
	en.hasTarget = false

	switch parsed.Action {
	case ActionStepperLeft:
		en.setSteerSide(-1)
	case ActionStepperRight:
		en.setSteerSide(+1)
	case ActionStepperCenter:
		en.setSteerSide(0)

	case ActionLeft, ActionRight:
		side := -1
		if parsed.Action == ActionRight {
			side = +1
		}
		en.setSteerSide(side)
		dur := en.cfg.TurnDuration
		if parsed.HasDuration {
			dur = parsed.Duration
		}
		en.startDrive(parsed.Action, dur, time.Now())

	case ActionForward, ActionBackward:
		// Steering and straight drive are coupled: recenter first.
		en.setSteerSide(0)
		dur := en.cfg.MoveDuration
		if parsed.HasDuration {
			dur = parsed.Duration
		}
		en.startDrive(parsed.Action, dur, time.Now())
	}
}

func (en *Engine) startDrive(dir Action, duration time.Duration, now time.Time) {
	var err error
	switch dir {
	case ActionForward:
		err = en.wheels.Forward()
	case ActionBackward:
		err = en.wheels.Backward()
	case ActionLeft:
		err = en.wheels.SpinLeft()
	case ActionRight:
		err = en.wheels.SpinRight()
	default:
		en.stopDrive()
		return
	}
	if err != nil {
		log.Error("drive start failed", "direction", string(dir), "err", err)
		en.stopDrive()
		return
	}

	en.driveDirection = dir
	if duration < 0 {
		duration = 0
	}
	en.driveUntil = now.Add(duration)
	en.setMoving(true)
}

func (en *Engine) stopDrive() {
	if err := en.wheels.Stop(); err != nil {
		log.Error("wheels stop failed", "err", err)
	}
	en.driveDirection = ""
	en.driveUntil = time.Time{}
	en.setMoving(false)
}

// setMoving reports the moving flag back onto the bus on edges only.
func (en *Engine) setMoving(moving bool) {
	if moving == en.isMoving {
		return
	}
	en.isMoving = moving
	en.bus.Publish(en.Name(), bus.TagMotionState, map[string]any{
		"moving": moving,
	})
}

// setSteerSide moves the steering stepper to the quantized side,
// issuing exactly (new − old) × StepsPerSide physical steps. A
// same-side request is a no-op.
func (en *Engine) setSteerSide(side int) {
	if side < -1 {
		side = -1
	} else if side > 1 {
		side = 1
	}
	if side == en.steerSide {
		return
	}

	delta := (side - en.steerSide) * en.cfg.StepsPerSide
	if err := en.stepper.Step(delta, en.cfg.StepDelay); err != nil {
		log.Error("stepper move failed", "steps", delta, "err", err)
		return
	}
	en.steerSide = side
}

// SteerSide returns the current quantized steering position.
func (en *Engine) SteerSide() int { return en.steerSide }

// tick expires the active timed drive, then evaluates follow.
func (en *Engine) tick(now time.Time) {
	if en.driveDirection != "" && !now.Before(en.driveUntil) {
		en.stopDrive()
	}
	en.tickFollow(now)
}

// tickFollow is the dead-band bang-bang follow controller. Actuation
// only supports discrete timed pulses, so a continuous PID has nothing
// to modulate; short forward/backward pulses at a bounded replan rate
// are the whole control law.
func (en *Engine) tickFollow(now time.Time) {
	if !en.followEnabled || en.driveDirection != "" {
		return
	}

	if !en.hasTarget {
		if en.hasDistance {
			en.followTarget = en.latestDistanceCM
			en.hasTarget = true
		}
		return
	}
	if !en.hasDistance {
		return
	}

	errorCM := en.latestDistanceCM - en.followTarget
	if math.Abs(errorCM) <= en.cfg.FollowToleranceCM {
		return
	}
	if !en.lastFollowAt.IsZero() && now.Sub(en.lastFollowAt) < en.cfg.FollowReplan {
		return
	}

	dir := ActionForward
	if errorCM < 0 {
		dir = ActionBackward
	}
	en.startDrive(dir, en.cfg.FollowPulse, now)
	en.lastFollowAt = now
}

// shutdownHardware stops the drive and releases both actuators. Every
// step is attempted even if an earlier one fails.
func (en *Engine) shutdownHardware() {
	if err := en.wheels.Stop(); err != nil {
		log.Warn("motion shutdown: wheels stop failed", "err", err)
	}
	en.driveDirection = ""
	en.setMoving(false)

	if err := en.stepper.Release(); err != nil {
		log.Warn("motion shutdown: stepper release failed", "err", err)
	}
	if err := en.wheels.Close(); err != nil {
		log.Warn("motion shutdown: wheels close failed", "err", err)
	}
	if err := en.stepper.Close(); err != nil {
		log.Warn("motion shutdown: stepper close failed", "err", err)
	}
}

var _ bus.Worker = (*Engine)(nil)
