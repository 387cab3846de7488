package motion

import "time"

// Wheels is the drive back-end: an H-bridge pair in the real robot.
// Direction calls latch until Stop.
type Wheels interface {
	Stop() error
	Forward() error
	Backward() error
	SpinLeft() error
	SpinRight() error
	Close() error
}

// Stepper is the steering back-end: a bipolar stepper holding the
// quantized steering position. Step moves signed full steps; Release
// de-energizes the coils.
type Stepper interface {
	Step(steps int, delay time.Duration) error
	Release() error
	Close() error
}

// NoopWheels is the fallback drive used when GPIO initialization
// fails, so the rest of the runtime degrades instead of crashing.
type NoopWheels struct{}

func (NoopWheels) Stop() error      { return nil }
func (NoopWheels) Forward() error   { return nil }
func (NoopWheels) Backward() error  { return nil }
func (NoopWheels) SpinLeft() error  { return nil }
func (NoopWheels) SpinRight() error { return nil }
func (NoopWheels) Close() error     { return nil }

// NoopStepper is the steering counterpart of NoopWheels.
type NoopStepper struct{}

func (NoopStepper) Step(int, time.Duration) error { return nil }
func (NoopStepper) Release() error                { return nil }
func (NoopStepper) Close() error                  { return nil }

var (
	_ Wheels  = NoopWheels{}
	_ Stepper = NoopStepper{}
)
