// Package app assembles the botronka runtime: the bus, the shared
// store, and every worker, wired in dependency order from the loaded
// configuration.
package app

import (
	"context"
	"fmt"

	"github.com/botronka/botronka/internal/config"
	"github.com/botronka/botronka/internal/log"
	"github.com/botronka/botronka/pkg/agent"
	"github.com/botronka/botronka/pkg/audio"
	"github.com/botronka/botronka/pkg/bus"
	"github.com/botronka/botronka/pkg/buzzer"
	"github.com/botronka/botronka/pkg/display"
	"github.com/botronka/botronka/pkg/motion"
	"github.com/botronka/botronka/pkg/sensors"
	"github.com/botronka/botronka/pkg/speech"
	"github.com/botronka/botronka/pkg/state"
	"github.com/botronka/botronka/pkg/web"
)

// Options are the runtime toggles that come from flags rather than the
// config file.
type Options struct {
	ConfigPath string

	// NoAudio disables the microphone pipeline (capture, STT, TTS) for
	// development machines without the audio stack.
	NoAudio bool

	// NoLLM disables the language model collaborator; fast local
	// intents and admin commands keep working.
	NoLLM bool

	// Hardware back-ends. Nil values degrade to no-op drivers (wheels,
	// stepper, buzzer, display) or disable the worker (range sensor).
	Wheels   motion.Wheels
	Stepper  motion.Stepper
	Beeper   buzzer.Beeper
	Range    sensors.RangeFinder
	Renderer display.Renderer
}

// App is the assembled runtime.
type App struct {
	cfg  *config.Config
	opts Options

	bus        *bus.Bus
	store      *state.Store
	dispatcher *bus.Dispatcher

	mic *audio.Mic
}

// New loads configuration and builds the runtime. Nothing is started
// yet; hardware is opened in Init.
func New(opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:   cfg,
		opts:  opts,
		bus:   bus.New(),
		store: state.NewStore(),
	}
	a.dispatcher = bus.NewDispatcher(a.bus, a.store)
	return a, nil
}

// Init opens hardware and registers every worker. Registration order
// is fan-out order; the store itself is fed by the dispatcher before
// any worker sees an event.
func (a *App) Init() error {
	// Sensors and actuators first: they only consume a few tags.
	if a.opts.Range != nil {
		a.dispatcher.Register(sensors.NewRangePoller(a.bus, a.opts.Range, a.cfg.RangeConfig()))
	} else {
		log.Warn("no range sensor, follow mode will not engage")
	}

	a.dispatcher.Register(buzzer.NewWorker(a.bus, a.opts.Beeper, a.cfg.BuzzerConfig()))
	a.dispatcher.Register(display.NewWorker(a.bus, a.opts.Renderer, a.cfg.DisplayConfig()))
	a.dispatcher.Register(motion.NewEngine(a.bus, a.cfg.MotionConfig(), a.opts.Wheels, a.opts.Stepper))

	if !a.opts.NoAudio {
		mic, err := audio.NewMic()
		if err != nil {
			return fmt.Errorf("app: open microphone: %w", err)
		}
		a.mic = mic

		a.dispatcher.Register(audio.NewCaptureWorker(
			a.bus, a.store, mic, a.cfg.CaptureConfig(), a.cfg.SessionConfig()))

		matcher := audio.NewWakeMatcher(a.cfg.WakeNames()...)
		stt := audio.NewWhisperTranscriber(a.cfg.WhisperConfig())
		a.dispatcher.Register(audio.NewTranscribeWorker(a.bus, stt, matcher, a.cfg.TranscribeConfig()))

		speaker, err := speech.NewPiperSpeaker(a.cfg.PiperConfig())
		if err != nil {
			return fmt.Errorf("app: init speech: %w", err)
		}
		a.dispatcher.Register(speech.NewWorker(a.bus, speaker, speech.DefaultConfig()))
	}

	var llm agent.LLMClient
	if !a.opts.NoLLM {
		llm = agent.NewChatClient(a.cfg.ChatConfig())
	}
	a.dispatcher.Register(agent.NewWorker(a.bus, a.store, llm, a.cfg.AgentConfig()))

	if a.cfg.Server.Enabled {
		a.dispatcher.Register(web.NewServer(a.cfg.ServerAddr(), a.bus, a.store))
	}

	return nil
}

// Run starts the dispatcher and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.dispatcher.Start()
	log.Info("botronka running")
	<-ctx.Done()
	return nil
}

// Shutdown stops every worker and releases hardware.
func (a *App) Shutdown() {
	a.dispatcher.Stop()
	if a.mic != nil {
		if err := a.mic.Close(); err != nil {
			log.Warn("microphone close failed", "err", err)
		}
	}
	log.Info("botronka stopped")
}
