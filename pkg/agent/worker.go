package agent

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/botronka/botronka/internal/log"
	"github.com/botronka/botronka/pkg/bus"
	"github.com/botronka/botronka/pkg/people"
	"github.com/botronka/botronka/pkg/state"
)

// Config tunes the agent worker.
type Config struct {
	MinMoveTrust state.TrustLevel // lowest trust allowed to move the robot

	FaceDBPath   string
	TrustMapPath string

	RegisterTimeout           time.Duration
	RegisterCountdownSteps    int
	RegisterCountdownInterval time.Duration

	LLMTimeout time.Duration

	EnableFiller  bool
	FillerPhrases []string
}

// DefaultConfig mirrors the on-robot tuning.
func DefaultConfig() Config {
	return Config{
		MinMoveTrust:              state.TrustFriend,
		FaceDBPath:                "data/people/face_db.json",
		TrustMapPath:              "data/people/trust_map.json",
		RegisterTimeout:           18 * time.Second,
		RegisterCountdownSteps:    3,
		RegisterCountdownInterval: 600 * time.Millisecond,
		LLMTimeout:                30 * time.Second,
		EnableFiller:              true,
		FillerPhrases: []string{
			"Working on it.",
			"Let me think.",
			"Hmm, gotcha.",
		},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FaceDBPath == "" {
		c.FaceDBPath = d.FaceDBPath
	}
	if c.TrustMapPath == "" {
		c.TrustMapPath = d.TrustMapPath
	}
	if c.RegisterTimeout < time.Second {
		c.RegisterTimeout = d.RegisterTimeout
	}
	if c.RegisterCountdownSteps < 0 {
		c.RegisterCountdownSteps = 0
	}
	if c.RegisterCountdownInterval < 50*time.Millisecond {
		c.RegisterCountdownInterval = d.RegisterCountdownInterval
	}
	if c.LLMTimeout <= 0 {
		c.LLMTimeout = d.LLMTimeout
	}
	return c
}

// Worker consumes transcribed user turns and produces replies. Admin
// intents (promote, register) are handled locally against the side
// tables; everything else goes to the LLM, and any command clears the
// trust policy gate before reaching the motion engine.
type Worker struct {
	bus   *bus.Bus
	store *state.Store
	llm   LLMClient
	cfg   Config

	trustMap *people.Table
	faceDB   *people.Table

	inbox           chan bus.Event
	registerResults chan bus.Event
	quit            chan struct{}
	stopped         atomic.Bool

	fillerIdx int
}

// NewWorker wires the agent. A nil llm disables the model path; fast
// local intents and admin handling keep working without it.
func NewWorker(b *bus.Bus, store *state.Store, llm LLMClient, cfg Config) *Worker {
	cfg = cfg.withDefaults()
	return &Worker{
		bus:             b,
		store:           store,
		llm:             llm,
		cfg:             cfg,
		trustMap:        people.NewTable(cfg.TrustMapPath),
		faceDB:          people.NewTable(cfg.FaceDBPath),
		inbox:           make(chan bus.Event, 64),
		registerResults: make(chan bus.Event, 16),
		quit:            make(chan struct{}),
	}
}

// Name implements bus.Worker.
func (w *Worker) Name() string { return "agent" }

// Stop implements bus.Worker.
func (w *Worker) Stop() {
	if !w.stopped.Swap(true) {
		close(w.quit)
	}
}

// OnEvent implements bus.Worker: user turns go to the main inbox,
// registration results to their own private inbox so the synchronous
// register flow can wait on them without eating unrelated events.
func (w *Worker) OnEvent(e bus.Event) {
	switch e.Tag {
	case bus.TagSTTText:
		select {
		case w.inbox <- e:
		default:
			log.Warn("agent inbox full, dropped user turn")
		}
	case bus.TagRegisterResult:
		select {
		case w.registerResults <- e:
		default:
		}
	}
}

// Run implements bus.Worker.
func (w *Worker) Run() {
	for {
		select {
		case <-w.quit:
			return
		case e := <-w.inbox:
			w.handleTurn(e)
		}
	}
}

func (w *Worker) handleTurn(e bus.Event) {
	userText, _ := e.String("text")
	if userText == "" {
		return
	}

	trust := w.store.Snapshot().Trust

	if intent := ParseAdminIntent(userText); intent.Kind != AdminNone {
		w.handleAdminIntent(userText, intent, trust)
		return
	}

	if d := QuickDecision(userText, time.Now()); d != nil {
		log.Info("agent fast path", "kind", d.Source, "text", userText)
		if verdict := EvaluateCommand(d.Command, trust, w.cfg.MinMoveTrust); !verdict.Allowed {
			d = deniedDecision(verdict.Reason)
		}
		w.emitReply(userText, *d)
		return
	}

	if w.llm == nil {
		w.emitReply(userText, Decision{
			Type:   "chat",
			Speak:  "My language model is offline, so I can only handle simple requests.",
			Source: "no_llm",
		})
		return
	}

	if filler := w.nextFiller(); filler != "" {
		w.bus.Publish(w.Name(), bus.TagTTSRequest, map[string]any{
			"text":      filler,
			"is_filler": true,
		})
	}

	w.bus.Publish(w.Name(), bus.TagLLMThinking, map[string]any{"value": true})
	defer w.bus.Publish(w.Name(), bus.TagLLMThinking, map[string]any{"value": false})

	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.LLMTimeout)
	defer cancel()

	started := time.Now()
	raw, err := w.llm.Ask(ctx, userText)
	if err != nil {
		log.Error("llm request failed", "err", err)
		w.bus.Publish(w.Name(), bus.TagAgentError, map[string]any{"error": err.Error()})
		return
	}
	log.Info("llm timing",
		"duration_ms", time.Since(started).Milliseconds(),
		"chars_in", len(userText),
		"chars_out", len(raw))

	decision := ParseReply(raw)
	if verdict := EvaluateCommand(decision.Command, trust, w.cfg.MinMoveTrust); !verdict.Allowed {
		decision = *deniedDecision(verdict.Reason)
	}
	w.emitReply(userText, decision)
}

func deniedDecision(reason string) *Decision {
	return &Decision{
		Type:   "chat",
		Speak:  "I cannot do that right now: " + reason + ".",
		Source: "policy_denied",
	}
}

func (w *Worker) nextFiller() string {
	if !w.cfg.EnableFiller || len(w.cfg.FillerPhrases) == 0 {
		return ""
	}
	phrase := w.cfg.FillerPhrases[w.fillerIdx%len(w.cfg.FillerPhrases)]
	w.fillerIdx++
	return phrase
}

// emitReply publishes the decision for observers, speaks it, and
// routes any command to the buzzer or the motion engine.
func (w *Worker) emitReply(userText string, d Decision) {
	w.bus.Publish(w.Name(), bus.TagAgentReply, map[string]any{
		"type":           d.Type,
		"speak":          d.Speak,
		"command":        d.Command,
		"requires_trust": d.RequiresTrust,
		"user_text":      userText,
		"source":         d.Source,
	})

	w.bus.Publish(w.Name(), bus.TagTTSRequest, map[string]any{
		"text":      d.Speak,
		"is_filler": false,
		"command":   d.Command,
	})

	if d.Command == "" {
		return
	}
	switch firstWord(d.Command) {
	case "beep", "buzz", "chirp":
		// Utility sound, routed directly to the buzzer.
		w.bus.Publish(w.Name(), bus.TagBuzzerCountdown, map[string]any{
			"steps":      1,
			"interval_s": 0.05,
		})
	default:
		w.bus.Publish(w.Name(), bus.TagMotionCommand, map[string]any{
			"command": d.Command,
		})
	}
}

func firstWord(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' {
			return toLowerASCII(s[:i])
		}
	}
	return toLowerASCII(s)
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}

func (w *Worker) handleAdminIntent(userText string, intent AdminIntent, trust state.TrustLevel) {
	switch intent.Kind {
	case AdminPromote:
		if trust < state.TrustOwner {
			w.emitReply(userText, *deniedDecision("only the owner can promote trust levels"))
			return
		}
		speak := "Done. " + intent.Name + " is now " + intent.TrustLevel + "."
		if _, err := PromotePerson(intent.Name, intent.TrustLevel, w.trustMap, w.faceDB); err != nil {
			speak = err.Error()
		}
		w.emitReply(userText, Decision{Type: "chat", Speak: speak, Source: "admin_promote"})

	case AdminRegisterGuest:
		// Self-registration is for unknown users; the owner may also
		// trigger it for supervised onboarding.
		if trust != state.TrustUnknown && trust != state.TrustOwner {
			w.emitReply(userText, *deniedDecision("registration is only for unknown users or the owner"))
			return
		}
		w.runRegistration(userText, intent.Name)
	}
}

// runRegistration is the synchronous request/reply flow with the
// vision collaborator: stale results are drained, a countdown beeps so
// the user can face the camera, then the request goes out and the
// worker waits on its private result inbox under a hard deadline.
func (w *Worker) runRegistration(userText, name string) {
	w.drainRegisterResults()

	w.bus.Publish(w.Name(), bus.TagBuzzerCountdown, map[string]any{
		"steps":      w.cfg.RegisterCountdownSteps,
		"interval_s": w.cfg.RegisterCountdownInterval.Seconds(),
	})
	// Let the countdown finish before capture starts.
	wait := time.Duration(w.cfg.RegisterCountdownSteps)*w.cfg.RegisterCountdownInterval + 100*time.Millisecond
	w.sleep(wait)

	w.bus.Publish(w.Name(), bus.TagRegisterRequest, map[string]any{
		"name":        name,
		"trust_level": "Guest",
	})

	result := w.waitForRegisterResult()
	ok, _ := result.Bool("ok")

	speak := name + " has been registered as your guest."
	if !ok {
		reason, has := result.String("error")
		if !has || reason == "" {
			reason = "Please try again."
		}
		speak = "I could not register " + name + ". " + reason
	}
	w.emitReply(userText, Decision{Type: "chat", Speak: speak, Source: "admin_register"})
}

func (w *Worker) drainRegisterResults() {
	for {
		select {
		case <-w.registerResults:
		default:
			return
		}
	}
}

// waitForRegisterResult polls the private inbox in short slices so
// shutdown is never blocked for the full registration timeout.
func (w *Worker) waitForRegisterResult() bus.Event {
	timeout := bus.Event{Tag: bus.TagRegisterResult, Payload: map[string]any{
		"ok":    false,
		"error": "registration timed out",
	}}

	deadline := time.Now().Add(w.cfg.RegisterTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 || w.stopped.Load() {
			return timeout
		}
		slice := remaining
		if slice > 300*time.Millisecond {
			slice = 300 * time.Millisecond
		}

		select {
		case e := <-w.registerResults:
			return e
		case <-w.quit:
			return timeout
		case <-time.After(slice):
		}
	}
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.quit:
	case <-time.After(d):
	}
}

var _ bus.Worker = (*Worker)(nil)
