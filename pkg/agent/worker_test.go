package agent

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/botronka/botronka/pkg/bus"
	"github.com/botronka/botronka/pkg/state"
)

type cannedLLM struct {
	reply string
	err   error
}

func (c cannedLLM) Ask(context.Context, string) (string, error) {
	return c.reply, c.err
}

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.FaceDBPath = filepath.Join(dir, "face_db.json")
	cfg.TrustMapPath = filepath.Join(dir, "trust_map.json")
	cfg.EnableFiller = false
	return cfg
}

func sttEvent(text string) bus.Event {
	return bus.Event{
		Origin:  "transcribe",
		Tag:     bus.TagSTTText,
		Payload: map[string]any{"text": text},
		Time:    time.Now(),
	}
}

func collectEvents(b *bus.Bus) map[string][]bus.Event {
	out := map[string][]bus.Event{}
	for {
		e, ok := b.Next(10 * time.Millisecond)
		if !ok {
			return out
		}
		out[e.Tag] = append(out[e.Tag], e)
	}
}

func TestFastPathReply(t *testing.T) {
	b := bus.New()
	st := state.NewStore()
	w := NewWorker(b, st, cannedLLM{}, testConfig(t))

	w.handleTurn(sttEvent("hi"))

	events := collectEvents(b)
	if len(events[bus.TagAgentReply]) != 1 {
		t.Fatal("no agent_reply for a fast-path greeting")
	}
	if len(events[bus.TagTTSRequest]) != 1 {
		t.Fatal("no tts_request for a fast-path greeting")
	}
	if len(events[bus.TagLLMThinking]) != 0 {
		t.Error("greeting fast path reached the model")
	}
}

func TestBeepRoutesToBuzzer(t *testing.T) {
	b := bus.New()
	st := state.NewStore()
	w := NewWorker(b, st, cannedLLM{}, testConfig(t))

	w.handleTurn(sttEvent("beep"))

	events := collectEvents(b)
	if len(events[bus.TagBuzzerCountdown]) != 1 {
		t.Error("beep did not reach the buzzer")
	}
	if len(events[bus.TagMotionCommand]) != 0 {
		t.Error("beep leaked to the motion engine")
	}
}

func TestMovementGatedByTrust(t *testing.T) {
	b := bus.New()
	st := state.NewStore()
	w := NewWorker(b, st, cannedLLM{}, testConfig(t))

	// Nobody recognized: trust is Unknown, movement is denied.
	w.handleTurn(sttEvent("move forward"))

	events := collectEvents(b)
	if len(events[bus.TagMotionCommand]) != 0 {
		t.Error("untrusted user moved the robot")
	}
	replies := events[bus.TagAgentReply]
	if len(replies) != 1 {
		t.Fatal("no denial reply")
	}
	if src, _ := replies[0].String("source"); src != "policy_denied" {
		t.Errorf("reply source = %q, want policy_denied", src)
	}
}

func TestMovementAllowedForFriend(t *testing.T) {
	b := bus.New()
	st := state.NewStore()
	st.Apply(bus.Event{Tag: bus.TagVisionIdentity, Payload: map[string]any{
		"face_detected": true, "trust_level": "Friend",
	}})
	w := NewWorker(b, st, cannedLLM{}, testConfig(t))

	w.handleTurn(sttEvent("move forward"))

	events := collectEvents(b)
	cmds := events[bus.TagMotionCommand]
	if len(cmds) != 1 {
		t.Fatal("friend's movement command did not reach the motion engine")
	}
	if cmd, _ := cmds[0].String("command"); cmd != "move forward" {
		t.Errorf("command = %q", cmd)
	}
}

func TestLLMPathBracketsThinking(t *testing.T) {
	b := bus.New()
	st := state.NewStore()
	llm := cannedLLM{reply: `{"type":"chat","speak":"The sky is blue.","command":null,"requires_trust":0}`}
	w := NewWorker(b, st, llm, testConfig(t))

	w.handleTurn(sttEvent("why is the sky blue"))

	events := collectEvents(b)
	thinking := events[bus.TagLLMThinking]
	if len(thinking) != 2 {
		t.Fatalf("llm_thinking published %d times, want true/false bracket", len(thinking))
	}
	if v, _ := thinking[0].Bool("value"); !v {
		t.Error("first llm_thinking is not true")
	}
	if v, _ := thinking[1].Bool("value"); v {
		t.Error("last llm_thinking is not false")
	}

	replies := events[bus.TagAgentReply]
	if len(replies) != 1 {
		t.Fatal("no agent_reply")
	}
	if speak, _ := replies[0].String("speak"); speak != "The sky is blue." {
		t.Errorf("speak = %q", speak)
	}
}

func TestLLMFailurePublishesAgentError(t *testing.T) {
	b := bus.New()
	st := state.NewStore()
	w := NewWorker(b, st, cannedLLM{err: errors.New("connection refused")}, testConfig(t))

	w.handleTurn(sttEvent("why is the sky blue"))

	events := collectEvents(b)
	if len(events[bus.TagAgentError]) != 1 {
		t.Error("no agent_error after model failure")
	}
	// The thinking flag must still close.
	thinking := events[bus.TagLLMThinking]
	if len(thinking) == 0 {
		t.Fatal("no llm_thinking events")
	}
	if v, _ := thinking[len(thinking)-1].Bool("value"); v {
		t.Error("llm_thinking left true after failure")
	}
}

func TestRegisterResultTimeout(t *testing.T) {
	b := bus.New()
	st := state.NewStore()
	cfg := testConfig(t)
	cfg.RegisterTimeout = time.Second
	w := NewWorker(b, st, cannedLLM{}, cfg)

	started := time.Now()
	result := w.waitForRegisterResult()
	elapsed := time.Since(started)

	if ok, _ := result.Bool("ok"); ok {
		t.Error("timed-out registration reported ok")
	}
	if msg, _ := result.String("error"); msg == "" {
		t.Error("timeout result carries no error")
	}
	if elapsed < 900*time.Millisecond || elapsed > 3*time.Second {
		t.Errorf("waited %v, want about the configured timeout", elapsed)
	}
}

func TestRegisterResultDelivered(t *testing.T) {
	b := bus.New()
	st := state.NewStore()
	cfg := testConfig(t)
	cfg.RegisterTimeout = 5 * time.Second
	w := NewWorker(b, st, cannedLLM{}, cfg)

	go func() {
		time.Sleep(50 * time.Millisecond)
		w.OnEvent(bus.Event{
			Tag:     bus.TagRegisterResult,
			Payload: map[string]any{"ok": true, "name": "carol"},
			Time:    time.Now(),
		})
	}()

	result := w.waitForRegisterResult()
	if ok, _ := result.Bool("ok"); !ok {
		t.Errorf("result = %+v, want the delivered success", result.Payload)
	}
}

func TestDrainRegisterResults(t *testing.T) {
	b := bus.New()
	st := state.NewStore()
	w := NewWorker(b, st, cannedLLM{}, testConfig(t))

	// Stale results from an earlier aborted attempt.
	for i := 0; i < 3; i++ {
		w.OnEvent(bus.Event{Tag: bus.TagRegisterResult, Payload: map[string]any{"ok": false}})
	}
	w.drainRegisterResults()

	select {
	case <-w.registerResults:
		t.Error("stale register result survived the drain")
	default:
	}
}

func TestPromoteDeniedForNonOwner(t *testing.T) {
	b := bus.New()
	st := state.NewStore()
	st.Apply(bus.Event{Tag: bus.TagVisionIdentity, Payload: map[string]any{
		"face_detected": true, "trust_level": "Friend",
	}})
	w := NewWorker(b, st, cannedLLM{}, testConfig(t))

	w.handleTurn(sttEvent("promote alice to owner"))

	events := collectEvents(b)
	replies := events[bus.TagAgentReply]
	if len(replies) != 1 {
		t.Fatal("no reply to the denied promote")
	}
	if src, _ := replies[0].String("source"); src != "policy_denied" {
		t.Errorf("reply source = %q, want policy_denied", src)
	}
}
