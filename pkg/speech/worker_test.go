package speech

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/botronka/botronka/pkg/bus"
)

type fakeSpeaker struct {
	mu     sync.Mutex
	spoken []string
	err    error
	warmed []string
}

func (f *fakeSpeaker) Speak(text string) error {
	f.mu.Lock()
	f.spoken = append(f.spoken, text)
	f.mu.Unlock()
	return f.err
}

func (f *fakeSpeaker) PreGenerate(phrases []string) error {
	f.mu.Lock()
	f.warmed = append(f.warmed, phrases...)
	f.mu.Unlock()
	return nil
}

func (f *fakeSpeaker) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.spoken...)
}

func ttsRequest(text string, filler bool) bus.Event {
	return bus.Event{
		Origin:  "agent",
		Tag:     bus.TagTTSRequest,
		Payload: map[string]any{"text": text, "is_filler": filler},
		Time:    time.Now(),
	}
}

func drainTags(b *bus.Bus) []string {
	var tags []string
	for {
		e, ok := b.Next(10 * time.Millisecond)
		if !ok {
			return tags
		}
		tags = append(tags, e.Tag)
	}
}

func TestSpeakBracketsStartedFinished(t *testing.T) {
	b := bus.New()
	sp := &fakeSpeaker{}
	w := NewWorker(b, sp, Config{})

	w.speak(ttsRequest("hello there", false))

	tags := drainTags(b)
	if len(tags) != 2 || tags[0] != bus.TagTTSStarted || tags[1] != bus.TagTTSFinished {
		t.Fatalf("tags = %v, want [tts_started tts_finished]", tags)
	}
	if got := sp.seen(); len(got) != 1 || got[0] != "hello there" {
		t.Errorf("spoken = %v", got)
	}
}

func TestSpeakFailureStillFinishes(t *testing.T) {
	b := bus.New()
	sp := &fakeSpeaker{err: errors.New("aplay: no such device")}
	w := NewWorker(b, sp, Config{})

	w.speak(ttsRequest("hello", false))

	tags := drainTags(b)
	want := []string{bus.TagTTSStarted, bus.TagTTSFinished, bus.TagTTSError}
	if len(tags) != len(want) {
		t.Fatalf("tags = %v, want %v", tags, want)
	}
	for i := range want {
		if tags[i] != want[i] {
			t.Fatalf("tags = %v, want %v", tags, want)
		}
	}
}

func TestStaleFillerSkipped(t *testing.T) {
	b := bus.New()
	sp := &fakeSpeaker{}
	w := NewWorker(b, sp, Config{SkipStaleFillers: true})

	// The real reply is already queued behind the filler.
	w.OnEvent(ttsRequest("Here is your answer.", false))
	w.speak(ttsRequest("Let me think.", true))

	if tags := drainTags(b); len(tags) != 0 {
		t.Errorf("stale filler still published %v", tags)
	}
	if got := sp.seen(); len(got) != 0 {
		t.Errorf("stale filler was spoken: %v", got)
	}
}

func TestFillerSpokenWhenQueueEmpty(t *testing.T) {
	b := bus.New()
	sp := &fakeSpeaker{}
	w := NewWorker(b, sp, Config{SkipStaleFillers: true})

	w.speak(ttsRequest("Let me think.", true))

	if got := sp.seen(); len(got) != 1 {
		t.Errorf("filler not spoken: %v", got)
	}
}

func TestEmptyTextIgnored(t *testing.T) {
	b := bus.New()
	sp := &fakeSpeaker{}
	w := NewWorker(b, sp, Config{})

	w.speak(ttsRequest("", false))

	if tags := drainTags(b); len(tags) != 0 {
		t.Errorf("empty request published %v", tags)
	}
}

func TestPreGenerateWarmsCache(t *testing.T) {
	b := bus.New()
	sp := &fakeSpeaker{}
	NewWorker(b, sp, Config{PreGeneratePhrases: []string{"Hi, who are you?"}})

	sp.mu.Lock()
	defer sp.mu.Unlock()
	if len(sp.warmed) != 1 || sp.warmed[0] != "Hi, who are you?" {
		t.Errorf("warmed = %v", sp.warmed)
	}
}

func TestIgnoresForeignTags(t *testing.T) {
	b := bus.New()
	w := NewWorker(b, &fakeSpeaker{}, Config{})

	w.OnEvent(bus.Event{Tag: bus.TagMotionCommand, Payload: map[string]any{"command": "stop"}})

	select {
	case e := <-w.inbox:
		t.Errorf("foreign event queued: %v", e.Tag)
	default:
	}
}
