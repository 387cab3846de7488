package bus

import (
	"sync"
	"testing"
	"time"
)

func TestPublishNext(t *testing.T) {
	b := New()
	b.Publish("test", "a", map[string]any{"n": 1})
	b.Publish("test", "b", nil)

	e, ok := b.Next(time.Second)
	if !ok || e.Tag != "a" {
		t.Fatalf("Next() = %v, %v; want tag a", e.Tag, ok)
	}
	if v, ok := e.Float("n"); !ok || v != 1 {
		t.Errorf("payload n = %v, %v", v, ok)
	}
	if e.Time.IsZero() {
		t.Error("event timestamp not set")
	}

	e, ok = b.Next(time.Second)
	if !ok || e.Tag != "b" {
		t.Fatalf("Next() = %v, %v; want tag b", e.Tag, ok)
	}

	if _, ok := b.Next(10 * time.Millisecond); ok {
		t.Error("Next() on empty bus returned an event")
	}
	if b.Len() != 0 {
		t.Errorf("Len() = %d, want 0", b.Len())
	}
}

// recorder captures the events it sees, guarded for cross-goroutine
// inspection.
type recorder struct {
	name string

	mu   sync.Mutex
	tags []string

	quit chan struct{}
	once sync.Once
}

func newRecorder(name string) *recorder {
	return &recorder{name: name, quit: make(chan struct{})}
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) OnEvent(e Event) {
	r.mu.Lock()
	r.tags = append(r.tags, e.Tag)
	r.mu.Unlock()
}

func (r *recorder) Run()  { <-r.quit }
func (r *recorder) Stop() { r.once.Do(func() { close(r.quit) }) }

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.tags))
	copy(out, r.tags)
	return out
}

// seqApplier records that the store saw an event, sharing a sequence
// log with the workers to verify ordering.
type seqApplier struct {
	mu  *sync.Mutex
	log *[]string
}

func (a seqApplier) Apply(e Event) {
	a.mu.Lock()
	*a.log = append(*a.log, "store:"+e.Tag)
	a.mu.Unlock()
}

type seqWorker struct {
	recorder
	mu  *sync.Mutex
	log *[]string
}

func (w *seqWorker) OnEvent(e Event) {
	w.mu.Lock()
	*w.log = append(*w.log, w.name+":"+e.Tag)
	w.mu.Unlock()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func TestDispatcherFanOutOrder(t *testing.T) {
	b := New()
	first := newRecorder("first")
	second := newRecorder("second")

	d := NewDispatcher(b, nil)
	d.Register(first)
	d.Register(second)
	d.Start()
	defer d.Stop()

	tags := []string{"one", "two", "three"}
	for _, tag := range tags {
		b.Publish("test", tag, nil)
	}

	waitFor(t, func() bool {
		return len(first.seen()) == len(tags) && len(second.seen()) == len(tags)
	})

	for _, r := range []*recorder{first, second} {
		got := r.seen()
		for i, tag := range tags {
			if got[i] != tag {
				t.Errorf("%s saw %v, want %v in order", r.name, got, tags)
				break
			}
		}
	}
}

func TestDispatcherAppliesStoreBeforeWorkers(t *testing.T) {
	b := New()
	var mu sync.Mutex
	var seq []string

	w := &seqWorker{recorder: *newRecorder("w"), mu: &mu, log: &seq}
	d := NewDispatcher(b, seqApplier{mu: &mu, log: &seq})
	d.Register(w)
	d.Start()
	defer d.Stop()

	b.Publish("test", "x", nil)
	b.Publish("test", "y", nil)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seq) == 4
	})

	mu.Lock()
	defer mu.Unlock()
	want := []string{"store:x", "w:x", "store:y", "w:y"}
	for i := range want {
		if seq[i] != want[i] {
			t.Fatalf("sequence = %v, want %v", seq, want)
		}
	}
}

func TestDispatcherSurvivesWorkerPanic(t *testing.T) {
	b := New()
	panicky := &panicWorker{recorder: *newRecorder("panicky")}
	healthy := newRecorder("healthy")

	d := NewDispatcher(b, nil)
	d.Register(panicky)
	d.Register(healthy)
	d.Start()
	defer d.Stop()

	b.Publish("test", "boom", nil)
	b.Publish("test", "after", nil)

	waitFor(t, func() bool { return len(healthy.seen()) == 2 })

	got := healthy.seen()
	if got[0] != "boom" || got[1] != "after" {
		t.Errorf("healthy worker saw %v, want both events in order", got)
	}
}

type panicWorker struct {
	recorder
}

func (w *panicWorker) OnEvent(Event) { panic("bad event handler") }
