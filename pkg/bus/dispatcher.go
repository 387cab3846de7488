package bus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/botronka/botronka/internal/log"
)

// drainTimeout is how long the dispatcher blocks when the bus is empty
// before re-checking the stop flag.
const drainTimeout = 50 * time.Millisecond

// Applier replays bus events into derived state. The shared runtime
// store implements this; feeding it is the dispatcher's job, so the
// store and every worker observe the exact same event order.
type Applier interface {
	Apply(Event)
}

// Dispatcher owns the fan-out loop. For each event it first applies it
// to the store, then invokes OnEvent on every registered worker in
// registration order. A panic inside one worker is recovered and
// logged; the dispatcher and the other workers keep running.
type Dispatcher struct {
	bus   *Bus
	store Applier

	mu      sync.Mutex
	workers []Worker

	stopping atomic.Bool
	quit     chan struct{}
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher draining the given bus into the
// given store. store may be nil in tests that only exercise fan-out.
func NewDispatcher(b *Bus, store Applier) *Dispatcher {
	return &Dispatcher{
		bus:   b,
		store: store,
		quit:  make(chan struct{}),
	}
}

// Register adds a worker to the fan-out set. Must be called before
// Start; registration order is fan-out order.
func (d *Dispatcher) Register(w Worker) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.workers = append(d.workers, w)
}

// Start launches one goroutine per registered worker plus the
// dispatch loop itself, then returns.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	workers := make([]Worker, len(d.workers))
	copy(workers, d.workers)
	d.mu.Unlock()

	for _, w := range workers {
		d.wg.Add(1)
		go d.runWorker(w)
	}

	d.wg.Add(1)
	go d.dispatchLoop()

	log.Info("dispatcher started", "workers", len(workers))
}

// Stop asks every worker to stop, halts the dispatch loop, and waits
// for all goroutines to exit.
func (d *Dispatcher) Stop() {
	if d.stopping.Swap(true) {
		return
	}
	close(d.quit)

	d.mu.Lock()
	workers := make([]Worker, len(d.workers))
	copy(workers, d.workers)
	d.mu.Unlock()

	for _, w := range workers {
		w.Stop()
	}

	d.wg.Wait()
	log.Info("dispatcher stopped")
}

// runWorker runs w.Run on its own goroutine, restarting it after a
// recovered panic so a single bad event cannot kill the worker.
func (d *Dispatcher) runWorker(w Worker) {
	defer d.wg.Done()

	for !d.stopping.Load() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error("worker run panicked", "worker", w.Name(), "panic", r)
				}
			}()
			w.Run()
		}()

		if d.stopping.Load() {
			return
		}
		// The worker's Run returned or panicked without a shutdown
		// request. Back off briefly and restart it.
		log.Warn("worker run exited early, restarting", "worker", w.Name())
		select {
		case <-d.quit:
			return
		case <-time.After(250 * time.Millisecond):
		}
	}
}

func (d *Dispatcher) dispatchLoop() {
	defer d.wg.Done()

	for {
		select {
		case <-d.quit:
			return
		default:
		}

		e, ok := d.bus.Next(drainTimeout)
		if !ok {
			continue
		}
		d.dispatch(e)
	}
}

// dispatch applies one event to the store, then to every worker in
// registration order. This is the total-order broadcast step: every
// observer sees events in the same relative order.
func (d *Dispatcher) dispatch(e Event) {
	if d.store != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error("store apply panicked", "tag", e.Tag, "panic", r)
				}
			}()
			d.store.Apply(e)
		}()
	}

	d.mu.Lock()
	workers := d.workers
	d.mu.Unlock()

	for _, w := range workers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error("worker OnEvent panicked",
						"worker", w.Name(), "tag", e.Tag, "panic", r)
				}
			}()
			w.OnEvent(e)
		}()
	}
}
