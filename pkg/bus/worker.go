package bus

// Worker is a unit of concurrent execution driven by the dispatcher.
//
// OnEvent is invoked on the dispatcher's goroutine for every bus event
// and must be O(1) and non-blocking: typically "copy the event into my
// private inbox". Run is the worker's own loop; it runs on a dedicated
// goroutine and must observe Stop at loop boundaries. Workers never
// terminate except at shutdown.
type Worker interface {
	Name() string
	OnEvent(Event)
	Run()
	Stop()
}
