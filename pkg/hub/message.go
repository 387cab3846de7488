package hub

// Message is one frame to broadcast, already encoded.
type Message struct {
	Data []byte
}
