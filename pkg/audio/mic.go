package audio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// Mic is a portaudio-backed FrameSource reading 16-bit mono PCM from
// the default input device.
type Mic struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []int16
	inited bool
}

// NewMic initializes portaudio and returns a microphone source.
func NewMic() (*Mic, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("audio: portaudio init: %w", err)
	}
	return &Mic{inited: true}, nil
}

// Start opens the default input stream.
func (m *Mic) Start(sampleRate, frameLen int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream != nil {
		return errors.New("audio: mic stream already open")
	}

	m.buf = make([]int16, frameLen)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), frameLen, m.buf)
	if err != nil {
		return fmt.Errorf("audio: open default stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("audio: start stream: %w", err)
	}
	m.stream = stream
	return nil
}

// ReadFrame blocks until one frame is captured.
func (m *Mic) ReadFrame() ([]int16, error) {
	m.mu.Lock()
	stream, buf := m.stream, m.buf
	m.mu.Unlock()

	if stream == nil {
		return nil, errors.New("audio: mic stream not open")
	}
	if err := stream.Read(); err != nil {
		return nil, err
	}

	frame := make([]int16, len(buf))
	copy(frame, buf)
	return frame, nil
}

// Stop closes the current stream.
func (m *Mic) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream == nil {
		return nil
	}
	err := m.stream.Stop()
	if cerr := m.stream.Close(); err == nil {
		err = cerr
	}
	m.stream = nil
	return err
}

// Close releases portaudio.
func (m *Mic) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream != nil {
		m.stream.Stop()
		m.stream.Close()
		m.stream = nil
	}
	if m.inited {
		m.inited = false
		return portaudio.Terminate()
	}
	return nil
}

var _ FrameSource = (*Mic)(nil)
