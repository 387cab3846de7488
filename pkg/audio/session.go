// Package audio implements the capture half of the speech pipeline:
// voice-activity-gated recording sessions, the microphone capture
// worker, and the transcription/wake-detection worker.
package audio

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrNoSource is returned when a session is started without a frame source.
var ErrNoSource = errors.New("audio: no frame source")

// FrameSource delivers fixed-size blocks of 16-bit mono PCM from the
// microphone. Implementations are not safe for concurrent sessions;
// the capture worker is the only caller by construction.
type FrameSource interface {
	// Start opens the stream for the given rate and per-frame sample count.
	Start(sampleRate, frameLen int) error

	// ReadFrame blocks until one full frame is available. The returned
	// slice is owned by the caller.
	ReadFrame() ([]int16, error)

	// Stop closes the stream opened by Start.
	Stop() error

	// Close releases the underlying device.
	Close() error
}

// SessionConfig bounds one voice-activity-gated recording attempt.
type SessionConfig struct {
	SampleRate  int           // default 16000
	FrameMS     int           // frame size, default 30ms
	SilenceMS   int           // trailing silence that ends an utterance
	MinSpeechMS int           // minimum voiced audio to accept
	MinOpen     time.Duration // keep the mic open at least this long
	PreRollMS   int           // audio kept before the first voiced frame
	MaxRecord   time.Duration // hard session cap

	// EnergyThreshold is the RMS gate (16-bit sample units) above which
	// a frame counts as speech. Intentionally low to catch quiet speech
	// on small electret mics.
	EnergyThreshold float64
}

// DefaultSessionConfig returns the full-session (conversational turn)
// tuning.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		SampleRate:      16000,
		FrameMS:         30,
		SilenceMS:       700,
		MinSpeechMS:     250,
		MinOpen:         2 * time.Second,
		PreRollMS:       180,
		MaxRecord:       6 * time.Second,
		EnergyThreshold: 250,
	}
}

// WakeProbe derives the short wake-probe tuning from a base config:
// looser minimum-open time and a much shorter cap, since only a wake
// phrase needs to fit.
func (c SessionConfig) WakeProbe(minOpen, maxRecord time.Duration) SessionConfig {
	probe := c
	if minOpen < 400*time.Millisecond {
		minOpen = 400 * time.Millisecond
	}
	if maxRecord < 600*time.Millisecond {
		maxRecord = 600 * time.Millisecond
	}
	probe.MinOpen = minOpen
	probe.MaxRecord = maxRecord
	return probe
}

func (c SessionConfig) withDefaults() SessionConfig {
	d := DefaultSessionConfig()
	if c.SampleRate <= 0 {
		c.SampleRate = d.SampleRate
	}
	if c.FrameMS < 10 {
		c.FrameMS = d.FrameMS
	}
	if c.SilenceMS <= 0 {
		c.SilenceMS = d.SilenceMS
	}
	if c.MinSpeechMS <= 0 {
		c.MinSpeechMS = d.MinSpeechMS
	}
	if c.MinOpen < 200*time.Millisecond {
		c.MinOpen = 200 * time.Millisecond
	}
	if c.PreRollMS < 0 {
		c.PreRollMS = 0
	}
	if c.MaxRecord < 200*time.Millisecond {
		c.MaxRecord = 200 * time.Millisecond
	}
	if c.EnergyThreshold <= 0 {
		c.EnergyThreshold = d.EnergyThreshold
	}
	return c
}

// frameLen returns the per-frame sample count.
func (c SessionConfig) frameLen() int {
	return c.SampleRate * c.FrameMS / 1000
}

// isSpeech classifies one frame by short-time energy (RMS).
func (c SessionConfig) isSpeech(frame []int16) bool {
	if len(frame) == 0 {
		return false
	}
	var energy float64
	for _, s := range frame {
		energy += float64(s) * float64(s)
	}
	return math.Sqrt(energy/float64(len(frame))) >= c.EnergyThreshold
}

// RecordUtterance runs one bounded session over src and, if speech was
// found, writes the trimmed utterance to outWAV. It returns true iff
// speech-like audio was detected and written.
//
// The session stops on: max duration elapsed; speech started and
// trailing silence reached SilenceMS; or MinOpen elapsed with no
// speech yet. Accepted audio is trimmed to
// [firstSpeechFrame − preRoll, lastSpeechFrame + hangover].
func RecordUtterance(src FrameSource, cfg SessionConfig, outWAV string) (bool, error) {
	if src == nil {
		return false, ErrNoSource
	}
	cfg = cfg.withDefaults()

	if err := os.MkdirAll(filepath.Dir(outWAV), 0o755); err != nil {
		return false, fmt.Errorf("audio: create utterance dir: %w", err)
	}

	if err := src.Start(cfg.SampleRate, cfg.frameLen()); err != nil {
		return false, fmt.Errorf("audio: open stream: %w", err)
	}
	defer src.Stop()

	preRollFrames := cfg.PreRollMS / cfg.FrameMS
	hangoverFrames := cfg.SilenceMS / cfg.FrameMS
	if hangoverFrames < 1 {
		hangoverFrames = 1
	}
	minSpeechFrames := cfg.MinSpeechMS / cfg.FrameMS
	if minSpeechFrames < 1 {
		minSpeechFrames = 1
	}

	var (
		frames          [][]int16
		firstSpeech     = -1
		lastSpeech      = -1
		speechFrames    int
		trailingSilence int // in ms
		speechStarted   bool
	)

	started := time.Now()
	for {
		frame, err := src.ReadFrame()
		if err != nil {
			return false, fmt.Errorf("audio: read frame: %w", err)
		}

		idx := len(frames)
		frames = append(frames, frame)

		if cfg.isSpeech(frame) {
			speechFrames++
			trailingSilence = 0
			speechStarted = true
			if firstSpeech < 0 {
				firstSpeech = idx
			}
			lastSpeech = idx
		} else if speechStarted {
			trailingSilence += cfg.FrameMS
		}

		elapsed := time.Since(started)
		if elapsed >= cfg.MaxRecord {
			break
		}
		if elapsed >= cfg.MinOpen {
			if speechStarted && trailingSilence >= cfg.SilenceMS {
				break
			}
			if !speechStarted {
				break
			}
		}
	}

	if speechFrames < minSpeechFrames || firstSpeech < 0 || lastSpeech < 0 {
		return false, nil
	}

	start := firstSpeech - preRollFrames
	if start < 0 {
		start = 0
	}
	end := lastSpeech + hangoverFrames + 1
	if end > len(frames) {
		end = len(frames)
	}

	clipped := make([]int16, 0, (end-start)*cfg.frameLen())
	for _, f := range frames[start:end] {
		clipped = append(clipped, f...)
	}
	if len(clipped) < cfg.frameLen() {
		return false, nil
	}

	if err := writeWAV(outWAV, clipped, cfg.SampleRate); err != nil {
		return false, err
	}
	return true, nil
}

// writeWAV encodes 16-bit mono PCM to a RIFF/WAVE file.
func writeWAV(path string, pcm []int16, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("audio: create wav: %w", err)
	}

	data := make([]int, len(pcm))
	for i, s := range pcm {
		data[i] = int(s)
	}

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("audio: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("audio: finalize wav: %w", err)
	}
	return f.Close()
}
