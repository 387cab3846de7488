// Package speech turns tts_request events into audible speech and
// reports playback state back onto the bus.
package speech

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/botronka/botronka/internal/log"
)

// Speaker renders a phrase to the speaker, blocking until playback
// finishes.
type Speaker interface {
	Speak(text string) error
}

// PiperConfig points at the piper binary, its voice model, and the
// playback command.
type PiperConfig struct {
	PiperBin        string
	ModelPath       string
	ModelConfigPath string
	AplayBin        string
	CacheDir        string
}

// DefaultPiperConfig mirrors the on-robot paths.
func DefaultPiperConfig() PiperConfig {
	return PiperConfig{
		PiperBin:        "piper",
		ModelPath:       "models/tts/en_US-lessac-medium.onnx",
		ModelConfigPath: "models/tts/en_US-lessac-medium.onnx.json",
		AplayBin:        "aplay",
		CacheDir:        filepath.Join(os.TempDir(), "botronka_tts"),
	}
}

// PiperSpeaker synthesizes with piper and plays through aplay,
// caching synthesized WAVs by phrase hash so repeated short phrases
// skip synthesis entirely.
type PiperSpeaker struct {
	cfg PiperConfig
}

// NewPiperSpeaker builds the speaker and creates its cache directory.
func NewPiperSpeaker(cfg PiperConfig) (*PiperSpeaker, error) {
	d := DefaultPiperConfig()
	if cfg.PiperBin == "" {
		cfg.PiperBin = d.PiperBin
	}
	if cfg.AplayBin == "" {
		cfg.AplayBin = d.AplayBin
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = d.CacheDir
	}
	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("speech: create cache dir: %w", err)
	}
	return &PiperSpeaker{cfg: cfg}, nil
}

func (p *PiperSpeaker) cachePath(text string) string {
	sum := sha1.Sum([]byte(text))
	return filepath.Join(p.cfg.CacheDir, "phrase_"+hex.EncodeToString(sum[:8])+".wav")
}

// SynthesizeToWAV renders text into outWAV via piper.
func (p *PiperSpeaker) SynthesizeToWAV(text, outWAV string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("speech: empty phrase")
	}
	if err := os.MkdirAll(filepath.Dir(outWAV), 0o755); err != nil {
		return fmt.Errorf("speech: create output dir: %w", err)
	}

	cmd := exec.Command(p.cfg.PiperBin,
		"-m", p.cfg.ModelPath,
		"-c", p.cfg.ModelConfigPath,
		"-f", outWAV,
	)
	cmd.Stdin = strings.NewReader(text + "\n")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("speech: piper failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (p *PiperSpeaker) playWAV(path string) error {
	if out, err := exec.Command(p.cfg.AplayBin, path).CombinedOutput(); err != nil {
		return fmt.Errorf("speech: playback failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Speak implements Speaker.
func (p *PiperSpeaker) Speak(text string) error {
	out := p.cachePath(text)

	var synthMS float64
	_, statErr := os.Stat(out)
	cacheHit := statErr == nil
	if !cacheHit {
		started := time.Now()
		if err := p.SynthesizeToWAV(text, out); err != nil {
			return err
		}
		synthMS = float64(time.Since(started).Microseconds()) / 1000.0
	}

	started := time.Now()
	if err := p.playWAV(out); err != nil {
		return err
	}
	log.Info("audio timing",
		"stage", "tts", "cache_hit", cacheHit,
		"synth_ms", synthMS,
		"play_ms", float64(time.Since(started).Microseconds())/1000.0,
		"text_chars", len(text))
	return nil
}

// PreGenerate warms the cache for common short phrases so the first
// greeting is not delayed by synthesis.
func (p *PiperSpeaker) PreGenerate(phrases []string) error {
	for _, phrase := range phrases {
		clean := strings.TrimSpace(phrase)
		if clean == "" {
			continue
		}
		wav := p.cachePath(clean)
		if _, err := os.Stat(wav); err == nil {
			continue
		}
		if err := p.SynthesizeToWAV(clean, wav); err != nil {
			return err
		}
	}
	return nil
}

var _ Speaker = (*PiperSpeaker)(nil)
