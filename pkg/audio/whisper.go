package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
)

// WhisperConfig points at a whisper.cpp CLI build and its model.
type WhisperConfig struct {
	Bin        string
	ModelPath  string
	Language   string
	Threads    int
	MaxContext int

	// WakeGrammarPath holds the generated GBNF grammar used to bias
	// wake-probe decoding toward the wake vocabulary.
	WakeGrammarPath string
}

// DefaultWhisperConfig mirrors the on-robot paths.
func DefaultWhisperConfig() WhisperConfig {
	threads := runtime.NumCPU() - 1
	if threads < 1 {
		threads = 1
	}
	return WhisperConfig{
		Bin:             "whisper-cli",
		ModelPath:       "models/stt/ggml-small.en.bin",
		Language:        "en",
		Threads:         threads,
		MaxContext:      1024,
		WakeGrammarPath: filepath.Join(os.TempDir(), "botronka_wake.gbnf"),
	}
}

// WhisperTranscriber runs whisper.cpp as a subprocess. It implements
// both Transcriber and WakeTranscriber.
type WhisperTranscriber struct {
	cfg WhisperConfig
}

// NewWhisperTranscriber builds the subprocess transcriber.
func NewWhisperTranscriber(cfg WhisperConfig) *WhisperTranscriber {
	d := DefaultWhisperConfig()
	if cfg.Bin == "" {
		cfg.Bin = d.Bin
	}
	if cfg.ModelPath == "" {
		cfg.ModelPath = d.ModelPath
	}
	if cfg.Language == "" {
		cfg.Language = d.Language
	}
	if cfg.Threads < 1 {
		cfg.Threads = d.Threads
	}
	if cfg.MaxContext < 0 {
		cfg.MaxContext = 0
	}
	if cfg.WakeGrammarPath == "" {
		cfg.WakeGrammarPath = d.WakeGrammarPath
	}
	return &WhisperTranscriber{cfg: cfg}
}

var timestampRe = regexp.MustCompile(`\[[^\]]+\]`)

// normalizeWhisperOutput strips timestamp brackets and compacts
// whitespace.
func normalizeWhisperOutput(raw string) string {
	text := timestampRe.ReplaceAllString(raw, " ")
	return strings.Join(strings.Fields(text), " ")
}

const wakeGrammar = `root ::= wake
wake ::= greet ws? name | wakeup ws? name | name ws? listen | hearme
greet ::= "hi" | "hello" | "hey"
wakeup ::= "wake" ws "up"
listen ::= "listen" | "start" ws "listening"
hearme ::= "can" ws "you" ws "hear" ws "me"
name ::= "botronka" | "biedronka"
ws ::= " "
`

// ensureWakeGrammar writes the wake grammar file if missing or stale.
func (t *WhisperTranscriber) ensureWakeGrammar() (string, error) {
	path := t.cfg.WakeGrammarPath
	if data, err := os.ReadFile(path); err == nil && string(data) == wakeGrammar {
		return path, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("audio: create grammar dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(wakeGrammar), 0o644); err != nil {
		return "", fmt.Errorf("audio: write wake grammar: %w", err)
	}
	return path, nil
}

func (t *WhisperTranscriber) run(ctx context.Context, wavPath string, extra []string) (string, error) {
	if _, err := os.Stat(wavPath); err != nil {
		return "", fmt.Errorf("audio: utterance file missing: %w", err)
	}

	args := []string{
		"-m", t.cfg.ModelPath,
		"-f", wavPath,
		"-l", t.cfg.Language,
		"-t", strconv.Itoa(t.cfg.Threads),
		"-mc", strconv.Itoa(t.cfg.MaxContext),
		"-nt",
		"-np",
	}
	args = append(args, extra...)

	cmd := exec.CommandContext(ctx, t.cfg.Bin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("audio: whisper failed: %w: %s", err, truncateOutput(out))
	}
	return normalizeWhisperOutput(string(out)), nil
}

// Transcribe implements Transcriber.
func (t *WhisperTranscriber) Transcribe(ctx context.Context, wavPath string) (string, error) {
	return t.run(ctx, wavPath, nil)
}

// TranscribeWake implements WakeTranscriber: grammar-biased, greedy,
// length-capped decoding tuned for short noisy wake probes.
func (t *WhisperTranscriber) TranscribeWake(ctx context.Context, wavPath string) (string, error) {
	grammar, err := t.ensureWakeGrammar()
	if err != nil {
		return t.run(ctx, wavPath, nil)
	}
	return t.run(ctx, wavPath, []string{
		"--grammar", grammar,
		"--grammar-rule", "root",
		"-bo", "1",
		"-bs", "1",
		"-ml", "48",
	})
}

func truncateOutput(out []byte) string {
	s := strings.TrimSpace(string(out))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

var (
	_ Transcriber     = (*WhisperTranscriber)(nil)
	_ WakeTranscriber = (*WhisperTranscriber)(nil)
)
