// Package config loads the runtime configuration from YAML. Durations
// are expressed in the file as float seconds (the *_s fields) and
// converted here, so the file stays hand-editable on the robot.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/botronka/botronka/pkg/agent"
	"github.com/botronka/botronka/pkg/audio"
	"github.com/botronka/botronka/pkg/buzzer"
	"github.com/botronka/botronka/pkg/display"
	"github.com/botronka/botronka/pkg/motion"
	"github.com/botronka/botronka/pkg/sensors"
	"github.com/botronka/botronka/pkg/speech"
	"github.com/botronka/botronka/pkg/state"
)

// Config is the whole config file.
type Config struct {
	Server struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"server"`

	Data struct {
		FaceDBPath   string `yaml:"face_db_path"`
		TrustMapPath string `yaml:"trust_map_path"`
		UtteranceDir string `yaml:"utterance_dir"`
	} `yaml:"data"`

	Audio struct {
		SampleRate      int     `yaml:"sample_rate"`
		FrameMS         int     `yaml:"frame_ms"`
		EnergyThreshold float64 `yaml:"energy_threshold"`
		SilenceS        float64 `yaml:"silence_s"`
		MinSpeechS      float64 `yaml:"min_speech_s"`
		MinOpenS        float64 `yaml:"min_open_s"`
		PreRollS        float64 `yaml:"pre_roll_s"`
		MaxRecordS      float64 `yaml:"max_record_s"`
	} `yaml:"audio"`

	Capture struct {
		PollS           float64 `yaml:"poll_s"`
		ListenCooldownS float64 `yaml:"listen_cooldown_s"`
		GreetingIdleS   float64 `yaml:"greeting_idle_s"`
		GreetingDelayS  float64 `yaml:"greeting_delay_s"`
		GreetingOpenS   float64 `yaml:"greeting_open_s"`
		WakeListen      *bool   `yaml:"wake_listen"`
		WakePollS       float64 `yaml:"wake_poll_s"`
		WakeMinOpenS    float64 `yaml:"wake_min_open_s"`
		WakeMaxRecordS  float64 `yaml:"wake_max_record_s"`
	} `yaml:"capture"`

	STT struct {
		WhisperBin   string  `yaml:"whisper_bin"`
		ModelPath    string  `yaml:"model_path"`
		Language     string  `yaml:"language"`
		Threads      int     `yaml:"threads"`
		MaxContext   int     `yaml:"max_context"`
		MinTextChars int     `yaml:"min_text_chars"`
		WakeOpenS    float64 `yaml:"wake_open_s"`
		WakeMaxAgeS  float64 `yaml:"wake_max_age_s"`
	} `yaml:"stt"`

	Wake struct {
		Names []string `yaml:"names"`
	} `yaml:"wake"`

	LLM struct {
		URL         string  `yaml:"url"`
		Model       string  `yaml:"model"`
		APIKey      string  `yaml:"api_key"`
		Temperature float64 `yaml:"temperature"`
		MaxTokens   int     `yaml:"max_tokens"`
		UseFewShot  *bool   `yaml:"use_few_shot"`
		TimeoutS    float64 `yaml:"timeout_s"`
	} `yaml:"llm"`

	Agent struct {
		MinMoveTrust      string   `yaml:"min_move_trust"`
		RegisterTimeoutS  float64  `yaml:"register_timeout_s"`
		RegisterSteps     int      `yaml:"register_countdown_steps"`
		RegisterIntervalS float64  `yaml:"register_countdown_interval_s"`
		EnableFiller      *bool    `yaml:"enable_filler"`
		FillerPhrases     []string `yaml:"filler_phrases"`
	} `yaml:"agent"`

	TTS struct {
		PiperBin        string `yaml:"piper_bin"`
		ModelPath       string `yaml:"model_path"`
		ModelConfigPath string `yaml:"model_config_path"`
		AplayBin        string `yaml:"aplay_bin"`
		CacheDir        string `yaml:"cache_dir"`
	} `yaml:"tts"`

	Motion struct {
		MoveDurationS     float64 `yaml:"move_duration_s"`
		TurnDurationS     float64 `yaml:"turn_duration_s"`
		FollowToleranceCM float64 `yaml:"follow_tolerance_cm"`
		FollowPulseS      float64 `yaml:"follow_pulse_s"`
		FollowReplanS     float64 `yaml:"follow_replan_s"`
		StepsPerSide      int     `yaml:"steps_per_side"`
		StepDelayMS       int     `yaml:"step_delay_ms"`
	} `yaml:"motion"`

	Buzzer struct {
		Pin               int     `yaml:"pin"`
		TooCloseCM        float64 `yaml:"too_close_cm"`
		TooCloseCooldownS float64 `yaml:"too_close_cooldown_s"`
	} `yaml:"buzzer"`

	Ultrasonic struct {
		Enabled    bool    `yaml:"enabled"`
		TriggerPin int     `yaml:"trigger_pin"`
		EchoPin    int     `yaml:"echo_pin"`
		IntervalS  float64 `yaml:"interval_s"`
	} `yaml:"ultrasonic"`

	Display struct {
		LonelyAfterS    float64 `yaml:"lonely_after_s"`
		StuckDistanceCM float64 `yaml:"stuck_distance_cm"`
		StuckAfterS     float64 `yaml:"stuck_after_s"`
		RefreshS        float64 `yaml:"refresh_s"`
	} `yaml:"display"`
}

// Load reads and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// applyEnv lets the environment override the fields that differ
// between robots, or that should not live in a checked-in file.
func (c *Config) applyEnv() {
	if v := os.Getenv("BOTRONKA_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("BOTRONKA_LLM_URL"); v != "" {
		c.LLM.URL = v
	}
	if v := os.Getenv("BOTRONKA_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
}

// Validate rejects configurations that would silently misbehave.
// Unset fields are fine; builders fill defaults.
func (c *Config) Validate() error {
	if c.Agent.MinMoveTrust != "" {
		if _, err := state.ParseTrustLevel(c.Agent.MinMoveTrust); err != nil {
			return fmt.Errorf("config: agent.min_move_trust: %w", err)
		}
	}
	if c.Audio.SampleRate < 0 || c.Audio.FrameMS < 0 {
		return fmt.Errorf("config: audio sample_rate and frame_ms must be non-negative")
	}
	if c.STT.WakeOpenS < 0 || c.STT.WakeMaxAgeS < 0 {
		return fmt.Errorf("config: stt wake windows must be non-negative")
	}
	return nil
}

func secs(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// SessionConfig builds the VAD session tuning.
func (c *Config) SessionConfig() audio.SessionConfig {
	return audio.SessionConfig{
		SampleRate:      c.Audio.SampleRate,
		FrameMS:         c.Audio.FrameMS,
		EnergyThreshold: c.Audio.EnergyThreshold,
		SilenceMS:       int(c.Audio.SilenceS * 1000),
		MinSpeechMS:     int(c.Audio.MinSpeechS * 1000),
		MinOpen:         secs(c.Audio.MinOpenS),
		PreRollMS:       int(c.Audio.PreRollS * 1000),
		MaxRecord:       secs(c.Audio.MaxRecordS),
	}
}

// CaptureConfig builds the capture worker tuning.
func (c *Config) CaptureConfig() audio.CaptureConfig {
	cfg := audio.DefaultCaptureConfig()
	if c.Data.UtteranceDir != "" {
		cfg.UtteranceDir = c.Data.UtteranceDir
	}
	if c.Capture.PollS > 0 {
		cfg.PollInterval = secs(c.Capture.PollS)
	}
	if c.Capture.ListenCooldownS > 0 {
		cfg.ListenCooldown = secs(c.Capture.ListenCooldownS)
	}
	if c.Capture.GreetingIdleS > 0 {
		cfg.GreetingIdle = secs(c.Capture.GreetingIdleS)
	}
	if c.Capture.GreetingDelayS > 0 {
		cfg.GreetingDelay = secs(c.Capture.GreetingDelayS)
	}
	if c.Capture.GreetingOpenS > 0 {
		cfg.GreetingMinOpen = secs(c.Capture.GreetingOpenS)
	}
	if c.Capture.WakeListen != nil {
		cfg.WakeListen = *c.Capture.WakeListen
	}
	if c.Capture.WakePollS > 0 {
		cfg.WakePollInterval = secs(c.Capture.WakePollS)
	}
	if c.Capture.WakeMinOpenS > 0 {
		cfg.WakeMinOpen = secs(c.Capture.WakeMinOpenS)
	}
	if c.Capture.WakeMaxRecordS > 0 {
		cfg.WakeMaxRecord = secs(c.Capture.WakeMaxRecordS)
	}
	return cfg
}

// WhisperConfig builds the STT subprocess tuning.
func (c *Config) WhisperConfig() audio.WhisperConfig {
	return audio.WhisperConfig{
		Bin:        c.STT.WhisperBin,
		ModelPath:  c.STT.ModelPath,
		Language:   c.STT.Language,
		Threads:    c.STT.Threads,
		MaxContext: c.STT.MaxContext,
	}
}

// TranscribeConfig builds the transcription worker tuning.
func (c *Config) TranscribeConfig() audio.TranscribeConfig {
	cfg := audio.DefaultTranscribeConfig()
	if c.STT.MinTextChars > 0 {
		cfg.MinTextChars = c.STT.MinTextChars
	}
	if c.STT.WakeOpenS > 0 {
		cfg.WakeOpen = secs(c.STT.WakeOpenS)
	}
	if c.STT.WakeMaxAgeS > 0 {
		cfg.WakeMaxAge = secs(c.STT.WakeMaxAgeS)
	}
	return cfg
}

// ChatConfig builds the LLM client tuning.
func (c *Config) ChatConfig() agent.ChatConfig {
	cfg := agent.DefaultChatConfig()
	if c.LLM.URL != "" {
		cfg.URL = c.LLM.URL
	}
	if c.LLM.Model != "" {
		cfg.Model = c.LLM.Model
	}
	cfg.APIKey = c.LLM.APIKey
	if c.LLM.Temperature > 0 {
		cfg.Temperature = c.LLM.Temperature
	}
	if c.LLM.MaxTokens > 0 {
		cfg.MaxTokens = c.LLM.MaxTokens
	}
	if c.LLM.UseFewShot != nil {
		cfg.UseFewShot = *c.LLM.UseFewShot
	}
	return cfg
}

// AgentConfig builds the agent worker tuning.
func (c *Config) AgentConfig() agent.Config {
	cfg := agent.DefaultConfig()
	if c.Agent.MinMoveTrust != "" {
		// Validate already checked the literal.
		lvl, _ := state.ParseTrustLevel(c.Agent.MinMoveTrust)
		cfg.MinMoveTrust = lvl
	}
	if c.Data.FaceDBPath != "" {
		cfg.FaceDBPath = c.Data.FaceDBPath
	}
	if c.Data.TrustMapPath != "" {
		cfg.TrustMapPath = c.Data.TrustMapPath
	}
	if c.Agent.RegisterTimeoutS > 0 {
		cfg.RegisterTimeout = secs(c.Agent.RegisterTimeoutS)
	}
	if c.Agent.RegisterSteps > 0 {
		cfg.RegisterCountdownSteps = c.Agent.RegisterSteps
	}
	if c.Agent.RegisterIntervalS > 0 {
		cfg.RegisterCountdownInterval = secs(c.Agent.RegisterIntervalS)
	}
	if c.LLM.TimeoutS > 0 {
		cfg.LLMTimeout = secs(c.LLM.TimeoutS)
	}
	if c.Agent.EnableFiller != nil {
		cfg.EnableFiller = *c.Agent.EnableFiller
	}
	if len(c.Agent.FillerPhrases) > 0 {
		cfg.FillerPhrases = c.Agent.FillerPhrases
	}
	return cfg
}

// PiperConfig builds the TTS synthesizer tuning.
func (c *Config) PiperConfig() speech.PiperConfig {
	cfg := speech.DefaultPiperConfig()
	if c.TTS.PiperBin != "" {
		cfg.PiperBin = c.TTS.PiperBin
	}
	if c.TTS.ModelPath != "" {
		cfg.ModelPath = c.TTS.ModelPath
	}
	if c.TTS.ModelConfigPath != "" {
		cfg.ModelConfigPath = c.TTS.ModelConfigPath
	}
	if c.TTS.AplayBin != "" {
		cfg.AplayBin = c.TTS.AplayBin
	}
	if c.TTS.CacheDir != "" {
		cfg.CacheDir = c.TTS.CacheDir
	}
	return cfg
}

// MotionConfig builds the motion engine tuning.
func (c *Config) MotionConfig() motion.Config {
	cfg := motion.DefaultConfig()
	if c.Motion.MoveDurationS > 0 {
		cfg.MoveDuration = secs(c.Motion.MoveDurationS)
	}
	if c.Motion.TurnDurationS > 0 {
		cfg.TurnDuration = secs(c.Motion.TurnDurationS)
	}
	if c.Motion.FollowToleranceCM > 0 {
		cfg.FollowToleranceCM = c.Motion.FollowToleranceCM
	}
	if c.Motion.FollowPulseS > 0 {
		cfg.FollowPulse = secs(c.Motion.FollowPulseS)
	}
	if c.Motion.FollowReplanS > 0 {
		cfg.FollowReplan = secs(c.Motion.FollowReplanS)
	}
	if c.Motion.StepsPerSide > 0 {
		cfg.StepsPerSide = c.Motion.StepsPerSide
	}
	if c.Motion.StepDelayMS > 0 {
		cfg.StepDelay = time.Duration(c.Motion.StepDelayMS) * time.Millisecond
	}
	return cfg
}

// BuzzerConfig builds the buzzer worker tuning.
func (c *Config) BuzzerConfig() buzzer.Config {
	cfg := buzzer.DefaultConfig()
	if c.Buzzer.TooCloseCM > 0 {
		cfg.TooCloseCM = c.Buzzer.TooCloseCM
	}
	if c.Buzzer.TooCloseCooldownS > 0 {
		cfg.TooCloseCooldown = secs(c.Buzzer.TooCloseCooldownS)
	}
	return cfg
}

// DisplayConfig builds the display behavior tuning.
func (c *Config) DisplayConfig() display.Config {
	cfg := display.DefaultConfig()
	if c.Display.LonelyAfterS > 0 {
		cfg.LonelyAfter = secs(c.Display.LonelyAfterS)
	}
	if c.Display.StuckDistanceCM > 0 {
		cfg.StuckDistanceCM = c.Display.StuckDistanceCM
	}
	if c.Display.StuckAfterS > 0 {
		cfg.StuckAfter = secs(c.Display.StuckAfterS)
	}
	if c.Display.RefreshS > 0 {
		cfg.Refresh = secs(c.Display.RefreshS)
	}
	return cfg
}

// RangeConfig builds the range poller tuning.
func (c *Config) RangeConfig() sensors.Config {
	cfg := sensors.DefaultConfig()
	if c.Ultrasonic.IntervalS > 0 {
		cfg.Interval = secs(c.Ultrasonic.IntervalS)
	}
	return cfg
}

// WakeNames returns the configured wake vocabulary, empty meaning the
// built-in defaults.
func (c *Config) WakeNames() []string {
	return c.Wake.Names
}

// ServerAddr returns the dashboard listen address.
func (c *Config) ServerAddr() string {
	if c.Server.Addr == "" {
		return ":8089"
	}
	return c.Server.Addr
}
