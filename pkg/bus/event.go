// Package bus provides the broadcast event bus that ties every
// botronka worker together. A single dispatcher drains the bus and
// fans each event out, in arrival order, to the shared runtime store
// and to every registered worker.
package bus

import (
	"encoding/json"
	"time"
)

// Event tags form an open but fixed vocabulary. Producers and
// consumers agree on the payload shape per tag.
const (
	TagDistanceCM        = "distance_cm"
	TagDistanceError     = "distance_error"
	TagVisionIdentity    = "vision_identity"
	TagVisionError       = "vision_error"
	TagListeningStarted  = "audio_listening_started"
	TagListeningFinished = "audio_listening_finished"
	TagAudioUtterance    = "audio_utterance"
	TagWakeCandidate     = "audio_wake_candidate"
	TagWakeDetected      = "audio_wake_detected"
	TagAudioError        = "audio_error"
	TagSTTText           = "stt_text"
	TagSTTError          = "stt_error"
	TagLLMThinking       = "llm_thinking"
	TagAgentReply        = "agent_reply"
	TagAgentError        = "agent_error"
	TagMotionCommand     = "motion_command"
	TagMotionState       = "motion_state"
	TagTTSRequest        = "tts_request"
	TagTTSStarted        = "tts_started"
	TagTTSFinished       = "tts_finished"
	TagTTSError          = "tts_error"
	TagBuzzerCountdown   = "buzzer_countdown"
	TagBuzzerState       = "buzzer_state"
	TagRegisterRequest   = "vision_register_request"
	TagRegisterResult    = "vision_register_result"
)

// Event is one immutable record on the bus. Arrival order on the bus
// is the single source of truth for all derived state.
type Event struct {
	Origin  string         `json:"origin"`
	Tag     string         `json:"tag"`
	Payload map[string]any `json:"payload"`
	Time    time.Time      `json:"time"`
}

// Float reads a numeric payload field. JSON round-trips deliver
// numbers as float64; direct publishes may use int or json.Number.
func (e Event) Float(key string) (float64, bool) {
	switch v := e.Payload[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Bool reads a boolean payload field.
func (e Event) Bool(key string) (bool, bool) {
	v, ok := e.Payload[key].(bool)
	return v, ok
}

// String reads a string payload field.
func (e Event) String(key string) (string, bool) {
	v, ok := e.Payload[key].(string)
	return v, ok
}
