package agent

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// Decision is the structured outcome for one user turn: something to
// say and, optionally, a command to execute.
type Decision struct {
	Type          string // "chat" or "command"
	Speak         string
	Command       string // empty for pure chat
	RequiresTrust int
	Source        string // fast-path label or "llm"
}

// LLMClient asks the language model collaborator for a reply to the
// user turn. Implementations own prompting and transport.
type LLMClient interface {
	Ask(ctx context.Context, userText string) (string, error)
}

// SystemPrompt is the persona and output contract sent to the model.
const SystemPrompt = "You are Botronka, a tiny helpful ladybug robot (biedronka) companion. " +
	"Personality: warm, brave, practical, and concise. " +
	"For normal chat, sound like a friendly little ladybug helper. " +
	"Answer accurately from what you know; if unsure, say so briefly. " +
	"Reply with JSON only and no markdown. " +
	`Schema: {"type":"chat|command","speak":"string","command":"string|null","requires_trust":0-3}. ` +
	"If user asks robot movement, set type=command and command to concise instruction. " +
	"If no movement/action needed, command must be null and type=chat. " +
	"The speak field must be short and natural."

// FewShot is a priming exchange prepended before the user turn.
type FewShot struct {
	Role    string
	Content string
}

// DefaultFewShot primes the model toward the strict JSON schema.
var DefaultFewShot = []FewShot{
	{Role: "user", Content: "move forward 10 cm"},
	{Role: "assistant", Content: `{"type":"command","speak":"On it! Little ladybug moving forward ten centimeters.","command":"move forward 10cm","requires_trust":2}`},
	{Role: "user", Content: "what is your name?"},
	{Role: "assistant", Content: `{"type":"chat","speak":"I am Botronka, your tiny biedronka helper.","command":null,"requires_trust":0}`},
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// QuickDecision is the fast local intent path: common requests skip
// the LLM round-trip entirely. Returns nil when nothing matched.
func QuickDecision(userText string, now time.Time) *Decision {
	t := normalizeText(userText)
	if t == "" {
		return nil
	}

	switch t {
	case "hi", "hello", "hey", "hello botronka", "hi botronka", "hey botronka":
		return &Decision{Type: "chat", Speak: "Hi! Botronka the little ladybug is here to help.", Source: "greeting"}
	}

	if strings.Contains(t, "your name") || strings.Contains(t, "who are you") {
		return &Decision{Type: "chat", Speak: "I am Botronka, your tiny biedronka helper.", Source: "identity"}
	}

	if containsAny(t, "thank you", "thanks", "thx") {
		return &Decision{Type: "chat", Speak: "You are welcome. Happy to help.", Source: "thanks"}
	}

	if containsAny(t, "what time is it", "what's the time", "tell me the time", "current time", "time now") {
		return &Decision{Type: "chat", Speak: "It is " + now.Format("15:04") + ".", Source: "time"}
	}

	if containsAny(t, "beep", "chirp", "buzz") {
		return &Decision{Type: "command", Speak: "Beep beep.", Command: "beep", Source: "beep"}
	}

	if containsAny(t, "stop", "halt", "cancel") {
		return &Decision{Type: "command", Speak: "Stopping now.", Command: "stop", RequiresTrust: 2, Source: "motion_stop"}
	}
	if strings.Contains(t, "follow") {
		return &Decision{Type: "command", Speak: "Got it. I will follow your distance.", Command: t, RequiresTrust: 2, Source: "motion_follow"}
	}
	if containsAny(t, "forward", "ahead", "straight") {
		return &Decision{Type: "command", Speak: "Moving forward.", Command: t, RequiresTrust: 2, Source: "motion_forward"}
	}
	if containsAny(t, "backward", "go back", "reverse", "move back") {
		return &Decision{Type: "command", Speak: "Moving backward.", Command: t, RequiresTrust: 2, Source: "motion_backward"}
	}
	if strings.Contains(t, "left") {
		return &Decision{Type: "command", Speak: "Turning left.", Command: t, RequiresTrust: 2, Source: "motion_left"}
	}
	if strings.Contains(t, "right") {
		return &Decision{Type: "command", Speak: "Turning right.", Command: t, RequiresTrust: 2, Source: "motion_right"}
	}

	return nil
}

func containsAny(s string, tokens ...string) bool {
	for _, tok := range tokens {
		if strings.Contains(s, tok) {
			return true
		}
	}
	return false
}

// firstJSONBlob finds the first balanced {...} object in text, string
// and escape aware. Models wrap JSON in prose often enough that a bare
// Unmarshal of the whole reply is not reliable.
func firstJSONBlob(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// ParseReply turns a raw model reply into a Decision. Replies that do
// not contain valid JSON degrade to a chat decision speaking the raw
// text, so a misbehaving model never silences the robot.
func ParseReply(raw string) Decision {
	fallback := Decision{Type: "chat", Speak: strings.TrimSpace(raw), Source: "llm"}

	blob := firstJSONBlob(strings.TrimSpace(raw))
	if blob == "" {
		return fallback
	}

	var data struct {
		Type          string          `json:"type"`
		Speak         string          `json:"speak"`
		Command       json.RawMessage `json:"command"`
		RequiresTrust json.Number     `json:"requires_trust"`
	}
	if err := json.Unmarshal([]byte(blob), &data); err != nil {
		return fallback
	}

	d := Decision{Source: "llm"}

	d.Type = strings.ToLower(strings.TrimSpace(data.Type))
	if d.Type != "chat" && d.Type != "command" {
		d.Type = "chat"
	}

	d.Speak = strings.TrimSpace(data.Speak)
	if d.Speak == "" {
		d.Speak = "I heard you."
	}

	if len(data.Command) > 0 && string(data.Command) != "null" {
		var cmd string
		if err := json.Unmarshal(data.Command, &cmd); err == nil {
			d.Command = strings.TrimSpace(cmd)
		}
	}

	if n, err := data.RequiresTrust.Int64(); err == nil {
		d.RequiresTrust = int(n)
	}
	if d.RequiresTrust < 0 {
		d.RequiresTrust = 0
	} else if d.RequiresTrust > 3 {
		d.RequiresTrust = 3
	}

	if d.Type == "chat" {
		d.Command = ""
	}
	return d
}
