package agent

import (
	"strings"
	"testing"
	"time"
)

func TestParseReply(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Decision
	}{
		{
			"clean command",
			`{"type":"command","speak":"On it.","command":"move forward 10cm","requires_trust":2}`,
			Decision{Type: "command", Speak: "On it.", Command: "move forward 10cm", RequiresTrust: 2, Source: "llm"},
		},
		{
			"clean chat",
			`{"type":"chat","speak":"Hello!","command":null,"requires_trust":0}`,
			Decision{Type: "chat", Speak: "Hello!", Source: "llm"},
		},
		{
			"json wrapped in prose",
			"Sure thing: {\"type\":\"chat\",\"speak\":\"Hi\",\"command\":null,\"requires_trust\":0} hope that helps",
			Decision{Type: "chat", Speak: "Hi", Source: "llm"},
		},
		{
			"chat never carries a command",
			`{"type":"chat","speak":"ok","command":"move forward","requires_trust":0}`,
			Decision{Type: "chat", Speak: "ok", Source: "llm"},
		},
		{
			"unknown type degrades to chat",
			`{"type":"dance","speak":"ok","command":null}`,
			Decision{Type: "chat", Speak: "ok", Source: "llm"},
		},
		{
			"trust clamped to range",
			`{"type":"command","speak":"ok","command":"turn left","requires_trust":9}`,
			Decision{Type: "command", Speak: "ok", Command: "turn left", RequiresTrust: 3, Source: "llm"},
		},
		{
			"empty speak gets a fallback",
			`{"type":"chat","speak":"","command":null}`,
			Decision{Type: "chat", Speak: "I heard you.", Source: "llm"},
		},
		{
			"no json speaks the raw text",
			"I am just plain prose.",
			Decision{Type: "chat", Speak: "I am just plain prose.", Source: "llm"},
		},
		{
			"broken json speaks the raw text",
			`{"type": "chat", "speak": `,
			Decision{Type: "chat", Speak: `{"type": "chat", "speak":`, Source: "llm"},
		},
		{
			"braces inside strings do not confuse the scanner",
			`{"type":"chat","speak":"use {curly} braces","command":null}`,
			Decision{Type: "chat", Speak: "use {curly} braces", Source: "llm"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseReply(tt.raw); got != tt.want {
				t.Errorf("ParseReply() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestQuickDecision(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		in          string
		wantNil     bool
		wantCommand string
		wantType    string
	}{
		{"hi", false, "", "chat"},
		{"Hello Botronka", false, "", "chat"},
		{"what is your name?", false, "", "chat"},
		{"thanks a lot", false, "", "chat"},
		{"stop", false, "stop", "command"},
		{"follow me", false, "follow me", "command"},
		{"move forward 10 cm", false, "move forward 10 cm", "command"},
		{"turn left please", false, "turn left please", "command"},
		{"beep for me", false, "beep", "command"},

		{"explain quantum entanglement", true, "", ""},
		{"", true, "", ""},
	}

	for _, tt := range tests {
		got := QuickDecision(tt.in, now)
		if (got == nil) != tt.wantNil {
			t.Errorf("QuickDecision(%q) nil = %v, want %v", tt.in, got == nil, tt.wantNil)
			continue
		}
		if got == nil {
			continue
		}
		if got.Type != tt.wantType || got.Command != tt.wantCommand {
			t.Errorf("QuickDecision(%q) = %+v, want type=%q command=%q",
				tt.in, got, tt.wantType, tt.wantCommand)
		}
		if got.Speak == "" {
			t.Errorf("QuickDecision(%q) has nothing to say", tt.in)
		}
	}
}

func TestQuickDecisionTime(t *testing.T) {
	now := time.Date(2026, 3, 1, 14, 5, 0, 0, time.UTC)
	got := QuickDecision("what time is it", now)
	if got == nil {
		t.Fatal("time question missed the fast path")
	}
	if !strings.Contains(got.Speak, "14:05") {
		t.Errorf("Speak = %q, want the clock time", got.Speak)
	}
}
