package agent

import (
	"testing"

	"github.com/botronka/botronka/pkg/state"
)

func TestEvaluateCommand(t *testing.T) {
	tests := []struct {
		name    string
		command string
		trust   state.TrustLevel
		allowed bool
	}{
		{"empty command always allowed", "", state.TrustUnknown, true},
		{"chat-only whitespace", "   ", state.TrustUnknown, true},

		{"movement needs friend", "move forward 10cm", state.TrustGuest, false},
		{"movement allowed for friend", "move forward 10cm", state.TrustFriend, true},
		{"movement allowed for owner", "turn left", state.TrustOwner, true},
		{"follow needs friend", "follow me", state.TrustUnknown, false},
		{"go gated", "go straight", state.TrustGuest, false},

		{"beep is not a movement verb", "beep", state.TrustUnknown, true},

		{"shutdown refused for owner", "shutdown now", state.TrustOwner, false},
		{"rm refused", "rm -rf /", state.TrustOwner, false},
		{"reboot refused", "please reboot", state.TrustOwner, false},
		{"poweroff refused", "poweroff", state.TrustOwner, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateCommand(tt.command, tt.trust, state.TrustFriend)
			if got.Allowed != tt.allowed {
				t.Errorf("EvaluateCommand(%q, trust=%v) = %+v, want allowed=%v",
					tt.command, tt.trust, got, tt.allowed)
			}
			if !got.Allowed && got.Reason == "" {
				t.Error("denied verdict carries no reason")
			}
		})
	}
}
