// Package agent decides what to do with a transcribed user turn:
// admin intents are handled locally, everything else goes to the LLM
// collaborator, and any resulting command passes a trust policy gate
// before it reaches the motion engine.
package agent

import (
	"fmt"
	"strings"

	"github.com/botronka/botronka/pkg/state"
)

var movementCommands = map[string]bool{
	"move": true, "turn": true, "rotate": true, "go": true,
	"back": true, "forward": true, "follow": true,
}

var forbiddenTokens = []string{"shutdown", "reboot", "format", "delete", "rm", "poweroff"}

// Verdict is the outcome of the policy gate.
type Verdict struct {
	Allowed bool
	Reason  string
}

// EvaluateCommand gates a proposed command against the speaker's trust
// level. An empty command (pure chat) is always allowed; movement
// verbs require at least minMove; anything touching the host system is
// refused outright.
func EvaluateCommand(command string, trust, minMove state.TrustLevel) Verdict {
	if strings.TrimSpace(command) == "" {
		return Verdict{Allowed: true}
	}

	low := strings.ToLower(command)
	for _, tok := range forbiddenTokens {
		if strings.Contains(low, tok) {
			return Verdict{Allowed: false, Reason: "unsafe command"}
		}
	}

	name := strings.Fields(low)[0]
	if movementCommands[name] && trust < minMove {
		return Verdict{
			Allowed: false,
			Reason:  fmt.Sprintf("trust level %d is too low for %s", int(trust), name),
		}
	}
	return Verdict{Allowed: true}
}
