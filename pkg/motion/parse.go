// Package motion turns free-text motion instructions into timed
// drive/steer actuation and runs the closed-loop follow controller.
package motion

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Action is the normalized motion verb a command text parses to.
type Action string

const (
	ActionUnknown       Action = "unknown"
	ActionStop          Action = "stop"
	ActionFollow        Action = "follow"
	ActionLeft          Action = "left"
	ActionRight         Action = "right"
	ActionForward       Action = "forward"
	ActionBackward      Action = "backward"
	ActionStepperLeft   Action = "stepper_left"
	ActionStepperRight  Action = "stepper_right"
	ActionStepperCenter Action = "stepper_center"
)

// Command is the parsed form of a free-text motion instruction.
type Command struct {
	Action Action

	// Duration overrides the default drive/turn time when HasDuration.
	Duration    time.Duration
	HasDuration bool

	// FollowTargetCM is an explicit follow distance when HasTarget.
	FollowTargetCM float64
	HasTarget      bool
}

var (
	secondsRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:s|sec|secs|second|seconds)\b`)
	cmRe      = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*cm\b`)
	metersRe  = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*m\b`)
)

func extractSeconds(cmd string) (time.Duration, bool) {
	m := secondsRe.FindStringSubmatch(cmd)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return time.Duration(v * float64(time.Second)), true
}

func extractDistanceCM(cmd string) (float64, bool) {
	if m := cmRe.FindStringSubmatch(cmd); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		if err == nil && v >= 0 {
			return v, true
		}
		return 0, false
	}
	if m := metersRe.FindStringSubmatch(cmd); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		if err == nil && v >= 0 {
			return v * 100, true
		}
	}
	return 0, false
}

func containsAny(s string, tokens ...string) bool {
	for _, tok := range tokens {
		if strings.Contains(s, tok) {
			return true
		}
	}
	return false
}

// Parse normalizes a free-text motion instruction. Priority order:
// stop tokens win outright, then follow, then steering-only phrasing,
// then turns, then straight drive. Anything else is ActionUnknown.
func Parse(text string) Command {
	cmd := strings.ToLower(strings.TrimSpace(text))
	if cmd == "" {
		return Command{Action: ActionUnknown}
	}

	dur, hasDur := extractSeconds(cmd)

	if containsAny(cmd, "stop", "halt", "cancel", "freeze") {
		return Command{Action: ActionStop}
	}

	if strings.Contains(cmd, "follow") {
		target, hasTarget := extractDistanceCM(cmd)
		return Command{
			Action:         ActionFollow,
			Duration:       dur,
			HasDuration:    hasDur,
			FollowTargetCM: target,
			HasTarget:      hasTarget,
		}
	}

	// Steering vocabulary without a turn/move verb maps to bare
	// stepper moves; with one it is a spin turn.
	steerHint := containsAny(cmd, "stepper", "steer", "steering", "head", "pan")
	moveVerb := containsAny(cmd, "turn", "move", "go", "rotate")

	if strings.Contains(cmd, "center") && steerHint {
		return Command{Action: ActionStepperCenter}
	}

	if strings.Contains(cmd, "left") {
		if steerHint && !moveVerb {
			return Command{Action: ActionStepperLeft}
		}
		return Command{Action: ActionLeft, Duration: dur, HasDuration: hasDur}
	}

	if strings.Contains(cmd, "right") {
		if steerHint && !moveVerb {
			return Command{Action: ActionStepperRight}
		}
		return Command{Action: ActionRight, Duration: dur, HasDuration: hasDur}
	}

	if containsAny(cmd, "backward", "back", "reverse") {
		return Command{Action: ActionBackward, Duration: dur, HasDuration: hasDur}
	}

	if containsAny(cmd, "forward", "ahead", "front", "straight") {
		return Command{Action: ActionForward, Duration: dur, HasDuration: hasDur}
	}

	return Command{Action: ActionUnknown}
}
