// Package display drives the robot's face: a small behavior engine
// picks an emotion from what the bus reports (faces, distance, vision
// health) and hands it to a Renderer back-end.
package display

// Emotion is what the face shows.
type Emotion int

const (
	EmotionHappy Emotion = iota
	EmotionGreeting
	EmotionSuspicious
	EmotionLonely
	EmotionStuck
	EmotionAngry
	EmotionCurious
	EmotionSleepy
	EmotionAlert
)

func (e Emotion) String() string {
	switch e {
	case EmotionGreeting:
		return "GREETING"
	case EmotionSuspicious:
		return "SUSPICIOUS"
	case EmotionLonely:
		return "LONELY"
	case EmotionStuck:
		return "STUCK"
	case EmotionAngry:
		return "ANGRY"
	case EmotionCurious:
		return "CURIOUS"
	case EmotionSleepy:
		return "SLEEPY"
	case EmotionAlert:
		return "ALERT"
	default:
		return "HAPPY"
	}
}

// Face returns the ASCII face for the OLED.
func (e Emotion) Face() string {
	switch e {
	case EmotionGreeting:
		return "(^_^)/"
	case EmotionSuspicious:
		return "(o_O)"
	case EmotionLonely:
		return "(._.)"
	case EmotionStuck:
		return "(>_<)"
	case EmotionAngry:
		return "(ಠ_ಠ)"
	case EmotionCurious:
		return "(?_?)"
	case EmotionSleepy:
		return "(-_-) zZ"
	case EmotionAlert:
		return "(!)"
	default:
		return "^_^"
	}
}

// Renderer is the display back-end. Draw replaces the whole screen.
type Renderer interface {
	Draw(emotion Emotion, subtitle string) error
	Close() error
}

// NoopRenderer is the fallback used when the OLED is absent.
type NoopRenderer struct{}

func (NoopRenderer) Draw(Emotion, string) error { return nil }
func (NoopRenderer) Close() error               { return nil }

var _ Renderer = NoopRenderer{}
