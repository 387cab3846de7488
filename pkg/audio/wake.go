package audio

import (
	"regexp"
	"strings"
)

var (
	greetRe      = regexp.MustCompile(`(?i)\b(hi|hello|hey)\b`)
	shortGreetRe = regexp.MustCompile(`(?i)^(hi|hello|hey)\b`)
	wakeWordRe   = regexp.MustCompile(`(?i)\b(wake|listen|start listening|can you hear me)\b`)
	noiseOnlyRe  = regexp.MustCompile(`^\([^)]*\)$`)
	tokenRe      = regexp.MustCompile(`[a-zA-Z']+`)
)

// nameMatchRatio is the fuzzy-match threshold for the robot's name.
// STT regularly mangles it ("botronka" vs "biedronka"), so an exact
// token match is too strict.
const nameMatchRatio = 0.74

// WakeMatcher decides whether transcribed wake-probe audio contains a
// wake phrase: the robot's name plus a greeting or listen intent, a
// very short bare greeting, or an explicit hearing check.
type WakeMatcher struct {
	names []string
}

// NewWakeMatcher builds a matcher for the given name variants
// (lowercased). With no variants, the built-in defaults are used.
func NewWakeMatcher(names ...string) *WakeMatcher {
	if len(names) == 0 {
		names = []string{"botronka", "biedronka"}
	}
	lowered := make([]string, len(names))
	for i, n := range names {
		lowered[i] = strings.ToLower(strings.TrimSpace(n))
	}
	return &WakeMatcher{names: lowered}
}

// Match reports whether text is a wake phrase.
func (m *WakeMatcher) Match(text string) bool {
	normalized := strings.Join(strings.Fields(strings.TrimSpace(text)), " ")
	if normalized == "" {
		return false
	}
	// Whisper-style noise annotations like "(wind blowing)".
	if noiseOnlyRe.MatchString(normalized) {
		return false
	}

	lower := strings.ToLower(normalized)
	words := tokenRe.FindAllString(lower, -1)

	hasName := m.containsName(words)
	hasGreeting := greetRe.MatchString(normalized) || shortGreetRe.MatchString(normalized)
	hasIntent := wakeWordRe.MatchString(normalized)

	// Preferred: the phrase names the robot.
	if hasName && (hasGreeting || hasIntent) {
		return true
	}
	// Clipped STT fallback: a bare short greeting.
	if hasGreeting && len(words) <= 2 {
		return true
	}
	// Clipped wake-check fallback.
	return strings.Contains(lower, "can you hear me")
}

func (m *WakeMatcher) containsName(words []string) bool {
	for _, w := range words {
		for _, name := range m.names {
			if w == name || similarity(w, name) >= nameMatchRatio {
				return true
			}
		}
	}
	return false
}

// similarity is 2*LCS/(len(a)+len(b)) over runes, the same shape of
// ratio difflib computes. 1.0 means identical, 0.0 disjoint.
func similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}

	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				cur[j] = prev[j-1] + 1
			} else if prev[j] >= cur[j-1] {
				cur[j] = prev[j]
			} else {
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	lcs := prev[len(rb)]
	return 2 * float64(lcs) / float64(len(ra)+len(rb))
}
