package audio

import "testing"

func TestWakeMatcher(t *testing.T) {
	m := NewWakeMatcher()

	tests := []struct {
		text string
		want bool
	}{
		{"hello botronka", true},
		{"Hey Botronka!", true},
		{"hi biedronka", true},
		{"botronka listen", true},
		{"wake up botronka", true},
		// STT mangles the name; close misses still count.
		{"hello badronka", true},
		{"hey betronka", true},
		// Bare short greeting fallback.
		{"hi", true},
		{"hello", true},
		{"hey there", true},
		// Hearing check fallback.
		{"can you hear me", true},
		{"botronka can you hear me", true},

		{"", false},
		{"(wind blowing)", false},
		{"(noise)", false},
		{"what is the weather like today", false},
		{"hello everyone how are you doing", false},
		{"turn left", false},
		{"the quick brown fox", false},
	}

	for _, tt := range tests {
		if got := m.Match(tt.text); got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestWakeMatcherCustomNames(t *testing.T) {
	m := NewWakeMatcher("Rosie")
	if !m.Match("hello rosie") {
		t.Error("custom name not matched")
	}
	if m.Match("hello botronka how are things going over there") {
		t.Error("default name matched after custom names were set")
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{"botronka", "botronka", 1.0, 1.0},
		{"botronka", "biedronka", 0.70, 0.95},
		{"botronka", "xyz", 0.0, 0.25},
		{"", "botronka", 0.0, 0.0},
	}
	for _, tt := range tests {
		got := similarity(tt.a, tt.b)
		if got < tt.min || got > tt.max {
			t.Errorf("similarity(%q, %q) = %v, want within [%v, %v]", tt.a, tt.b, got, tt.min, tt.max)
		}
	}
}
