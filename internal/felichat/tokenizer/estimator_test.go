package tokenizer

import (
	"strings"
	"testing"
)

func TestHeuristic_Estimate(t *testing.T) {
	tests := []struct {
		name          string
		charsPerToken int
		text          string
		want          int
	}{
		{"empty", 0, "", 0},
		{"single char rounds up", 0, "a", 1},
		{"exact multiple", 0, "abcd", 1},
		{"one over rounds up", 0, "abcde", 2},
		{"default ratio", 0, strings.Repeat("x", 40), 10},
		{"custom ratio", 2, "abcd", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Heuristic{CharsPerToken: tt.charsPerToken}
			if got := h.Estimate(tt.text); got != tt.want {
				t.Errorf("Estimate(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestHeuristic_Deterministic(t *testing.T) {
	h := Heuristic{}
	text := "Meow: Hullo, dis iz a chat about whiskerful conversations."
	first := h.Estimate(text)
	for i := 0; i < 5; i++ {
		if got := h.Estimate(text); got != first {
			t.Fatalf("estimate changed between calls: %d vs %d", got, first)
		}
	}
}

func TestHeuristic_MonotonicWithLength(t *testing.T) {
	h := Heuristic{}
	prev := 0
	for _, n := range []int{1, 10, 100, 1000, 10000} {
		got := h.Estimate(strings.Repeat("m", n))
		if got < prev {
			t.Fatalf("estimate shrank: %d chars → %d tokens (prev %d)", n, got, prev)
		}
		prev = got
	}
}
