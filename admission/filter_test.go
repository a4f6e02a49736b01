package admission

import "testing"

func TestBlocked(t *testing.T) {
	keywords := []string{"sports", "Game of the Year"}

	tests := []struct {
		name    string
		message string
		want    bool
	}{
		{"exact keyword", "sports", true},
		{"keyword inside sentence", "What's the latest sports score?", true},
		{"case insensitive message", "SPORTS news please", true},
		{"case insensitive keyword", "who won game of the year", true},
		{"substring of larger word", "transports department budget", true},
		{"clean message", "What is the HR leave policy?", false},
		{"empty message", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Blocked(tt.message, keywords); got != tt.want {
				t.Fatalf("Blocked(%q) = %v, want %v", tt.message, got, tt.want)
			}
		})
	}
}

func TestBlockedEmptyKeywordList(t *testing.T) {
	if Blocked("anything about sports and games", nil) {
		t.Fatal("empty keyword list must never block")
	}
	if Blocked("anything about sports and games", []string{}) {
		t.Fatal("empty keyword list must never block")
	}
}

func TestBlockedNoWordBoundaries(t *testing.T) {
	// Substring matching is deliberate: "game" also blocks words that
	// merely contain it.
	if !Blocked("endgame strategy", []string{"game"}) {
		t.Fatal("expected substring match to block")
	}
}
