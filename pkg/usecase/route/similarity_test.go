package route_test

import (
	"testing"

	"github.com/m-mizutani/cony/pkg/usecase/route"
	"github.com/m-mizutani/gt"
)

func TestSimilarity(t *testing.T) {
	testCases := []struct {
		name    string
		mention string
		target  string
		want    float64
	}{
		{"exact", "Deck Project", "deck project", 1.0},
		{"mention contained in name", "John", "John Green Deck Project", 0.8},
		{"name contained in mention", "the deck project site", "deck project", 0.8},
		{"token overlap", "deck repair", "repair backlog", 1.0 / 3.0},
		{"disjoint", "kitchen remodel", "deck project", 0.0},
		{"empty mention", "", "deck project", 0.0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gt.Equal(t, route.Similarity(tc.mention, tc.target), tc.want)
		})
	}
}

func TestSimilarityThreshold(t *testing.T) {
	// Substring containment always clears the match threshold.
	gt.V(t, route.Similarity("John", "John Green Deck Project") >= route.MatchThreshold).Equal(true)
	gt.V(t, route.Similarity("kitchen", "deck project") >= route.MatchThreshold).Equal(false)
}
