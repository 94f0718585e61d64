package route

import "strings"

// MatchThreshold is the minimum similarity for an external project match.
const MatchThreshold = 0.6

// Similarity scores how well a query mention matches an external project
// name: 1.0 exact, 0.8 substring containment, else token-overlap ratio.
func Similarity(mention, name string) float64 {
	a := strings.ToLower(strings.TrimSpace(mention))
	b := strings.ToLower(strings.TrimSpace(name))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1.0
	}
	if strings.Contains(b, a) || strings.Contains(a, b) {
		return 0.8
	}
	return tokenOverlap(a, b)
}

// tokenOverlap is the Jaccard ratio of the two names' token sets.
func tokenOverlap(a, b string) float64 {
	as := tokenSet(a)
	bs := tokenSet(b)
	if len(as) == 0 || len(bs) == 0 {
		return 0
	}

	common := 0
	for t := range as {
		if bs[t] {
			common++
		}
	}
	union := len(as) + len(bs) - common
	return float64(common) / float64(union)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range strings.Fields(s) {
		set[t] = true
	}
	return set
}
