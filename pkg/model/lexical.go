package model

import (
	"regexp"
	"strconv"
	"strings"
)

// Cheap lexical extraction, distinct from the NLU collaborator. Used by
// the router's local-knowledge stage and by pending-request completion, so
// both keep working when the language model is absent or degraded.

var (
	amountRe     = regexp.MustCompile(`\$\s?(\d+(?:,\d{3})*(?:\.\d{1,2})?)|(\d+(?:\.\d{1,2})?)\s?(?:dollars|usd|bucks)`)
	mentionRe    = regexp.MustCompile(`\b[A-Z][a-zA-Z]*(?:\s+[A-Z][a-zA-Z]*)*\b`)
	possessiveRe = regexp.MustCompile(`\b((?:[A-Z][a-zA-Z]*\s+)*[A-Za-z]+)'s\b`)
)

// ParseAmounts extracts financial amounts from raw query text.
func ParseAmounts(text string) []*Amount {
	var out []*Amount
	for _, m := range amountRe.FindAllStringSubmatch(text, -1) {
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
		if err != nil {
			continue
		}
		out = append(out, &Amount{
			Value:      v,
			Currency:   "USD",
			Raw:        strings.TrimSpace(m[0]),
			Confidence: 0.9,
		})
	}
	return out
}

// ParseMentions extracts candidate proper-name mentions (capitalized runs)
// from query text, dropping leading sentence capitals that match common
// function words.
func ParseMentions(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range mentionRe.FindAllString(text, -1) {
		if isStopword(m) {
			continue
		}
		key := strings.ToLower(m)
		if !seen[key] {
			seen[key] = true
			out = append(out, m)
		}
	}
	return out
}

// ParsePossessives extracts base names of possessive references ("X's").
func ParsePossessives(text string) []string {
	var out []string
	for _, m := range possessiveRe.FindAllStringSubmatch(text, -1) {
		base := strings.TrimSpace(m[1])
		if base != "" && !isStopword(base) {
			out = append(out, base)
		}
	}
	return out
}

// StripPossessive removes a trailing possessive marker from a reference.
func StripPossessive(s string) string {
	s = strings.TrimSpace(s)
	for _, suffix := range []string{"'s", "’s", "'", "’"} {
		if t := strings.TrimSuffix(s, suffix); t != s {
			return strings.TrimSpace(t)
		}
	}
	return s
}

// NormalizeQuery canonicalizes a query for cache keying.
func NormalizeQuery(q string) string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(q)))
	return strings.Join(fields, " ")
}

var stopwords = map[string]bool{
	"i": true, "a": true, "the": true, "it": true, "we": true, "my": true,
	"what": true, "who": true, "how": true, "when": true, "where": true,
	"did": true, "do": true, "does": true, "is": true, "are": true,
	"this": true, "that": true, "these": true, "those": true,
}

func isStopword(s string) bool {
	return stopwords[strings.ToLower(s)]
}
