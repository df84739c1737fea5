package normalizer

import "strings"

// tokenExpansions standardizes street-type, directional, and occupancy
// abbreviations inside tagged fields so downstream matching compares full
// words.
var tokenExpansions = map[string]string{
	"st": "Street", "ave": "Avenue", "av": "Avenue", "blvd": "Boulevard",
	"rd": "Road", "ct": "Court", "ln": "Lane", "dr": "Drive",
	"pl": "Place", "sq": "Square", "pkwy": "Parkway", "cir": "Circle",
	"ter": "Terrace", "trl": "Trail", "hwy": "Highway", "ctr": "Center",
	"cv": "Cove", "expy": "Expressway", "expwy": "Expressway",
	"n": "North", "s": "South", "e": "East", "w": "West",
	"ne": "Northeast", "nw": "Northwest", "se": "Southeast", "sw": "Southwest",
	"apt": "Apartment", "ste": "Suite",
}

// ExpandTokens expands known abbreviations token-by-token, preserving
// unknown tokens, and reports how many tokens changed.
func ExpandTokens(value string) (string, int) {
	if value == "" {
		return "", 0
	}
	fields := strings.Fields(value)
	count := 0
	for i, f := range fields {
		key := strings.ToLower(strings.TrimRight(f, "."))
		if full, ok := tokenExpansions[key]; ok {
			fields[i] = full
			count++
		}
	}
	return strings.Join(fields, " "), count
}
