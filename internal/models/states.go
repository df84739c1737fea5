package models

import (
	"regexp"
	"strings"
)

// StateNameByAbbr maps US postal abbreviations to full state names.
var StateNameByAbbr = map[string]string{
	"AL": "Alabama", "AK": "Alaska", "AZ": "Arizona", "AR": "Arkansas",
	"CA": "California", "CO": "Colorado", "CT": "Connecticut", "DE": "Delaware",
	"FL": "Florida", "GA": "Georgia", "HI": "Hawaii", "ID": "Idaho",
	"IL": "Illinois", "IN": "Indiana", "IA": "Iowa", "KS": "Kansas",
	"KY": "Kentucky", "LA": "Louisiana", "ME": "Maine", "MD": "Maryland",
	"MA": "Massachusetts", "MI": "Michigan", "MN": "Minnesota", "MS": "Mississippi",
	"MO": "Missouri", "MT": "Montana", "NE": "Nebraska", "NV": "Nevada",
	"NH": "New Hampshire", "NJ": "New Jersey", "NM": "New Mexico", "NY": "New York",
	"NC": "North Carolina", "ND": "North Dakota", "OH": "Ohio", "OK": "Oklahoma",
	"OR": "Oregon", "PA": "Pennsylvania", "RI": "Rhode Island", "SC": "South Carolina",
	"SD": "South Dakota", "TN": "Tennessee", "TX": "Texas", "UT": "Utah",
	"VT": "Vermont", "VA": "Virginia", "WA": "Washington", "WV": "West Virginia",
	"WI": "Wisconsin", "WY": "Wyoming", "DC": "District of Columbia",
	"PR": "Puerto Rico", "GU": "Guam", "VI": "U.S. Virgin Islands",
	"AS": "American Samoa", "MP": "Northern Mariana Islands",
}

var (
	stateAbbrByNorm = buildStateIndex()
	nonAlnumRe      = regexp.MustCompile(`[^a-z0-9]+`)
	isoStateRe      = regexp.MustCompile(`(?i)\bUS[-\s]([A-Za-z]{2})\b`)
)

func buildStateIndex() map[string]string {
	idx := make(map[string]string, 2*len(StateNameByAbbr))
	for abbr, name := range StateNameByAbbr {
		idx[NormalizeText(abbr)] = abbr
		idx[NormalizeText(name)] = abbr
	}
	return idx
}

// NormalizeText lowercases, strips punctuation, and collapses whitespace.
func NormalizeText(value string) string {
	text := strings.ToLower(strings.TrimSpace(value))
	if text == "" {
		return ""
	}
	text = nonAlnumRe.ReplaceAllString(text, " ")
	return strings.Join(strings.Fields(text), " ")
}

// NormalizeState reduces a state value to its two-letter postal abbreviation.
// Handles full names, abbreviations, and ISO forms such as "US-RI". Values
// that do not resolve to a known state are returned normalized but unmapped,
// so mismatches still compare deterministically.
func NormalizeState(value string) string {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return ""
	}
	if m := isoStateRe.FindStringSubmatch(raw); m != nil {
		candidate := strings.ToUpper(m[1])
		if _, ok := StateNameByAbbr[candidate]; ok {
			return candidate
		}
	}
	norm := NormalizeText(raw)
	if norm == "" {
		return ""
	}
	if abbr, ok := stateAbbrByNorm[norm]; ok {
		return abbr
	}
	if len(norm) == 2 {
		candidate := strings.ToUpper(norm)
		if _, ok := StateNameByAbbr[candidate]; ok {
			return candidate
		}
	}
	return norm
}
