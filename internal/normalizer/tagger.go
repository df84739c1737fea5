package normalizer

import (
	"errors"
	"regexp"
	"strings"

	"github.com/oceanstate-routing/pinpoint/internal/models"
)

// Tags is the labeled-field output of one tagging pass over an address
// string. Fields hold whatever the tagger could label; empty means unlabeled.
type Tags struct {
	HouseNumber string
	StreetName  string
	Unit        string
	City        string
	State       string
	Zip         string
}

// Tagger splits a repaired address string into labeled fields. The default
// implementation is rule-based; it is an interface so a heavier parser can
// be swapped in without touching the normalizer.
type Tagger interface {
	Tag(address string) (Tags, error)
}

// Tagging failures that trigger the normalizer's bounded repair attempt.
var (
	ErrNoUsableFields  = errors.New("tagger: no usable fields")
	ErrDuplicateLabels = errors.New("tagger: duplicate labeled fields")
)

// RuleTagger is a deterministic token/regex address tagger tuned for the
// US single-line addresses this operation collects.
type RuleTagger struct{}

// NewRuleTagger returns the default rule-based tagger.
func NewRuleTagger() *RuleTagger { return &RuleTagger{} }

var (
	houseNumberRe = regexp.MustCompile(`^(\d+[A-Za-z]?(?:[-/]\d+[A-Za-z]?)?)\b`)
	unitRe        = regexp.MustCompile(`(?i)\b(apt|apartment|unit|ste|suite|fl|floor|bldg|building|#)\.?\s*([\w-]+)`)
	tagZip5Re     = regexp.MustCompile(`\b(\d{5})(?:-\d{4})?\b`)
)

// streetTypeTokens mark the end of a street name when an address has no
// comma structure ("5 Marie Dr Bristol RI").
var streetTypeTokens = map[string]bool{
	"st": true, "street": true, "ave": true, "av": true, "avenue": true,
	"blvd": true, "boulevard": true, "rd": true, "road": true,
	"ct": true, "court": true, "ln": true, "lane": true,
	"dr": true, "drive": true, "pl": true, "place": true,
	"sq": true, "square": true, "pkwy": true, "parkway": true,
	"cir": true, "circle": true, "ter": true, "terrace": true,
	"trl": true, "trail": true, "hwy": true, "highway": true,
	"way": true, "cv": true, "cove": true, "ctr": true, "center": true,
	"expy": true, "expwy": true, "expressway": true,
}

// Tag labels the fields of a single-line address. Returns ErrDuplicateLabels
// when two distinct ZIP-shaped tokens appear, and ErrNoUsableFields when
// neither a street nor a ZIP can be identified.
func (rt *RuleTagger) Tag(address string) (Tags, error) {
	var tags Tags
	work := strings.TrimSpace(address)
	if work == "" {
		return tags, ErrNoUsableFields
	}

	zips := tagZip5Re.FindAllStringSubmatch(work, -1)
	if len(zips) > 1 && zips[0][1] != zips[1][1] {
		return tags, ErrDuplicateLabels
	}
	if len(zips) > 0 {
		tags.Zip = zips[0][1]
		work = strings.TrimSpace(tagZip5Re.ReplaceAllString(work, ""))
	}

	if m := unitRe.FindStringSubmatchIndex(work); m != nil {
		tags.Unit = strings.TrimSpace(work[m[0]:m[1]])
		work = strings.TrimSpace(work[:m[0]] + " " + work[m[1]:])
	}

	work = strings.Trim(work, " ,")
	segments := splitSegments(work)
	if len(segments) == 0 {
		return tags, ErrNoUsableFields
	}

	// Trailing state token, either its own segment or at the end of the last.
	segments, tags.State = extractState(segments)
	if len(segments) == 0 {
		return tags, ErrNoUsableFields
	}

	first := segments[0]
	if m := houseNumberRe.FindStringSubmatch(first); m != nil {
		tags.HouseNumber = m[1]
		first = strings.TrimSpace(first[len(m[0]):])
	}

	switch {
	case len(segments) >= 2:
		tags.StreetName = strings.TrimSpace(first)
		tags.City = strings.TrimSpace(strings.Join(segments[1:], " "))
	default:
		tags.StreetName, tags.City = splitStreetCity(first)
	}

	if tags.StreetName == "" && tags.Zip == "" {
		return tags, ErrNoUsableFields
	}
	return tags, nil
}

// splitSegments breaks on commas and drops empties.
func splitSegments(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// extractState pulls a trailing state name or abbreviation off the segment
// list, returning the trimmed segments and the normalized abbreviation.
func extractState(segments []string) ([]string, string) {
	last := segments[len(segments)-1]
	if abbr := knownState(last); abbr != "" {
		return segments[:len(segments)-1], abbr
	}
	fields := strings.Fields(last)
	if len(fields) > 1 {
		if abbr := knownState(fields[len(fields)-1]); abbr != "" {
			segments[len(segments)-1] = strings.Join(fields[:len(fields)-1], " ")
			return segments, abbr
		}
	}
	return segments, ""
}

func knownState(token string) string {
	norm := models.NormalizeState(token)
	if _, ok := models.StateNameByAbbr[norm]; ok {
		return norm
	}
	return ""
}

// splitStreetCity handles comma-free addresses by ending the street at the
// last street-type token and treating the remainder as the city.
func splitStreetCity(s string) (string, string) {
	fields := strings.Fields(s)
	cut := -1
	for i, f := range fields {
		if streetTypeTokens[strings.ToLower(strings.TrimRight(f, "."))] {
			cut = i
		}
	}
	if cut < 0 || cut == len(fields)-1 {
		return strings.TrimSpace(s), ""
	}
	return strings.Join(fields[:cut+1], " "), strings.Join(fields[cut+1:], " ")
}
