package normalizer

import (
	"regexp"
	"strings"
)

// ZipRepair is the outcome of extracting and repairing a ZIP code from a raw
// address string. Upstream data entry drops leading zeros, so a 4-digit token
// in a plausible ZIP position is restored to five digits.
type ZipRepair struct {
	CleanedAddress string
	Zip5           string
	Source         string // "zip5", "zip4_trailing", "zip4_after_state", "zip4_before_state", or ""
}

// Repaired reports whether a dropped leading zero was restored.
func (z ZipRepair) Repaired() bool {
	return z.Source == "zip4_trailing" || z.Source == "zip4_after_state" || z.Source == "zip4_before_state"
}

var (
	zip5Re = regexp.MustCompile(`\b(\d{5})(?:-\d{4})?\b`)
	// Trailing 4-digit token, optionally followed by a country suffix.
	zip4TrailingRe = regexp.MustCompile(`(?i)\b(\d{4})\b(?:\s*(?:USA|US|United\s+States(?:\s+of\s+America)?)\.?)?\s*$`)
	// Leading-zero states this operation serves: the 4-digit repair only
	// fires next to one of these state tokens or at the very end.
	stateThenZip4Re = regexp.MustCompile(`(?i)\b(?:RI|MA|CT|NH|ME|VT|NJ|Rhode\s+Island|Massachusetts|Connecticut|New\s+Hampshire|Maine|Vermont|New\s+Jersey)\b\W*(\d{4})\b`)
	zip4ThenStateRe = regexp.MustCompile(`(?i)\b(\d{4})\b\W*\b(?:RI|MA|CT|NH|ME|VT|NJ|Rhode\s+Island|Massachusetts|Connecticut|New\s+Hampshire|Maine|Vermont|New\s+Jersey)\b`)

	unitContextRe  = regexp.MustCompile(`(?i)(?:apt|apartment|unit|ste|suite|#|fl|floor|bldg|building)\.?\s*$`)
	poBoxContextRe = regexp.MustCompile(`(?i)(?:p\.?\s*o\.?\s*box|po\s*box)\s*$`)
)

// RepairZip extracts a ZIP from an address string, restoring a dropped
// leading zero when a 4-digit token sits where a ZIP belongs. Heuristics are
// tried in fixed order; unit numbers ("Apt 2835") and PO boxes are never
// treated as ZIPs.
func RepairZip(address string) ZipRepair {
	s := strings.TrimSpace(address)
	if s == "" {
		return ZipRepair{CleanedAddress: s}
	}

	if loc := zip5Re.FindStringSubmatchIndex(s); loc != nil {
		zip5 := s[loc[2]:loc[3]]
		return ZipRepair{
			CleanedAddress: replaceSpan(s, loc[0], loc[1], zip5),
			Zip5:           zip5,
			Source:         "zip5",
		}
	}

	if loc := zip4TrailingRe.FindStringSubmatchIndex(s); loc != nil {
		before := strings.TrimRight(s[:loc[0]], " ")
		if !unitContextRe.MatchString(before) && !poBoxContextRe.MatchString(before) {
			zip5 := "0" + s[loc[2]:loc[3]]
			return ZipRepair{
				CleanedAddress: replaceSpan(s, loc[0], loc[1], zip5),
				Zip5:           zip5,
				Source:         "zip4_trailing",
			}
		}
	}

	if loc := stateThenZip4Re.FindStringSubmatchIndex(s); loc != nil {
		before := strings.TrimRight(s[:loc[2]], " ")
		if !unitContextRe.MatchString(before) && !poBoxContextRe.MatchString(before) {
			zip5 := "0" + s[loc[2]:loc[3]]
			return ZipRepair{
				CleanedAddress: replaceSpan(s, loc[2], loc[3], zip5),
				Zip5:           zip5,
				Source:         "zip4_after_state",
			}
		}
	}

	if loc := zip4ThenStateRe.FindStringSubmatchIndex(s); loc != nil {
		before := strings.TrimRight(s[:loc[2]], " ")
		if !unitContextRe.MatchString(before) && !poBoxContextRe.MatchString(before) {
			zip5 := "0" + s[loc[2]:loc[3]]
			return ZipRepair{
				CleanedAddress: replaceSpan(s, loc[2], loc[3], zip5),
				Zip5:           zip5,
				Source:         "zip4_before_state",
			}
		}
	}

	return ZipRepair{CleanedAddress: s}
}

var (
	multiSpaceRe   = regexp.MustCompile(`\s{2,}`)
	spaceCommaRe   = regexp.MustCompile(`\s+,`)
	commaSpacingRe = regexp.MustCompile(`\s*,\s*`)
)

func replaceSpan(text string, start, end int, replacement string) string {
	cleaned := strings.TrimSpace(text[:start] + replacement + text[end:])
	cleaned = multiSpaceRe.ReplaceAllString(cleaned, " ")
	cleaned = strings.Trim(cleaned, " ,;")
	cleaned = spaceCommaRe.ReplaceAllString(cleaned, ",")
	cleaned = commaSpacingRe.ReplaceAllString(cleaned, ", ")
	return strings.TrimSpace(cleaned)
}
