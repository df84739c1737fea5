package normalizer

import (
	"context"
	"log/slog"
	"strings"

	"github.com/oceanstate-routing/pinpoint/internal/models"
)

// OverrideStore is the externally curated bad-address table: an exact-string
// map from known-bad raw addresses to corrected literals.
type OverrideStore interface {
	LookupOverride(ctx context.Context, raw string) (string, bool, error)
}

// StateInferrer performs the restricted reverse lookup used to back-fill a
// missing state from house number + street + city.
type StateInferrer interface {
	InferState(ctx context.Context, houseNumber, street, city string) (string, error)
}

// Normalizer repairs and parses a raw address string into structured fields.
// The pipeline order is fixed; every repair records a flag on the result.
type Normalizer struct {
	log       *slog.Logger
	overrides OverrideStore
	tagger    Tagger
	states    StateInferrer
}

// stateFixes standardizes free-text state names to postal abbreviations
// before tagging. Substring replacement, case-insensitive.
var stateFixes = []struct{ from, to string }{
	{"rhode island", "RI"},
	{"r.i.", "RI"},
	{"massachusetts", "MA"},
	{"mass.", "MA"},
	{"m.a.", "MA"},
	{"connecticut", "CT"},
}

// townFixes restores directional prefixes the schedulers abbreviate.
var townFixes = []struct{ from, to string }{
	{"n scituate", "North Scituate"},
	{"n. scituate", "North Scituate"},
	{"n kingstown", "North Kingstown"},
	{"s kingstown", "South Kingstown"},
	{"s. kingstown", "South Kingstown"},
	{"n providence", "North Providence"},
	{"n. providence", "North Providence"},
	{"n attleboro", "North Attleboro"},
	{"n. attleboro", "North Attleboro"},
}

// New creates a Normalizer. The state inferrer may be nil, in which case the
// reverse-for-state step is skipped.
func New(log *slog.Logger, overrides OverrideStore, tagger Tagger, states StateInferrer) *Normalizer {
	return &Normalizer{log: log, overrides: overrides, tagger: tagger, states: states}
}

// Normalize runs the repair pipeline over one raw address. It never fails:
// parse problems are recorded as missing-field flags and resolution
// continues with partial fields.
func (n *Normalizer) Normalize(ctx context.Context, raw models.RawAddress) models.TaggedAddress {
	var tagged models.TaggedAddress
	address := strings.TrimSpace(raw.Address)

	if n.overrides != nil {
		corrected, ok, err := n.overrides.LookupOverride(ctx, address)
		if err != nil {
			n.log.ErrorContext(ctx, "override lookup failed", "error", err)
		} else if ok {
			n.log.DebugContext(ctx, "bad-address override applied", "raw", address, "corrected", corrected)
			address = corrected
			tagged.OverrideApplied = true
		}
	}

	address, tagged.FixStateAbbrev = applyFixes(address, stateFixes)
	address, tagged.FixTownDirectional = applyFixes(address, townFixes)

	repair := RepairZip(address)
	address = repair.CleanedAddress
	tagged.FixZipRepair = repair.Repaired()
	if repair.Zip5 != "" {
		n.log.DebugContext(ctx, "zip extracted", "zip", repair.Zip5, "source", repair.Source)
	}
	tagged.RepairedAddress = address

	tags, err := n.tagger.Tag(address)
	if err != nil {
		augmented := augmentForRetag(address, repair.Zip5)
		if augmented != address {
			n.log.DebugContext(ctx, "tagging failed, retrying with augmented string",
				"error", err, "augmented", augmented)
			if retagged, retryErr := n.tagger.Tag(augmented); retryErr == nil {
				tags = retagged
				tagged.FixRetaggedOnce = true
				tagged.RepairedAddress = augmented
				err = nil
			}
		}
		if err != nil {
			n.log.DebugContext(ctx, "address tagging failed after bounded retry", "error", err)
		}
	}

	tagged.HouseNumber = tags.HouseNumber
	tagged.StreetName = tags.StreetName
	tagged.Unit = tags.Unit
	tagged.City = tags.City
	tagged.State = tags.State
	tagged.Zip = tags.Zip
	if tagged.Zip == "" {
		tagged.Zip = repair.Zip5
	}
	if tagged.Zip == "" && raw.ZipHint != "" {
		hint := raw.ZipHint
		if len(hint) == 4 {
			hint = "0" + hint
		}
		tagged.Zip = hint
	}

	// Digits-only house numbers; the non-digit remainder is a unit marker.
	if tagged.HouseNumber != "" && !allDigits(tagged.HouseNumber) {
		digits, rest := splitDigits(tagged.HouseNumber)
		if digits != "" {
			tagged.HouseNumber = digits
			tagged.FixNonNumericNumber = true
			if tagged.Unit == "" && rest != "" {
				tagged.Unit = "Unit " + rest
			}
		}
	}

	if tagged.State == "" && tagged.Zip != "" {
		if abbr := zipState(tagged.Zip); abbr != "" {
			tagged.State = abbr
			tagged.FixStateFromZip = true
		}
	}

	if tagged.State == "" && n.states != nil &&
		tagged.HouseNumber != "" && tagged.StreetName != "" && tagged.City != "" {
		tagged.ReverseStateSearch = true
		inferred, err := n.states.InferState(ctx, tagged.HouseNumber, tagged.StreetName, tagged.City)
		if err != nil {
			n.log.DebugContext(ctx, "reverse state lookup failed", "error", err)
		} else if inferred != "" {
			tagged.State = models.NormalizeState(inferred)
			tagged.ReverseStateFilled = true
		}
	}

	var streetCount, unitCount int
	tagged.StreetName, streetCount = ExpandTokens(tagged.StreetName)
	tagged.Unit, unitCount = ExpandTokens(tagged.Unit)
	tagged.ExpandedTokenCount = streetCount + unitCount

	tagged.MissingHouseNumber = tagged.HouseNumber == ""
	tagged.MissingStreetName = tagged.StreetName == ""
	tagged.MissingCity = tagged.City == ""
	tagged.MissingState = tagged.State == ""
	tagged.MissingZip = tagged.Zip == ""
	return tagged
}

// applyFixes replaces the first case-insensitive occurrence of each fix,
// reporting whether anything changed.
func applyFixes(address string, fixes []struct{ from, to string }) (string, bool) {
	changed := false
	for _, fix := range fixes {
		if idx := strings.Index(strings.ToLower(address), fix.from); idx >= 0 {
			address = address[:idx] + fix.to + address[idx+len(fix.from):]
			changed = true
		}
	}
	return address, changed
}

// augmentForRetag builds the single bounded repair string: inject a state
// abbreviation before a known ZIP, or a comma after the street-type token.
func augmentForRetag(address, zip5 string) string {
	if zip5 != "" && !hasStateToken(address) {
		if abbr := zipState(zip5); abbr != "" {
			if idx := strings.Index(address, zip5); idx >= 0 {
				return strings.TrimSpace(address[:idx]) + " " + abbr + " " + address[idx:]
			}
		}
	}
	fields := strings.Fields(address)
	for i, f := range fields {
		if streetTypeTokens[strings.ToLower(strings.TrimRight(f, "."))] && i < len(fields)-1 {
			fields[i] = f + ","
			return strings.Join(fields, " ")
		}
	}
	return address
}

func hasStateToken(address string) bool {
	for _, f := range strings.Fields(address) {
		if knownState(strings.Trim(f, ",.")) != "" {
			return true
		}
	}
	return false
}

func allDigits(s string) bool {
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return s != ""
}

func splitDigits(s string) (digits, rest string) {
	var d, r strings.Builder
	for _, ch := range s {
		if ch >= '0' && ch <= '9' {
			d.WriteRune(ch)
		} else if ch != '-' && ch != '/' {
			r.WriteRune(ch)
		}
	}
	return d.String(), r.String()
}
