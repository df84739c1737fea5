// Package validator decides whether a candidate result is geographically
// plausible for the address it claims to resolve.
package validator

import (
	"fmt"
	"math"
	"strings"

	"github.com/oceanstate-routing/pinpoint/internal/models"
)

// Rejection reasons form a fixed enumeration; verbose detail carries the
// actual-vs-expected values for the failing criterion.
const (
	ReasonZipCityStateMismatch = "zip_city_state_mismatch"
	ReasonBoundingBoxTooLarge  = "bounding_box_too_large"
	ReasonPlaceRankTooCoarse   = "place_rank_too_coarse"
)

// Policy holds the acceptance thresholds. The source planning notes disagree
// on whether a city match alone can substitute for a ZIP match, so the
// city+state rule is a switch rather than a constant.
type Policy struct {
	// MaxBBoxMeters rejects candidates whose bounding box's longest
	// dimension is not strictly below this many meters.
	MaxBBoxMeters float64
	// MinPlaceRank rejects candidates whose place rank is not strictly
	// greater than this value (rank <= 26 is locality/suburb granularity).
	MinPlaceRank int
	// RequireStateWithCity demands a state match alongside the city match
	// when the ZIP does not match. The stricter, later-stated rule.
	RequireStateWithCity bool
}

// DefaultPolicy mirrors the production thresholds: one mile, street level.
func DefaultPolicy() Policy {
	return Policy{
		MaxBBoxMeters:        1609,
		MinPlaceRank:         26,
		RequireStateWithCity: true,
	}
}

// Validator checks candidate results against a Policy.
type Validator struct {
	policy Policy
}

// New creates a Validator with the given policy.
func New(policy Policy) *Validator {
	return &Validator{policy: policy}
}

// Check accepts or rejects one candidate for one tagged address. On
// rejection it returns the enumerated short reason and a verbose detail
// stating the actual vs expected values of the first failing criterion.
// Criteria are evaluated in fixed order: location, bounding box, place rank.
func (v *Validator) Check(candidate models.CandidateResult, tagged models.TaggedAddress) (bool, string, string) {
	if ok, detail := v.locationMatch(candidate, tagged); !ok {
		return false, ReasonZipCityStateMismatch, detail
	}

	if !candidate.HasBBox {
		return false, ReasonBoundingBoxTooLarge,
			fmt.Sprintf("expected bounding box below %.0fm; got no bounding box", v.policy.MaxBBoxMeters)
	}
	if dim := bboxMaxDimMeters(candidate.BoundingBox); dim >= v.policy.MaxBBoxMeters {
		return false, ReasonBoundingBoxTooLarge,
			fmt.Sprintf("expected bounding box below %.0fm; got %.0fm", v.policy.MaxBBoxMeters, dim)
	}

	if candidate.PlaceRank <= v.policy.MinPlaceRank {
		return false, ReasonPlaceRankTooCoarse,
			fmt.Sprintf("expected place rank above %d; got %d", v.policy.MinPlaceRank, candidate.PlaceRank)
	}

	return true, "", ""
}

// locationMatch applies the zip-or-(city[+state]) rule. County-level values
// never count as city matches: the candidate's MatchedCity must come from a
// city/town/village field, which is the gateway's contract.
func (v *Validator) locationMatch(candidate models.CandidateResult, tagged models.TaggedAddress) (bool, string) {
	zipMatch := tagged.Zip != "" && candidate.MatchedZip != "" &&
		zip5(candidate.MatchedZip) == zip5(tagged.Zip)
	if zipMatch {
		return true, ""
	}

	cityMatch := cityEquals(tagged.City, candidate.MatchedCity)
	stateMatch := tagged.State != "" && candidate.MatchedState != "" &&
		models.NormalizeState(tagged.State) == models.NormalizeState(candidate.MatchedState)

	if cityMatch && (stateMatch || !v.policy.RequireStateWithCity) {
		return true, ""
	}

	detail := fmt.Sprintf(
		"expected zip %s or city=%s/state=%s; got zip %s, city=%s, state=%s",
		orNone(tagged.Zip), orNone(tagged.City), orNone(tagged.State),
		orNone(candidate.MatchedZip), orNone(candidate.MatchedCity), orNone(candidate.MatchedState),
	)
	return false, detail
}

func cityEquals(expected, got string) bool {
	e, g := models.NormalizeText(expected), models.NormalizeText(got)
	if e == "" || g == "" {
		return false
	}
	if e == g {
		return true
	}
	// "Bristol" matches "Town of Bristol" but not "Bristol County": the
	// gateway never surfaces county values in MatchedCity.
	return strings.Contains(" "+g+" ", " "+e+" ")
}

func zip5(value string) string {
	v := strings.TrimSpace(value)
	if idx := strings.IndexByte(v, '-'); idx >= 0 {
		v = v[:idx]
	}
	return v
}

func orNone(value string) string {
	if value == "" {
		return "(none)"
	}
	return value
}

// bboxMaxDimMeters returns the longest dimension of a bounding box: the
// north-south extent or the east-west extent at the box's mid latitude.
func bboxMaxDimMeters(box models.BoundingBox) float64 {
	ns := haversineMeters(box.SouthLat, box.WestLon, box.NorthLat, box.WestLon)
	midLat := (box.SouthLat + box.NorthLat) / 2
	ew := haversineMeters(midLat, box.WestLon, midLat, box.EastLon)
	return math.Max(ns, ew)
}

const earthRadiusM = 6371000.0

func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLmb := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLmb/2)*math.Sin(dLmb/2)
	return earthRadiusM * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
