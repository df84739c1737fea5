package models

import (
	"github.com/twpayne/go-geom"
)

// Coordinates represents a geographical point defined by its latitude and longitude.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// BoundingBox is a geographic extent in degrees: south/north latitudes and
// west/east longitudes, in that order, matching the lookup service's wire form.
type BoundingBox struct {
	SouthLat float64 `json:"south_lat"`
	NorthLat float64 `json:"north_lat"`
	WestLon  float64 `json:"west_lon"`
	EastLon  float64 `json:"east_lon"`
}

// RawAddress is one input row: the address string exactly as collected by the
// schedulers, plus an optional already-known ZIP correction. Never mutated.
type RawAddress struct {
	ID      int    `json:"id"`
	Address string `json:"address"`
	ZipHint string `json:"zip_hint,omitempty"`
}

// TaggedAddress holds the structured fields produced by the normalizer.
// Missing-field booleans are explicit so downstream components can test
// preconditions without poking at empty strings.
type TaggedAddress struct {
	HouseNumber string `json:"house_number"`
	StreetName  string `json:"street_name"`
	Unit        string `json:"unit"`
	City        string `json:"city"`
	State       string `json:"state"`
	Zip         string `json:"zip"`

	MissingHouseNumber bool `json:"missing_house_number"`
	MissingStreetName  bool `json:"missing_street_name"`
	MissingCity        bool `json:"missing_city"`
	MissingState       bool `json:"missing_state"`
	MissingZip         bool `json:"missing_zip"`

	// Normalization flags, one per repair step.
	FixZipRepair        bool `json:"fix_zip_repair"`
	FixStateAbbrev      bool `json:"fix_state_abbreviation"`
	FixStateFromZip     bool `json:"fix_state_from_zip"`
	FixTownDirectional  bool `json:"fix_town_directional"`
	FixNonNumericNumber bool `json:"fix_address_number_non_numeric"`
	FixRetaggedOnce     bool `json:"fix_retagged_once"`
	ExpandedTokenCount  int  `json:"fix_expand_abbreviations_count"`
	OverrideApplied     bool `json:"override_applied"`
	ReverseStateSearch  bool `json:"reverse_for_state_searched"`
	ReverseStateFilled  bool `json:"reverse_for_state_included"`
	FromCache           bool `json:"from_cache"`

	// RepairedAddress is the free-text form after state/town/ZIP repair,
	// used verbatim by the free-text search method.
	RepairedAddress string `json:"repaired_address"`
}

// StreetCandidate is one scored street name from the range database.
// Ephemeral; lives only in the trace.
type StreetCandidate struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// AddressRange is a read-only reference row from the range database: a span
// of house numbers along a named street segment with its line geometry.
type AddressRange struct {
	Zip         string
	StreetName  string
	StartNumber int
	EndNumber   int
	Step        int
	Geometry    *geom.LineString
}

// SourceMethod values distinguish how a CandidateResult was produced.
const (
	SourceLookup       = "lookup"
	SourceInterpolated = "interpolated"
	SourceSnapped      = "snapped"
)

// CandidateResult is one candidate returned by the lookup gateway or
// computed by the range interpolator.
type CandidateResult struct {
	DisplayName  string      `json:"display_name"`
	Latitude     float64     `json:"latitude"`
	Longitude    float64     `json:"longitude"`
	BoundingBox  BoundingBox `json:"bounding_box"`
	HasBBox      bool        `json:"has_bbox"`
	PlaceRank    int         `json:"place_rank"`
	MatchedZip   string      `json:"matched_zip"`
	MatchedCity  string      `json:"matched_city"`
	MatchedState string      `json:"matched_state"`
	SourceMethod string      `json:"source_method"`
}

// SearchMethod identifies one variant of the closed fallback set. Attempts
// carry the method name instead of relying on dynamic dispatch.
type SearchMethod string

const (
	MethodFreeText           SearchMethod = "free_text"
	MethodNumberStreetZip    SearchMethod = "number_street_zip"
	MethodNumberStreetCity   SearchMethod = "number_street_city_state"
	MethodFuzzyStreetZip     SearchMethod = "fuzzy_street_zip"
	MethodRangeInterpolation SearchMethod = "range_interpolation"
	MethodNoneAccepted       SearchMethod = "none"
)

// Attempt result statuses.
const (
	StatusSkipped   = "skipped"
	StatusError     = "error"
	StatusNoneFound = "none_found"
	StatusReturned  = "returned"
)

// SearchAttempt records one attempted (or skipped) method, in order.
type SearchAttempt struct {
	Method          SearchMethod      `json:"method_name"`
	Query           string            `json:"query"`
	ElapsedMs       int64             `json:"elapsed_ms"`
	ResultStatus    string            `json:"result_status"`
	ResultCount     int               `json:"result_count"`
	Candidates      []CandidateResult `json:"candidate_results,omitempty"`
	Accepted        bool              `json:"accepted"`
	RejectionReason string            `json:"rejection_reason,omitempty"`
	RejectionDetail string            `json:"rejection_detail,omitempty"`
	Error           string            `json:"error,omitempty"`
}

// SearchMetadata aggregates everything the orchestrator learned about one
// address: the ordered attempt trace and the final outcome.
type SearchMetadata struct {
	Attempts       []SearchAttempt      `json:"search_details"`
	AcceptedMethod SearchMethod         `json:"search_method_accepted"`
	Successful     bool                 `json:"search_successful"`
	FinalError     string               `json:"final_error,omitempty"`
	ResultsTotal   int                  `json:"results_returned_total"`
	ResultsByName  map[SearchMethod]int `json:"results_returned_by_method,omitempty"`
	FuzzyStreet    *StreetCandidate     `json:"fuzzy_street_match,omitempty"`
	FuzzyScored    []StreetCandidate    `json:"fuzzy_street_candidates,omitempty"`
}

// ResolutionRecord is the one output record per input address. Immutable
// after resolution completes.
type ResolutionRecord struct {
	Raw         RawAddress       `json:"raw_address"`
	TagMetadata TaggedAddress    `json:"tag_metadata"`
	Search      SearchMetadata   `json:"search_metadata"`
	FinalResult *CandidateResult `json:"final_result,omitempty"`
	ElapsedMs   int64            `json:"elapsed_ms"`
}
