// Package lookup talks to external geocoding services. It exposes a single
// Gateway boundary: the orchestrator expresses what to search for and the
// gateway handles transport, rate limiting, and response parsing.
package lookup

import (
	"context"
	"strings"

	"github.com/oceanstate-routing/pinpoint/internal/models"
)

// Query describes one lookup request. Exactly one form is used per call:
// free text, or number+street+zip, or number+street+city+state. Structured
// fields are ignored when FreeText is set.
type Query struct {
	FreeText    string
	HouseNumber string
	Street      string
	City        string
	State       string
	Zip         string
	// Limit caps the number of candidates returned. Zero means the
	// gateway default.
	Limit int
}

// Describe renders the query the way it is recorded in search traces.
func (q Query) Describe() string {
	if q.FreeText != "" {
		return q.FreeText
	}
	parts := make([]string, 0, 4)
	if q.HouseNumber != "" || q.Street != "" {
		parts = append(parts, strings.TrimSpace(q.HouseNumber+" "+q.Street))
	}
	if q.City != "" {
		parts = append(parts, q.City)
	}
	if q.State != "" {
		parts = append(parts, q.State)
	}
	if q.Zip != "" {
		parts = append(parts, q.Zip)
	}
	return strings.Join(parts, ", ")
}

// Gateway is the external geocoding boundary. Implementations return an
// empty slice and a nil error when the service answered with no results;
// an error means the call itself failed (transport, status, decode).
type Gateway interface {
	Search(ctx context.Context, query Query) ([]models.CandidateResult, error)
}
