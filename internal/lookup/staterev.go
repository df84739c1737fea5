package lookup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/oceanstate-routing/pinpoint/internal/models"
)

// StateResolver back-fills a missing state by searching the gateway with
// house number, street, and city only, and accepting the state every
// returned candidate agrees on. Disagreement means no answer.
type StateResolver struct {
	gateway Gateway
	log     *slog.Logger
}

// NewStateResolver creates a StateResolver over the given gateway.
func NewStateResolver(gateway Gateway, log *slog.Logger) *StateResolver {
	return &StateResolver{gateway: gateway, log: log}
}

// InferState returns the unanimous state abbreviation for the partial
// address, or an empty string when the results disagree or are empty.
func (sr *StateResolver) InferState(ctx context.Context, houseNumber, street, city string) (string, error) {
	results, err := sr.gateway.Search(ctx, Query{
		HouseNumber: houseNumber,
		Street:      street,
		City:        city,
		Limit:       5,
	})
	if err != nil {
		return "", fmt.Errorf("reverse state search failed: %w", err)
	}
	if len(results) == 0 {
		return "", nil
	}

	state := models.NormalizeState(results[0].MatchedState)
	if state == "" {
		return "", nil
	}
	for _, res := range results[1:] {
		if models.NormalizeState(res.MatchedState) != state {
			sr.log.DebugContext(ctx, "reverse state search disagreed",
				"street", street, "city", city)
			return "", nil
		}
	}
	return state, nil
}
