package lookup

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"googlemaps.github.io/maps"

	"github.com/oceanstate-routing/pinpoint/internal/models"
)

// GoogleGateway implements Gateway over the Google Maps Geocoding API. It is
// the paid alternative for deployments where the public Nominatim endpoint
// is too slow or too coarse.
type GoogleGateway struct {
	client GoogleAPIClient
	log    *slog.Logger
}

// GoogleAPIClient is the slice of the Google Maps client the gateway uses.
type GoogleAPIClient interface {
	Geocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error)
}

// NewGoogleGateway creates a gateway over an initialized Google Maps client.
func NewGoogleGateway(client GoogleAPIClient, log *slog.Logger) *GoogleGateway {
	return &GoogleGateway{client: client, log: log}
}

// Search executes one lookup. Structured fields map to component filters;
// FreeText maps to the address parameter. No results is an empty slice and
// a nil error.
func (gg *GoogleGateway) Search(ctx context.Context, query Query) ([]models.CandidateResult, error) {
	req := &maps.GeocodingRequest{}
	if query.FreeText != "" {
		req.Address = query.FreeText
	} else {
		req.Address = strings.TrimSpace(query.HouseNumber + " " + query.Street)
		req.Components = map[maps.Component]string{}
		if query.City != "" {
			req.Components[maps.ComponentLocality] = query.City
		}
		if query.State != "" {
			req.Components[maps.ComponentAdministrativeArea] = query.State
		}
		if query.Zip != "" {
			req.Components[maps.ComponentPostalCode] = query.Zip
		}
		req.Components[maps.ComponentCountry] = "US"
	}

	gg.log.DebugContext(ctx, "Google Maps request", "address", req.Address)

	results, err := gg.client.Geocode(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to geocode address: %w", err)
	}

	limit := query.Limit
	if limit <= 0 || limit > len(results) {
		limit = len(results)
	}
	candidates := make([]models.CandidateResult, 0, limit)
	for _, res := range results[:limit] {
		candidates = append(candidates, convertGoogle(res))
	}
	return candidates, nil
}

// convertGoogle maps one geocoding result onto the internal candidate shape.
// Google does not publish a place rank, so one is synthesized from the
// result types: rooftop-grade results rank like house numbers, routes like
// streets, everything else like localities.
func convertGoogle(res maps.GeocodingResult) models.CandidateResult {
	cand := models.CandidateResult{
		DisplayName:  res.FormattedAddress,
		Latitude:     res.Geometry.Location.Lat,
		Longitude:    res.Geometry.Location.Lng,
		PlaceRank:    googlePlaceRank(res.Types),
		SourceMethod: models.SourceLookup,
	}

	for _, comp := range res.AddressComponents {
		for _, t := range comp.Types {
			switch t {
			case "postal_code":
				cand.MatchedZip = comp.LongName
			case "locality", "postal_town":
				cand.MatchedCity = comp.LongName
			case "administrative_area_level_1":
				cand.MatchedState = comp.ShortName
			}
		}
	}

	bounds := res.Geometry.Bounds
	if bounds.NorthEast.Lat == 0 && bounds.SouthWest.Lat == 0 {
		bounds = res.Geometry.Viewport
	}
	if bounds.NorthEast.Lat != 0 || bounds.SouthWest.Lat != 0 {
		cand.BoundingBox = models.BoundingBox{
			SouthLat: bounds.SouthWest.Lat,
			NorthLat: bounds.NorthEast.Lat,
			WestLon:  bounds.SouthWest.Lng,
			EastLon:  bounds.NorthEast.Lng,
		}
		cand.HasBBox = true
	}
	return cand
}

func googlePlaceRank(types []string) int {
	for _, t := range types {
		switch t {
		case "street_address", "premise", "subpremise":
			return 30
		case "route", "intersection":
			return 27
		}
	}
	return 16
}
