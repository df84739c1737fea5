package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/oceanstate-routing/pinpoint/internal/models"
)

// NominatimGateway implements Gateway against OpenStreetMap's Nominatim API.
// The public endpoint allows 1 request/second for fair use; the limiter
// enforces that before every call.
type NominatimGateway struct {
	client  HTTPClient
	baseURL string
	log     *slog.Logger
	limiter *rate.Limiter
	// userAgent is required by Nominatim usage policy
	userAgent string
}

// HTTPClient defines the interface for making HTTP requests.
// This allows for easy mocking in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Common errors for the Nominatim gateway.
var (
	ErrNominatimStatus        = errors.New("nominatim API returned non-OK status")
	ErrNominatimInvalidCoords = errors.New("nominatim API returned invalid coordinates")
)

const defaultLimit = 10

// nominatimResult represents one element of the Nominatim JSON response.
type nominatimResult struct {
	DisplayName string    `json:"display_name"`
	Lat         string    `json:"lat"`
	Lon         string    `json:"lon"`
	BoundingBox []string  `json:"boundingbox"` // [south, north, west, east]
	PlaceRank   int       `json:"place_rank"`
	Address     nmAddress `json:"address"`
}

type nmAddress struct {
	Postcode string `json:"postcode"`
	City     string `json:"city"`
	Town     string `json:"town"`
	Village  string `json:"village"`
	Hamlet   string `json:"hamlet"`
	State    string `json:"state"`
}

// NewNominatimGateway creates a gateway against the public Nominatim endpoint
// with fair-use rate limiting.
func NewNominatimGateway(log *slog.Logger) *NominatimGateway {
	const timeout = 10
	return NewNominatimGatewayWithClient(
		&http.Client{Timeout: timeout * time.Second}, log,
	)
}

// NewNominatimGatewayWithClient creates a gateway with a custom HTTP client.
// Useful for testing with mocked HTTP clients.
func NewNominatimGatewayWithClient(client HTTPClient, log *slog.Logger) *NominatimGateway {
	return &NominatimGateway{
		client:  client,
		baseURL: "https://nominatim.openstreetmap.org/search",
		log:     log,
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		// User-Agent MUST include valid contact info per Nominatim usage policy:
		// https://operations.osmfoundation.org/policies/nominatim/
		userAgent: "Pinpoint-Address-Resolver/1.0 (https://github.com/oceanstate-routing/pinpoint)",
	}
}

// Search executes one lookup. Structured fields map to Nominatim's street,
// city, state, and postalcode parameters; FreeText maps to q. No results is
// an empty slice and a nil error.
func (ng *NominatimGateway) Search(ctx context.Context, query Query) ([]models.CandidateResult, error) {
	if err := ng.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter interrupted: %w", err)
	}

	reqURL, err := url.Parse(ng.baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}

	params := reqURL.Query()
	if query.FreeText != "" {
		params.Set("q", query.FreeText)
	} else {
		street := query.Street
		if query.HouseNumber != "" {
			street = query.HouseNumber + " " + query.Street
		}
		if street != "" {
			params.Set("street", street)
		}
		if query.City != "" {
			params.Set("city", query.City)
		}
		if query.State != "" {
			params.Set("state", query.State)
		}
		if query.Zip != "" {
			params.Set("postalcode", query.Zip)
		}
	}
	limit := query.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	params.Set("format", "jsonv2")
	params.Set("limit", strconv.Itoa(limit))
	params.Set("addressdetails", "1")
	params.Set("countrycodes", "us")
	reqURL.RawQuery = params.Encode()

	ng.log.DebugContext(ctx, "Nominatim request", "url", reqURL.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", ng.userAgent)

	resp, err := ng.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute lookup request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		ng.log.ErrorContext(ctx, "Nominatim API error", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("%w: %d: %s", ErrNominatimStatus, resp.StatusCode, string(body))
	}

	var results []nominatimResult
	if err = json.Unmarshal(body, &results); err != nil {
		ng.log.ErrorContext(ctx, "Failed to parse Nominatim response", "error", err, "body", string(body))
		return nil, fmt.Errorf("failed to decode nominatim response: %w", err)
	}

	candidates := make([]models.CandidateResult, 0, len(results))
	for _, res := range results {
		cand, convErr := convertNominatim(res)
		if convErr != nil {
			// One malformed row must not discard the usable candidates.
			ng.log.WarnContext(ctx, "Skipping malformed Nominatim candidate",
				"error", convErr, "display_name", res.DisplayName)
			continue
		}
		candidates = append(candidates, cand)
	}
	return candidates, nil
}

// convertNominatim maps one raw response entry onto the internal candidate
// shape. County-level names are never surfaced as the matched city; only
// city, town, village, or hamlet count.
func convertNominatim(res nominatimResult) (models.CandidateResult, error) {
	lat, err := strconv.ParseFloat(res.Lat, 64)
	if err != nil {
		return models.CandidateResult{}, fmt.Errorf("%w: latitude %q", ErrNominatimInvalidCoords, res.Lat)
	}
	lon, err := strconv.ParseFloat(res.Lon, 64)
	if err != nil {
		return models.CandidateResult{}, fmt.Errorf("%w: longitude %q", ErrNominatimInvalidCoords, res.Lon)
	}

	cand := models.CandidateResult{
		DisplayName:  res.DisplayName,
		Latitude:     lat,
		Longitude:    lon,
		PlaceRank:    res.PlaceRank,
		MatchedZip:   res.Address.Postcode,
		MatchedCity:  firstNonEmpty(res.Address.City, res.Address.Town, res.Address.Village, res.Address.Hamlet),
		MatchedState: res.Address.State,
		SourceMethod: models.SourceLookup,
	}

	if len(res.BoundingBox) == 4 {
		south, errS := strconv.ParseFloat(res.BoundingBox[0], 64)
		north, errN := strconv.ParseFloat(res.BoundingBox[1], 64)
		west, errW := strconv.ParseFloat(res.BoundingBox[2], 64)
		east, errE := strconv.ParseFloat(res.BoundingBox[3], 64)
		if errS == nil && errN == nil && errW == nil && errE == nil {
			cand.BoundingBox = models.BoundingBox{
				SouthLat: south, NorthLat: north, WestLon: west, EastLon: east,
			}
			cand.HasBBox = true
		}
	}
	return cand, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
