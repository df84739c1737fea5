package lookup

import (
	"errors"
	"fmt"
	"log/slog"

	"googlemaps.github.io/maps"
)

// GatewayType represents the type of lookup gateway.
type GatewayType string

const (
	// GatewayTypeNominatim represents the OpenStreetMap Nominatim API.
	GatewayTypeNominatim GatewayType = "nominatim"
	// GatewayTypeGoogle represents the Google Maps Geocoding API.
	GatewayTypeGoogle GatewayType = "google"
)

// GatewayConfig holds configuration for creating a lookup gateway.
type GatewayConfig struct {
	Type      GatewayType
	APIKey    string // used by the Google gateway
	RateLimit int    // requests per second (used by the Google gateway)
	Logger    *slog.Logger
}

// NewGateway creates a lookup gateway based on the provided configuration.
// Returns an error if the gateway type is unsupported or creation fails.
func NewGateway(config GatewayConfig) (Gateway, error) {
	switch config.Type {
	case GatewayTypeNominatim:
		return NewNominatimGateway(config.Logger), nil
	case GatewayTypeGoogle:
		return newGoogleGateway(config)
	default:
		return nil, fmt.Errorf("unsupported gateway type: %s", config.Type)
	}
}

func newGoogleGateway(config GatewayConfig) (Gateway, error) {
	if config.APIKey == "" {
		return nil, errors.New("API key is required for Google gateway")
	}

	clientOpts := []maps.ClientOption{maps.WithAPIKey(config.APIKey)}
	if config.RateLimit > 0 {
		clientOpts = append(clientOpts, maps.WithRateLimit(config.RateLimit))
	}

	client, err := maps.NewClient(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google Maps client: %w", err)
	}
	return NewGoogleGateway(client, config.Logger), nil
}
