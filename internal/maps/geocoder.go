// README: Reverse geocoder annotating incident coordinates with addresses.
package maps

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"aegis/internal/types"
)

// Geocoder resolves a coordinate pair to a human-readable address for
// authority consoles. Best-effort: callers treat failures as "no address".
type Geocoder interface {
	ReverseGeocode(ctx context.Context, p types.Point) (string, error)
}

// GoogleGeocoder implements Geocoder on the Google Maps Geocoding API.
type GoogleGeocoder struct {
	client *maps.Client
}

func NewGoogleGeocoder(apiKey string) (*GoogleGeocoder, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GoogleGeocoder{client: client}, nil
}

// ReverseGeocode returns the formatted address of the first result, or ""
// when the API has nothing for the point.
func (g *GoogleGeocoder) ReverseGeocode(ctx context.Context, p types.Point) (string, error) {
	results, err := g.client.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng: &maps.LatLng{Lat: p.Lat, Lng: p.Lng},
	})
	if err != nil {
		return "", fmt.Errorf("geocoding api error: %w", err)
	}
	if len(results) == 0 {
		return "", nil
	}
	return results[0].FormattedAddress, nil
}
