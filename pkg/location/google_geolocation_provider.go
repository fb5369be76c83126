package location

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"googlemaps.github.io/maps"
)

const geolocateTimeout = 10 * time.Second

// Geolocator is the part of the Maps client used by GoogleGeolocationProvider.
type Geolocator interface {
	Geolocate(ctx context.Context, r *maps.GeolocationRequest) (*maps.GeolocationResult, error)
}

// GoogleGeolocationProvider uses the Google Maps API to get location data.
type GoogleGeolocationProvider struct {
	client     Geolocator // Maps API client for making geolocation requests
	modemIndex int
	logger     zerolog.Logger

	scanWiFi  func(ctx context.Context) ([]maps.WiFiAccessPoint, error)
	scanCells func(ctx context.Context, modemIndex int) ([]maps.CellTower, error)
}

// NewGoogleGeolocationProvider creates a new GoogleGeolocationProvider instance.
func NewGoogleGeolocationProvider(apiKey string, modemIndex int, logger zerolog.Logger) (*GoogleGeolocationProvider, error) {
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return newGoogleGeolocationProvider(c, modemIndex, logger), nil
}

func newGoogleGeolocationProvider(client Geolocator, modemIndex int, logger zerolog.Logger) *GoogleGeolocationProvider {
	return &GoogleGeolocationProvider{
		client:     client,
		modemIndex: modemIndex,
		logger:     logger,
		scanWiFi:   getWiFiAccessPoints,
		scanCells:  getCellTowers,
	}
}

// GetLocation retrieves the device's location using Google Maps Geolocation API.
// Missing WiFi or cell data narrows the request down to IP-based lookup.
func (g *GoogleGeolocationProvider) GetLocation(ctx context.Context) (Location, error) {
	ctx, cancel := context.WithTimeout(ctx, geolocateTimeout)
	defer cancel()

	req := &maps.GeolocationRequest{ConsiderIP: true}

	wifiAPs, err := g.scanWiFi(ctx)
	if err != nil {
		g.logger.Debug().Err(err).Msg("WiFi scan unavailable, continuing without access points")
	} else {
		req.WiFiAccessPoints = wifiAPs
	}

	cellTowers, err := g.scanCells(ctx, g.modemIndex)
	if err != nil {
		g.logger.Debug().Err(err).Int("modem", g.modemIndex).Msg("Cell scan unavailable, continuing without towers")
	} else {
		req.CellTowers = cellTowers
	}

	resp, err := g.client.Geolocate(ctx, req)
	if err != nil {
		return Location{}, err
	}

	return Location{
		Latitude:  resp.Location.Lat,
		Longitude: resp.Location.Lng,
		Accuracy:  resp.Accuracy,
	}, nil
}

// Close is a no-op; the Maps client holds no long-lived resources.
func (g *GoogleGeolocationProvider) Close() error {
	return nil
}
