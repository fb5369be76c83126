package service_registry

import (
	"context"
	"fmt"

	"github.com/benmeehan/partner-tracker/internal/mapview"
	"github.com/benmeehan/partner-tracker/internal/utils"
	"github.com/benmeehan/partner-tracker/pkg/location"
	"github.com/benmeehan/partner-tracker/pkg/mqtt"
	"github.com/benmeehan/partner-tracker/pkg/store"
	"github.com/rs/zerolog"
)

// LocationRequest converts the location settings to an update request.
func LocationRequest(config *utils.Config) (location.Request, error) {
	priority, err := location.ParsePriority(config.Location.Priority)
	if err != nil {
		return location.Request{}, err
	}
	req := location.Request{
		Interval:        config.Location.Interval,
		FastestInterval: config.Location.FastestInterval,
		Priority:        priority,
	}
	return req, req.Validate()
}

// NewStore opens the configured slot store. mqttClient is only used by the
// mqtt backend and must already be connected.
func NewStore(ctx context.Context, config *utils.Config, mqttClient mqtt.MQTTClient, logger zerolog.Logger) (store.Store, error) {
	logger = logger.With().Str("store", config.Store.Backend).Logger()

	switch config.Store.Backend {
	case "mqtt":
		if mqttClient == nil {
			return nil, fmt.Errorf("mqtt store requires an MQTT client")
		}
		return store.NewMQTTStore(mqttClient, config.Store.TopicPrefix, config.StoreQOS(),
			config.Store.WatchTimeout, logger), nil
	case "nats":
		s, err := store.NewNATSStore(ctx, config.Store.NATS.URL, config.Store.NATS.Bucket, config.MQTT.ClientID, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := store.NewPostgresStore(ctx, config.Store.Postgres.URL, config.Store.Postgres.Table,
			config.Store.Postgres.Channel, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "memory":
		return store.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", config.Store.Backend)
}

// NewLocationClient builds a fused client over the GPS sensor and network
// geolocation, whichever are configured.
func NewLocationClient(config *utils.Config, logger zerolog.Logger) (*location.FusedClient, error) {
	var sensor, network location.Provider

	if config.Location.SensorEnabled {
		sensor = location.NewDeviceSensorProvider(config.Location.GPSDevicePort, config.Location.GPSDeviceBaudRate)
	}
	if config.Location.MapsAPIKey != "" {
		provider, err := location.NewGoogleGeolocationProvider(config.Location.MapsAPIKey, config.Location.ModemIndex,
			logger.With().Str("provider", "google_geolocation").Logger())
		if err != nil {
			logger.Error().Err(err).Msg("failed to create Google Geolocation provider")
			return nil, err
		}
		network = provider
	}
	if sensor == nil && network == nil {
		return nil, location.ErrNoProvider
	}

	return location.NewFusedClient(sensor, network, logger.With().Str("component", "fused_location").Logger()), nil
}

// NewMapView returns the browser map when enabled and the log map otherwise.
func NewMapView(config *utils.Config, logger zerolog.Logger) mapview.Map {
	logger = logger.With().Str("component", "map").Logger()
	if config.Map.Web.Enabled {
		return mapview.NewWebMap(config.Map.Web.Addr, config.Map.Web.AllowedOrigins, logger)
	}
	return mapview.NewLogMap(logger)
}
