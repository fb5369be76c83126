package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/benmeehan/partner-tracker/internal/constants"
	"github.com/benmeehan/partner-tracker/pkg/file"
	"github.com/benmeehan/partner-tracker/pkg/location"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables that override secrets in the configuration file.
const EnvPrefix = "PARTNER_TRACKER"

// Participant names a person on the map and the slot their location is kept in.
type Participant struct {
	Name string `yaml:"name" validate:"required"` // Marker title
	Slot string `yaml:"slot" validate:"required"` // Remote store slot
}

// Config represents the structure of the configuration file.
type Config struct {
	Log struct {
		Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error"` // Log level
		Pretty bool   `yaml:"pretty"`                                                       // Human readable console output instead of JSON
	} `yaml:"log"`

	Participants struct {
		Self    Participant `yaml:"self"`    // This device's participant
		Partner Participant `yaml:"partner"` // Participant shown as the second marker
	} `yaml:"participants"`

	MQTT struct {
		Broker         string        `yaml:"broker"`          // MQTT broker address
		ClientID       string        `yaml:"client_id"`       // MQTT client ID
		CACertificate  string        `yaml:"ca_certificate"`  // Path to the CA certificate
		Username       string        `yaml:"username"`        // Broker username
		Password       string        `yaml:"password"`        // Broker password
		ConnectTimeout time.Duration `yaml:"connect_timeout"` // Timeout for the initial connection
	} `yaml:"mqtt"`

	Store struct {
		Backend      string        `yaml:"backend" validate:"required,oneof=mqtt nats postgres memory"` // Remote store implementation
		TopicPrefix  string        `yaml:"topic_prefix"`                                                // MQTT topic prefix for slots
		QOS          *int          `yaml:"qos" validate:"omitempty,gte=0,lte=2"`                        // MQTT QoS level for slot messages, 1 when unset
		WriteTimeout time.Duration `yaml:"write_timeout" validate:"gte=0"`                              // Bound on a single slot write, zero for none
		WatchTimeout time.Duration `yaml:"watch_timeout" validate:"gte=0"`                              // Bound on subscribe acknowledgements

		NATS struct {
			URL    string `yaml:"url"`    // NATS server URL
			Bucket string `yaml:"bucket"` // JetStream key-value bucket
		} `yaml:"nats"`

		Postgres struct {
			URL     string `yaml:"url"`     // Connection string
			Table   string `yaml:"table"`   // Slot table
			Channel string `yaml:"channel"` // NOTIFY channel
		} `yaml:"postgres"`
	} `yaml:"store"`

	Location struct {
		Interval          time.Duration `yaml:"interval" validate:"gte=0"`                                               // Target period between readings
		FastestInterval   time.Duration `yaml:"fastest_interval" validate:"gte=0"`                                       // Shortest period at which early readings are accepted
		Priority          string        `yaml:"priority" validate:"omitempty,oneof=high_accuracy balanced low_power"` // Accuracy tier
		SensorEnabled     bool          `yaml:"sensor_enabled"`                                                          // Use the GPS sensor
		GPSDevicePort     string        `yaml:"gps_device_port"`                                                         // UNIX Port where the GPS sensor is mounted
		GPSDeviceBaudRate int           `yaml:"gps_baud_rate"`                                                           // The Baud rate for GPS sensor
		MapsAPIKey        string        `yaml:"maps_api_key"`                                                            // Google maps API Key, enables network geolocation
		ModemIndex        int           `yaml:"modem_index"`                                                             // ModemManager index used for cell tower lookups
	} `yaml:"location"`

	Map struct {
		Zoom float64 `yaml:"zoom" validate:"gte=0,lte=22"` // Camera zoom when following a marker
		Web  struct {
			Enabled        bool     `yaml:"enabled"`         // Serve the browser map
			Addr           string   `yaml:"addr"`            // Listen address
			AllowedOrigins []string `yaml:"allowed_origins"` // Extra browser origins allowed to open the event stream
		} `yaml:"web"`
	} `yaml:"map"`

	Permissions struct {
		ConsentFile string   `yaml:"consent_file"` // Where granted and denied permissions are remembered
		Interactive bool     `yaml:"interactive"`  // Ask on the terminal when a permission is missing
		Granted     []string `yaml:"granted" validate:"dive,oneof=fine_location coarse_location"`
	} `yaml:"permissions"`
}

// LoadConfig loads the YAML configuration from the specified file, applies
// defaults and environment overrides, and validates the result.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config
	if err := fileClient.ReadYamlFile(filename, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()
	config.applyEnv(newEnv())

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func newEnv() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// applyEnv overrides secrets and endpoints from the environment, e.g.
// PARTNER_TRACKER_MQTT_PASSWORD.
func (c *Config) applyEnv(v *viper.Viper) {
	overrides := map[string]*string{
		"mqtt.broker":           &c.MQTT.Broker,
		"mqtt.username":         &c.MQTT.Username,
		"mqtt.password":         &c.MQTT.Password,
		"location.maps_api_key": &c.Location.MapsAPIKey,
		"store.nats.url":        &c.Store.NATS.URL,
		"store.postgres.url":    &c.Store.Postgres.URL,
	}
	for key, target := range overrides {
		if value := v.GetString(key); value != "" {
			*target = value
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Store.TopicPrefix == "" {
		c.Store.TopicPrefix = constants.DefaultTopicPrefix
	}
	if c.Store.QOS == nil {
		qos := 1
		c.Store.QOS = &qos
	}
	if c.Store.NATS.Bucket == "" {
		c.Store.NATS.Bucket = "partner_tracker_slots"
	}
	if c.Store.Postgres.Table == "" {
		c.Store.Postgres.Table = "location_slots"
	}
	if c.Store.Postgres.Channel == "" {
		c.Store.Postgres.Channel = "location_slots"
	}
	if c.Location.Interval == 0 {
		c.Location.Interval = location.DefaultInterval
	}
	if c.Location.FastestInterval == 0 {
		c.Location.FastestInterval = location.DefaultFastestInterval
	}
	if c.Location.Priority == "" {
		c.Location.Priority = "high_accuracy"
	}
	if c.Location.GPSDeviceBaudRate == 0 {
		c.Location.GPSDeviceBaudRate = 9600
	}
	if c.Map.Zoom == 0 {
		c.Map.Zoom = constants.BuildingZoom
	}
	if c.Map.Web.Addr == "" {
		c.Map.Web.Addr = "127.0.0.1:8088"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "partner-tracker"
	}
}

// StoreQOS returns the configured slot QoS, 1 when none was set.
func (c *Config) StoreQOS() int {
	if c.Store.QOS == nil {
		return 1
	}
	return *c.Store.QOS
}

// Validate checks field constraints and the settings each backend depends on.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	switch c.Store.Backend {
	case "mqtt":
		if c.MQTT.Broker == "" {
			return fmt.Errorf("invalid configuration: mqtt.broker is required for the mqtt store")
		}
	case "nats":
		if c.Store.NATS.URL == "" {
			return fmt.Errorf("invalid configuration: store.nats.url is required for the nats store")
		}
	case "postgres":
		if c.Store.Postgres.URL == "" {
			return fmt.Errorf("invalid configuration: store.postgres.url is required for the postgres store")
		}
	}

	if c.Location.FastestInterval > c.Location.Interval {
		return fmt.Errorf("invalid configuration: location.fastest_interval %s exceeds location.interval %s",
			c.Location.FastestInterval, c.Location.Interval)
	}
	if c.Location.SensorEnabled && c.Location.GPSDevicePort == "" {
		return fmt.Errorf("invalid configuration: location.gps_device_port is required when the sensor is enabled")
	}
	if !c.Location.SensorEnabled && c.Location.MapsAPIKey == "" {
		return fmt.Errorf("invalid configuration: enable the GPS sensor or set location.maps_api_key")
	}
	if c.Participants.Self.Slot == c.Participants.Partner.Slot {
		return fmt.Errorf("invalid configuration: self and partner must use different slots")
	}
	return nil
}
