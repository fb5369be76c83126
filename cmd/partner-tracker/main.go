package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benmeehan/partner-tracker/internal/notify"
	"github.com/benmeehan/partner-tracker/internal/permission"
	"github.com/benmeehan/partner-tracker/internal/screen"
	"github.com/benmeehan/partner-tracker/internal/service_registry"
	"github.com/benmeehan/partner-tracker/internal/utils"
	"github.com/benmeehan/partner-tracker/pkg/file"
	"github.com/benmeehan/partner-tracker/pkg/mqtt"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func main() {
	configFile := flag.String("config", "configs/config.yaml", "path to the configuration file")
	flag.Parse()

	if err := run(*configFile); err != nil {
		os.Exit(1)
	}
}

// run wires the screen from configuration and blocks until it finishes or the
// process is signalled.
func run(configFile string) error {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Initialize file operations handler
	fileClient := file.NewFileService()

	// Load configuration from file
	config, err := utils.LoadConfig(configFile, fileClient)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("Failed to load configuration")
		return fmt.Errorf("load configuration: %w", err)
	}
	log = newLogger(config)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize the shared MQTT connection when slots live on the broker
	var mqttClient *mqtt.MqttService
	if config.Store.Backend == "mqtt" {
		// Generate a unique MQTT Client ID by appending a UUID
		config.MQTT.ClientID = config.MQTT.ClientID + "-" + uuid.New().String()
		log.Info().Msgf("Using MQTT Client ID: %s", config.MQTT.ClientID)

		mqttClient = mqtt.NewMqttService(fileClient, log.With().Str("component", "mqtt").Logger())
		err = mqttClient.Initialize(mqtt.Options{
			Broker:         config.MQTT.Broker,
			ClientID:       config.MQTT.ClientID,
			CACertificate:  config.MQTT.CACertificate,
			Username:       config.MQTT.Username,
			Password:       config.MQTT.Password,
			ConnectTimeout: config.MQTT.ConnectTimeout,
		})
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize MQTT connection")
			return fmt.Errorf("initialize MQTT connection: %w", err)
		}
		defer mqttClient.Disconnect(250)
	}

	var storeClient mqtt.MQTTClient
	if mqttClient != nil {
		storeClient = mqttClient
	}
	slotStore, err := service_registry.NewStore(ctx, config, storeClient, log)
	if err != nil {
		log.Error().Err(err).Str("backend", config.Store.Backend).Msg("Failed to open slot store")
		return fmt.Errorf("open %s slot store: %w", config.Store.Backend, err)
	}
	defer slotStore.Close()

	locationClient, err := service_registry.NewLocationClient(config, log)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create location client")
		return fmt.Errorf("create location client: %w", err)
	}
	defer locationClient.Close()

	mapView := service_registry.NewMapView(config, log)
	notifiers := notify.Multi{notify.NewLogNotifier(log)}
	if n, ok := mapView.(notify.Notifier); ok {
		notifiers = append(notifiers, n)
	}

	gate := permission.NewGate(fileClient, config.Permissions.ConsentFile, config.Permissions.Granted,
		config.Permissions.Interactive, os.Stdin, os.Stderr, log.With().Str("component", "permission").Logger())

	looper := utils.NewLooper(64)

	// Create a new service registry to manage services
	serviceRegistry := service_registry.NewServiceRegistry(log)
	err = serviceRegistry.RegisterServices(config, service_registry.Dependencies{
		Store:       slotStore,
		Client:      locationClient,
		Map:         mapView,
		Notifier:    notifiers,
		Permissions: gate,
		Looper:      looper,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to register services")
		return fmt.Errorf("register services: %w", err)
	}

	mapScreen := screen.NewMapScreen(mapView, gate, notifiers, looper, serviceRegistry,
		log.With().Str("component", "screen").Logger())
	if err := mapScreen.Start(ctx); err != nil {
		if errors.Is(err, screen.ErrPermissionDenied) {
			log.Error().Msg("Location permission not granted, exiting")
		} else {
			log.Error().Err(err).Msg("Failed to start map screen")
		}
		return err
	}

	// Handle graceful shutdown
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down gracefully...")
	case <-mapScreen.Done():
	}
	mapScreen.Finish()
	return nil
}

func newLogger(config *utils.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(config.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if config.Log.Pretty {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
