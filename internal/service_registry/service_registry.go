package service_registry

import (
	"errors"
	"fmt"

	"github.com/benmeehan/partner-tracker/internal/mapview"
	"github.com/benmeehan/partner-tracker/internal/notify"
	"github.com/benmeehan/partner-tracker/internal/permission"
	"github.com/benmeehan/partner-tracker/internal/services"
	"github.com/benmeehan/partner-tracker/internal/utils"
	"github.com/benmeehan/partner-tracker/pkg/location"
	"github.com/benmeehan/partner-tracker/pkg/store"
	"github.com/rs/zerolog"
)

// Service is the lifecycle managed by the registry.
type Service = services.Service

// ServiceRegistry manages the lifecycle of the screen's services.
type ServiceRegistry struct {
	services    map[string]Service // Stores registered services
	serviceKeys []string           // Maintains order of service registration
	started     []string           // Services running right now, in start order
	Logger      zerolog.Logger
}

// NewServiceRegistry initializes a new, empty service registry.
func NewServiceRegistry(logger zerolog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		services: make(map[string]Service),
		Logger:   logger,
	}
}

// RegisterService adds a new service to the registry.
func (sr *ServiceRegistry) RegisterService(name string, svc Service) {
	if _, exists := sr.services[name]; exists {
		sr.Logger.Warn().Msgf("Service %s is already registered", name)
		return
	}
	sr.services[name] = svc
	sr.serviceKeys = append(sr.serviceKeys, name)
	sr.Logger.Info().Msgf("Registered service: %s", name)
}

// StartServices initiates all registered services in order.
// If a service fails to start, it stops already started services.
func (sr *ServiceRegistry) StartServices() error {
	for _, name := range sr.serviceKeys {
		svc := sr.services[name]
		sr.Logger.Info().Msgf("Starting service: %s", name)
		if err := svc.Start(); err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to start service: %s", name)

			// Stop already started services before returning
			sr.Logger.Warn().Msg("Stopping already started services due to startup failure...")
			_ = sr.StopServices()
			return fmt.Errorf("failed to start %s: %w", name, err)
		}
		sr.started = append(sr.started, name)
	}

	return nil
}

// StopServices stops the running services in reverse start order.
func (sr *ServiceRegistry) StopServices() error {
	var stopErrors []error
	for i := len(sr.started) - 1; i >= 0; i-- {
		name := sr.started[i]
		if err := sr.services[name].Stop(); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("failed to stop %s: %w", name, err))
		}
	}
	sr.started = nil

	if len(stopErrors) > 0 {
		for _, e := range stopErrors {
			sr.Logger.Error().Err(e).Msg("Service stop failure")
		}
		return errors.Join(stopErrors...)
	}
	return nil
}

// Dependencies are the shared components the screen's services are built on.
type Dependencies struct {
	Store       store.Store
	Client      location.Client
	Map         mapview.Map
	Notifier    notify.Notifier
	Permissions permission.Checker
	Looper      *utils.Looper
}

// RegisterServices builds and registers the partner watcher and the location
// reporter, in that order.
func (sr *ServiceRegistry) RegisterServices(config *utils.Config, deps Dependencies) error {
	request, err := LocationRequest(config)
	if err != nil {
		return err
	}

	// Ordered service definitions with inline constructors
	servicesInOrder := []struct {
		name        string
		constructor func() (Service, error)
	}{
		{
			name: "partner_watcher",
			constructor: func() (Service, error) {
				return services.NewPartnerWatcher(
					config.Participants.Partner.Name,
					config.Participants.Partner.Slot,
					config.Map.Zoom,
					config.Store.WatchTimeout,
					deps.Store,
					deps.Map,
					deps.Notifier,
					deps.Looper,
					sr.Logger.With().Str("service", "partner_watcher").Logger(),
				), nil
			},
		},
		{
			name: "location_reporter",
			constructor: func() (Service, error) {
				return services.NewLocationReporter(
					config.Participants.Self.Name,
					config.Participants.Self.Slot,
					request,
					config.Map.Zoom,
					config.Store.WriteTimeout,
					deps.Client,
					deps.Store,
					deps.Map,
					deps.Notifier,
					deps.Permissions,
					deps.Looper,
					sr.Logger.With().Str("service", "location_reporter").Logger(),
				), nil
			},
		},
	}

	registeredServices := []string{}
	for _, svc := range servicesInOrder {
		serviceInstance, err := svc.constructor()
		if err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to create %s service", svc.name)
			return err
		}
		sr.RegisterService(svc.name, serviceInstance)
		registeredServices = append(registeredServices, svc.name)
	}

	sr.Logger.Info().Msgf("Registered services in order: %v", registeredServices)
	return nil
}
