// Package screen holds the map screen: the controller that asks for location
// permission, shows both participants on the map and keeps them up to date.
package screen

import (
	"context"
	"errors"
	"sync"

	"github.com/benmeehan/partner-tracker/internal/constants"
	"github.com/benmeehan/partner-tracker/internal/mapview"
	"github.com/benmeehan/partner-tracker/internal/notify"
	"github.com/benmeehan/partner-tracker/internal/permission"
	"github.com/benmeehan/partner-tracker/internal/services"
	"github.com/benmeehan/partner-tracker/internal/utils"
	"github.com/rs/zerolog"
)

// ErrPermissionDenied is returned by Start when location access is refused.
var ErrPermissionDenied = services.ErrPermissionDenied

// Registry starts and stops the screen's services.
type Registry interface {
	StartServices() error
	StopServices() error
}

// MapScreen is the single screen of the tracker. Its lifetime is the lifetime
// of the process: once finished it cannot be started again.
type MapScreen struct {
	mapView     mapview.Map
	permissions permission.Checker
	notifier    notify.Notifier
	looper      *utils.Looper
	registry    Registry
	logger      zerolog.Logger

	mu       sync.Mutex
	started  bool
	finished bool
	mapSvc   services.Service
	done     chan struct{}
}

// NewMapScreen creates the screen. When mapView also implements
// services.Service it is started and stopped with the screen.
func NewMapScreen(mapView mapview.Map, permissions permission.Checker, notifier notify.Notifier,
	looper *utils.Looper, registry Registry, logger zerolog.Logger) *MapScreen {
	return &MapScreen{
		mapView:     mapView,
		permissions: permissions,
		notifier:    notifier,
		looper:      looper,
		registry:    registry,
		logger:      logger,
		done:        make(chan struct{}),
	}
}

// Start shows the map and, once location access is granted, begins following
// the partner and reporting this device's location. When access is refused
// the user is told, the screen finishes and ErrPermissionDenied is returned;
// no location source or slot is subscribed to in that case.
func (s *MapScreen) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started || s.finished {
		s.mu.Unlock()
		return errors.New("map screen is already running")
	}
	s.started = true
	s.mu.Unlock()

	if err := s.looper.Start(); err != nil {
		return err
	}
	if svc, ok := s.mapView.(services.Service); ok {
		if err := svc.Start(); err != nil {
			s.Finish()
			return err
		}
		s.mu.Lock()
		s.mapSvc = svc
		s.mu.Unlock()
	}

	granted, err := s.locationAccess(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Permission request failed")
	}
	if !granted {
		s.logger.Warn().Msg("Location permission denied, finishing screen")
		s.looper.Post(func() { s.notifier.Notify(constants.MsgPermissionDenied) })
		s.Finish()
		return ErrPermissionDenied
	}

	s.looper.Post(func() { s.mapView.SetMyLocationEnabled(true) })

	if err := s.registry.StartServices(); err != nil {
		s.Finish()
		if errors.Is(err, services.ErrPermissionDenied) {
			return ErrPermissionDenied
		}
		return err
	}

	s.logger.Info().Msg("Map screen started")
	return nil
}

// locationAccess checks fine location and asks for it when missing. A coarse
// grant is accepted if fine location is refused.
func (s *MapScreen) locationAccess(ctx context.Context) (bool, error) {
	if s.permissions.Check(permission.FineLocation) {
		return true, nil
	}
	granted, err := s.permissions.Request(ctx, permission.FineLocation)
	if granted {
		return true, err
	}
	return s.permissions.Check(permission.CoarseLocation), err
}

// Finish stops the services, the map and the looper. Pending notifications are
// delivered before it returns. Calling it more than once has no effect.
func (s *MapScreen) Finish() {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true
	mapSvc := s.mapSvc
	s.mu.Unlock()

	if err := s.registry.StopServices(); err != nil {
		s.logger.Error().Err(err).Msg("Failed to stop services")
	}
	// Drain the looper while the map can still show what is queued.
	if err := s.looper.Stop(); err != nil {
		s.logger.Debug().Err(err).Msg("Looper already stopped")
	}
	if mapSvc != nil {
		if err := mapSvc.Stop(); err != nil {
			s.logger.Error().Err(err).Msg("Failed to stop map")
		}
	}

	close(s.done)
	s.logger.Info().Msg("Map screen finished")
}

// Done is closed once the screen has finished.
func (s *MapScreen) Done() <-chan struct{} {
	return s.done
}
