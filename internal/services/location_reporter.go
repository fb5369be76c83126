package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benmeehan/partner-tracker/internal/constants"
	"github.com/benmeehan/partner-tracker/internal/mapview"
	"github.com/benmeehan/partner-tracker/internal/models"
	"github.com/benmeehan/partner-tracker/internal/notify"
	"github.com/benmeehan/partner-tracker/internal/permission"
	"github.com/benmeehan/partner-tracker/internal/utils"
	"github.com/benmeehan/partner-tracker/pkg/location"
	"github.com/benmeehan/partner-tracker/pkg/store"
	"github.com/rs/zerolog"
)

// LocationReporter writes every location update of this device to its slot
// and follows it on the map.
type LocationReporter struct {
	// Configuration fields
	name         string
	slot         string
	request      location.Request
	zoom         float64
	writeTimeout time.Duration

	// Dependencies
	client      location.Client
	store       store.Store
	mapView     mapview.Map
	notifier    notify.Notifier
	permissions permission.Checker
	looper      *utils.Looper
	logger      zerolog.Logger

	// Internal state management
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	sub    location.Subscription
	writer sync.WaitGroup
}

// NewLocationReporter creates a LocationReporter for the participant name
// whose location is kept in slot.
func NewLocationReporter(name, slot string, request location.Request, zoom float64, writeTimeout time.Duration,
	client location.Client, st store.Store, mapView mapview.Map, notifier notify.Notifier,
	permissions permission.Checker, looper *utils.Looper, logger zerolog.Logger) *LocationReporter {
	return &LocationReporter{
		name:         name,
		slot:         slot,
		request:      request,
		zoom:         zoom,
		writeTimeout: writeTimeout,
		client:       client,
		store:        st,
		mapView:      mapView,
		notifier:     notifier,
		permissions:  permissions,
		looper:       looper,
		logger:       logger,
	}
}

// Start subscribes to location updates. Without fine location the request is
// served at balanced accuracy, and without any location permission nothing is
// subscribed.
func (r *LocationReporter) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sub != nil {
		r.logger.Warn().Msg("LocationReporter is already running")
		return errors.New("location reporter is already running")
	}

	req, err := r.effectiveRequest()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	pending := make(chan []byte, 1)
	r.writer.Add(1)
	go func() {
		defer r.writer.Done()
		r.runWriter(ctx, pending)
	}()

	sub, err := r.client.RequestLocationUpdates(req, func(result location.Result) {
		r.looper.Post(func() { r.handleResult(ctx, pending, result) })
	})
	if err != nil {
		cancel()
		r.writer.Wait()
		r.logger.Error().Err(err).Msg("Failed to request location updates")
		return err
	}
	r.ctx, r.cancel, r.sub = ctx, cancel, sub

	r.logger.Info().
		Str("slot", r.slot).
		Dur("interval", req.Interval).
		Dur("fastest_interval", req.FastestInterval).
		Stringer("priority", req.Priority).
		Msg("LocationReporter started successfully")
	return nil
}

// Stop cancels the location subscription and waits for the write in flight.
func (r *LocationReporter) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sub == nil {
		r.logger.Warn().Msg("LocationReporter is not running")
		return errors.New("location reporter is not running")
	}

	r.sub.Cancel()
	r.cancel()
	r.writer.Wait()
	r.sub, r.ctx, r.cancel = nil, nil, nil

	r.logger.Info().Msg("LocationReporter stopped successfully")
	return nil
}

func (r *LocationReporter) effectiveRequest() (location.Request, error) {
	req := r.request
	if r.permissions == nil {
		return req, nil
	}
	if r.permissions.Check(permission.FineLocation) {
		return req, nil
	}
	if !r.permissions.Check(permission.CoarseLocation) {
		r.logger.Warn().Msg("No location permission granted, not requesting updates")
		return req, ErrPermissionDenied
	}
	if req.Priority == location.PriorityHighAccuracy {
		req.Priority = location.PriorityBalancedPowerAccuracy
	}
	return req, nil
}

// handleResult runs on the looper.
func (r *LocationReporter) handleResult(ctx context.Context, pending chan []byte, result location.Result) {
	loc, ok := result.LastLocation()
	if !ok || ctx.Err() != nil {
		return
	}

	data, err := models.NewLocationRecord(loc).Marshal()
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to encode location record")
		r.notifier.Notify(constants.MsgWriteFailed)
	} else {
		offerLatest(pending, data)
	}

	r.mapView.SetMarker(mapview.Marker{
		ID:       constants.MarkerSelf,
		Title:    r.name,
		Position: mapview.NewLatLng(loc),
	})
	r.mapView.AnimateCamera(loc, r.zoom)
}

// offerLatest leaves data as the only pending record, dropping one that the
// writer has not picked up yet. Only the looper sends on pending.
func offerLatest(pending chan []byte, data []byte) {
	select {
	case pending <- data:
		return
	default:
	}
	select {
	case <-pending:
	default:
	}
	pending <- data
}

// runWriter overwrites the slot with one record at a time, so a slow write is
// never overtaken by an older one. Each outcome is reported back on the looper.
func (r *LocationReporter) runWriter(ctx context.Context, pending <-chan []byte) {
	for {
		var data []byte
		select {
		case <-ctx.Done():
			return
		case data = <-pending:
		}

		writeCtx, cancel := ctx, context.CancelFunc(func() {})
		if r.writeTimeout > 0 {
			writeCtx, cancel = context.WithTimeout(ctx, r.writeTimeout)
		}
		err := r.store.Set(writeCtx, r.slot, data)
		cancel()

		if err != nil {
			r.logger.Error().Err(err).Str("slot", r.slot).Msg("Failed to write location")
		} else {
			r.logger.Debug().Str("slot", r.slot).Msg("Location written")
		}
		if ctx.Err() != nil {
			return
		}
		r.looper.Post(func() {
			if err != nil {
				r.notifier.Notify(constants.MsgWriteFailed)
				return
			}
			r.notifier.Notify(constants.MsgWriteSucceeded)
		})
	}
}
