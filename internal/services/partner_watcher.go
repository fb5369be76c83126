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
	"github.com/benmeehan/partner-tracker/internal/utils"
	"github.com/benmeehan/partner-tracker/pkg/store"
	"github.com/rs/zerolog"
)

// PartnerWatcher follows the partner's slot and moves the partner marker.
type PartnerWatcher struct {
	name         string
	slot         string
	zoom         float64
	watchTimeout time.Duration

	store    store.Store
	mapView  mapview.Map
	notifier notify.Notifier
	looper   *utils.Looper
	logger   zerolog.Logger

	mu  sync.Mutex
	sub store.Subscription
}

// NewPartnerWatcher creates a PartnerWatcher for the participant name whose
// location is kept in slot.
func NewPartnerWatcher(name, slot string, zoom float64, watchTimeout time.Duration, st store.Store,
	mapView mapview.Map, notifier notify.Notifier, looper *utils.Looper, logger zerolog.Logger) *PartnerWatcher {
	return &PartnerWatcher{
		name:         name,
		slot:         slot,
		zoom:         zoom,
		watchTimeout: watchTimeout,
		store:        st,
		mapView:      mapView,
		notifier:     notifier,
		looper:       looper,
		logger:       logger,
	}
}

// Start subscribes to the partner's slot.
func (w *PartnerWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sub != nil {
		w.logger.Warn().Msg("PartnerWatcher is already running")
		return errors.New("partner watcher is already running")
	}

	ctx, cancel := context.Background(), context.CancelFunc(func() {})
	if w.watchTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, w.watchTimeout)
	}
	defer cancel()

	sub, err := w.store.Watch(ctx, w.slot, w)
	if err != nil {
		w.logger.Error().Err(err).Str("slot", w.slot).Msg("Failed to watch partner slot")
		return err
	}
	w.sub = sub

	w.logger.Info().Str("slot", w.slot).Msg("PartnerWatcher started successfully")
	return nil
}

// Stop cancels the subscription.
func (w *PartnerWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sub == nil {
		w.logger.Warn().Msg("PartnerWatcher is not running")
		return errors.New("partner watcher is not running")
	}

	w.sub.Cancel()
	w.sub = nil

	w.logger.Info().Msg("PartnerWatcher stopped successfully")
	return nil
}

// OnDataChange implements store.Listener.
func (w *PartnerWatcher) OnDataChange(snap store.Snapshot) {
	w.looper.Post(func() { w.handleSnapshot(snap) })
}

// OnCancelled implements store.Listener.
func (w *PartnerWatcher) OnCancelled(err error) {
	w.logger.Error().Err(err).Str("slot", w.slot).Msg("Partner subscription failed")
	w.looper.Post(func() { w.notifier.Notify(constants.MsgReadFailed) })
}

// handleSnapshot runs on the looper. Anything other than a record with both
// coordinates leaves the map unchanged.
func (w *PartnerWatcher) handleSnapshot(snap store.Snapshot) {
	if !snap.Exists {
		w.logger.Debug().Str("slot", w.slot).Msg("Partner slot is empty")
		return
	}

	var record models.PartialLocation
	if err := snap.Decode(&record); err != nil {
		w.logger.Error().Err(err).Str("slot", w.slot).Msg("Partner record is unreadable")
		w.notifier.Notify(constants.MsgReadFailed)
		return
	}

	loc, ok := record.Complete()
	if !ok {
		w.logger.Debug().Str("slot", w.slot).Msg("Partner record is incomplete")
		return
	}

	w.mapView.SetMarker(mapview.Marker{
		ID:       constants.MarkerPartner,
		Title:    w.name,
		Position: mapview.NewLatLng(loc),
	})
	w.mapView.AnimateCamera(loc, w.zoom)
	w.notifier.Notify(constants.MsgPartnerLocated)
}
