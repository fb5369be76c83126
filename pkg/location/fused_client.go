package location

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrNoProvider is returned when a request's priority leaves no provider to ask.
var ErrNoProvider = errors.New("no location provider available for the requested priority")

// Callback receives batches of readings. Calls for one subscription never overlap.
type Callback func(Result)

// Subscription is a handle on a running update request.
type Subscription interface {
	// Cancel stops delivery and waits for the delivery loop to exit.
	Cancel()
}

// Client delivers periodic location updates.
type Client interface {
	RequestLocationUpdates(req Request, cb Callback) (Subscription, error)
}

// FusedClient combines a GPS sensor and a network geolocation provider, choosing
// between them by request priority.
type FusedClient struct {
	sensor  Provider
	network Provider
	logger  zerolog.Logger
	now     func() time.Time
}

// NewFusedClient creates a client over the given providers. Either may be nil.
func NewFusedClient(sensor, network Provider, logger zerolog.Logger) *FusedClient {
	return &FusedClient{
		sensor:  sensor,
		network: network,
		logger:  logger,
		now:     time.Now,
	}
}

// providersFor returns the providers to try, in order, for a priority.
func (c *FusedClient) providersFor(p Priority) []Provider {
	var order []Provider
	switch p {
	case PriorityHighAccuracy:
		order = []Provider{c.sensor, c.network}
	case PriorityBalancedPowerAccuracy:
		order = []Provider{c.network, c.sensor}
	case PriorityLowPower:
		order = []Provider{c.network}
	}
	providers := make([]Provider, 0, len(order))
	for _, p := range order {
		if p != nil {
			providers = append(providers, p)
		}
	}
	return providers
}

// RequestLocationUpdates starts delivering readings to cb according to req.
func (c *FusedClient) RequestLocationUpdates(req Request, cb Callback) (Subscription, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if cb == nil {
		return nil, errors.New("location callback must not be nil")
	}
	providers := c.providersFor(req.Priority)
	if len(providers) == 0 {
		return nil, ErrNoProvider
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Only the preferred provider is streamed; fallbacks are polled.
	var stream <-chan Location
	if s, ok := providers[0].(Streamer); ok {
		ch, err := s.Stream(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Location stream unavailable, falling back to polling")
		} else {
			stream = ch
		}
	}

	sub := &fusedSubscription{cancel: cancel}
	sub.wg.Add(1)
	go func() {
		defer sub.wg.Done()
		c.run(ctx, req, providers, stream, cb)
	}()

	c.logger.Info().
		Dur("interval", req.Interval).
		Dur("fastest_interval", req.FastestInterval).
		Str("priority", req.Priority.String()).
		Bool("streaming", stream != nil).
		Msg("Location updates requested")
	return sub, nil
}

func (c *FusedClient) run(ctx context.Context, req Request, providers []Provider, stream <-chan Location, cb Callback) {
	ticker := time.NewTicker(req.Interval)
	defer ticker.Stop()

	// A streamed provider already holds its device open, so it is not polled
	// while the stream is alive.
	polled := providers
	if stream != nil {
		polled = providers[1:]
	}

	var last time.Time
	deliver := func(loc Location) {
		now := c.now()
		if !shouldDeliver(last, now, req.FastestInterval) {
			return
		}
		last = now
		ticker.Reset(req.Interval)
		cb(Result{Locations: []Location{loc}})
	}

	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("Location updates stopped")
			return
		case loc, ok := <-stream:
			if !ok {
				c.logger.Warn().Msg("Location stream closed, continuing with polling")
				stream = nil
				polled = providers
				continue
			}
			deliver(loc)
		case <-ticker.C:
			if len(polled) == 0 {
				c.logger.Debug().Msg("No fix from the location stream this interval")
				continue
			}
			loc, err := c.locate(ctx, polled)
			if err != nil {
				if ctx.Err() == nil {
					c.logger.Error().Err(err).Msg("Failed to get location from providers")
				}
				continue
			}
			deliver(loc)
		}
	}
}

// locate asks each provider in turn and returns the first successful reading.
func (c *FusedClient) locate(ctx context.Context, providers []Provider) (Location, error) {
	var errs []error
	for i, p := range providers {
		loc, err := p.GetLocation(ctx)
		if err == nil {
			return loc, nil
		}
		errs = append(errs, fmt.Errorf("provider %d: %w", i, err))
		if ctx.Err() != nil {
			break
		}
	}
	return Location{}, errors.Join(errs...)
}

// shouldDeliver reports whether a reading at now may be delivered given the time
// of the previous delivery.
func shouldDeliver(last, now time.Time, fastest time.Duration) bool {
	return last.IsZero() || now.Sub(last) >= fastest
}

type fusedSubscription struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (s *fusedSubscription) Cancel() {
	s.cancel()
	s.wg.Wait()
}

// Close releases both providers.
func (c *FusedClient) Close() error {
	var errs []error
	for _, p := range []Provider{c.sensor, c.network} {
		if p == nil {
			continue
		}
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
