package location

import "context"

// Provider interface defines the methods for location providers
type Provider interface {
	GetLocation(ctx context.Context) (Location, error)
	Close() error
}

// Streamer is implemented by providers that push fixes as the hardware produces them.
// The returned channel is closed when ctx is done or the source fails.
type Streamer interface {
	Stream(ctx context.Context) (<-chan Location, error)
}
