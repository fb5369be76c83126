package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// NATSStore keeps slots as keys of a JetStream key-value bucket.
type NATSStore struct {
	conn   *nats.Conn
	kv     jetstream.KeyValue
	logger zerolog.Logger
}

// NewNATSStore connects to url and opens bucket, creating it with a history of
// one revision when it does not exist.
func NewNATSStore(ctx context.Context, url, bucket, name string, logger zerolog.Logger) (*NATSStore, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to open JetStream context: %w", err)
	}

	kv, err := js.KeyValue(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      bucket,
			Description: "participant location slots",
			History:     1,
		})
	}
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to open key-value bucket %s: %w", bucket, err)
	}

	logger.Info().Str("url", url).Str("bucket", bucket).Msg("NATS store ready")
	return &NATSStore{conn: nc, kv: kv, logger: logger}, nil
}

// Set stores data as the only revision of the slot key.
func (s *NATSStore) Set(ctx context.Context, slot string, data []byte) error {
	if err := ValidateSlot(slot); err != nil {
		return err
	}
	if _, err := s.kv.Put(ctx, slot, data); err != nil {
		s.logger.Error().Err(err).Str("slot", slot).Msg("Failed to write slot")
		return err
	}
	return nil
}

// Watch follows the slot key. The first notification is the current value, or
// an absent snapshot when the key has none. ctx bounds only the setup; the
// watch lasts until the subscription is cancelled.
func (s *NATSStore) Watch(ctx context.Context, slot string, l Listener) (Subscription, error) {
	if err := ValidateSlot(slot); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	w, err := s.kv.Watch(watchCtx, slot)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to watch slot %s: %w", slot, err)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		follow(slot, w, l, done)
	}()

	var once sync.Once
	return SubscriptionFunc(func() {
		once.Do(func() {
			close(done)
			if err := w.Stop(); err != nil {
				s.logger.Warn().Err(err).Str("slot", slot).Msg("Failed to stop slot watcher")
			}
			cancel()
			wg.Wait()
		})
	}), nil
}

// follow turns watcher updates into snapshots until done is closed or the
// watcher ends on its own, which is reported through OnCancelled.
func follow(slot string, w jetstream.KeyWatcher, l Listener, done <-chan struct{}) {
	seen := false
	for {
		select {
		case <-done:
			return
		case entry, ok := <-w.Updates():
			if !ok {
				select {
				case <-done:
				default:
					l.OnCancelled(fmt.Errorf("watch on slot %s ended", slot))
				}
				return
			}
			if entry == nil {
				// end of initial values
				if !seen {
					l.OnDataChange(Snapshot{Slot: slot})
				}
				seen = true
				continue
			}
			seen = true
			switch entry.Operation() {
			case jetstream.KeyValueDelete, jetstream.KeyValuePurge:
				l.OnDataChange(Snapshot{Slot: slot})
			default:
				l.OnDataChange(Snapshot{Slot: slot, Exists: true, Value: entry.Value()})
			}
		}
	}
}

func (s *NATSStore) Close() error {
	if err := s.conn.Drain(); err != nil {
		s.conn.Close()
		return err
	}
	return nil
}
