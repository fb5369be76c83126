package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
)

// PostgresStore keeps slots as JSONB rows and announces writes with NOTIFY.
type PostgresStore struct {
	pool        *pgxpool.Pool
	table       string
	channel     string // quoted for LISTEN/UNLISTEN
	channelName string // raw, for pg_notify
	logger      zerolog.Logger
}

// NewPostgresStore connects to the database and creates the slot table if needed.
func NewPostgresStore(ctx context.Context, url, table, channel string, logger zerolog.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.Connect(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	s := &PostgresStore{
		pool:        pool,
		table:       pgx.Identifier{table}.Sanitize(),
		channel:     pgx.Identifier{channel}.Sanitize(),
		channelName: channel,
		logger:      logger,
	}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info().Str("table", table).Str("channel", channel).Msg("Postgres store ready")
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	sqlStmt := `CREATE TABLE IF NOT EXISTS ` + s.table + ` (
		slot       TEXT PRIMARY KEY,
		value      JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`
	if _, err := s.pool.Exec(ctx, sqlStmt); err != nil {
		return fmt.Errorf("failed to create slot table: %w", err)
	}
	return nil
}

// Set upserts the slot and notifies watchers in the same transaction, so the
// notification is only seen once the value is committed.
func (s *PostgresStore) Set(ctx context.Context, slot string, data []byte) error {
	if err := ValidateSlot(slot); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	upsert := `INSERT INTO ` + s.table + ` (slot, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (slot) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`
	if _, err := tx.Exec(ctx, upsert, slot, string(data)); err != nil {
		s.logger.Error().Err(err).Str("slot", slot).Msg("Failed to write slot")
		return err
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, s.channelName, slot); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) read(ctx context.Context, slot string) (Snapshot, error) {
	var value []byte
	err := s.pool.QueryRow(ctx, `SELECT value::text FROM `+s.table+` WHERE slot = $1`, slot).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{Slot: slot}, nil
	}
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Slot: slot, Exists: true, Value: value}, nil
}

// Watch holds a pooled connection in LISTEN mode for the lifetime of the watch.
func (s *PostgresStore) Watch(ctx context.Context, slot string, l Listener) (Subscription, error) {
	if err := ValidateSlot(slot); err != nil {
		return nil, err
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+s.channel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to listen on %s: %w", s.channel, err)
	}

	snap, err := s.read(ctx, slot)
	if err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to read slot %s: %w", slot, err)
	}

	wctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer s.release(conn)
		l.OnDataChange(snap)
		s.listen(wctx, conn, slot, l)
	}()

	var once sync.Once
	return SubscriptionFunc(func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}), nil
}

func (s *PostgresStore) listen(ctx context.Context, conn *pgxpool.Conn, slot string, l Listener) {
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil {
				l.OnCancelled(fmt.Errorf("listen on slot %s failed: %w", slot, err))
			}
			return
		}
		if n.Payload != slot {
			continue
		}
		snap, err := s.read(ctx, slot)
		if err != nil {
			if ctx.Err() == nil {
				l.OnCancelled(fmt.Errorf("failed to read slot %s: %w", slot, err))
			}
			return
		}
		l.OnDataChange(snap)
	}
}

// release drops the LISTEN before handing the connection back to the pool.
func (s *PostgresStore) release(conn *pgxpool.Conn) {
	if _, err := conn.Exec(context.Background(), "UNLISTEN "+s.channel); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to unlisten, discarding connection")
		conn.Conn().Close(context.Background())
	}
	conn.Release()
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
