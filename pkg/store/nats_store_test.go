package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/benmeehan/partner-tracker/pkg/store"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runJetStream(t *testing.T) string {
	t.Helper()
	opts := test.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	srv := test.RunServer(&opts)
	t.Cleanup(srv.Shutdown)
	return srv.ClientURL()
}

func TestNATSStore_RoundTrip(t *testing.T) {
	url := runJetStream(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := store.NewNATSStore(ctx, url, "partner_tracker_test", "partner-tracker-test", zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	rec := &recorder{}
	sub, err := s.Watch(ctx, "femilocation", rec)
	require.NoError(t, err)
	defer sub.Cancel()

	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.False(t, rec.all()[0].Exists)

	require.NoError(t, s.Set(ctx, "femilocation", []byte(`{"latitude":6.5,"longitude":3.3}`)))
	require.Eventually(t, func() bool { return len(rec.all()) == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.JSONEq(t, `{"latitude":6.5,"longitude":3.3}`, string(rec.all()[1].Value))

	late := &recorder{}
	lateSub, err := s.Watch(ctx, "femilocation", late)
	require.NoError(t, err)
	defer lateSub.Cancel()
	require.Eventually(t, func() bool { return len(late.all()) == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.True(t, late.all()[0].Exists)
}

func TestNATSStore_SetHonoursContext(t *testing.T) {
	url := runJetStream(t)
	s, err := store.NewNATSStore(context.Background(), url, "partner_tracker_test", "partner-tracker-test", zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Set(ctx, "femilocation", []byte(`{}`)), context.Canceled)
	assert.Error(t, s.Set(context.Background(), "not a slot", []byte(`{}`)))
}
