package service_registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benmeehan/partner-tracker/internal/mapview"
	"github.com/benmeehan/partner-tracker/internal/utils"
	"github.com/benmeehan/partner-tracker/pkg/location"
	"github.com/benmeehan/partner-tracker/pkg/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingService struct {
	name     string
	log      *[]string
	startErr error
}

func (s *recordingService) Start() error {
	if s.startErr != nil {
		return s.startErr
	}
	*s.log = append(*s.log, "start "+s.name)
	return nil
}

func (s *recordingService) Stop() error {
	*s.log = append(*s.log, "stop "+s.name)
	return nil
}

func TestServiceRegistry_StartStopOrder(t *testing.T) {
	var log []string
	sr := NewServiceRegistry(zerolog.Nop())
	sr.RegisterService("a", &recordingService{name: "a", log: &log})
	sr.RegisterService("b", &recordingService{name: "b", log: &log})
	sr.RegisterService("a", &recordingService{name: "dup", log: &log})

	require.NoError(t, sr.StartServices())
	require.NoError(t, sr.StopServices())
	require.NoError(t, sr.StopServices())

	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, log)
}

func TestServiceRegistry_RollbackOnStartFailure(t *testing.T) {
	var log []string
	boom := errors.New("boom")
	sr := NewServiceRegistry(zerolog.Nop())
	sr.RegisterService("a", &recordingService{name: "a", log: &log})
	sr.RegisterService("b", &recordingService{name: "b", log: &log, startErr: boom})
	sr.RegisterService("c", &recordingService{name: "c", log: &log})

	err := sr.StartServices()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"start a", "stop a"}, log)
}

func testConfig() *utils.Config {
	cfg := &utils.Config{}
	cfg.Participants.Self = utils.Participant{Name: "Ruth", Slot: "ruthlocation"}
	cfg.Participants.Partner = utils.Participant{Name: "Femi", Slot: "femilocation"}
	cfg.Store.Backend = "memory"
	cfg.Location.Interval = 20 * time.Second
	cfg.Location.FastestInterval = 10 * time.Second
	cfg.Location.Priority = "balanced"
	cfg.Map.Zoom = 20
	return cfg
}

func TestLocationRequest(t *testing.T) {
	req, err := LocationRequest(testConfig())
	require.NoError(t, err)
	assert.Equal(t, location.Request{
		Interval:        20 * time.Second,
		FastestInterval: 10 * time.Second,
		Priority:        location.PriorityBalancedPowerAccuracy,
	}, req)

	cfg := testConfig()
	cfg.Location.Priority = "warp"
	_, err = LocationRequest(cfg)
	assert.Error(t, err)
}

func TestNewStore(t *testing.T) {
	st, err := NewStore(context.Background(), testConfig(), nil, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &store.MemoryStore{}, st)

	cfg := testConfig()
	cfg.Store.Backend = "mqtt"
	_, err = NewStore(context.Background(), cfg, nil, zerolog.Nop())
	assert.Error(t, err)
}

func TestNewLocationClient(t *testing.T) {
	_, err := NewLocationClient(testConfig(), zerolog.Nop())
	assert.ErrorIs(t, err, location.ErrNoProvider)

	cfg := testConfig()
	cfg.Location.SensorEnabled = true
	cfg.Location.GPSDevicePort = "/dev/ttyUSB0"
	client, err := NewLocationClient(cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestNewMapView(t *testing.T) {
	assert.IsType(t, &mapview.LogMap{}, NewMapView(testConfig(), zerolog.Nop()))

	cfg := testConfig()
	cfg.Map.Web.Enabled = true
	cfg.Map.Web.Addr = "127.0.0.1:0"
	assert.IsType(t, &mapview.WebMap{}, NewMapView(cfg, zerolog.Nop()))
}

func TestRegisterServices(t *testing.T) {
	sr := NewServiceRegistry(zerolog.Nop())
	looper := utils.NewLooper(4)
	err := sr.RegisterServices(testConfig(), Dependencies{
		Store:  store.NewMemoryStore(),
		Map:    mapview.NewLogMap(zerolog.Nop()),
		Looper: looper,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"partner_watcher", "location_reporter"}, sr.serviceKeys)
}
