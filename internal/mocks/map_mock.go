package mocks

import (
	"context"

	"github.com/benmeehan/partner-tracker/internal/mapview"
	"github.com/benmeehan/partner-tracker/internal/permission"
	"github.com/benmeehan/partner-tracker/pkg/location"
	"github.com/stretchr/testify/mock"
)

// MockMap is a mock implementation of mapview.Map
type MockMap struct {
	mock.Mock
}

func (m *MockMap) SetMyLocationEnabled(enabled bool) {
	m.Called(enabled)
}

func (m *MockMap) SetMarker(marker mapview.Marker) {
	m.Called(marker)
}

func (m *MockMap) AnimateCamera(target location.Location, zoom float64) {
	m.Called(target, zoom)
}

func (m *MockMap) Markers() []mapview.Marker {
	args := m.Called()
	markers, _ := args.Get(0).([]mapview.Marker)
	return markers
}

// MockNotifier is a mock implementation of notify.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(message string) {
	m.Called(message)
}

// MockPermissions is a mock implementation of permission.Checker
type MockPermissions struct {
	mock.Mock
}

func (m *MockPermissions) Check(p permission.Permission) bool {
	args := m.Called(p)
	return args.Bool(0)
}

func (m *MockPermissions) Request(ctx context.Context, p permission.Permission) (bool, error) {
	args := m.Called(ctx, p)
	return args.Bool(0), args.Error(1)
}
