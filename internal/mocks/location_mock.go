package mocks

import (
	"github.com/benmeehan/partner-tracker/pkg/location"
	"github.com/stretchr/testify/mock"
)

// MockLocationClient is a mock implementation of location.Client
type MockLocationClient struct {
	mock.Mock
}

func (m *MockLocationClient) RequestLocationUpdates(req location.Request, cb location.Callback) (location.Subscription, error) {
	args := m.Called(req, cb)
	if sub, ok := args.Get(0).(location.Subscription); ok {
		return sub, args.Error(1)
	}
	return nil, args.Error(1)
}
