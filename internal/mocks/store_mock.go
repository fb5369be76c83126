package mocks

import (
	"context"

	"github.com/benmeehan/partner-tracker/pkg/store"
	"github.com/stretchr/testify/mock"
)

// MockStore is a mock implementation of store.Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Set(ctx context.Context, slot string, data []byte) error {
	args := m.Called(ctx, slot, data)
	return args.Error(0)
}

func (m *MockStore) Watch(ctx context.Context, slot string, l store.Listener) (store.Subscription, error) {
	args := m.Called(ctx, slot, l)
	if sub, ok := args.Get(0).(store.Subscription); ok {
		return sub, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockSubscription is a cancellable handle that records Cancel calls. It
// satisfies both store.Subscription and location.Subscription.
type MockSubscription struct {
	mock.Mock
}

func (m *MockSubscription) Cancel() {
	m.Called()
}
