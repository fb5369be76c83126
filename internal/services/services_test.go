package services

import (
	"testing"
	"time"

	"github.com/benmeehan/partner-tracker/internal/mapview"
	"github.com/benmeehan/partner-tracker/internal/mocks"
	"github.com/benmeehan/partner-tracker/internal/utils"
	"github.com/benmeehan/partner-tracker/pkg/location"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func startLooper(t *testing.T) *utils.Looper {
	t.Helper()
	l := utils.NewLooper(16)
	require.NoError(t, l.Start())
	t.Cleanup(func() { _ = l.Stop() })
	return l
}

// flush waits until every task posted to l so far has run.
func flush(t *testing.T, l *utils.Looper) {
	t.Helper()
	done := make(chan struct{})
	require.True(t, l.Post(func() { close(done) }))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("looper did not drain")
	}
}

// expectNotify registers message on n and returns a channel fed on each call.
func expectNotify(n *mocks.MockNotifier, message string) <-chan struct{} {
	ch := make(chan struct{}, 4)
	n.On("Notify", message).Run(func(mock.Arguments) { ch <- struct{}{} }).Return()
	return ch
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

func markerAt(id, title string, lat, lng float64) interface{} {
	return mock.MatchedBy(func(m mapview.Marker) bool {
		return m.ID == id && m.Title == title && m.Position == mapview.LatLng{Lat: lat, Lng: lng}
	})
}

func loc(lat, lng float64) location.Location {
	return location.Location{Latitude: lat, Longitude: lng}
}
