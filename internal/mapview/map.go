// Package mapview renders participants on a map. LogMap reports map changes in
// the log for headless devices; WebMap serves a browser map that follows the
// same changes over a websocket.
package mapview

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/benmeehan/partner-tracker/pkg/location"
	cmap "github.com/orcaman/concurrent-map/v2"
)

// LatLng is a map position.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// NewLatLng converts a reading to a map position.
func NewLatLng(loc location.Location) LatLng {
	return LatLng{Lat: loc.Latitude, Lng: loc.Longitude}
}

// Marker is a titled pin. Markers are identified by ID and a new marker with
// the same ID replaces the old one.
type Marker struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Position  LatLng    `json:"position"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Camera is the visible region of the map.
type Camera struct {
	Target LatLng  `json:"target"`
	Zoom   float64 `json:"zoom"`
}

// Map is the surface the screen draws on.
type Map interface {
	SetMyLocationEnabled(enabled bool)
	SetMarker(m Marker)
	AnimateCamera(target location.Location, zoom float64)
	Markers() []Marker
}

// state holds what is currently on the map.
type state struct {
	markers cmap.ConcurrentMap[string, Marker]

	mu         sync.RWMutex
	camera     Camera
	myLocation bool
}

func newState() state {
	return state{markers: cmap.New[Marker]()}
}

func (s *state) setMarker(m Marker) {
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now()
	}
	s.markers.Set(m.ID, m)
}

func (s *state) setCamera(target location.Location, zoom float64) Camera {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.camera = Camera{Target: NewLatLng(target), Zoom: zoom}
	return s.camera
}

func (s *state) setMyLocation(enabled bool) {
	s.mu.Lock()
	s.myLocation = enabled
	s.mu.Unlock()
}

// Markers returns the markers on the map ordered by ID.
func (s *state) Markers() []Marker {
	out := make([]Marker, 0, s.markers.Count())
	for _, m := range s.markers.Items() {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b Marker) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Camera returns the current camera position.
func (s *state) Camera() Camera {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.camera
}

// MyLocationEnabled reports whether the own-location layer is shown.
func (s *state) MyLocationEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.myLocation
}
