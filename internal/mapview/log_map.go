package mapview

import (
	"github.com/benmeehan/partner-tracker/pkg/location"
	"github.com/rs/zerolog"
)

// LogMap keeps map state in memory and logs every change.
type LogMap struct {
	state
	logger zerolog.Logger
}

// NewLogMap creates a map that renders to the log.
func NewLogMap(logger zerolog.Logger) *LogMap {
	return &LogMap{state: newState(), logger: logger}
}

func (m *LogMap) SetMyLocationEnabled(enabled bool) {
	m.setMyLocation(enabled)
	m.logger.Info().Bool("enabled", enabled).Msg("My location layer changed")
}

func (m *LogMap) SetMarker(marker Marker) {
	m.setMarker(marker)
	m.logger.Info().
		Str("marker", marker.ID).
		Str("title", marker.Title).
		Float64("lat", marker.Position.Lat).
		Float64("lng", marker.Position.Lng).
		Msg("Marker placed")
}

func (m *LogMap) AnimateCamera(target location.Location, zoom float64) {
	c := m.setCamera(target, zoom)
	m.logger.Debug().
		Float64("lat", c.Target.Lat).
		Float64("lng", c.Target.Lng).
		Float64("zoom", c.Zoom).
		Msg("Camera moved")
}
