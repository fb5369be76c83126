package models

import (
	"encoding/json"
	"math"

	"github.com/benmeehan/partner-tracker/pkg/location"
)

// LocationRecord is the value written to a participant's slot.
type LocationRecord struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// NewLocationRecord builds a record from a reading.
func NewLocationRecord(loc location.Location) LocationRecord {
	return LocationRecord{Latitude: loc.Latitude, Longitude: loc.Longitude}
}

// Marshal encodes the record as the slot payload.
func (r LocationRecord) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// PartialLocation is a record read back from a slot, where either field may be
// missing or null.
type PartialLocation struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// Complete returns the location when both coordinates are present and finite.
func (p PartialLocation) Complete() (location.Location, bool) {
	if p.Latitude == nil || p.Longitude == nil {
		return location.Location{}, false
	}
	lat, lng := *p.Latitude, *p.Longitude
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return location.Location{}, false
	}
	return location.Location{Latitude: lat, Longitude: lng}, true
}
