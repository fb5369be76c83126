package location

// Location represents the geographical coordinates of a device
type Location struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64
}

// Result is a batch of readings delivered by a location client. Readings are in
// chronological order, oldest first.
type Result struct {
	Locations []Location
}

// LastLocation returns the most recent reading in the batch.
func (r Result) LastLocation() (Location, bool) {
	if len(r.Locations) == 0 {
		return Location{}, false
	}
	return r.Locations[len(r.Locations)-1], true
}
