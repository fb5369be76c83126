package constants

// Marker identifiers on the map.
const (
	MarkerSelf    = "self"
	MarkerPartner = "partner"
)

// BuildingZoom is the camera zoom used when following a participant.
const BuildingZoom = 20.0

const DefaultTopicPrefix = "partner-tracker/slots"
