package constants

// User-facing notification texts.
const (
	MsgWriteSucceeded   = "Locations written into the database"
	MsgWriteFailed      = "Error occurred while writing the locations"
	MsgPartnerLocated   = "Locations accessed from the database"
	MsgReadFailed       = "Could not read from database"
	MsgPermissionDenied = "User has not granted location access permission"
)
