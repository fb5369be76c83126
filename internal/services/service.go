package services

import "errors"

// Service is the lifecycle every screen component implements.
type Service interface {
	Start() error
	Stop() error
}

// ErrPermissionDenied is returned when no location permission has been granted.
var ErrPermissionDenied = errors.New("location permission not granted")
