package mocks

import (
	"time"
)

// DoneToken is an mqtt.Token that has already completed with err.
type DoneToken struct {
	err  error
	done chan struct{}
}

// NewDoneToken returns a completed token carrying err.
func NewDoneToken(err error) *DoneToken {
	done := make(chan struct{})
	close(done)
	return &DoneToken{err: err, done: done}
}

func (t *DoneToken) Wait() bool                     { return true }
func (t *DoneToken) WaitTimeout(time.Duration) bool { return true }
func (t *DoneToken) Done() <-chan struct{}          { return t.done }
func (t *DoneToken) Error() error                   { return t.err }

// PendingToken never completes.
type PendingToken struct{}

func (PendingToken) Wait() bool                     { return false }
func (PendingToken) WaitTimeout(time.Duration) bool { return false }
func (PendingToken) Done() <-chan struct{}          { return make(chan struct{}) }
func (PendingToken) Error() error                   { return nil }
