// Package store holds the remote slot stores that participants share their
// locations through. A slot is a named value that writers overwrite wholesale
// and watchers are notified about.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidSlot is returned for slot names the backends cannot address.
var ErrInvalidSlot = errors.New("invalid slot name")

var slotPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidateSlot checks that a slot name is usable as an MQTT topic level, a NATS
// key and a table key alike.
func ValidateSlot(slot string) error {
	if !slotPattern.MatchString(slot) {
		return fmt.Errorf("%w: %q", ErrInvalidSlot, slot)
	}
	return nil
}

// Snapshot is the content of a slot at the time of a notification.
type Snapshot struct {
	Slot   string
	Exists bool
	Value  []byte
}

// Decode unmarshals the JSON value of the snapshot into v.
func (s Snapshot) Decode(v any) error {
	if !s.Exists {
		return fmt.Errorf("slot %q has no value", s.Slot)
	}
	return json.Unmarshal(s.Value, v)
}

// Listener receives slot notifications. Implementations must not block for long;
// backends call them from their delivery goroutines. OnCancelled reports that
// delivery was interrupted; a backend that recovers on its own resumes with a
// fresh OnDataChange.
type Listener interface {
	OnDataChange(snapshot Snapshot)
	OnCancelled(err error)
}

// Subscription is a handle on an active watch.
type Subscription interface {
	Cancel()
}

// Store is a remote key-value store with change notifications.
type Store interface {
	// Set overwrites the slot with data.
	Set(ctx context.Context, slot string, data []byte) error
	// Watch notifies l of the current slot value and of every later change.
	Watch(ctx context.Context, slot string, l Listener) (Subscription, error)
	Close() error
}

// SubscriptionFunc adapts a function to the Subscription interface.
type SubscriptionFunc func()

func (f SubscriptionFunc) Cancel() { f() }
