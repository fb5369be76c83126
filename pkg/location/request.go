package location

import (
	"fmt"
	"strings"
	"time"
)

// Priority selects which providers a client consults first.
type Priority int

const (
	PriorityHighAccuracy Priority = iota
	PriorityBalancedPowerAccuracy
	PriorityLowPower
)

const (
	DefaultInterval        = 20 * time.Second
	DefaultFastestInterval = 10 * time.Second
)

// ParsePriority maps a configuration value onto a Priority.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "high_accuracy":
		return PriorityHighAccuracy, nil
	case "balanced":
		return PriorityBalancedPowerAccuracy, nil
	case "low_power":
		return PriorityLowPower, nil
	}
	return PriorityHighAccuracy, fmt.Errorf("unknown location priority %q", s)
}

func (p Priority) String() string {
	switch p {
	case PriorityHighAccuracy:
		return "high_accuracy"
	case PriorityBalancedPowerAccuracy:
		return "balanced"
	case PriorityLowPower:
		return "low_power"
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// Request describes how often and how precisely updates should be delivered.
// Interval is the target period between deliveries; FastestInterval is the
// shortest period at which early fixes are accepted.
type Request struct {
	Interval        time.Duration
	FastestInterval time.Duration
	Priority        Priority
}

// DefaultRequest asks for one high accuracy reading every 20 seconds, accepting
// early fixes down to 10 seconds.
func DefaultRequest() Request {
	return Request{
		Interval:        DefaultInterval,
		FastestInterval: DefaultFastestInterval,
		Priority:        PriorityHighAccuracy,
	}
}

// Validate checks the intervals are usable.
func (r Request) Validate() error {
	if r.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", r.Interval)
	}
	if r.FastestInterval < 0 {
		return fmt.Errorf("fastest interval must not be negative, got %s", r.FastestInterval)
	}
	if r.FastestInterval > r.Interval {
		return fmt.Errorf("fastest interval %s exceeds interval %s", r.FastestInterval, r.Interval)
	}
	return nil
}
