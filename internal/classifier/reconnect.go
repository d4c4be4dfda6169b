package classifier

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Reconnect policy names.
const (
	PolicyFixed       = "fixed"
	PolicyExponential = "exponential"
)

// The doubling schedule stops growing at base << maxExponentialShift.
const maxExponentialShift = 4

// NewReconnectPolicy returns the delay schedule between reconnect attempts.
func NewReconnectPolicy(name string, delay time.Duration) (backoff.BackOff, error) {
	if delay <= 0 {
		delay = 2 * time.Second
	}
	switch name {
	case "", PolicyFixed:
		return backoff.NewConstantBackOff(delay), nil
	case PolicyExponential:
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = delay
		b.Multiplier = 2
		b.RandomizationFactor = 0
		b.MaxInterval = delay << maxExponentialShift
		b.Reset()
		return b, nil
	default:
		return nil, fmt.Errorf("unknown reconnect policy %q", name)
	}
}

// ReconnectPolicyFactory validates name once and returns a builder for fresh
// schedules. Each connection needs its own, since a BackOff carries state.
func ReconnectPolicyFactory(name string, delay time.Duration) (func() backoff.BackOff, error) {
	if _, err := NewReconnectPolicy(name, delay); err != nil {
		return nil, err
	}
	return func() backoff.BackOff {
		b, _ := NewReconnectPolicy(name, delay)
		return b
	}, nil
}
