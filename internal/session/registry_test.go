package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRegistry_OneSessionAtATime(t *testing.T) {
	reg := NewRegistry(func() *Session {
		return newHarness(t, testConfig()).s
	}, zaptest.NewLogger(t))

	s, err := reg.Start(context.Background(), Request{})
	require.NoError(t, err)
	cur, ok := reg.Current()
	require.True(t, ok)
	assert.Same(t, s, cur)

	_, err = reg.Start(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrSessionActive)

	found, err := reg.Lookup(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, found)
	_, err = reg.Lookup(uuid.New())
	assert.ErrorIs(t, err, ErrNoSession)

	reg.Stop()
	assert.Eventually(t, func() bool {
		_, ok := reg.Current()
		return !ok
	}, 2*time.Second, 5*time.Millisecond)

	// The finished session stays visible by id.
	found, err = reg.Lookup(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, found)

	next, err := reg.Start(context.Background(), Request{})
	require.NoError(t, err)
	assert.NotEqual(t, s.ID(), next.ID())
}

func TestRegistry_FailedStartReleasesSlot(t *testing.T) {
	fail := true
	reg := NewRegistry(func() *Session {
		h := newHarness(t, testConfig())
		if fail {
			h.conn.connectErr = errors.New("refused")
		}
		return h.s
	}, nil)

	_, err := reg.Start(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrClassifierUnavailable)
	_, ok := reg.Current()
	assert.False(t, ok)

	fail = false
	_, err = reg.Start(context.Background(), Request{})
	assert.NoError(t, err)
}
