package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/AndrewDonelson/embedcore/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("downstream down")

func failing(calls *int) func() error {
	return func() error {
		*calls++
		return errDown
	}
}

func succeeding(calls *int) func() error {
	return func() error {
		*calls++
		return nil
	}
}

func TestBreaker_StaysClosedBelowThreshold(t *testing.T) {
	b := New(3, time.Second, clock.NewMock(time.Time{}))

	var calls int
	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, b.Do(failing(&calls)), errDown)
	}
	assert.Equal(t, "closed", b.State())
	assert.Equal(t, int32(2), b.Failures())
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b := New(3, time.Second, clock.NewMock(time.Time{}))

	var calls int
	require.ErrorIs(t, b.Do(failing(&calls)), errDown)
	require.ErrorIs(t, b.Do(failing(&calls)), errDown)
	require.NoError(t, b.Do(succeeding(&calls)))
	assert.Equal(t, int32(0), b.Failures())

	// The streak starts over; two more failures do not open the circuit.
	require.ErrorIs(t, b.Do(failing(&calls)), errDown)
	require.ErrorIs(t, b.Do(failing(&calls)), errDown)
	assert.Equal(t, "closed", b.State())
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b := New(3, time.Second, clock.NewMock(time.Time{}))

	var calls int
	for i := 0; i < 3; i++ {
		require.ErrorIs(t, b.Do(failing(&calls)), errDown)
	}
	assert.Equal(t, "open", b.State())

	// Rejected without invoking the guarded function.
	assert.ErrorIs(t, b.Do(failing(&calls)), ErrOpen)
	assert.Equal(t, 3, calls)
}

func TestBreaker_HalfOpenTrialSucceeds(t *testing.T) {
	clk := clock.NewMock(time.Time{})
	b := New(3, 10*time.Second, clk)

	var calls int
	for i := 0; i < 3; i++ {
		_ = b.Do(failing(&calls))
	}
	require.Equal(t, "open", b.State())

	clk.Advance(11 * time.Second)
	require.NoError(t, b.Do(succeeding(&calls)))
	assert.Equal(t, "closed", b.State())
	assert.Equal(t, int32(0), b.Failures())
}

func TestBreaker_HalfOpenTrialFails(t *testing.T) {
	clk := clock.NewMock(time.Time{})
	b := New(3, 10*time.Second, clk)

	var calls int
	for i := 0; i < 3; i++ {
		_ = b.Do(failing(&calls))
	}
	require.Equal(t, "open", b.State())

	clk.Advance(11 * time.Second)
	require.ErrorIs(t, b.Do(failing(&calls)), errDown)
	assert.Equal(t, "open", b.State())

	// The cooldown restarts from the failed trial.
	assert.ErrorIs(t, b.Do(failing(&calls)), ErrOpen)
	clk.Advance(11 * time.Second)
	require.NoError(t, b.Do(succeeding(&calls)))
	assert.Equal(t, "closed", b.State())
}

func TestBreaker_RejectsBeforeCooldown(t *testing.T) {
	clk := clock.NewMock(time.Time{})
	b := New(1, 10*time.Second, clk)

	var calls int
	require.ErrorIs(t, b.Do(failing(&calls)), errDown)
	require.Equal(t, "open", b.State())

	clk.Advance(9 * time.Second)
	assert.ErrorIs(t, b.Do(succeeding(&calls)), ErrOpen)
	assert.Equal(t, 1, calls)
}
