package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// step is one Record call and the breaker state expected afterwards.
type step struct {
	fail bool
	open bool
}

func TestBreaker_Transitions(t *testing.T) {
	tests := []struct {
		name   string
		opts   []Option
		steps  []step
		opened int
		closed int
	}{
		{
			name:   "opens on the third consecutive failure",
			opts:   []Option{WithFailureThreshold(3)},
			steps:  []step{{fail: true}, {fail: true}, {fail: true, open: true}},
			opened: 1,
		},
		{
			name: "a success clears the failure streak",
			opts: []Option{WithFailureThreshold(3)},
			steps: []step{
				{fail: true}, {fail: true}, {fail: false},
				{fail: true}, {fail: true}, {fail: true, open: true},
			},
			opened: 1,
		},
		{
			name: "closes after the success threshold",
			opts: []Option{WithFailureThreshold(1), WithSuccessThreshold(2)},
			steps: []step{
				{fail: true, open: true}, {fail: false, open: true}, {fail: false},
			},
			opened: 1,
			closed: 1,
		},
		{
			name: "a failure while open restarts the success streak",
			opts: []Option{WithFailureThreshold(1), WithSuccessThreshold(2)},
			steps: []step{
				{fail: true, open: true}, {fail: false, open: true},
				{fail: true, open: true}, {fail: false, open: true}, {fail: false},
			},
			opened: 1,
			closed: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("audit-kafka", tt.opts...)
			var opened, closed int
			for i, s := range tt.steps {
				var change StateChange
				if s.fail {
					_, change = b.RecordFailure()
				} else {
					_, change = b.RecordSuccess()
				}
				if change.Opened {
					opened++
				}
				if change.Closed {
					closed++
				}
				require.Equal(t, s.open, b.IsOpen(), "after step %d", i)
			}
			assert.Equal(t, tt.opened, opened)
			assert.Equal(t, tt.closed, closed)
		})
	}
}

func TestBreaker_FallbackSignals(t *testing.T) {
	b := New("audit-kafka", WithFailureThreshold(2))
	assert.Equal(t, "audit-kafka", b.Name())
	assert.Equal(t, "closed", b.State().String())

	useFallback, _ := b.RecordFailure()
	assert.False(t, useFallback, "below threshold the primary is still used")

	useFallback, _ = b.RecordFailure()
	assert.True(t, useFallback)

	useFallback, change := b.RecordFailure()
	assert.True(t, useFallback)
	assert.False(t, change.Opened, "already open")
	assert.Equal(t, "open", b.State().String())
}

func TestBreaker_AllowHonoursCooldown(t *testing.T) {
	b := New("audit-kafka", WithFailureThreshold(1), WithCooldown(time.Hour))

	assert.True(t, b.Allow())
	b.RecordFailure()
	assert.False(t, b.Allow(), "open breaker should reject within cooldown")

	b.Reset()
	assert.True(t, b.Allow())
	assert.Equal(t, StateClosed, b.State())
}
