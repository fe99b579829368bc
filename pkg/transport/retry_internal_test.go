package transport

import (
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
)

// drainSchedule collects waits until the schedule stops, bounded by limit.
func drainSchedule(b backoff.BackOff, limit int) []time.Duration {
	var waits []time.Duration
	for i := 0; i < limit; i++ {
		next := b.NextBackOff()
		waits = append(waits, next)
		if next == backoff.Stop {
			break
		}
	}
	return waits
}

func TestRetryPolicy_BackOffSchedule(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		policy RetryPolicy
		want   []time.Duration
	}{
		{
			name:   "default doubles from 250ms",
			policy: DefaultRetryPolicy(),
			want:   []time.Duration{250 * time.Millisecond, 500 * time.Millisecond, backoff.Stop},
		},
		{
			name:   "five attempts",
			policy: RetryPolicy{MaxAttempts: 5, InitialInterval: 100 * time.Millisecond, Multiplier: 2},
			want: []time.Duration{
				100 * time.Millisecond,
				200 * time.Millisecond,
				400 * time.Millisecond,
				800 * time.Millisecond,
				backoff.Stop,
			},
		},
		{
			name:   "single attempt never waits",
			policy: RetryPolicy{MaxAttempts: 1, InitialInterval: time.Second, Multiplier: 2},
			want:   []time.Duration{backoff.Stop},
		},
		{
			name:   "multiplier below one is flat",
			policy: RetryPolicy{MaxAttempts: 3, InitialInterval: 50 * time.Millisecond, Multiplier: 0.5},
			want:   []time.Duration{50 * time.Millisecond, 50 * time.Millisecond, backoff.Stop},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, drainSchedule(tt.policy.backOff(), 10))
		})
	}
}

func TestRetryPolicy_BackOffIsFreshPerRequest(t *testing.T) {
	t.Parallel()

	policy := DefaultRetryPolicy()
	first := drainSchedule(policy.backOff(), 10)
	second := drainSchedule(policy.backOff(), 10)
	assert.Equal(t, first, second)
}
