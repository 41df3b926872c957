package eth

import (
	"context"
	"time"
)

// Backoff doubles the wait after every failed attempt, capped at limit.
type Backoff struct {
	LastDuration time.Duration
	NextDuration time.Duration
	start        time.Duration
	limit        time.Duration
	count        int
}

func NewExponentialBackoff(start time.Duration, limit time.Duration) *Backoff {
	b := &Backoff{start: start, limit: limit}
	b.Reset()
	return b
}

func (b *Backoff) Reset() {
	b.count = 0
	b.LastDuration = 0
	b.NextDuration = b.getNextDuration()
}

// Attempts is the number of waits completed since the last Reset.
func (b *Backoff) Attempts() int {
	return b.count
}

// Wait sleeps for NextDuration. It returns ctx.Err() if the context ends first.
func (b *Backoff) Wait(ctx context.Context) error {
	if sleepInterrupted(ctx, b.NextDuration) {
		return ctx.Err()
	}
	b.count++
	b.LastDuration = b.NextDuration
	b.NextDuration = b.getNextDuration()
	return nil
}

func (b *Backoff) getNextDuration() time.Duration {
	d := b.start
	for i := 0; i < b.count; i++ {
		d *= 2
		if b.limit > 0 && d >= b.limit {
			return b.limit
		}
	}
	if b.limit > 0 && d > b.limit {
		d = b.limit
	}
	return d
}

func sleepInterrupted(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return true
	case <-timer.C:
		return false
	}
}
