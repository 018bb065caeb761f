package backoff

import (
	"context"
	"time"
)

// Steps waits delays[n] after the n-th consecutive failure and repeats the last delay
// once the list is exhausted. It is not safe for concurrent use.
type Steps struct {
	delays   []time.Duration
	failures int
}

func NewSteps(delays ...time.Duration) *Steps {
	return &Steps{delays: delays}
}

func (s *Steps) Reset() {
	s.failures = 0
}

// Wait sleeps for the delay of the current failure count, then counts one more failure.
func (s *Steps) Wait(ctx context.Context) error {
	if len(s.delays) == 0 {
		return ctx.Err()
	}

	d := s.delays[min(s.failures, len(s.delays)-1)]
	s.failures++

	return Sleep(ctx, d)
}

// Sleep pauses for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
