package llm

import (
	"context"
	"math/rand/v2"
	"time"
)

// backoffDelay returns the delay before retry attempt k (0-based),
// 200ms * 2^k with +/-20% jitter.
func backoffDelay(base time.Duration, k int) time.Duration {
	d := base
	for range k {
		d *= 2
	}
	jitter := 0.8 + rand.Float64()*0.4 // [0.8, 1.2)
	return time.Duration(float64(d) * jitter)
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
