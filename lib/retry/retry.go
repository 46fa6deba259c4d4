package retry

import (
	"context"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/jpillora/backoff"
)

var log = logging.Logger("retry")

// maxBackoffFactor caps the pause at this multiple of the initial backoff.
const maxBackoffFactor = 32

// Retry calls f up to attempts times, doubling the pause after each
// failure that retryable accepts. Any other error is returned at once.
func Retry[T any](ctx context.Context, attempts int, initial time.Duration, retryable func(error) bool, f func() (T, error)) (result T, err error) {
	b := &backoff.Backoff{
		Min:    initial,
		Max:    initial * maxBackoffFactor,
		Factor: 2,
		Jitter: true,
	}

	for i := 0; i < attempts; i++ {
		if i > 0 {
			pause := b.Duration()
			log.Infow("retrying after error", "attempt", i+1, "pause", pause, "error", err)
			select {
			case <-time.After(pause):
			case <-ctx.Done():
				return result, ctx.Err()
			}
		}
		result, err = f()
		if err == nil || !retryable(err) {
			return result, err
		}
	}
	log.Errorf("Failed after %d attempts, last error: %s", attempts, err)
	return result, err
}
