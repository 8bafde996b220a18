package utils

import (
	"time"
)

// DelayedRetry runs f until it succeeds, waiting delay between attempts, up
// to maxRetries attempts. The last error is returned if every attempt fails.
func DelayedRetry(f func() error, maxRetries int, delay time.Duration) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		err = f()
		if err == nil {
			return nil
		}
		time.Sleep(delay)
	}
	return err
}
