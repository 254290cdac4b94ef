package blobstore

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v4"
)

// MaxRetries is the design value from spec.md §4.2/§4.4: at most this many
// retries of a transient failure before the caller gives up.
const MaxRetries = 3

// Retry runs fn up to MaxRetries+1 times, retrying only while fn returns an
// error wrapping ErrTransient. Any other error (including ErrConflict and
// ErrNotFound, which are not transient) is returned immediately.
func Retry(ctx context.Context, fn func() error) error {
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(0), MaxRetries)
	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrTransient) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(policy, ctx))
}
