package signedurl

import (
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"fortunemagnet/internal/storage"
)

// DefaultRetryDelays is the wait before each retry of a transient failure.
var DefaultRetryDelays = []time.Duration{300 * time.Millisecond, 600 * time.Millisecond}

// scheduleBackOff yields a fixed list of delays, then stops.
type scheduleBackOff struct {
	delays []time.Duration
	next   int
}

func (b *scheduleBackOff) NextBackOff() time.Duration {
	if b.next >= len(b.delays) {
		return backoff.Stop
	}
	d := b.delays[b.next]
	b.next++
	return d
}

func (b *scheduleBackOff) Reset() { b.next = 0 }

// statusCoder is implemented by transport errors that carry an HTTP status.
type statusCoder interface {
	StatusCode() int
}

// IsTransient reports whether err looks like a read racing an in-progress
// write: a structured 404 / object-not-found, or, failing that, a message
// mentioning "not found" or "404".
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, storage.ErrObjectNotFound) {
		return true
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode() == 404
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "404")
}
