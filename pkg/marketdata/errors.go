package marketdata

import (
	"context"
	"errors"
)

var (
	// ErrInvalidRequest indicates a malformed chart request.
	ErrInvalidRequest = errors.New("marketdata: invalid request")
	// ErrUnsupportedCoin is returned by sources that cannot map the coin id.
	ErrUnsupportedCoin = errors.New("marketdata: unsupported coin")
	// ErrAllSourcesFailed is returned when every source failed and mock data is disabled.
	ErrAllSourcesFailed = errors.New("marketdata: all sources failed")
	// ErrQueueClosed is returned for jobs submitted after Close.
	ErrQueueClosed = errors.New("marketdata: queue closed")
	// ErrEmptyChart is returned by sources that answered without data.
	ErrEmptyChart = errors.New("marketdata: empty chart")
)

// IsAborted reports whether err stems from a cancelled or timed-out caller.
// Surfaces suppress these instead of showing them to the user.
func IsAborted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
