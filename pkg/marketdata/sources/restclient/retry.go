package restclient

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"time"
)

const maxRetryAfter = 30 * time.Second

func shouldRetry(status int, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var decodeErr *decodeError
	if errors.As(err, &decodeErr) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		status = statusErr.StatusCode
		return status == http.StatusTooManyRequests ||
			status == http.StatusRequestTimeout ||
			(status >= 500 && status <= 599)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// refused/reset connections surface as plain transport errors
	return status == 0
}

func computeBackoff(min, max time.Duration, attempt int, retryAfter string) time.Duration {
	if retryAfter != "" {
		if sec, err := strconv.Atoi(retryAfter); err == nil && sec >= 0 {
			return clampRetryAfter(time.Duration(sec) * time.Second)
		}
		if t, err := http.ParseTime(retryAfter); err == nil {
			if d := time.Until(t); d > 0 {
				return clampRetryAfter(d)
			}
		}
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 16 {
		attempt = 16
	}
	back := min << attempt
	if back > max || back <= 0 {
		back = max
	}
	half := int64(back) / 2
	if half <= 0 {
		return back
	}
	return time.Duration(half + rand.Int63n(half))
}

func clampRetryAfter(d time.Duration) time.Duration {
	if d > maxRetryAfter {
		return maxRetryAfter
	}
	return d
}

func headerRetryAfter(h http.Header) string {
	if v := h.Get("Retry-After"); v != "" {
		return v
	}
	return ""
}
