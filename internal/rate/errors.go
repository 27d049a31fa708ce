package rate

import "errors"

var (
	// ErrRateLimited means the session spent its refresh budget for the
	// current window.
	ErrRateLimited = errors.New("rate: refresh budget exhausted")
	// ErrUnavailable wraps Redis failures while counting.
	ErrUnavailable = errors.New("rate: redis unavailable")
)
