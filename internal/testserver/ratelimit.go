package testserver

import (
	"time"

	"golang.org/x/time/rate"
)

// frameLimiter caps inbound frames per socket. A nil limiter allows all.
type frameLimiter struct {
	lim *rate.Limiter
}

// newFrameLimiter allows perMinute frames in a burst, refilling evenly over
// the minute. perMinute <= 0 disables limiting.
func newFrameLimiter(perMinute int) *frameLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &frameLimiter{lim: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)}
}

func (f *frameLimiter) allow() bool {
	if f == nil {
		return true
	}
	return f.lim.Allow()
}
