package ratelimit

import "context"

// RateLimiter bounds outbound call rates per external platform.
type RateLimiter interface {
	Allow(ctx context.Context, platform string) (bool, error)
	Wait(ctx context.Context, platform string) error
}
