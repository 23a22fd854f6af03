package providers

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// ThrottledProvider delays calls so a backend sees at most rpm requests per
// minute. The wait is a suspension point of the run, like the call itself.
type ThrottledProvider struct {
	inner   Provider
	limiter *rate.Limiter
}

// NewThrottled wraps p with a token bucket. rpm <= 0 returns p unchanged.
func NewThrottled(p Provider, rpm, burst int) Provider {
	if rpm <= 0 {
		return p
	}
	if burst <= 0 {
		burst = 1
	}
	return &ThrottledProvider{
		inner:   p,
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst),
	}
}

func (t *ThrottledProvider) Name() string { return t.inner.Name() }

func (t *ThrottledProvider) GetResponse(ctx context.Context, messages []Message, systemPrompt string) (string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return "", &Error{Provider: t.inner.Name(), Kind: KindTimeout, Message: fmt.Sprintf("throttle wait: %v", err), Cause: err}
	}
	return t.inner.GetResponse(ctx, messages, systemPrompt)
}
