package generate

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"docrag/internal/domain"
)

// Limited throttles calls to an underlying backend.
type Limited struct {
	next    Backend
	limiter *rate.Limiter
}

// NewLimited allows perSec completions per second with the given burst.
func NewLimited(next Backend, perSec float64, burst int) *Limited {
	if burst < 1 {
		burst = 1
	}
	return &Limited{next: next, limiter: rate.NewLimiter(rate.Limit(perSec), burst)}
}

func (l *Limited) Provider() Provider { return l.next.Provider() }

// Complete waits for a token, then delegates. A cancelled wait is reported as
// a generation failure.
func (l *Limited) Complete(ctx context.Context, prompt string) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("generate: rate limit: %w: %w", domain.ErrGenerationFailed, err)
	}
	return l.next.Complete(ctx, prompt)
}
