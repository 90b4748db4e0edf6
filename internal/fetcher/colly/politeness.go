package collyfetcher

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"
)

// pauseController abstracts how the fetcher waits before a request.
type pauseController interface {
	Pause(ctx context.Context, delay time.Duration)
}

type timerPauseController struct{}

func (p *timerPauseController) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// jitterSource picks a delay in [lo, hi].
type jitterSource interface {
	Between(lo, hi time.Duration) time.Duration
}

type cryptoJitter struct{}

func (cryptoJitter) Between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	span := int64(hi - lo)
	n, err := rand.Int(rand.Reader, big.NewInt(span+1))
	if err != nil {
		return lo + time.Duration(span/2)
	}
	return lo + time.Duration(n.Int64())
}
