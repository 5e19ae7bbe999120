package monitor

import (
	"context"
	"sync/atomic"
	"time"
)

// Token aborts one monitoring cycle. Cancel sticks: once cancelled a token
// stays cancelled, and the next Start allocates a fresh one.
type Token struct {
	cancelled atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewToken() *Token {
	ctx, cancel := context.WithCancel(context.Background())
	return &Token{ctx: ctx, cancel: cancel}
}

func (t *Token) Cancel() {
	t.cancelled.Store(true)
	t.cancel()
}

func (t *Token) Cancelled() bool { return t.cancelled.Load() }

func (t *Token) Done() <-chan struct{} { return t.ctx.Done() }

// Context is cancelled together with the token.
func (t *Token) Context() context.Context { return t.ctx }

// Sleep waits for d and reports whether the token is still live afterwards.
func (t *Token) Sleep(ctx context.Context, d time.Duration) (bool, error) {
	if d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-timer.C:
		case <-t.Done():
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
			return false, ctx.Err()
		}
	}
	return !t.Cancelled(), nil
}

// Countdown calls onTick with seconds, seconds-1, ... 1, waiting tick after
// each call. The token is checked before every tick and after every wait; a
// cancelled token yields ErrCancelled.
func (t *Token) Countdown(ctx context.Context, seconds int, tick time.Duration, onTick func(remaining int)) error {
	for remaining := seconds; remaining > 0; remaining-- {
		if t.Cancelled() {
			return ErrCancelled
		}
		if onTick != nil {
			onTick(remaining)
		}
		live, err := t.Sleep(ctx, tick)
		if err != nil {
			return err
		}
		if !live {
			return ErrCancelled
		}
	}
	if t.Cancelled() {
		return ErrCancelled
	}
	return nil
}
