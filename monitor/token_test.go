package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCancelSticks(t *testing.T) {
	tok := NewToken()
	assert.False(t, tok.Cancelled())

	tok.Cancel()
	tok.Cancel()
	assert.True(t, tok.Cancelled())
	assert.Error(t, tok.Context().Err())

	select {
	case <-tok.Done():
	default:
		t.Fatal("Done not closed after Cancel")
	}
}

func TestSleepWakesOnCancel(t *testing.T) {
	tok := NewToken()
	go func() {
		time.Sleep(10 * time.Millisecond)
		tok.Cancel()
	}()

	start := time.Now()
	live, err := tok.Sleep(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.False(t, live)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSleepContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	live, err := NewToken().Sleep(ctx, time.Minute)
	assert.False(t, live)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCountdownCompletes(t *testing.T) {
	var ticks []int
	err := NewToken().Countdown(context.Background(), 3, time.Millisecond, func(n int) {
		ticks = append(ticks, n)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2, 1}, ticks)
}

func TestCountdownZero(t *testing.T) {
	called := false
	err := NewToken().Countdown(context.Background(), 0, time.Second, func(int) { called = true })
	require.NoError(t, err)
	assert.False(t, called)
}

func TestCountdownCancelledMidway(t *testing.T) {
	tok := NewToken()
	var ticks []int
	err := tok.Countdown(context.Background(), 5, time.Millisecond, func(n int) {
		ticks = append(ticks, n)
		if n == 4 {
			tok.Cancel()
		}
	})
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, []int{5, 4}, ticks)
}

func TestCountdownAlreadyCancelled(t *testing.T) {
	tok := NewToken()
	tok.Cancel()
	called := false
	err := tok.Countdown(context.Background(), 3, time.Millisecond, func(int) { called = true })
	assert.ErrorIs(t, err, ErrCancelled)
	assert.False(t, called)
}
