package playback

import (
	"errors"
	"math"
	"sync"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
)

var ErrStopped = errors.New("playback stopped")

// handle owns one streamer chain: source -> volume -> completion callback,
// wrapped in a Ctrl so Stop can cut it off mid-buffer.
type handle struct {
	out  Output
	ctrl *beep.Ctrl
	vol  *effects.Volume

	mu         sync.Mutex
	started    bool
	stopped    bool
	completed  bool
	volume     float64
	onComplete func()
}

func newHandle(out Output, src beep.Streamer) *handle {
	h := &handle{out: out}
	h.vol = &effects.Volume{Streamer: src, Base: 2, Silent: true}
	// Callback runs on the output's goroutine with its lock held; anything
	// that may call back into the handle has to leave that goroutine.
	h.ctrl = &beep.Ctrl{Streamer: beep.Seq(h.vol, beep.Callback(func() { go h.complete() }))}
	return h
}

func (h *handle) Play() error {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return ErrStopped
	}
	if h.started {
		h.mu.Unlock()
		return nil
	}
	h.started = true
	h.mu.Unlock()

	h.out.Play(h.ctrl)
	return nil
}

// SetVolume takes a linear gain in [0,1].
func (h *handle) SetVolume(v float64) error {
	v = min(max(v, 0), 1)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return ErrStopped
	}
	h.volume = v

	h.out.Lock()
	if v == 0 {
		h.vol.Silent = true
	} else {
		h.vol.Silent = false
		h.vol.Volume = math.Log2(v)
	}
	h.out.Unlock()
	return nil
}

func (h *handle) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return nil
	}
	h.stopped = true

	h.out.Lock()
	h.ctrl.Streamer = nil
	h.out.Unlock()
	return nil
}

func (h *handle) Unload() {
	_ = h.Stop()
	h.mu.Lock()
	h.onComplete = nil
	h.mu.Unlock()
}

func (h *handle) OnComplete(fn func()) {
	h.mu.Lock()
	h.onComplete = fn
	done := h.completed
	h.mu.Unlock()
	if done && fn != nil {
		go fn()
	}
}

func (h *handle) complete() {
	h.mu.Lock()
	if h.completed || h.stopped {
		h.mu.Unlock()
		return
	}
	h.completed = true
	fn := h.onComplete
	h.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (h *handle) Volume() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.volume
}
