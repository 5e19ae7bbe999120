package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// gate parks a call until released and reports when one has arrived.
type gate struct {
	entered chan struct{}
	open    chan struct{}
	once    sync.Once
}

func newGate(t *testing.T) *gate {
	g := &gate{entered: make(chan struct{}, 1), open: make(chan struct{})}
	t.Cleanup(g.release)
	return g
}

func (g *gate) wait() {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.open
}

func (g *gate) release() { g.once.Do(func() { close(g.open) }) }

func (g *gate) reached(t *testing.T) {
	t.Helper()
	select {
	case <-g.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("call never reached the gate")
	}
}

type fakePermission struct {
	mu      sync.Mutex
	granted bool
	err     error
	calls   int
	gate    *gate
}

// hold makes later requests wait on the returned gate.
func (p *fakePermission) hold(t *testing.T) *gate {
	g := newGate(t)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gate = g
	return g
}

func (p *fakePermission) RequestAudioPermission(context.Context) (bool, error) {
	p.mu.Lock()
	g := p.gate
	p.mu.Unlock()
	if g != nil {
		g.wait()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.granted, p.err
}

func (p *fakePermission) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fakeRouting struct {
	mu    sync.Mutex
	modes []bool
}

func (r *fakeRouting) ConfigureSession(forCapture bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modes = append(r.modes, forCapture)
	return nil
}

type fakeCaptureHandle struct {
	mu      sync.Mutex
	fn      LevelFunc
	stopped bool
}

func (h *fakeCaptureHandle) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
	return nil
}

func (h *fakeCaptureHandle) Subscribe(fn LevelFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fn = fn
}

func (h *fakeCaptureHandle) Finished() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

func (h *fakeCaptureHandle) subscribed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fn != nil
}

func (h *fakeCaptureHandle) emit(level float64) {
	h.mu.Lock()
	fn, capturing := h.fn, !h.stopped
	h.mu.Unlock()
	if fn != nil {
		fn(level, capturing)
	}
}

type fakeCapture struct {
	mu      sync.Mutex
	err     error
	handles []*fakeCaptureHandle
	gate    *gate
}

// hold makes later Start calls wait on the returned gate.
func (c *fakeCapture) hold(t *testing.T) *gate {
	g := newGate(t)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gate = g
	return g
}

func (c *fakeCapture) Start(context.Context, Quality) (CaptureHandle, error) {
	c.mu.Lock()
	g := c.gate
	c.mu.Unlock()
	if g != nil {
		g.wait()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	h := &fakeCaptureHandle{}
	c.handles = append(c.handles, h)
	return h, nil
}

func (c *fakeCapture) handle(i int) *fakeCaptureHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i >= len(c.handles) {
		return nil
	}
	return c.handles[i]
}

func (c *fakeCapture) starts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles)
}

func (c *fakeCapture) active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, h := range c.handles {
		if !h.Finished() {
			n++
		}
	}
	return n
}

// latest waits for the newest handle to have a subscriber.
func (c *fakeCapture) latest(t *testing.T) *fakeCaptureHandle {
	t.Helper()
	var h *fakeCaptureHandle
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if len(c.handles) == 0 {
			return false
		}
		h = c.handles[len(c.handles)-1]
		return h.subscribed()
	}, time.Second, time.Millisecond)
	return h
}

type fakePlaybackHandle struct {
	mu           sync.Mutex
	volumes      []float64
	playing      bool
	stopped      bool
	unloaded     bool
	lateWrites   int
	onComplete   func()
	failSetAfter int // SetVolume fails after this many writes when > 0
}

func (h *fakePlaybackHandle) Play() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.playing = true
	return nil
}

func (h *fakePlaybackHandle) SetVolume(v float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped || h.unloaded {
		h.lateWrites++
	}
	if h.failSetAfter > 0 && len(h.volumes) >= h.failSetAfter {
		return errors.New("output gone")
	}
	h.volumes = append(h.volumes, v)
	return nil
}

func (h *fakePlaybackHandle) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.playing = false
	h.stopped = true
	return nil
}

func (h *fakePlaybackHandle) Unload() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unloaded = true
}

func (h *fakePlaybackHandle) OnComplete(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onComplete = fn
}

func (h *fakePlaybackHandle) finish() {
	h.mu.Lock()
	fn := h.onComplete
	h.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (h *fakePlaybackHandle) snapshot() (vols []float64, late int, stopped, unloaded bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]float64(nil), h.volumes...), h.lateWrites, h.stopped, h.unloaded
}

type fakePlayback struct {
	mu           sync.Mutex
	err          error
	failSetAfter int
	handles      []*fakePlaybackHandle
	assets       []string
}

func (p *fakePlayback) Load(_ context.Context, asset string) (PlaybackHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.assets = append(p.assets, asset)
	if p.err != nil {
		return nil, p.err
	}
	h := &fakePlaybackHandle{failSetAfter: p.failSetAfter}
	p.handles = append(p.handles, h)
	return h, nil
}

func (p *fakePlayback) loads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.assets)
}

func (p *fakePlayback) handle(i int) *fakePlaybackHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i >= len(p.handles) {
		return nil
	}
	return p.handles[i]
}

func (p *fakePlayback) unreleased() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, h := range p.handles {
		if _, _, stopped, unloaded := h.snapshot(); !stopped || !unloaded {
			n++
		}
	}
	return n
}

type fakeCues struct {
	mu        sync.Mutex
	countdown []int
	stopped   int
	failed    int
}

func (c *fakeCues) Countdown(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.countdown = append(c.countdown, n)
}

func (c *fakeCues) Stopped() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped++
}

func (c *fakeCues) Failed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed++
}

func (c *fakeCues) counts() (countdown []int, stopped, failed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.countdown...), c.stopped, c.failed
}
