// Package monitor implements the listen / respond cycle: wait for the
// microphone level to cross a threshold, play a masking sound under a fade
// envelope, then go back to listening until stopped.
//
// All state lives behind one mutex. Level samples and playback completions
// are delivered through a single-consumer channel so they are processed in
// order, and every transition out of Monitoring happens in that consumer
// before any blocking call. Long operations (countdown, device start, the
// fade) run in their own goroutines and re-check the cycle's Token after
// every wait.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"silencer/envelope"
	"silencer/log"
)

const (
	DefaultThreshold = -30.0
	DefaultCountdown = 3
	DefaultTick      = time.Second

	// SilenceFloor is reported before any sample arrives.
	SilenceFloor = -160.0

	eventBuffer = 64
)

type Options struct {
	Threshold float64 // dBFS; samples strictly above it trigger
	Countdown int     // ticks before capture when starting with delay
	Tick      time.Duration
	Quality   Quality
	Asset     string
	Fade      envelope.Fade

	// CaptureDuringPlayback keeps the microphone open while masking. Off by
	// default: the masking sound would otherwise be metered.
	CaptureDuringPlayback bool
}

func DefaultOptions() Options {
	fade, _ := envelope.NewFade(0.001, 10*time.Millisecond, time.Second)
	return Options{
		Threshold: DefaultThreshold,
		Countdown: DefaultCountdown,
		Tick:      DefaultTick,
		Quality:   QualityHigh,
		Fade:      fade,
	}
}

type Deps struct {
	Permission PermissionService
	Routing    SessionConfigurator // optional
	Capture    CaptureSession
	Playback   PlaybackSession
	Cues       Cues // optional
}

type eventKind int

const (
	evLevel eventKind = iota
	evPlaybackDone
)

type event struct {
	kind      eventKind
	seq       uint64
	level     float64
	capturing bool
}

type Controller struct {
	opts Options
	deps Deps

	events    chan event
	updates   chan Status
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	mu          sync.Mutex
	phase       Phase
	remaining   int
	token       *Token
	cycle       uint64
	cycleID     string
	capture     CaptureHandle
	captureSeq  uint64
	playback    PlaybackHandle
	playbackSeq uint64

	threshold        float64
	level            float64
	triggers         int
	lastTrigger      time.Time
	lastTriggerLevel float64
}

func New(opts Options, deps Deps) (*Controller, error) {
	if deps.Permission == nil || deps.Capture == nil || deps.Playback == nil {
		return nil, errors.New("monitor: permission, capture and playback are required")
	}
	if opts.Fade.Up == nil || opts.Fade.Down == nil {
		return nil, errors.New("monitor: fade envelope not configured")
	}
	if opts.Countdown < 0 {
		return nil, fmt.Errorf("monitor: negative countdown %d", opts.Countdown)
	}
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	if opts.Quality == "" {
		opts.Quality = QualityHigh
	}
	if deps.Routing == nil {
		deps.Routing = noRouting{}
	}
	if deps.Cues == nil {
		deps.Cues = noCues{}
	}

	c := &Controller{
		opts:      opts,
		deps:      deps,
		events:    make(chan event, eventBuffer),
		updates:   make(chan Status, 1),
		done:      make(chan struct{}),
		threshold: opts.Threshold,
		level:     SilenceFloor,
	}
	c.wg.Add(1)
	go c.loop()
	return c, nil
}

// Close stops any active cycle and waits for background work to finish.
func (c *Controller) Close() {
	c.Stop()
	c.closeOnce.Do(func() { close(c.done) })
	c.wg.Wait()
}

// Updates delivers the latest Status after every change. Only the newest
// snapshot is kept, so a slow reader skips intermediate states.
func (c *Controller) Updates() <-chan Status { return c.updates }

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Controller) SetThreshold(db float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if db == c.threshold {
		return
	}
	log.Infof("threshold: %.1f -> %.1f dBFS", c.threshold, db)
	c.threshold = db
	c.publishLocked()
}

func (c *Controller) Toggle(ctx context.Context, withDelay bool) error {
	c.mu.Lock()
	idle := c.phase == Idle
	c.mu.Unlock()
	if idle {
		return c.Start(ctx, withDelay)
	}
	c.Stop()
	return nil
}

// Start begins a monitoring cycle. It returns once the microphone is live,
// the cycle was stopped, or starting failed. Calling Start while a cycle is
// active does nothing.
func (c *Controller) Start(ctx context.Context, withDelay bool) error {
	c.mu.Lock()
	if c.phase != Idle {
		c.mu.Unlock()
		return nil
	}
	tok := NewToken()
	c.token = tok
	c.cycle++
	cycle := c.cycle
	c.cycleID = ulid.Make().String()
	c.remaining = 0
	if withDelay {
		c.remaining = c.opts.Countdown
	}
	c.setPhaseLocked(PendingStart)
	c.mu.Unlock()

	if withDelay && c.opts.Countdown > 0 {
		err := tok.Countdown(ctx, c.opts.Countdown, c.opts.Tick, func(remaining int) {
			c.setRemaining(cycle, remaining)
		})
		if errors.Is(err, ErrCancelled) {
			return nil
		}
		if err != nil {
			c.shutdown(cycle, err)
			return err
		}
		c.setRemaining(cycle, 0)
	}

	granted, err := c.deps.Permission.RequestAudioPermission(ctx)
	if tok.Cancelled() {
		return nil
	}
	if err != nil {
		log.Errorf("permission request failed: %v", err)
		c.shutdown(cycle, err)
		return fmt.Errorf("%w: %v", ErrHardwareStart, err)
	}
	if !granted {
		log.Warn("permission_denied")
		c.shutdown(cycle, ErrPermissionDenied)
		return ErrPermissionDenied
	}

	c.configure(true)
	return c.startCapture(ctx, cycle, tok)
}

// Stop ends the current cycle from any phase. It is safe to call at any
// time and from any goroutine.
func (c *Controller) Stop() {
	c.shutdown(0, nil)
}

// shutdown tears everything down to Idle. A non-zero cycle restricts it to
// that cycle so a late failure cannot end a newer one.
func (c *Controller) shutdown(cycle uint64, cause error) {
	c.mu.Lock()
	if cycle != 0 && cycle != c.cycle {
		c.mu.Unlock()
		return
	}
	if c.token != nil {
		c.token.Cancel()
	}
	capture, playback := c.capture, c.playback
	c.capture, c.playback = nil, nil
	c.captureSeq++
	c.playbackSeq++
	wasActive := c.phase != Idle
	c.remaining = 0
	c.setPhaseLocked(Idle)
	c.mu.Unlock()

	releaseCapture(capture)
	releasePlayback(playback)

	if !wasActive {
		return
	}
	c.configure(false)
	if cause != nil {
		c.deps.Cues.Failed()
	} else {
		c.deps.Cues.Stopped()
	}
}

// startCapture opens the microphone for cycle and moves to Monitoring. A
// handle that arrives after the cycle ended is released straight away.
func (c *Controller) startCapture(ctx context.Context, cycle uint64, tok *Token) error {
	h, err := c.deps.Capture.Start(ctx, c.opts.Quality)
	if err != nil {
		if tok.Cancelled() {
			return nil
		}
		log.Errorf("capture start failed: %v", err)
		c.shutdown(cycle, err)
		return fmt.Errorf("%w: capture: %v", ErrHardwareStart, err)
	}

	c.mu.Lock()
	if tok.Cancelled() || c.cycle != cycle || c.phase == Idle {
		c.mu.Unlock()
		releaseCapture(h)
		return nil
	}
	c.captureSeq++
	seq := c.captureSeq
	c.capture = h
	c.remaining = 0
	c.setPhaseLocked(Monitoring)
	c.mu.Unlock()

	h.Subscribe(func(level float64, capturing bool) {
		c.post(event{kind: evLevel, seq: seq, level: level, capturing: capturing})
	})
	return nil
}

func (c *Controller) setRemaining(cycle uint64, n int) {
	c.mu.Lock()
	if c.cycle != cycle || c.phase != PendingStart {
		c.mu.Unlock()
		return
	}
	c.remaining = n
	id := c.cycleID
	c.publishLocked()
	c.mu.Unlock()

	if n > 0 {
		log.Countdown(id, n)
		c.deps.Cues.Countdown(n)
	}
}

func (c *Controller) configure(forCapture bool) {
	if err := c.deps.Routing.ConfigureSession(forCapture); err != nil {
		log.Warnf("audio session config (capture=%v) failed: %v", forCapture, err)
	}
}

func (c *Controller) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Controller) loop() {
	defer c.wg.Done()
	for {
		select {
		case ev := <-c.events:
			switch ev.kind {
			case evLevel:
				c.onLevelSample(ev)
			case evPlaybackDone:
				c.onPlaybackComplete(ev)
			}
		case <-c.done:
			return
		}
	}
}

// onLevelSample is the only place Monitoring turns into Responding. The phase
// flips under the lock before anything else happens, so later samples of
// the same loud event find the gate closed.
func (c *Controller) onLevelSample(ev event) {
	c.mu.Lock()
	if ev.seq != c.captureSeq {
		c.mu.Unlock()
		return
	}
	c.level = ev.level
	if c.phase != Monitoring || !ev.capturing || !(ev.level > c.threshold) {
		c.publishLocked()
		c.mu.Unlock()
		return
	}

	c.triggers++
	c.lastTrigger = time.Now()
	c.lastTriggerLevel = ev.level
	c.setPhaseLocked(Responding)

	cycle, tok, id, threshold := c.cycle, c.token, c.cycleID, c.threshold
	var handoff CaptureHandle
	if !c.opts.CaptureDuringPlayback {
		handoff = c.capture
		c.capture = nil
		c.captureSeq++
	}
	c.mu.Unlock()

	log.Trigger(id, ev.level, threshold)
	c.wg.Add(1)
	go c.respond(cycle, tok, id, handoff)
}

// respond plays the masking asset through the fade envelope. Every volume
// write goes through drive, which refuses once the handle has been torn
// down, so a Stop during the fade leaves no write behind it.
func (c *Controller) respond(cycle uint64, tok *Token, id string, handoff CaptureHandle) {
	defer c.wg.Done()

	releaseCapture(handoff)
	if handoff != nil {
		c.configure(false)
	}

	ctx := tok.Context()
	h, err := c.deps.Playback.Load(ctx, c.opts.Asset)
	if tok.Cancelled() {
		releasePlayback(h)
		return
	}
	if err != nil {
		log.Errorf("load masking asset %q: %v", c.opts.Asset, err)
		c.shutdown(cycle, err)
		return
	}

	c.mu.Lock()
	if tok.Cancelled() || c.cycle != cycle || c.phase != Responding {
		c.mu.Unlock()
		releasePlayback(h)
		return
	}
	c.playbackSeq++
	seq := c.playbackSeq
	c.playback = h
	c.mu.Unlock()

	h.OnComplete(func() {
		c.post(event{kind: evPlaybackDone, seq: seq})
	})

	start := time.Now()
	ok, err := c.drive(seq, func() error {
		if err := h.SetVolume(0); err != nil {
			return err
		}
		return h.Play()
	})
	if !ok {
		return
	}
	if err != nil {
		log.Errorf("start masking playback: %v", err)
		c.shutdown(cycle, err)
		return
	}

	if !c.fade(ctx, cycle, tok, seq, h, c.opts.Fade.Up) {
		log.Masking(id, time.Since(start), false)
		return
	}
	if live, _ := tok.Sleep(ctx, c.opts.Fade.Rest); !live {
		log.Masking(id, time.Since(start), false)
		return
	}
	if !c.fade(ctx, cycle, tok, seq, h, c.opts.Fade.Down) {
		log.Masking(id, time.Since(start), false)
		return
	}

	log.Masking(id, time.Since(start), true)
	c.post(event{kind: evPlaybackDone, seq: seq})
}

// fade walks env, reporting false when the cycle ended or the handle was
// torn down part way.
func (c *Controller) fade(ctx context.Context, cycle uint64, tok *Token, seq uint64, h PlaybackHandle, env *envelope.Envelope) bool {
	for step := range env.All() {
		if tok.Cancelled() {
			return false
		}
		ok, err := c.drive(seq, func() error { return h.SetVolume(step.Volume) })
		if !ok {
			return false
		}
		if err != nil {
			log.Errorf("set volume %.3f: %v", step.Volume, err)
			c.shutdown(cycle, err)
			return false
		}
		if live, _ := tok.Sleep(ctx, step.Hold); !live {
			return false
		}
	}
	return true
}

// drive runs f against the playback handle identified by seq while holding
// the controller lock. It reports false without calling f when that handle
// is no longer current.
func (c *Controller) drive(seq uint64, f func() error) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.playbackSeq || c.phase != Responding || c.playback == nil || c.token.Cancelled() {
		return false, nil
	}
	return true, f()
}

// onPlaybackComplete may be reached from both the fade finishing and the
// handle's own completion callback; the sequence check lets only the first
// one through.
func (c *Controller) onPlaybackComplete(ev event) {
	c.mu.Lock()
	if ev.seq != c.playbackSeq || c.phase != Responding || c.playback == nil {
		c.mu.Unlock()
		return
	}
	h := c.playback
	c.playback = nil
	c.playbackSeq++
	cycle, tok, capture := c.cycle, c.token, c.capture
	c.mu.Unlock()

	releasePlayback(h)
	if tok.Cancelled() {
		return
	}
	c.wg.Add(1)
	go c.resume(cycle, tok, capture)
}

// resume returns to Monitoring after masking, reopening the microphone when
// it was closed for playback or has stopped underneath us.
func (c *Controller) resume(cycle uint64, tok *Token, capture CaptureHandle) {
	defer c.wg.Done()

	if capture != nil && !capture.Finished() {
		c.mu.Lock()
		if !tok.Cancelled() && c.cycle == cycle && c.phase == Responding {
			c.setPhaseLocked(Monitoring)
		}
		c.mu.Unlock()
		return
	}
	if capture != nil {
		c.mu.Lock()
		if c.capture == capture {
			c.capture = nil
			c.captureSeq++
		}
		c.mu.Unlock()
		releaseCapture(capture)
	}

	c.configure(true)
	if err := c.startCapture(tok.Context(), cycle, tok); err != nil {
		log.Errorf("resume monitoring: %v", err)
	}
}

func (c *Controller) setPhaseLocked(p Phase) {
	if p != c.phase {
		log.PhaseChange(c.cycleID, c.phase.String(), p.String())
	}
	c.phase = p
	c.publishLocked()
}

func (c *Controller) statusLocked() Status {
	return Status{
		Phase:            c.phase,
		SecondsRemaining: c.remaining,
		Level:            c.level,
		Threshold:        c.threshold,
		Triggers:         c.triggers,
		LastTrigger:      c.lastTrigger,
		LastTriggerLevel: c.lastTriggerLevel,
		Cycle:            c.cycleID,
	}
}

// publishLocked replaces whatever snapshot is pending with the current one.
func (c *Controller) publishLocked() {
	st := c.statusLocked()
	select {
	case <-c.updates:
	default:
	}
	select {
	case c.updates <- st:
	default:
	}
}

func releaseCapture(h CaptureHandle) {
	if h == nil {
		return
	}
	if err := h.Stop(); err != nil {
		log.Warnf("capture stop: %v", err)
	}
}

func releasePlayback(h PlaybackHandle) {
	if h == nil {
		return
	}
	if err := h.Stop(); err != nil {
		log.Warnf("playback stop: %v", err)
	}
	h.Unload()
}
