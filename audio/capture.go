package audio

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"silencer/log"
	"silencer/monitor"
)

const DefaultMeterInterval = 100 * time.Millisecond

// SampleRate maps a quality preset to a capture rate.
func SampleRate(q monitor.Quality) uint32 {
	if q == monitor.QualityLow {
		return 16000
	}
	return 44100
}

// MeteredCapture opens the selected device on demand and reports its level.
type MeteredCapture struct {
	ctx      Context
	device   *DeviceInfo
	interval time.Duration
}

func NewMeteredCapture(ctx Context, device *DeviceInfo, interval time.Duration) *MeteredCapture {
	if interval <= 0 {
		interval = DefaultMeterInterval
	}
	return &MeteredCapture{ctx: ctx, device: device, interval: interval}
}

func (c *MeteredCapture) Start(ctx context.Context, q monitor.Quality) (monitor.CaptureHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rate := SampleRate(q)
	dev, err := c.ctx.NewCapture(c.device, CaptureConfig{SampleRate: rate, Channels: 1})
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}

	h := &captureHandle{dev: dev}
	h.meter = NewMeter(rate, c.interval, h.deliver)
	dev.SetCallback(func(data []byte, _ uint32) {
		h.meter.Process(data)
	})
	if err := dev.Start(); err != nil {
		dev.ClearCallback()
		dev.Close()
		return nil, fmt.Errorf("start capture on %s: %w", dev.DeviceName(), err)
	}
	log.Infof("capture started: %s @ %d Hz (%s)", dev.DeviceName(), rate, q)
	return h, nil
}

type captureHandle struct {
	dev   CaptureDevice
	meter *Meter

	mu       sync.Mutex
	fn       monitor.LevelFunc
	finished atomic.Bool
	once     sync.Once
}

func (h *captureHandle) deliver(db float64) {
	h.mu.Lock()
	fn := h.fn
	h.mu.Unlock()
	if fn != nil {
		fn(db, !h.finished.Load())
	}
}

func (h *captureHandle) Subscribe(fn monitor.LevelFunc) {
	h.mu.Lock()
	h.fn = fn
	h.mu.Unlock()
}

// Stop detaches the subscriber and releases the device. Safe to repeat.
func (h *captureHandle) Stop() error {
	h.once.Do(func() {
		h.finished.Store(true)
		h.Subscribe(nil)
		h.dev.ClearCallback()
		h.dev.Stop()
		h.dev.Close()
	})
	return nil
}

func (h *captureHandle) Finished() bool { return h.finished.Load() }
