package audio

import (
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

const (
	fakeFrameSize = 441 // 10ms at 44.1kHz
	fakeToneHz    = 440
)

// FakeContext synthesises a tone whose level can be changed at any time. The
// samples go through the real meter, so a level set here comes back out of
// the capture handle as the same dBFS reading.
type FakeContext struct {
	level     atomic.Uint64 // math.Float64bits of dBFS
	mu        sync.Mutex
	denied    bool
	failStart error
	captures  int
}

func NewFakeContext() *FakeContext {
	f := &FakeContext{}
	f.SetLevel(FloorDB)
	return f
}

func (f *FakeContext) SetLevel(db float64) { f.level.Store(math.Float64bits(db)) }
func (f *FakeContext) Level() float64      { return math.Float64frombits(f.level.Load()) }

// Deny hides the fake device so permission checks fail.
func (f *FakeContext) Deny(denied bool) {
	f.mu.Lock()
	f.denied = denied
	f.mu.Unlock()
}

// FailStart makes the next captures fail to start with err. nil clears it.
func (f *FakeContext) FailStart(err error) {
	f.mu.Lock()
	f.failStart = err
	f.mu.Unlock()
}

// Captures reports how many capture devices have been opened.
func (f *FakeContext) Captures() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.captures
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.denied {
		return nil, nil
	}
	return []DeviceInfo{{ID: "fake", Name: "fake"}}, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captures++
	rate := config.SampleRate
	if rate == 0 {
		rate = 44100
	}
	return &FakeCapture{ctx: f, rate: rate, failStart: f.failStart}, nil
}

type FakeCapture struct {
	ctx       *FakeContext
	rate      uint32
	failStart error

	mu       sync.Mutex
	cb       DataCallback
	stopCh   chan struct{}
	feedDone chan struct{}
	phase    float64
}

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) DeviceName() string { return "fake" }

func (f *FakeCapture) chunk() []byte {
	amp := Amplitude(f.ctx.Level()) * 32767
	buf := make([]byte, fakeFrameSize*BytesPerSample)
	step := 2 * math.Pi * fakeToneHz / float64(f.rate)
	for i := range fakeFrameSize {
		s := int16(math.Round(amp * math.Sin(f.phase)))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
		f.phase += step
	}
	f.phase = math.Mod(f.phase, 2*math.Pi)
	return buf
}

// Start feeds chunks at the real-time rate until Stop.
func (f *FakeCapture) Start() error {
	if f.failStart != nil {
		return f.failStart
	}
	f.mu.Lock()
	if f.stopCh != nil {
		f.mu.Unlock()
		return nil
	}
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})
	stop, done := f.stopCh, f.feedDone
	f.mu.Unlock()

	interval := time.Duration(fakeFrameSize) * time.Second / time.Duration(f.rate)
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
			f.mu.Lock()
			cb := f.cb
			f.mu.Unlock()
			if cb != nil {
				cb(f.chunk(), fakeFrameSize)
			}
		}
	}()
	return nil
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	stop, done := f.stopCh, f.feedDone
	f.stopCh, f.feedDone = nil, nil
	f.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (f *FakeCapture) Close() { f.Stop() }
