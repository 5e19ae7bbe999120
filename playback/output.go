package playback

import (
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

// Output is where decoded audio ends up. Lock and Unlock guard changes to
// streamers that are already playing.
type Output interface {
	Init(sr beep.SampleRate, bufferSize int) error
	Play(s beep.Streamer)
	Lock()
	Unlock()
	Close()
}

// Speaker plays through the system default output device.
type Speaker struct{}

func (Speaker) Init(sr beep.SampleRate, bufferSize int) error { return speaker.Init(sr, bufferSize) }
func (Speaker) Play(s beep.Streamer)                        { speaker.Play(s) }
func (Speaker) Lock()                                       { speaker.Lock() }
func (Speaker) Unlock()                                     { speaker.Unlock() }
func (Speaker) Close()                                      { speaker.Close() }

// Discard consumes streamers at the real-time rate and throws the samples
// away. Completion callbacks fire exactly as they would on a speaker.
type Discard struct {
	mu    sync.Mutex
	mixer beep.Mixer
	stop  chan struct{}
	done  chan struct{}
}

const discardChunk = 10 * time.Millisecond

func (d *Discard) Init(sr beep.SampleRate, _ int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return nil
	}
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	n := sr.N(discardChunk)
	go d.run(n, d.stop, d.done)
	return nil
}

func (d *Discard) run(n int, stop, done chan struct{}) {
	defer close(done)
	buf := make([][2]float64, n)
	ticker := time.NewTicker(discardChunk)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		d.mu.Lock()
		d.mixer.Stream(buf)
		d.mu.Unlock()
	}
}

func (d *Discard) Play(s beep.Streamer) {
	d.mu.Lock()
	d.mixer.Add(s)
	d.mu.Unlock()
}

func (d *Discard) Lock()   { d.mu.Lock() }
func (d *Discard) Unlock() { d.mu.Unlock() }

func (d *Discard) Close() {
	d.mu.Lock()
	stop, done := d.stop, d.done
	d.stop, d.done = nil, nil
	d.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
	d.mu.Lock()
	d.mixer.Clear()
	d.mu.Unlock()
}
