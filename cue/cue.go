// Package cue plays short feedback tones for countdown, stop and failure.
package cue

import (
	"math"
	"sync"
	"sync/atomic"
)

const sampleRate = 44100

type tone struct {
	freq     float64
	duration float64 // seconds
	volume   float64
	decay    float64
	repeat   int     // extra copies after the first
	gap      float64 // seconds of silence between copies
}

var (
	// Countdown tick, and a brighter one on the final second.
	tickTone  = tone{freq: 1200, duration: 0.2, volume: 0.5, decay: 60}
	armTone   = tone{freq: 1600, duration: 0.2, volume: 0.5, decay: 40}
	stopTone  = tone{freq: 900, duration: 0.2, volume: 0.5, decay: 40}
	errorTone = tone{freq: 350, duration: 0.08, volume: 0.6, decay: 30, repeat: 1, gap: 0.05}
)

// samples renders t as mono 16-bit PCM.
func (t tone) samples(rate int) []int16 {
	n := int(float64(rate) * t.duration)
	one := make([]int16, n)
	for i := range one {
		x := float64(i) / float64(rate)
		env := math.Exp(-x * t.decay)
		one[i] = int16(math.Sin(2*math.Pi*t.freq*x) * 32767 * t.volume * env)
	}
	if t.repeat == 0 {
		return one
	}
	gap := make([]int16, int(float64(rate)*t.gap))
	out := make([]int16, 0, (len(one)+len(gap))*(t.repeat+1))
	out = append(out, one...)
	for range t.repeat {
		out = append(out, gap...)
		out = append(out, one...)
	}
	return out
}

// Player implements the controller's cue hooks. Calls never block.
type Player struct {
	disabled atomic.Bool

	once  sync.Once
	tick  []int16
	arm   []int16
	stop  []int16
	error []int16
}

func New() *Player { return &Player{} }

func (p *Player) Disable() { p.disabled.Store(true) }

func (p *Player) Enabled() bool { return !p.disabled.Load() }

func (p *Player) render() {
	p.once.Do(func() {
		p.tick = tickTone.samples(sampleRate)
		p.arm = armTone.samples(sampleRate)
		p.stop = stopTone.samples(sampleRate)
		p.error = errorTone.samples(sampleRate)
	})
}

func (p *Player) play(pick func() []int16) {
	if p.disabled.Load() {
		return
	}
	p.render()
	go playSamples(pick())
}

func (p *Player) Countdown(remaining int) {
	if remaining <= 1 {
		p.play(func() []int16 { return p.arm })
		return
	}
	p.play(func() []int16 { return p.tick })
}

func (p *Player) Stopped() { p.play(func() []int16 { return p.stop }) }
func (p *Player) Failed()  { p.play(func() []int16 { return p.error }) }
