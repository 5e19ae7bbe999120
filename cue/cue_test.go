package cue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToneLength(t *testing.T) {
	s := tickTone.samples(1000)
	assert.Len(t, s, 200)
	assert.Equal(t, int16(0), s[0])
}

func TestToneDecays(t *testing.T) {
	s := stopTone.samples(sampleRate)
	peak := func(part []int16) int16 {
		var p int16
		for _, v := range part {
			p = max(p, v, -v)
		}
		return p
	}
	q := len(s) / 4
	assert.Greater(t, peak(s[:q]), peak(s[3*q:]))
	assert.LessOrEqual(t, peak(s), int16(32767*stopTone.volume))
}

func TestRepeatedToneHasGap(t *testing.T) {
	rate := 1000
	s := errorTone.samples(rate)
	one := int(float64(rate) * errorTone.duration)
	gap := int(float64(rate) * errorTone.gap)
	assert.Len(t, s, 2*one+gap)
	for _, v := range s[one : one+gap] {
		assert.Zero(t, v)
	}
}

func TestDisabledPlayerIsSilent(t *testing.T) {
	p := New()
	assert.True(t, p.Enabled())
	p.Disable()
	assert.False(t, p.Enabled())

	p.Countdown(3)
	p.Countdown(1)
	p.Stopped()
	p.Failed()
	assert.Nil(t, p.tick, "disabled player should not render tones")
}
