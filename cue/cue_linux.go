//go:build linux

package cue

import (
	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"

	"silencer/log"
)

func playSamples(samples []int16) {
	if len(samples) == 0 {
		return
	}
	c, err := pulse.NewClient(pulse.ClientApplicationName("silencer"))
	if err != nil {
		log.Warnf("cue: pulse client: %v", err)
		return
	}
	defer c.Close()

	// Pad with 200ms so the server buffer fills before draining.
	pos := 0
	tail := sampleRate / 5
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if pos >= len(samples)+tail {
			return 0, pulse.EndOfData
		}
		n := 0
		if pos < len(samples) {
			n = copy(buf, samples[pos:])
		} else {
			n = min(len(buf), len(samples)+tail-pos)
			clear(buf[:n])
		}
		pos += n
		return n, nil
	})
	stream, err := c.NewPlayback(reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(sampleRate),
		pulse.PlaybackLatency(0.1),
		pulse.PlaybackRawOption(func(p *proto.CreatePlaybackStream) {
			p.ChannelVolumes = proto.ChannelVolumes{uint32(proto.VolumeNorm)}
		}),
	)
	if err != nil {
		log.Warnf("cue: pulse playback: %v", err)
		return
	}
	stream.Start()
	stream.Drain()
	stream.Stop()
	stream.Close()
}
