//go:build !linux && !windows

package cue

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"silencer/log"
)

var (
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	initOnce sync.Once

	// Read from the device callback without locking.
	current atomic.Pointer[[]byte]
	pos     atomic.Uint32
	playMu  sync.Mutex
)

func initDevice() error {
	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.Playback.Format = malgo.FormatS16
	config.Playback.Channels = 1
	config.SampleRate = sampleRate

	var err error
	device, err = malgo.InitDevice(malgoCtx.Context, config, malgo.DeviceCallbacks{Data: fill})
	return err
}

func initOutput() {
	var err error
	malgoCtx, err = malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		log.Warnf("cue: malgo context: %v", err)
		return
	}
	if err := initDevice(); err != nil {
		log.Warnf("cue: malgo device: %v", err)
		_ = malgoCtx.Uninit()
		malgoCtx = nil
	}
}

func fill(out, _ []byte, frameCount uint32) {
	want := frameCount * 2
	samples := current.Load()
	if samples == nil {
		clear(out)
		return
	}
	p := pos.Load()
	remaining := uint32(len(*samples)) - p
	if remaining == 0 {
		current.Store(nil)
		clear(out)
		return
	}
	n := min(want, remaining)
	copy(out[:n], (*samples)[p:p+n])
	pos.Store(p + n)
	clear(out[n:want])
}

func playSamples(samples []int16) {
	initOnce.Do(initOutput)
	if malgoCtx == nil || len(samples) == 0 {
		return
	}
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}

	playMu.Lock()
	defer playMu.Unlock()
	if device == nil {
		return
	}
	_ = device.Stop()
	pos.Store(0)
	current.Store(&buf)

	if err := device.Start(); err != nil {
		// Devices can go stale across sleep/wake; rebuild once.
		device.Uninit()
		if err := initDevice(); err != nil {
			current.Store(nil)
			return
		}
		if err := device.Start(); err != nil {
			current.Store(nil)
		}
	}
}
