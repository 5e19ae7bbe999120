package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"silencer/log"
)

var ErrNoDevices = errors.New("no capture devices found")

// DevicePermission treats a visible capture device as permission to record.
// Desktop platforms surface a denied microphone as an empty device list or
// an enumeration error.
type DevicePermission struct {
	Ctx    Context
	Device *DeviceInfo // when set it must still be present
}

func (p DevicePermission) RequestAudioPermission(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	devices, err := p.Ctx.Devices()
	if err != nil {
		return false, fmt.Errorf("enumerating devices: %w", err)
	}
	if len(devices) == 0 {
		return false, nil
	}
	if p.Device == nil {
		return true, nil
	}
	for _, d := range devices {
		if d.ID == p.Device.ID {
			return true, nil
		}
	}
	return false, fmt.Errorf("device %q disappeared", p.Device.Name)
}

// Routing records which way the session is pointed. Desktop audio servers
// route capture and playback independently, so this only tracks and logs
// the mode.
type Routing struct {
	mu         sync.Mutex
	forCapture bool
	switches   int
}

func (r *Routing) ConfigureSession(forCapture bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.switches > 0 && r.forCapture == forCapture {
		return nil
	}
	r.forCapture = forCapture
	r.switches++
	mode := "playback"
	if forCapture {
		mode = "capture"
	}
	log.Info("audio session: " + mode)
	return nil
}

func (r *Routing) ForCapture() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.forCapture
}
