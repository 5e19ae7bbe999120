package audio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"silencer/monitor"
)

type levelRecorder struct {
	mu     sync.Mutex
	levels []float64
	live   []bool
}

func (r *levelRecorder) record(db float64, capturing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.levels = append(r.levels, db)
	r.live = append(r.live, capturing)
}

func (r *levelRecorder) last() (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.levels) == 0 {
		return 0, false
	}
	return r.levels[len(r.levels)-1], true
}

func (r *levelRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.levels)
}

func TestSampleRate(t *testing.T) {
	assert.Equal(t, uint32(44100), SampleRate(monitor.QualityHigh))
	assert.Equal(t, uint32(16000), SampleRate(monitor.QualityLow))
	assert.Equal(t, uint32(44100), SampleRate(""))
}

func TestMeteredCaptureReportsLevel(t *testing.T) {
	fake := NewFakeContext()
	fake.SetLevel(-20)
	c := NewMeteredCapture(fake, nil, 20*time.Millisecond)

	h, err := c.Start(context.Background(), monitor.QualityHigh)
	require.NoError(t, err)
	defer h.Stop()

	rec := &levelRecorder{}
	h.Subscribe(rec.record)

	require.Eventually(t, func() bool {
		db, ok := rec.last()
		return ok && db > -21 && db < -19
	}, 2*time.Second, 5*time.Millisecond)

	fake.SetLevel(FloorDB)
	require.Eventually(t, func() bool {
		db, ok := rec.last()
		return ok && db == FloorDB
	}, 2*time.Second, 5*time.Millisecond)
	assert.False(t, h.Finished())
}

func TestMeteredCaptureStop(t *testing.T) {
	fake := NewFakeContext()
	c := NewMeteredCapture(fake, nil, 10*time.Millisecond)

	h, err := c.Start(context.Background(), monitor.QualityLow)
	require.NoError(t, err)
	rec := &levelRecorder{}
	h.Subscribe(rec.record)
	require.Eventually(t, func() bool { return rec.count() > 0 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, h.Stop())
	require.NoError(t, h.Stop())
	assert.True(t, h.Finished())

	n := rec.count()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, n, rec.count())
}

func TestMeteredCaptureStartFailure(t *testing.T) {
	fake := NewFakeContext()
	fake.FailStart(errors.New("busy"))
	c := NewMeteredCapture(fake, nil, 0)

	_, err := c.Start(context.Background(), monitor.QualityHigh)
	assert.ErrorContains(t, err, "busy")
}

func TestMeteredCaptureCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fake := NewFakeContext()
	_, err := NewMeteredCapture(fake, nil, 0).Start(ctx, monitor.QualityHigh)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, fake.Captures())
}

func TestDevicePermission(t *testing.T) {
	fake := NewFakeContext()
	ctx := context.Background()

	granted, err := DevicePermission{Ctx: fake}.RequestAudioPermission(ctx)
	require.NoError(t, err)
	assert.True(t, granted)

	granted, err = DevicePermission{Ctx: fake, Device: &DeviceInfo{ID: "fake"}}.RequestAudioPermission(ctx)
	require.NoError(t, err)
	assert.True(t, granted)

	_, err = DevicePermission{Ctx: fake, Device: &DeviceInfo{ID: "gone", Name: "USB"}}.RequestAudioPermission(ctx)
	assert.Error(t, err)

	fake.Deny(true)
	granted, err = DevicePermission{Ctx: fake}.RequestAudioPermission(ctx)
	require.NoError(t, err)
	assert.False(t, granted)
}

func TestFindDevice(t *testing.T) {
	fake := NewFakeContext()
	d, err := FindDevice(fake, "FA")
	require.NoError(t, err)
	assert.Equal(t, "fake", d.ID)

	_, err = FindDevice(fake, "usb")
	assert.Error(t, err)

	fake.Deny(true)
	_, err = FindDevice(fake, "fake")
	assert.ErrorIs(t, err, ErrNoDevices)
}

func TestRoutingLogsOnlyChanges(t *testing.T) {
	r := &Routing{}
	require.NoError(t, r.ConfigureSession(true))
	assert.True(t, r.ForCapture())
	require.NoError(t, r.ConfigureSession(true))
	require.NoError(t, r.ConfigureSession(false))
	assert.False(t, r.ForCapture())
	assert.Equal(t, 2, r.switches)
}

func TestIsBluetooth(t *testing.T) {
	assert.True(t, IsBluetooth("AirPods Pro"))
	assert.True(t, IsBluetooth("Headset (BT)"))
	assert.False(t, IsBluetooth("Built-in Microphone"))
}
