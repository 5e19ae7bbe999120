package monitor

import "context"

type Quality string

const (
	QualityHigh Quality = "high"
	QualityLow  Quality = "low"
)

// LevelFunc receives one metering sample. capturing is false once the
// underlying capture has been stopped.
type LevelFunc func(level float64, capturing bool)

type PermissionService interface {
	RequestAudioPermission(ctx context.Context) (granted bool, err error)
}

// SessionConfigurator switches platform routing between recording and
// playback. Failures are logged by the caller and otherwise ignored.
type SessionConfigurator interface {
	ConfigureSession(forCapture bool) error
}

type CaptureSession interface {
	Start(ctx context.Context, quality Quality) (CaptureHandle, error)
}

type CaptureHandle interface {
	Stop() error
	Subscribe(fn LevelFunc)
	Finished() bool
}

type PlaybackSession interface {
	Load(ctx context.Context, asset string) (PlaybackHandle, error)
}

type PlaybackHandle interface {
	Play() error
	SetVolume(v float64) error
	Stop() error
	Unload()
	// OnComplete registers fn to run once when playback ends for any reason.
	OnComplete(fn func())
}

// Cues plays short feedback sounds. Implementations must not block.
type Cues interface {
	Countdown(remaining int)
	Stopped()
	Failed()
}

type noCues struct{}

func (noCues) Countdown(int) {}
func (noCues) Stopped()      {}
func (noCues) Failed()       {}

type noRouting struct{}

func (noRouting) ConfigureSession(bool) error { return nil }
