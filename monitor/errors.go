package monitor

import "errors"

var (
	ErrPermissionDenied = errors.New("microphone permission denied")
	ErrHardwareStart    = errors.New("audio device unavailable")

	// ErrCancelled reports a countdown aborted by Stop. It is an expected
	// outcome and never escapes Start.
	ErrCancelled = errors.New("cancelled")
)
