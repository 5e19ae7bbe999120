package monitor

import (
	"fmt"
	"strings"
	"time"
)

// Phase is the controller's single source of truth for what it is doing.
type Phase int

const (
	Idle Phase = iota
	// PendingStart covers both the countdown and arming the microphone.
	PendingStart
	Monitoring
	Responding
)

var phaseNames = [...]string{
	Idle:         "idle",
	PendingStart: "pending",
	Monitoring:   "monitoring",
	Responding:   "responding",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

func ParsePhase(s string) (Phase, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for p, name := range phaseNames {
		if name == s {
			return Phase(p), nil
		}
	}
	return Idle, fmt.Errorf("unknown phase %q", s)
}

// Status is a read-only snapshot for display.
type Status struct {
	Phase            Phase
	SecondsRemaining int
	Level            float64 // last metered level, dBFS
	Threshold        float64
	Triggers         int
	LastTrigger      time.Time
	LastTriggerLevel float64
	Cycle            string
}

func (s Status) Active() bool { return s.Phase != Idle }
