package main

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"

	"silencer/audio"
	"silencer/monitor"
)

func TestPhaseLabel(t *testing.T) {
	assert.Equal(t, "○ IDLE", phaseLabel(monitor.Status{}))
	assert.Equal(t, "◔ STARTING IN 3", phaseLabel(monitor.Status{Phase: monitor.PendingStart, SecondsRemaining: 3}))
	assert.Equal(t, "◔ STARTING", phaseLabel(monitor.Status{Phase: monitor.PendingStart}))
	assert.Equal(t, "● LISTENING", phaseLabel(monitor.Status{Phase: monitor.Monitoring}))
	assert.Equal(t, "◉ MASKING", phaseLabel(monitor.Status{Phase: monitor.Responding}))
}

func TestDeviceLineText(t *testing.T) {
	assert.Equal(t, "mic: system default", deviceLineText(nil))
	assert.Equal(t, "mic: USB Mic", deviceLineText(&audio.DeviceInfo{Name: "USB Mic"}))
	assert.Equal(t, "mic: AirPods Pro (bluetooth)", deviceLineText(&audio.DeviceInfo{Name: "AirPods Pro"}))
}

func TestTUIKeysToggle(t *testing.T) {
	calls := make(chan bool, 2)
	m := newTUIModel("mic", func(withDelay bool) { calls <- withDelay })

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	if assert.NotNil(t, cmd) {
		cmd()
	}
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'d'}})
	if assert.NotNil(t, cmd) {
		cmd()
	}
	assert.Equal(t, false, <-calls)
	assert.Equal(t, true, <-calls)
}

func TestTUIStatusAndError(t *testing.T) {
	m := newTUIModel("mic", func(bool) {})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	next, _ = next.Update(StatusMsg{Status: monitor.Status{
		Phase:            monitor.Monitoring,
		Level:            -20,
		Threshold:        -30,
		Triggers:         2,
		LastTrigger:      time.Now().Add(-time.Minute),
		LastTriggerLevel: -18,
	}})
	next, _ = next.Update(ErrorMsg{Err: errors.New("device unplugged")})

	view := next.View()
	assert.Contains(t, view, "LISTENING")
	assert.Contains(t, view, "threshold -30.0 dBFS")
	assert.Contains(t, view, "triggers 2")
	assert.Contains(t, view, "device unplugged")
	assert.Less(t, next.(tuiModel).level, 0.0)
	assert.Greater(t, next.(tuiModel).level, meterLow)
}

func TestLevelBarWidth(t *testing.T) {
	for _, lvl := range []float64{monitor.SilenceFloor, -40, 0, 6} {
		bar := levelBar(lvl, -30)
		assert.Equal(t, meterCells, len([]rune(stripANSI(bar))), "level %v", lvl)
	}
}

// stripANSI drops SGR escapes so cell counts ignore styling.
func stripANSI(s string) string {
	var out []rune
	esc := false
	for _, r := range s {
		switch {
		case r == '\x1b':
			esc = true
		case esc && r == 'm':
			esc = false
		case !esc:
			out = append(out, r)
		}
	}
	return string(out)
}
