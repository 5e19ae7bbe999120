package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"silencer/audio"
	"silencer/hotkey"
	"silencer/monitor"
)

// TUI message types
type StatusMsg struct{ Status monitor.Status }
type ErrorMsg struct{ Err error }
type tickMsg time.Time

const (
	meterLow   = -80.0 // dBFS at the left edge of the level bar
	meterCells = 40
)

type tuiModel struct {
	status        monitor.Status
	level         float64 // smoothed for display
	width, height int
	deviceLine    string
	lastErr       string
	toggle        func(withDelay bool)
}

var (
	tuiProgram *tea.Program
	tuiMu      sync.Mutex
)

var (
	phaseStyles = map[monitor.Phase]lipgloss.Style{
		monitor.Idle:         lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		monitor.PendingStart: lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
		monitor.Monitoring:   lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		monitor.Responding:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}
	quietStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	loudStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	markStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Bold(true)
	emptyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("236"))
	infoStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	helpKeyBold = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
)

func newTUIModel(deviceLine string, toggle func(bool)) tuiModel {
	return tuiModel{
		status:     monitor.Status{Level: monitor.SilenceFloor},
		level:      meterLow,
		deviceLine: deviceLine,
		toggle:     toggle,
	}
}

func runTUI(ctx context.Context, a *app, device *audio.DeviceInfo, toggle func(bool)) error {
	p := tea.NewProgram(newTUIModel(deviceLineText(device), toggle), tea.WithAltScreen(), tea.WithContext(ctx))
	tuiMu.Lock()
	tuiProgram = p
	tuiMu.Unlock()
	defer func() {
		tuiMu.Lock()
		tuiProgram = nil
		tuiMu.Unlock()
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case st := <-a.ctrl.Updates():
				p.Send(StatusMsg{Status: st})
			case <-done:
				return
			}
		}
	}()

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

func tuiSend(msg tea.Msg) {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func deviceLineText(dev *audio.DeviceInfo) string {
	if dev == nil {
		return "mic: system default"
	}
	if audio.IsBluetooth(dev.Name) {
		return "mic: " + dev.Name + " (bluetooth)"
	}
	return "mic: " + dev.Name
}

func tuiTick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) toggleCmd(withDelay bool) tea.Cmd {
	toggle := m.toggle
	return func() tea.Msg {
		toggle(withDelay)
		return nil
	}
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case " ", "t":
			m.lastErr = ""
			return m, m.toggleCmd(false)
		case "d":
			m.lastErr = ""
			return m, m.toggleCmd(true)
		}

	case tickMsg:
		// redraw so the relative trigger time stays current
		return m, tuiTick()

	case StatusMsg:
		m.status = msg.Status
		lvl := max(msg.Status.Level, meterLow)
		if msg.Status.Phase == monitor.Idle {
			lvl = meterLow
		}
		m.level = m.level*0.6 + lvl*0.4

	case ErrorMsg:
		m.lastErr = msg.Err.Error()
	}
	return m, nil
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	st := m.status

	var lines []string
	lines = append(lines, phaseStyles[st.Phase].Render(phaseLabel(st)), "")

	lines = append(lines, levelBar(m.level, st.Threshold))
	level := "-"
	if st.Phase != monitor.Idle {
		level = fmt.Sprintf("%.1f", st.Level)
	}
	lines = append(lines, infoStyle.Render(fmt.Sprintf("level %s dBFS   threshold %.1f dBFS", level, st.Threshold)), "")

	if st.Triggers > 0 {
		lines = append(lines, infoStyle.Render(fmt.Sprintf("triggers %d   last %s at %.1f dBFS",
			st.Triggers, humanize.Time(st.LastTrigger), st.LastTriggerLevel)))
	} else {
		lines = append(lines, dimStyle.Render("no triggers yet"))
	}
	lines = append(lines, dimStyle.Render(m.deviceLine))
	if st.Cycle != "" && st.Phase != monitor.Idle {
		lines = append(lines, dimStyle.Render("cycle "+st.Cycle))
	}

	if m.lastErr != "" {
		lines = append(lines, "", errStyle.Width(max(m.width-2, 20)).Render("⚠ "+m.lastErr))
	}

	lines = append(lines, "",
		helpKeyBold.Render("space")+helpStyle.Render(" toggle  ")+
			helpKeyBold.Render("d")+helpStyle.Render(" delayed start  ")+
			helpKeyBold.Render("q")+helpStyle.Render(" quit"),
		helpKeyBold.Render(hotkey.Combo)+helpStyle.Render(" toggles from anywhere, hold to delay"),
		helpStyle.Render("silencer "+version),
	)

	return lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Padding(1, 2).
		Render(strings.Join(lines, "\n"))
}

func phaseLabel(st monitor.Status) string {
	switch st.Phase {
	case monitor.PendingStart:
		if st.SecondsRemaining > 0 {
			return fmt.Sprintf("◔ STARTING IN %d", st.SecondsRemaining)
		}
		return "◔ STARTING"
	case monitor.Monitoring:
		return "● LISTENING"
	case monitor.Responding:
		return "◉ MASKING"
	default:
		return "○ IDLE"
	}
}

// levelBar fills up to level and marks the threshold, coloured by which side
// of it each cell sits.
func levelBar(level, threshold float64) string {
	cell := func(v float64) int {
		v = min(max(v, meterLow), 0)
		return int((v - meterLow) / -meterLow * meterCells)
	}
	filled, mark := cell(level), cell(threshold)

	var b strings.Builder
	for i := range meterCells {
		switch {
		case i == mark:
			b.WriteString(markStyle.Render("│"))
		case i < filled && i > mark:
			b.WriteString(loudStyle.Render("█"))
		case i < filled:
			b.WriteString(quietStyle.Render("█"))
		default:
			b.WriteString(emptyStyle.Render("░"))
		}
	}
	return b.String()
}
