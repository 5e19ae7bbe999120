package main

import (
	"context"
	"fmt"

	"silencer/audio"
	"silencer/config"
	"silencer/monitor"
	"silencer/playback"
)

// app is one controller wired to real or fake hardware.
type app struct {
	ctrl    *monitor.Controller
	player  *playback.Player
	routing *audio.Routing
}

func newApp(cfg *config.Config, actx audio.Context, device *audio.DeviceInfo, out playback.Output, cues monitor.Cues) (*app, error) {
	opts, err := cfg.MonitorOptions()
	if err != nil {
		return nil, err
	}

	player := playback.NewPlayer(playback.Options{Output: out, Loop: cfg.Masking.Loop})
	if err := player.Preload(cfg.Masking.Asset); err != nil {
		player.Close()
		return nil, fmt.Errorf("masking asset: %w", err)
	}

	routing := &audio.Routing{}
	ctrl, err := monitor.New(opts, monitor.Deps{
		Permission: audio.DevicePermission{Ctx: actx, Device: device},
		Routing:    routing,
		Capture:    audio.NewMeteredCapture(actx, device, cfg.Monitor.MeterInterval.D()),
		Playback:   player,
		Cues:       cues,
	})
	if err != nil {
		player.Close()
		return nil, err
	}
	return &app{ctrl: ctrl, player: player, routing: routing}, nil
}

func (a *app) Close() {
	a.ctrl.Close()
	a.player.Close()
}

// printStatus writes a line per phase change until ctx ends. Level-only
// updates are skipped.
func printStatus(ctx context.Context, updates <-chan monitor.Status) {
	last := monitor.Status{Phase: -1}
	for {
		select {
		case st := <-updates:
			if st.Phase == last.Phase && st.SecondsRemaining == last.SecondsRemaining && st.Triggers == last.Triggers {
				continue
			}
			last = st
			fmt.Println(statusLine(st))
		case <-ctx.Done():
			return
		}
	}
}

func statusLine(st monitor.Status) string {
	switch {
	case st.Phase == monitor.PendingStart && st.SecondsRemaining > 0:
		return fmt.Sprintf("%s: starting in %d", st.Phase, st.SecondsRemaining)
	case st.Phase == monitor.Responding:
		return fmt.Sprintf("%s: %.1f dBFS over %.1f (trigger #%d)", st.Phase, st.LastTriggerLevel, st.Threshold, st.Triggers)
	case st.Phase == monitor.Monitoring:
		return fmt.Sprintf("%s: threshold %.1f dBFS", st.Phase, st.Threshold)
	default:
		return st.Phase.String()
	}
}
