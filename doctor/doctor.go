package doctor

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"silencer/audio"
	"silencer/config"
	"silencer/envelope"
	"silencer/hotkey"
	"silencer/monitor"
	"silencer/playback"
	"silencer/shutdown"
)

const (
	calibrateFor  = 5 * time.Second
	meterWidth    = 40
	suggestMargin = 6.0 // dB above the loudest quiet-room window
)

// Run executes interactive diagnostic checks and returns an exit code (0=all pass, 1=any fail).
func Run(cfg *config.Config) int {
	resetTerminal()
	setupInterruptHandler()

	fmt.Println("silencer doctor - interactive system diagnostics")
	fmt.Println("================================================")

	allPass := true

	if cfg.Hotkey.Enabled && !checkHotkey() {
		allPass = false
	}
	device, ok := checkDevices(cfg)
	if !ok {
		allPass = false
	}
	if ok && !checkLevels(cfg, device) {
		allPass = false
	}
	if !checkMasking(cfg) {
		allPass = false
	}

	fmt.Println()
	if allPass {
		fmt.Println("All checks passed!")
		return 0
	}
	fmt.Println("Some checks failed. See details above.")
	return 1
}

func setupInterruptHandler() {
	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	go func() {
		<-sigChan
		println("\nInterrupted")
		os.Exit(1)
	}()
}

func checkHotkey() bool {
	fmt.Println()
	fmt.Println("[1/4] Hotkey detection")
	info, err := hotkey.Diagnose()
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	fmt.Printf("  %s\n", info)
	fmt.Printf("Press %s...\n", hotkey.Combo)

	hk := hotkey.New()
	if err := hk.Register(); err != nil {
		fmt.Printf("  FAIL: could not register hotkey: %v\n", err)
		return false
	}
	defer hk.Unregister()

	select {
	case <-hk.Keydown():
		fmt.Println("  PASS: hotkey detected")
		select {
		case <-hk.Keyup():
		case <-time.After(5 * time.Second):
		}
		// evdev readers can leave the terminal in raw mode
		resetTerminal()
		return true
	case <-time.After(10 * time.Second):
		fmt.Println("  FAIL: timeout waiting for hotkey")
		return false
	}
}

type deviceCheck struct {
	ctx    audio.Context
	device *audio.DeviceInfo
}

func checkDevices(cfg *config.Config) (*deviceCheck, bool) {
	fmt.Println()
	fmt.Println("[2/4] Microphone")

	ctx, err := audio.NewContext()
	if err != nil {
		fmt.Printf("  FAIL: cannot connect to audio: %v\n", err)
		return nil, false
	}

	devices, err := ctx.Devices()
	if err != nil {
		ctx.Close()
		fmt.Printf("  FAIL: cannot list devices: %v\n", err)
		return nil, false
	}
	if len(devices) == 0 {
		ctx.Close()
		fmt.Println("  FAIL: no capture devices found (is microphone access allowed?)")
		return nil, false
	}
	for i, d := range devices {
		note := ""
		if audio.IsBluetooth(d.Name) {
			note = "  (bluetooth: levels may be unreliable)"
		}
		fmt.Printf("  %d. %s%s\n", i+1, d.Name, note)
	}

	check := &deviceCheck{ctx: ctx}
	if cfg.Audio.Device != "" {
		d, err := audio.FindDevice(ctx, cfg.Audio.Device)
		if err != nil {
			ctx.Close()
			fmt.Printf("  FAIL: configured device: %v\n", err)
			return nil, false
		}
		check.device = d
		fmt.Printf("  PASS: using %s\n", d.Name)
	} else {
		fmt.Println("  PASS: using system default input")
	}
	return check, true
}

func checkLevels(cfg *config.Config, dc *deviceCheck) bool {
	defer dc.ctx.Close()

	fmt.Println()
	fmt.Println("[3/4] Level calibration")
	fmt.Printf("Stay quiet for %s, then make the noise you want masked.\n", calibrateFor)
	fmt.Print("Press Enter to start...")
	bufio.NewReader(os.Stdin).ReadString('\n')

	capture := audio.NewMeteredCapture(dc.ctx, dc.device, cfg.Monitor.MeterInterval.D())
	h, err := capture.Start(context.Background(), monitor.Quality(cfg.Monitor.Quality))
	if err != nil {
		fmt.Printf("  FAIL: capture: %v\n", err)
		return false
	}

	threshold := cfg.Monitor.ThresholdDB
	var (
		mu    sync.Mutex
		quiet levelStats
		loud  levelStats
	)
	start := time.Now()
	h.Subscribe(func(db float64, capturing bool) {
		if !capturing {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if time.Since(start) < calibrateFor {
			quiet.add(db, threshold)
		} else {
			loud.add(db, threshold)
		}
		fmt.Printf("\r  %s %7.1f dBFS", meterBar(db, threshold), db)
	})

	time.Sleep(2 * calibrateFor)
	h.Stop()
	fmt.Println()

	mu.Lock()
	defer mu.Unlock()
	if quiet.n == 0 {
		fmt.Println("  FAIL: no level samples received")
		return false
	}
	fmt.Printf("  quiet: %s\n", quiet)
	if loud.n > 0 {
		fmt.Printf("  noise: %s\n", loud)
	}
	fmt.Printf("  threshold %.1f dBFS, suggested %.1f dBFS\n", threshold, quiet.suggest())

	if quiet.above > 0 {
		fmt.Printf("  FAIL: quiet room crossed the threshold %d times; raise threshold_db\n", quiet.above)
		return false
	}
	if loud.n > 0 && loud.above == 0 {
		fmt.Println("  WARN: your noise never crossed the threshold; lower threshold_db")
	}
	fmt.Println("  PASS: threshold sits above the quiet room")
	return true
}

func checkMasking(cfg *config.Config) bool {
	fmt.Println()
	fmt.Println("[4/4] Masking sound")

	asset := cfg.Masking.Asset
	if !playback.IsBuiltin(asset) {
		info, err := os.Stat(asset)
		if err != nil {
			fmt.Printf("  FAIL: %v\n", err)
			return false
		}
		fmt.Printf("  %s (%s)\n", asset, humanize.Bytes(uint64(info.Size())))
	} else {
		fmt.Println("  built-in white noise")
	}

	player := playback.NewPlayer(playback.Options{Loop: true})
	defer player.Close()

	if d, err := player.Length(asset); err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	} else if d > 0 {
		fmt.Printf("  length %s\n", d.Round(time.Millisecond))
	}

	fade, err := envelope.NewFade(0.05, 30*time.Millisecond, time.Second)
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	fmt.Printf("Playing a %s fade in and out...\n", fade.Duration().Round(100*time.Millisecond))

	h, err := player.Load(context.Background(), asset)
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	defer h.Unload()
	if err := h.SetVolume(0); err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	if err := h.Play(); err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	for _, env := range []*envelope.Envelope{fade.Up, nil, fade.Down} {
		if env == nil {
			time.Sleep(fade.Rest)
			continue
		}
		for step := range env.All() {
			h.SetVolume(step.Volume)
			time.Sleep(step.Hold)
		}
	}
	h.Stop()

	fmt.Print("Did you hear the sound rise and fall smoothly? [y/n]: ")
	confirm, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	confirm = strings.TrimSpace(strings.ToLower(confirm))
	if confirm == "y" || confirm == "yes" {
		fmt.Println("  PASS: masking playback verified by user")
		return true
	}
	fmt.Println("  FAIL: masking playback not confirmed")
	return false
}

type levelStats struct {
	n     int
	min   float64
	max   float64
	sum   float64
	above int
}

func (s *levelStats) add(db, threshold float64) {
	if s.n == 0 || db < s.min {
		s.min = db
	}
	if s.n == 0 || db > s.max {
		s.max = db
	}
	s.sum += db
	s.n++
	if db > threshold {
		s.above++
	}
}

func (s levelStats) mean() float64 {
	if s.n == 0 {
		return audio.FloorDB
	}
	return s.sum / float64(s.n)
}

// suggest puts the threshold a margin above the loudest window seen,
// rounded up to a whole dB and never above full scale.
func (s levelStats) suggest() float64 {
	return min(math.Ceil(s.max+suggestMargin), 0)
}

func (s levelStats) String() string {
	return fmt.Sprintf("min %.1f / avg %.1f / max %.1f dBFS over %d windows", s.min, s.mean(), s.max, s.n)
}

// meterBar draws level and threshold on a -80..0 dBFS scale.
func meterBar(db, threshold float64) string {
	pos := func(v float64) int {
		v = min(max(v, -80), 0)
		return int((v + 80) / 80 * meterWidth)
	}
	filled, mark := pos(db), pos(threshold)
	var b strings.Builder
	b.WriteByte('[')
	for i := range meterWidth {
		switch {
		case i == mark:
			b.WriteByte('|')
		case i < filled:
			b.WriteByte('#')
		default:
			b.WriteByte(' ')
		}
	}
	b.WriteByte(']')
	return b.String()
}
