package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/spf13/cobra"

	"silencer/audio"
	"silencer/config"
	"silencer/cue"
	"silencer/doctor"
	"silencer/hotkey"
	"silencer/log"
	"silencer/monitor"
	"silencer/playback"
	"silencer/shutdown"
)

var version = "dev"

const longPress = 350 * time.Millisecond

var flags struct {
	delay      bool
	tui        bool
	device     string
	setup      bool
	configPath string
	logPath    string
	threshold  float64
	asset      string
	crash      bool
}

var rootCmd = &cobra.Command{
	Use:   "silencer",
	Short: "Masks loud noise with a fade of white noise",
	Long: `silencer listens to the microphone and, whenever the level rises above
a threshold, fades a masking sound in and out over the top of it.

Press ` + hotkey.Combo + ` to start or stop listening. Hold it to start
after a short countdown.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: prepare,
	RunE:              runMonitor,
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List capture devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, err := audio.NewContext()
		if err != nil {
			return fmt.Errorf("initializing audio: %w", err)
		}
		defer ctx.Close()

		devices, err := ctx.Devices()
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			return audio.ErrNoDevices
		}
		for i, d := range devices {
			note := ""
			if audio.IsBluetooth(d.Name) {
				note = " (bluetooth)"
			}
			fmt.Printf("%2d. %s%s\n    %s\n", i+1, d.Name, note, d.ID)
		}
		return nil
	},
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run interactive hardware checks and calibrate the threshold",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		os.Exit(doctor.Run(cfg))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("silencer %s\n", version)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default: $XDG_CONFIG_HOME/silencer/config.toml)")
	pf.StringVar(&flags.logPath, "logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	pf.Float64Var(&flags.threshold, "threshold", config.DefaultThresholdDB, "trigger level in dBFS, overrides the config file")
	pf.StringVar(&flags.asset, "asset", "", "masking sound file, or "+playback.BuiltinWhiteNoise)

	f := rootCmd.Flags()
	f.BoolVar(&flags.delay, "delay", false, "start listening after the countdown")
	f.BoolVar(&flags.tui, "tui", true, "run with terminal UI")
	f.StringVar(&flags.device, "device", "", "use named microphone device")
	f.BoolVar(&flags.setup, "setup", false, "select microphone device interactively")
	f.BoolVar(&flags.crash, "crash", false, "trigger a synthetic panic to test crash logging")
	f.MarkHidden("crash")

	rootCmd.AddCommand(devicesCmd, doctorCmd, simulateCmd, versionCmd)
}

// execute is the process entry point once platform setup is done.
func execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// prepare resolves the log directory and routes runtime crashes into it.
func prepare(cmd *cobra.Command, args []string) error {
	logPath, err := log.ResolveDir(flags.logPath)
	if err != nil {
		return fmt.Errorf("failed to resolve log directory: %w", err)
	}
	log.SetDir(logPath)

	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
		return nil
	}
	initCrashLog()
	return nil
}

func initCrashLog() {
	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(crashFile, debug.CrashOptions{})
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("threshold") {
		cfg.Monitor.ThresholdDB = flags.threshold
	}
	if flags.asset != "" {
		cfg.Masking.Asset = flags.asset
	}
	if f := cmd.Flags().Lookup("device"); f != nil && f.Changed {
		cfg.Audio.Device = flags.device
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if flags.crash {
		panic("TEST CRASH: synthetic panic to verify crash logging")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	actx, err := audio.NewContext()
	if err != nil {
		return fmt.Errorf("initializing audio: %w", err)
	}
	defer actx.Close()

	device, err := resolveDevice(actx, cfg)
	if err != nil {
		return err
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()
	log.SessionStart(deviceName(device), cfg.Monitor.ThresholdDB, cfg.Masking.Asset)

	cues := cue.New()
	if !cfg.Audio.Cues {
		cues.Disable()
	}

	a, err := newApp(cfg, actx, device, playback.Speaker{}, cues)
	if err != nil {
		return err
	}
	defer func() {
		a.Close()
		log.SessionEnd(a.ctrl.Status().Triggers)
	}()

	ctx, stop := shutdown.Context(context.Background())
	defer stop()

	if w := watchConfig(cmd, a.ctrl); w != nil {
		defer w.Stop()
	}

	toggle := func(withDelay bool) {
		if err := a.ctrl.Toggle(ctx, withDelay); err != nil {
			reportStartError(err)
		}
	}

	if cfg.Hotkey.Enabled {
		hk := hotkey.New()
		if err := hk.Register(); err != nil {
			log.Errorf("hotkey register error: %v", err)
			fmt.Fprintf(os.Stderr, "Warning: hotkey unavailable: %v\n", err)
		} else {
			defer hk.Unregister()
			presses := hotkey.NewPresses(hk, longPress)
			defer presses.Close()
			go func() {
				for {
					select {
					case p := <-presses.C():
						log.Infof("hotkey_press held=%s long=%t", p.Held.Round(time.Millisecond), p.Long)
						go toggle(p.Long)
					case <-ctx.Done():
						return
					}
				}
			}()
		}
	}

	go toggle(flags.delay)

	if flags.tui {
		return runTUI(ctx, a, device, toggle)
	}
	printStatus(ctx, a.ctrl.Updates())
	return nil
}

func resolveDevice(ctx audio.Context, cfg *config.Config) (*audio.DeviceInfo, error) {
	if flags.setup && cfg.Audio.Device == "" {
		dev, err := audio.SelectDevice(ctx)
		if err != nil {
			return nil, err
		}
		return dev, nil
	}
	if cfg.Audio.Device == "" {
		return nil, nil
	}
	return audio.FindDevice(ctx, cfg.Audio.Device)
}

func deviceName(d *audio.DeviceInfo) string {
	if d == nil {
		return "default"
	}
	return d.Name
}

// watchConfig pushes threshold edits from the config file into the running
// controller. A --threshold flag pins the value and disables this.
func watchConfig(cmd *cobra.Command, ctrl *monitor.Controller) *config.Watcher {
	if cmd.Flags().Changed("threshold") {
		return nil
	}
	w, err := config.NewWatcher(flags.configPath, func(cfg *config.Config) {
		ctrl.SetThreshold(cfg.Monitor.ThresholdDB)
	})
	if err != nil {
		log.Warnf("config watcher: %v", err)
		return nil
	}
	if err := w.Start(); err != nil {
		log.Warnf("config watcher: %v", err)
		w.Stop()
		return nil
	}
	return w
}

func reportStartError(err error) {
	if errors.Is(err, monitor.ErrPermissionDenied) {
		log.Warn("start: microphone permission denied")
	} else {
		log.Errorf("start: %v", err)
	}
	tuiSend(ErrorMsg{Err: err})
}
