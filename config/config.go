// Package config loads silencer's TOML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"silencer/envelope"
	"silencer/monitor"
	"silencer/playback"
)

// Default configuration values.
const (
	DefaultThresholdDB   = monitor.DefaultThreshold
	DefaultCountdown     = monitor.DefaultCountdown
	DefaultTick          = monitor.DefaultTick
	DefaultQuality       = string(monitor.QualityHigh)
	DefaultMeterInterval = 100 * time.Millisecond
	DefaultAsset         = playback.BuiltinWhiteNoise
	DefaultFadeStep      = 0.001
	DefaultFadeHold      = 10 * time.Millisecond
	DefaultRest          = time.Second
)

// Duration is a time.Duration written as "1s", "100ms" in TOML.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) D() time.Duration { return time.Duration(d) }

type Config struct {
	Monitor MonitorConfig `toml:"monitor"`
	Masking MaskingConfig `toml:"masking"`
	Audio   AudioConfig   `toml:"audio"`
	Hotkey  HotkeyConfig  `toml:"hotkey"`
}

type MonitorConfig struct {
	ThresholdDB           float64  `toml:"threshold_db"` // dBFS, samples strictly above trigger
	Countdown             int      `toml:"countdown"`    // seconds before listening with --delay
	Tick                  Duration `toml:"tick"`
	Quality               string   `toml:"quality"` // high, low
	MeterInterval         Duration `toml:"meter_interval"`
	CaptureDuringPlayback bool     `toml:"capture_during_playback"`
}

type MaskingConfig struct {
	Asset    string   `toml:"asset"` // file path or builtin:whitenoise
	Loop     bool     `toml:"loop"`
	FadeStep float64  `toml:"fade_step"`
	FadeHold Duration `toml:"fade_hold"`
	Rest     Duration `toml:"rest"`
}

type AudioConfig struct {
	Device string `toml:"device"` // empty = system default
	Cues   bool   `toml:"cues"`
}

type HotkeyConfig struct {
	Enabled bool `toml:"enabled"`
}

func DefaultConfig() *Config {
	return &Config{
		Monitor: MonitorConfig{
			ThresholdDB:   DefaultThresholdDB,
			Countdown:     DefaultCountdown,
			Tick:          Duration(DefaultTick),
			Quality:       DefaultQuality,
			MeterInterval: Duration(DefaultMeterInterval),
		},
		Masking: MaskingConfig{
			Asset:    DefaultAsset,
			Loop:     true,
			FadeStep: DefaultFadeStep,
			FadeHold: Duration(DefaultFadeHold),
			Rest:     Duration(DefaultRest),
		},
		Audio: AudioConfig{
			Cues: true,
		},
		Hotkey: HotkeyConfig{
			Enabled: true,
		},
	}
}

// ConfigPath uses XDG_CONFIG_HOME if set, otherwise ~/.config.
func ConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "silencer", "config.toml")
}

// LoadConfig reads path over the defaults. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Save(path string) error {
	if path == "" {
		path = ConfigPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	var errs []error
	m := c.Monitor
	if m.ThresholdDB > 0 || m.ThresholdDB < -160 {
		errs = append(errs, fmt.Errorf("monitor.threshold_db %.1f outside [-160, 0]", m.ThresholdDB))
	}
	if m.Countdown < 0 {
		errs = append(errs, fmt.Errorf("monitor.countdown %d is negative", m.Countdown))
	}
	if m.Tick <= 0 {
		errs = append(errs, errors.New("monitor.tick must be positive"))
	}
	if m.MeterInterval <= 0 {
		errs = append(errs, errors.New("monitor.meter_interval must be positive"))
	}
	if m.Quality != string(monitor.QualityHigh) && m.Quality != string(monitor.QualityLow) {
		errs = append(errs, fmt.Errorf("monitor.quality %q: want high or low", m.Quality))
	}
	k := c.Masking
	if k.FadeStep <= 0 || k.FadeStep > 1 {
		errs = append(errs, fmt.Errorf("masking.fade_step %v outside (0, 1]", k.FadeStep))
	} else if 1/k.FadeStep > envelope.MaxSteps {
		errs = append(errs, fmt.Errorf("masking.fade_step %v is below the minimum %v", k.FadeStep, 1.0/envelope.MaxSteps))
	}
	if k.FadeHold < 0 {
		errs = append(errs, errors.New("masking.fade_hold is negative"))
	}
	if k.Rest < 0 {
		errs = append(errs, errors.New("masking.rest is negative"))
	}
	return errors.Join(errs...)
}

// Fade builds the masking envelope from the [masking] section.
func (c *Config) Fade() (envelope.Fade, error) {
	return envelope.NewFade(c.Masking.FadeStep, c.Masking.FadeHold.D(), c.Masking.Rest.D())
}

// MonitorOptions maps the file onto controller options.
func (c *Config) MonitorOptions() (monitor.Options, error) {
	fade, err := c.Fade()
	if err != nil {
		return monitor.Options{}, err
	}
	return monitor.Options{
		Threshold:             c.Monitor.ThresholdDB,
		Countdown:             c.Monitor.Countdown,
		Tick:                  c.Monitor.Tick.D(),
		Quality:               monitor.Quality(c.Monitor.Quality),
		Asset:                 c.Masking.Asset,
		Fade:                  fade,
		CaptureDuringPlayback: c.Monitor.CaptureDuringPlayback,
	}, nil
}
