// Package playback plays the masking sound under controller-driven volume.
package playback

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"

	"silencer/log"
	"silencer/monitor"
)

const (
	DefaultSampleRate  = beep.SampleRate(44100)
	defaultNoiseLength = 30 * time.Second
	speakerBuffer      = 100 * time.Millisecond
)

type Options struct {
	Output     Output // defaults to the system speaker
	SampleRate beep.SampleRate
	// Loop repeats the asset until the handle is stopped.
	Loop bool
	// NoiseLength bounds the built-in noise when Loop is off.
	NoiseLength time.Duration
}

// Player decodes masking assets once and hands out one handle per response.
type Player struct {
	out         Output
	sampleRate  beep.SampleRate
	loop        bool
	noiseLength time.Duration

	mu          sync.Mutex
	initialized bool

	cacheMu sync.RWMutex
	cache   map[string]*beep.Buffer
}

func NewPlayer(opts Options) *Player {
	if opts.Output == nil {
		opts.Output = Speaker{}
	}
	if opts.SampleRate == 0 {
		opts.SampleRate = DefaultSampleRate
	}
	if opts.NoiseLength <= 0 {
		opts.NoiseLength = defaultNoiseLength
	}
	return &Player{
		out:         opts.Output,
		sampleRate:  opts.SampleRate,
		loop:        opts.Loop,
		noiseLength: opts.NoiseLength,
		cache:       make(map[string]*beep.Buffer),
	}
}

func IsBuiltin(asset string) bool {
	return asset == "" || asset == BuiltinWhiteNoise
}

// Load prepares a paused, silent handle for asset.
func (p *Player) Load(ctx context.Context, asset string) (monitor.PlaybackHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.ensureInitialized(); err != nil {
		return nil, err
	}
	src, err := p.source(asset)
	if err != nil {
		return nil, err
	}
	return newHandle(p.out, src), nil
}

// Preload decodes asset into the cache so the first response starts
// without disk access.
func (p *Player) Preload(asset string) error {
	if IsBuiltin(asset) {
		return nil
	}
	_, err := p.buffer(asset)
	return err
}

// Length reports how long one pass of asset plays. Built-in noise has no
// natural length and reports zero.
func (p *Player) Length(asset string) (time.Duration, error) {
	if IsBuiltin(asset) {
		return 0, nil
	}
	buf, err := p.buffer(asset)
	if err != nil {
		return 0, err
	}
	return buf.Format().SampleRate.D(buf.Len()), nil
}

func (p *Player) source(asset string) (beep.Streamer, error) {
	if IsBuiltin(asset) {
		noise := newWhiteNoise(uint64(time.Now().UnixNano()))
		if p.loop {
			return noise, nil
		}
		return beep.Take(p.sampleRate.N(p.noiseLength), noise), nil
	}

	buf, err := p.buffer(asset)
	if err != nil {
		return nil, err
	}
	var s beep.Streamer = buf.Streamer(0, buf.Len())
	if p.loop {
		s, err = beep.Loop2(buf.Streamer(0, buf.Len()))
		if err != nil {
			return nil, fmt.Errorf("loop %s: %w", asset, err)
		}
	}
	if rate := buf.Format().SampleRate; rate != p.sampleRate {
		s = beep.Resample(4, rate, p.sampleRate, s)
	}
	return s, nil
}

func (p *Player) buffer(asset string) (*beep.Buffer, error) {
	path := expandPath(asset)

	p.cacheMu.RLock()
	buf, ok := p.cache[path]
	p.cacheMu.RUnlock()
	if ok {
		return buf, nil
	}

	buf, err := decodeFile(path)
	if err != nil {
		return nil, err
	}

	p.cacheMu.Lock()
	p.cache[path] = buf
	p.cacheMu.Unlock()
	log.Infof("masking asset loaded: %s (%s)", path, buf.Format().SampleRate.D(buf.Len()).Round(time.Millisecond))
	return buf, nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

func decodeFile(path string) (*beep.Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open masking asset: %w", err)
	}
	defer func() { _ = f.Close() }()

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav":
		streamer, format, err = wav.Decode(f)
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	case ".ogg":
		streamer, format, err = vorbis.Decode(f)
	case ".flac":
		streamer, format, err = flac.Decode(f)
	default:
		return nil, fmt.Errorf("unsupported audio format: %s", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	defer func() { _ = streamer.Close() }()

	buf := beep.NewBuffer(format)
	buf.Append(streamer)
	if err := streamer.Err(); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("decode %s: no audio", filepath.Base(path))
	}
	return buf, nil
}

func (p *Player) ensureInitialized() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initialized {
		return nil
	}
	if err := p.out.Init(p.sampleRate, p.sampleRate.N(speakerBuffer)); err != nil {
		return fmt.Errorf("initialize output: %w", err)
	}
	p.initialized = true
	return nil
}

// Close silences everything and releases the output device.
func (p *Player) Close() {
	p.mu.Lock()
	if p.initialized {
		p.out.Close()
		p.initialized = false
	}
	p.mu.Unlock()

	p.cacheMu.Lock()
	p.cache = make(map[string]*beep.Buffer)
	p.cacheMu.Unlock()
}
