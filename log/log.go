package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	appName   = "silencer"
	envLogDir = "SILENCER_LOG_PATH"

	diagFileName   = "diagnostics_log.txt"
	eventsFileName = "events_log.txt"
)

var (
	diagLog    zerolog.Logger
	diagFile   *os.File
	eventsFile *os.File
	logMu      sync.Mutex
	logReady   bool
	pid        int
	dir        string
)

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: --logpath flag
	if flagPath != "" {
		return absolute(flagPath)
	}

	// Priority 2: environment
	if envPath := os.Getenv(envLogDir); envPath != "" {
		return absolute(envPath)
	}

	// Priority 3: OS-specific location
	return getDefaultDir()
}

func absolute(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error

	diagFile, err = os.OpenFile(filepath.Join(dir, diagFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	eventsFile, err = os.OpenFile(filepath.Join(dir, eventsFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05.000",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if eventsFile != nil {
		eventsFile.Close()
		eventsFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func SessionStart(device string, thresholdDB float64, asset string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("device", device).
		Float64("threshold_db", thresholdDB).
		Str("asset", asset).
		Msg("session_start")
}

func SessionEnd(triggers int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int("triggers", triggers).
		Msg("session_end")
}

func PhaseChange(cycle, from, to string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("cycle", cycle).
		Str("from", from).
		Str("to", to).
		Msg("phase")
}

func Countdown(cycle string, remaining int) {
	if !logReady {
		return
	}
	diagLog.Debug().
		Str("cycle", cycle).
		Int("remaining", remaining).
		Msg("countdown")
}

// Trigger records a threshold crossing in the diagnostics log and appends a
// line to the events log.
func Trigger(cycle string, levelDB, thresholdDB float64) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("cycle", cycle).
		Float64("level_db", levelDB).
		Float64("threshold_db", thresholdDB).
		Msg("trigger")

	logMu.Lock()
	defer logMu.Unlock()
	if eventsFile == nil {
		return
	}
	line := fmt.Sprintf("%s\t[%d]\t%s\t%.1f dBFS\n", time.Now().Format("2006-01-02 15:04:05"), pid, cycle, levelDB)
	eventsFile.WriteString(line)
}

func Masking(cycle string, d time.Duration, completed bool) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("cycle", cycle).
		Dur("played", d).
		Bool("completed", completed).
		Msg("masking_done")
}
