//go:build integration

package test_test

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

var testBinary string

const fastConfig = `[monitor]
threshold_db = -30.0
countdown = 2
tick = "20ms"
meter_interval = "20ms"

[masking]
asset = %q
loop = true
fade_step = 0.25
fade_hold = "2ms"
rest = "20ms"

[audio]
cues = false

[hotkey]
enabled = false
`

func TestMain(m *testing.M) {
	testBinary = os.Getenv("SILENCER_TEST_BIN")
	if testBinary == "" {
		fmt.Fprintln(os.Stderr, "SILENCER_TEST_BIN not set; build the binary and point SILENCER_TEST_BIN at it")
		os.Exit(1)
	}
	os.Exit(m.Run())
}

// generateToneWAV writes a mono 16-bit sine, used as a file masking asset.
func generateToneWAV(path string, sampleRate int, durationS float64) error {
	const headerSize = 44
	numSamples := int(float64(sampleRate) * durationS)
	dataSize := numSamples * 2

	buf := make([]byte, headerSize+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(headerSize-8+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(buf[32:34], 2)  // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16) // bits per sample
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	for i := range numSamples {
		s := int16(0.3 * 32767 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
		binary.LittleEndian.PutUint16(buf[headerSize+i*2:], uint16(s))
	}
	return os.WriteFile(path, buf, 0644)
}

func cmds(parts ...string) string {
	return strings.Join(parts, "\n") + "\n"
}

func writeConfig(t *testing.T, asset string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(fmt.Sprintf(fastConfig, asset)), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runSilencer(t *testing.T, stdin string, args ...string) (logDir, output string) {
	t.Helper()
	logDir = t.TempDir()
	cmdArgs := append([]string{"simulate", "--logpath", logDir}, args...)

	cmd := exec.Command(testBinary, cmdArgs...)
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Env = os.Environ()

	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("silencer exited with error: %v\noutput: %s", err, out)
	}
	return logDir, string(out)
}

func readLog(t *testing.T, logDir, filename string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(logDir, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return ""
		}
		t.Fatalf("failed to read %s: %v", filename, err)
	}
	return string(data)
}

func TestTriggerWritesEvent(t *testing.T) {
	cfg := writeConfig(t, "builtin:whitenoise")
	logDir, out := runSilencer(t, cmds("START", "WAIT monitoring", "LEVEL -10", "WAIT_TRIGGERS 1",
		"LEVEL -70", "WAIT monitoring", "STATUS", "QUIT"), "--config", cfg)

	if !strings.Contains(out, "triggers=1") {
		t.Errorf("expected one trigger in status, got: %s", out)
	}
	events := readLog(t, logDir, "events_log.txt")
	if strings.Count(events, "dBFS") != 1 {
		t.Errorf("expected one line in events_log.txt, got: %q", events)
	}
	diag := readLog(t, logDir, "diagnostics_log.txt")
	for _, want := range []string{"session_start", "to=responding", "masking_done", "session_end"} {
		if !strings.Contains(diag, want) {
			t.Errorf("expected %s in diagnostics", want)
		}
	}
}

func TestQuietRoomNeverTriggers(t *testing.T) {
	cfg := writeConfig(t, "builtin:whitenoise")
	logDir, out := runSilencer(t, cmds("START", "WAIT monitoring", "LEVEL -45", "SLEEP 300", "STATUS", "QUIT"),
		"--config", cfg)
	if !strings.Contains(out, "triggers=0") {
		t.Errorf("expected no triggers, got: %s", out)
	}
	if events := readLog(t, logDir, "events_log.txt"); strings.TrimSpace(events) != "" {
		t.Errorf("expected empty events_log.txt, got: %q", events)
	}
}

func TestThresholdFlagOverridesConfig(t *testing.T) {
	cfg := writeConfig(t, "builtin:whitenoise")
	_, out := runSilencer(t, cmds("START", "WAIT monitoring", "LEVEL -25", "SLEEP 300", "STATUS", "QUIT"),
		"--config", cfg, "--threshold", "-20")
	if !strings.Contains(out, "threshold=-20.0") || !strings.Contains(out, "triggers=0") {
		t.Errorf("expected -20 threshold and no triggers, got: %s", out)
	}
}

func TestCountdownThenStop(t *testing.T) {
	cfg := writeConfig(t, "builtin:whitenoise")
	logDir, _ := runSilencer(t, cmds("START_DELAY", "WAIT monitoring", "STOP", "WAIT idle", "QUIT"), "--config", cfg)
	diag := readLog(t, logDir, "diagnostics_log.txt")
	if !strings.Contains(diag, "to=pending") || !strings.Contains(diag, "to=monitoring") {
		t.Error("expected pending and monitoring phases in diagnostics")
	}
}

func TestFileAsset(t *testing.T) {
	asset := filepath.Join(t.TempDir(), "tone.wav")
	if err := generateToneWAV(asset, 22050, 0.5); err != nil {
		t.Fatal(err)
	}
	cfg := writeConfig(t, asset)
	logDir, _ := runSilencer(t, cmds("START", "WAIT monitoring", "LEVEL -5", "WAIT_TRIGGERS 1",
		"LEVEL -80", "WAIT monitoring", "QUIT"), "--config", cfg)
	if !strings.Contains(readLog(t, logDir, "diagnostics_log.txt"), "masking_done") {
		t.Error("expected masking_done in diagnostics")
	}
}

func TestPermissionDenied(t *testing.T) {
	cfg := writeConfig(t, "builtin:whitenoise")
	_, out := runSilencer(t, cmds("DENY", "START", "WAIT idle", "QUIT"), "--config", cfg)
	if !strings.Contains(out, "permission denied") {
		t.Errorf("expected permission error in output, got: %s", out)
	}
}
