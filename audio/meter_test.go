package audio

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pcm(samples ...int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func sine(n int, rate, hz, amp float64) []byte {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(math.Round(amp * 32767 * math.Sin(2*math.Pi*hz*float64(i)/rate)))
	}
	return pcm(samples...)
}

func TestLevelDBSilence(t *testing.T) {
	assert.Equal(t, FloorDB, LevelDB(nil))
	assert.Equal(t, FloorDB, LevelDB(pcm(0, 0, 0, 0)))
}

func TestLevelDBFullScaleSquare(t *testing.T) {
	db := LevelDB(pcm(-32768, -32768, -32768, -32768))
	assert.InDelta(t, 0, db, 1e-9)
}

func TestLevelDBSine(t *testing.T) {
	// full scale sine has RMS 1/sqrt2, about -3 dBFS
	db := LevelDB(sine(44100, 44100, 441, 1))
	assert.InDelta(t, -3.01, db, 0.05)

	db = LevelDB(sine(44100, 44100, 441, 0.1))
	assert.InDelta(t, -23.01, db, 0.05)
}

func TestLevelDBOddByteIgnored(t *testing.T) {
	data := append(pcm(16384, 16384), 0x7f)
	assert.InDelta(t, 20*math.Log10(0.5), LevelDB(data), 1e-9)
}

func TestAmplitudeRoundTrip(t *testing.T) {
	for _, db := range []float64{-60, -40, -30, -20, -10, -6} {
		data := sine(4410, 44100, 441, Amplitude(db))
		assert.InDelta(t, db, LevelDB(data), 0.1, "level %v", db)
	}
	assert.Equal(t, 0.0, Amplitude(FloorDB))
	assert.Equal(t, 1.0, Amplitude(10))
}

func TestMeterWindows(t *testing.T) {
	var got []float64
	m := NewMeter(1000, 10*time.Millisecond, func(db float64) { got = append(got, db) })
	require.Equal(t, 10, m.WindowFrames())

	loud := make([]int16, 10)
	for i := range loud {
		loud[i] = 16384
	}
	m.Process(pcm(loud[:4]...))
	assert.Empty(t, got)
	assert.Equal(t, FloorDB, m.Last())

	m.Process(pcm(loud[4:]...))
	require.Len(t, got, 1)
	assert.InDelta(t, -6.02, got[0], 0.01)

	// one call spanning two windows emits twice
	m.Process(pcm(make([]int16, 20)...))
	require.Len(t, got, 3)
	assert.Equal(t, FloorDB, got[2])
	assert.Equal(t, FloorDB, m.Last())
}

func TestMeterReset(t *testing.T) {
	var got []float64
	m := NewMeter(1000, 4*time.Millisecond, func(db float64) { got = append(got, db) })
	m.Process(pcm(32767, 32767, 32767))
	m.Reset()
	m.Process(pcm(0, 0, 0, 0))
	require.Len(t, got, 1)
	assert.Equal(t, FloorDB, got[0])
}
