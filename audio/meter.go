package audio

import (
	"encoding/binary"
	"math"
	"sync"
	"time"
)

// FloorDB is reported for digital silence.
const FloorDB = -160.0

// Meter turns a stream of 16-bit PCM into one RMS level per window, in dBFS.
type Meter struct {
	windowFrames int
	emit         func(db float64)

	mu     sync.Mutex
	sumSq  float64
	frames int
	last   float64
}

// NewMeter reports a level every interval worth of samples at sampleRate.
func NewMeter(sampleRate uint32, interval time.Duration, emit func(db float64)) *Meter {
	n := int(time.Duration(sampleRate) * interval / time.Second)
	if n < 1 {
		n = 1
	}
	return &Meter{windowFrames: n, emit: emit, last: FloorDB}
}

func (m *Meter) WindowFrames() int { return m.windowFrames }

// Process consumes little-endian mono samples. A trailing odd byte is
// dropped.
func (m *Meter) Process(data []byte) {
	var ready []float64

	m.mu.Lock()
	for i := 0; i+1 < len(data); i += BytesPerSample {
		s := float64(int16(binary.LittleEndian.Uint16(data[i:]))) / 32768
		m.sumSq += s * s
		m.frames++
		if m.frames == m.windowFrames {
			db := toDB(math.Sqrt(m.sumSq / float64(m.frames)))
			m.last = db
			ready = append(ready, db)
			m.sumSq, m.frames = 0, 0
		}
	}
	m.mu.Unlock()

	if m.emit != nil {
		for _, db := range ready {
			m.emit(db)
		}
	}
}

// Last returns the most recent completed window.
func (m *Meter) Last() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func (m *Meter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sumSq, m.frames = 0, 0
	m.last = FloorDB
}

// LevelDB is the RMS level of a block of samples in dBFS.
func LevelDB(data []byte) float64 {
	var sumSq float64
	n := 0
	for i := 0; i+1 < len(data); i += BytesPerSample {
		s := float64(int16(binary.LittleEndian.Uint16(data[i:]))) / 32768
		sumSq += s * s
		n++
	}
	if n == 0 {
		return FloorDB
	}
	return toDB(math.Sqrt(sumSq / float64(n)))
}

func toDB(rms float64) float64 {
	if rms <= 0 {
		return FloorDB
	}
	return max(20*math.Log10(rms), FloorDB)
}

// Amplitude is the peak of a sine whose RMS sits at db dBFS, clamped to
// full scale.
func Amplitude(db float64) float64 {
	if db <= FloorDB {
		return 0
	}
	return min(math.Pow(10, db/20)*math.Sqrt2, 1)
}
