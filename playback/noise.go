package playback

import (
	"math/rand/v2"

	"github.com/gopxl/beep/v2"
)

// BuiltinWhiteNoise names the generated masking sound.
const BuiltinWhiteNoise = "builtin:whitenoise"

const noiseAmplitude = 0.5

// whiteNoise is an endless uniform noise source, identical on both channels.
type whiteNoise struct {
	rng *rand.Rand
}

func newWhiteNoise(seed uint64) *whiteNoise {
	return &whiteNoise{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (w *whiteNoise) Stream(samples [][2]float64) (int, bool) {
	for i := range samples {
		v := (w.rng.Float64()*2 - 1) * noiseAmplitude
		samples[i][0] = v
		samples[i][1] = v
	}
	return len(samples), true
}

func (w *whiteNoise) Err() error { return nil }

var _ beep.Streamer = (*whiteNoise)(nil)
