// Package envelope generates volume set-points for fading a sound in and out.
//
// An Envelope is a pure description: it never touches audio hardware. The
// caller drains it step by step, writing each volume and then waiting out the
// step's hold duration before asking for the next one.
package envelope

import (
	"fmt"
	"iter"
	"math"
	"time"
)

type Direction int

const (
	Up Direction = iota
	Down
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Step is one volume set-point and how long to hold it.
type Step struct {
	Volume float64
	Hold   time.Duration
}

// stepEpsilon absorbs float error in 1/stepSize so that 0.1 yields 10
// increments rather than 11.
const stepEpsilon = 1e-9

// MaxSteps bounds the number of increments in one ramp.
const MaxSteps = 10_000_000

type Envelope struct {
	dir      Direction
	stepSize float64
	hold     time.Duration
	n        int // number of increments; the sequence has n+1 steps
}

func New(dir Direction, stepSize float64, hold time.Duration) (*Envelope, error) {
	if dir != Up && dir != Down {
		return nil, fmt.Errorf("envelope: invalid direction %d", int(dir))
	}
	if math.IsNaN(stepSize) || stepSize <= 0 || stepSize > 1 {
		return nil, fmt.Errorf("envelope: step size %v outside (0,1]", stepSize)
	}
	if hold < 0 {
		return nil, fmt.Errorf("envelope: negative hold %v", hold)
	}
	n := math.Ceil(1/stepSize - stepEpsilon)
	if n > MaxSteps {
		return nil, fmt.Errorf("envelope: step size %v needs more than %d steps", stepSize, MaxSteps)
	}
	return &Envelope{
		dir:      dir,
		stepSize: stepSize,
		hold:     hold,
		n:        int(n),
	}, nil
}

func (e *Envelope) Direction() Direction { return e.dir }

// Len returns the number of steps, including both endpoints.
func (e *Envelope) Len() int { return e.n + 1 }

// At returns step i. It panics if i is out of range.
func (e *Envelope) At(i int) Step {
	if i < 0 || i > e.n {
		panic(fmt.Sprintf("envelope: step %d out of range [0,%d]", i, e.n))
	}
	k := i
	if e.dir == Down {
		k = e.n - i
	}
	return Step{Volume: e.rise(k), Hold: e.hold}
}

// rise is the k-th volume of the upward ramp. Computed by multiplication
// rather than accumulation so the error does not grow with k.
func (e *Envelope) rise(k int) float64 {
	if k >= e.n {
		return 1
	}
	return math.Min(float64(k)*e.stepSize, 1)
}

// All yields every step in order. Each call starts from the beginning.
func (e *Envelope) All() iter.Seq[Step] {
	return func(yield func(Step) bool) {
		for i := 0; i <= e.n; i++ {
			if !yield(e.At(i)) {
				return
			}
		}
	}
}

func (e *Envelope) Volumes() []float64 {
	out := make([]float64, 0, e.Len())
	for s := range e.All() {
		out = append(out, s.Volume)
	}
	return out
}

// Duration is the total hold time of the sequence.
func (e *Envelope) Duration() time.Duration {
	return time.Duration(e.Len()) * e.hold
}

// Fade is a full masking envelope: ramp up, rest at full volume, ramp down.
type Fade struct {
	Up   *Envelope
	Rest time.Duration
	Down *Envelope
}

func NewFade(stepSize float64, hold, rest time.Duration) (Fade, error) {
	if rest < 0 {
		return Fade{}, fmt.Errorf("envelope: negative rest %v", rest)
	}
	up, err := New(Up, stepSize, hold)
	if err != nil {
		return Fade{}, err
	}
	down, err := New(Down, stepSize, hold)
	if err != nil {
		return Fade{}, err
	}
	return Fade{Up: up, Rest: rest, Down: down}, nil
}

func (f Fade) Duration() time.Duration {
	return f.Up.Duration() + f.Rest + f.Down.Duration()
}
