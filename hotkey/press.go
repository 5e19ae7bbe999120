package hotkey

import "time"

// Press is one completed press of the combo. Long is set when it was held
// for at least the long-press threshold.
type Press struct {
	Long bool
	Held time.Duration
}

// Presses turns raw keydown/keyup pairs into Press values, emitted on
// release. Holding the combo is how the user asks for the countdown start.
type Presses struct {
	ch   chan Press
	done chan struct{}
}

func NewPresses(hk Hotkey, longPress time.Duration) *Presses {
	p := &Presses{
		ch:   make(chan Press, 1),
		done: make(chan struct{}),
	}
	go p.run(hk, longPress)
	return p
}

func (p *Presses) C() <-chan Press { return p.ch }

func (p *Presses) Close() { close(p.done) }

func (p *Presses) run(hk Hotkey, longPress time.Duration) {
	for {
		select {
		case <-hk.Keydown():
		case <-p.done:
			return
		}
		start := time.Now()

		select {
		case <-hk.Keyup():
		case <-p.done:
			return
		}
		held := time.Since(start)

		select {
		case p.ch <- Press{Long: held >= longPress, Held: held}:
		case <-p.done:
			return
		}
	}
}
