package hotkey

// Linux input event codes.
const (
	evKey      = 1
	keyRelease = 0
	keyPress   = 1
	keyRepeat  = 2
	keyLCtrl   = 29
	keyRCtrl   = 97
	keyLShift  = 42
	keyRShift  = 54
	keyM       = 50
)

// chord tracks Ctrl+Shift+M across a stream of key events. feed reports
// true when the chord goes down or comes back up.
type chord struct {
	ctrl, shift bool
	down        bool
}

func (c *chord) feed(code uint16, value int32) bool {
	pressed := value == keyPress
	released := value == keyRelease

	switch code {
	case keyLCtrl, keyRCtrl:
		c.ctrl = pressed || (!released && c.ctrl)
	case keyLShift, keyRShift:
		c.shift = pressed || (!released && c.shift)
	case keyM:
		if pressed && !c.down && c.ctrl && c.shift {
			c.down = true
			return true
		}
		if released && c.down {
			c.down = false
			return true
		}
	}
	return false
}
