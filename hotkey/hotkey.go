// Package hotkey listens for the global Ctrl+Shift+M toggle.
package hotkey

const Combo = "Ctrl+Shift+M"

type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}
