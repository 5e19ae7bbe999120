//go:build windows

package cue

// No cue playback on Windows.
func playSamples([]int16) {}
