// Package detector implements the shake trigger state machine.
//
// The Detector debounces accelerometer samples, accumulates shakes inside a
// reset window and suppresses re-triggers during a cooldown. It owns no
// timers: every deadline is a field compared against the capture time of the
// sample being processed, so the same Detector runs unchanged in the
// foreground monitor and in the background executor, and tests drive it with
// synthetic timestamps.
package detector
