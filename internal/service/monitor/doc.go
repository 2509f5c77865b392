// Package monitor implements the foreground shake-alarm process.
//
// The monitor owns the live detector: it reads the accelerometer, persists
// throttled motion snapshots for the background executor, follows the armed
// flag, polls the trigger signal and hands every trigger to the consumer and
// the tracking manager.
package monitor
