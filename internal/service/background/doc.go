// Package background implements the time-boxed background wake cycle.
//
// A host scheduler (cron, a systemd timer, launchd) starts shake-background
// while the foreground monitor is not running. One cycle re-arms a detector
// from the persisted config, consumes fresh motion snapshots and, on a
// trigger, raises the one-shot signal the monitor dispatches on its next
// start. The cycle never outlives its budget.
//
// The Recorder is the snapshot feeder for hosts where no other process
// persists motion while the monitor is down.
package background
