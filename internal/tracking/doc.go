// Package tracking runs the live location tracking session started by a
// trigger.
//
// A session samples the device position with two independent strategies
// until its window ends: an interval poll that guarantees a fix every poll
// period, and a reactive watch that records every reported position change.
// Both write to the sink without coordination; the sink deduplicates. The
// session record is persisted so Resume can continue the same wall-clock
// window after the process restarts.
package tracking
