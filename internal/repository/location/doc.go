// Package location is the append-only location sink backed by SQLite.
//
// Samples are keyed by (alert id, capture time) and inserted with
// INSERT OR IGNORE, so the two unsynchronised acquisition strategies may
// record the same fix twice without error. The schema is managed with
// golang-migrate from migrations embedded in the binary.
package location
