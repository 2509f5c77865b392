// Package gps turns an NMEA 0183 stream into location fixes.
//
// A Receiver reads RMC and GGA sentences from a serial GPS (or any line
// stream), keeps the latest valid fix and notifies watchers when the position
// changes. It implements tracking.Provider.
package gps
