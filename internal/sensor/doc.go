// Package sensor reads accelerometer samples for the detector.
//
// Samples arrive as text lines "x,y,z" (commas or blanks between values),
// optionally followed by a Unix-millisecond capture time. LineSource parses any
// reader; Open picks a serial port, a file or stdin from a device string.
package sensor
