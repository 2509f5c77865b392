// Package config defines the settings shared by the shake-alarm binaries and
// provides helpers to load, validate and save them in YAML format.
//
// Missing values are filled with defaults by Validate, so a minimal file (or
// none at all, see LoadOrDefault) is enough to run the monitor.
package config
