// Package consumer defines the hand-off point for detected triggers.
//
// The foreground monitor passes every trigger it takes from the bridge to a
// Consumer exactly once. Delivery to contacts and channels lives behind this
// interface and is not part of this module.
package consumer
