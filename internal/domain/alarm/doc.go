// Package alarm holds the domain types shared by the detector, the background
// bridge and the tracking session: detector configuration and events, motion
// and location samples, the tracking session record and the error taxonomy.
package alarm
