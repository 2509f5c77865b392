// Package client implements shake-arm and shake-disarm.
//
// The command writes the armed flag (and, when arming, the detector config)
// to the durable store shared with the monitor and the background executor,
// retrying transient write failures. When the monitor exposes a status
// server, the command waits for it to confirm the new state.
package client
