// Package bridge is the message-passing protocol between the foreground
// monitor and the background executor.
//
// The two contexts never run at the same time and share nothing but the
// durable key-value store. Each key has a single writer, except the one-shot
// trigger signal, which either context may raise and only the foreground
// clears (before dispatching, so a crash loses a trigger instead of
// duplicating it). Absent keys read as inactive.
package bridge
