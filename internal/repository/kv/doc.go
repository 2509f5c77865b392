// Package kv implements the durable key-value store the execution contexts
// use as their only shared channel.
//
// Values are protobuf structpb.Value messages. FileStore keeps one protojson
// file per key and replaces it atomically, so a process killed mid-write
// leaves either the old or the new value behind. MemoryStore backs tests.
package kv
