// Package status implements the gRPC transport exposing the monitor state.
//
// It serves the standard grpc.health.v1 protocol so supervisors and the
// shake-arm tool can see whether the detector is armed and whether a live
// tracking session is running, without a custom protobuf API.
package status
