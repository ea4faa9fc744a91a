// Package utils provides shared low-level helpers used by the provider
// transcoders. It covers the HTTP POST helpers for both synchronous and
// streaming (SSE) exchanges with vendor APIs, SSE frame scanning, JSON
// repair for model-produced arguments, and a few generic conveniences.
//
// Key entry points: [DoPostSync] for one-shot JSON round-trips,
// [DoPostStream] together with [SSEScanner] for Server-Sent Events,
// [RepairJSON] for malformed tool arguments, and [Timer] for latency.
package utils
