// Package relay forwards provider output to a UI over a websocket.
//
// Every chunk of a streamed response becomes one JSON [StreamEvent] tagged
// with a per-request stream id. Each request ends with exactly one "done"
// event, whether it succeeded or not, so a client can always tell where one
// answer stops and the next begins.
package relay
