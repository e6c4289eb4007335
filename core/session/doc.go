// Package session implements the motor command session controller.
//
// A Controller owns the selected motor, the start time of the current
// movement and an append-only event log. It turns operator intent (select a
// motor, start in a direction, stop) into commands published through a
// broker Link. Publishing is best effort: when the link is not connected the
// command is dropped, a diagnostic is logged and the operation still
// completes and appends its log entry.
//
// A Controller is driven by a single caller; its operations are processed in
// the order they are invoked and never wait on the network.
package session
