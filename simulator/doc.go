// Package simulator models the device listening on the motor topics. It
// keeps the last selected motor and the current direction of every motor,
// which makes it usable both as a bench stand-in for the real controller
// board and as the receiving end of broker integration tests.
package simulator
