package control

import "errors"

// ErrAlreadyRunning is returned by Start when another process is already
// listening on the control endpoint.
var ErrAlreadyRunning = errors.New("switchboard already running")

// ErrStaleRecoveryFailed is returned by Start when the single permitted
// stale-socket recovery retry itself fails to bind.
var ErrStaleRecoveryFailed = errors.New("stale control endpoint recovery failed")

var errInvalidOrigin = errors.New("origin missing host")
