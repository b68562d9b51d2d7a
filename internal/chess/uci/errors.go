package uci

import "errors"

var (
	ErrSessionClosed    = errors.New("uci session closed")
	ErrNoLimits         = errors.New("no search limits specified")
	errBucketAtCapacity = errors.New("session bucket at capacity")
)
