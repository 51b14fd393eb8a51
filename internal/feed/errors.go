package feed

import "errors"

var (
	// ErrSubscribeFailed is returned when Start cannot subscribe a device.
	ErrSubscribeFailed = errors.New("feed subscription failed")

	// ErrNilSink is returned when Start is called without a sink.
	ErrNilSink = errors.New("feed sink is nil")
)
