package telemetry

import "errors"

var (
	// ErrInvalidPayload is returned when a measurement message cannot be decoded.
	ErrInvalidPayload = errors.New("invalid measurement payload")

	// ErrAssetNotFound is returned when the asset service has no such binary.
	ErrAssetNotFound = errors.New("asset not found")

	// ErrAssetTooLarge is returned when an asset exceeds the configured size limit.
	ErrAssetTooLarge = errors.New("asset too large")

	// ErrAssetFetchFailed is returned for transport errors and unexpected
	// status codes from the asset service.
	ErrAssetFetchFailed = errors.New("asset fetch failed")
)
