package audio

import "errors"

// Load failure kinds. Each failure mode of the loader wraps exactly one of
// these so callers can branch with errors.Is. The engine never retries; any
// retry policy belongs to the caller.
var (
	// ErrNetwork indicates the asset fetch failed in transit.
	ErrNetwork = errors.New("preview fetch failed")

	// ErrMissingAsset indicates no playable preview locator is present.
	ErrMissingAsset = errors.New("no playable preview")

	// ErrDecode indicates bytes were fetched but are not decodable audio.
	ErrDecode = errors.New("preview not decodable as audio")

	// ErrTimeout indicates the fetch exceeded its bound.
	ErrTimeout = errors.New("preview fetch timed out")
)
