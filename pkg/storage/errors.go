package storage

import "errors"

var (
	ErrUnknownKind          = errors.New("storage: unknown backend kind")
	ErrSameBackend          = errors.New("storage: primary and secondary must be different backends")
	ErrSecondaryUnavailable = errors.New("storage: secondary backend is unavailable")
	ErrHealthcheckFailed    = errors.New("storage: healthcheck failed")
)
