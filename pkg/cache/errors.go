package cache

import "errors"

var (
	// ErrBackendNil is returned when the cache is built without a secondary backend
	ErrBackendNil = errors.New("cache: secondary backend cannot be nil")

	// ErrSerialize is returned when a value cannot be encoded to JSON
	ErrSerialize = errors.New("cache: failed to serialize value")

	// ErrInvalidRawJSON is returned when a json.RawMessage value is not valid JSON
	ErrInvalidRawJSON = errors.New("cache: raw value is not valid JSON")

	// ErrCompress is returned when gzip compression fails
	ErrCompress = errors.New("cache: failed to compress value")

	// ErrDecompress is returned when a marked payload cannot be inflated
	ErrDecompress = errors.New("cache: failed to decompress value")
)
