package pebblestore

import "errors"

var (
	ErrDataDirRequired  = errors.New("pebble: data dir is required")
	ErrOpen             = errors.New("pebble: failed to open database")
	ErrNilBatch         = errors.New("pebble: nil batch")
	ErrInvalidFsyncMode = errors.New("pebble: invalid fsync mode")
	ErrCorruptEntry     = errors.New("pebble: entry is shorter than its header")
)
