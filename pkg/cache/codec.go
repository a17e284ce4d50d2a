package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// CompressionMarker prefixes every compressed payload. Serialized JSON can never
// start with 'g', so values written without compression stay readable as-is.
const CompressionMarker = "gz:"

// codec serializes values to JSON and gzips them once they reach the threshold.
type codec struct {
	threshold int
	level     int
}

func newCodec(threshold, level int) codec {
	if level < gzip.HuffmanOnly || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}
	return codec{threshold: threshold, level: level}
}

// encode marshals value and reports whether the result was compressed.
func (c codec) encode(value any) ([]byte, bool, error) {
	raw, err := marshalValue(value)
	if err != nil {
		return nil, false, err
	}
	if c.threshold <= 0 || len(raw) < c.threshold {
		return raw, false, nil
	}

	var buf bytes.Buffer
	buf.Grow(len(CompressionMarker) + len(raw)/2)
	buf.WriteString(CompressionMarker)

	zw, err := gzip.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrCompress, err)
	}
	if _, err := zw.Write(raw); err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrCompress, err)
	}
	if err := zw.Close(); err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrCompress, err)
	}
	return buf.Bytes(), true, nil
}

// decode strips the compression marker when present and returns the serialized JSON.
func (c codec) decode(stored []byte) (json.RawMessage, error) {
	if !bytes.HasPrefix(stored, []byte(CompressionMarker)) {
		return json.RawMessage(stored), nil
	}

	zr, err := gzip.NewReader(bytes.NewReader(stored[len(CompressionMarker):]))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecompress, err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecompress, err)
	}
	return json.RawMessage(raw), nil
}

func marshalValue(value any) ([]byte, error) {
	switch v := value.(type) {
	case json.RawMessage:
		if !json.Valid(v) {
			return nil, ErrInvalidRawJSON
		}
		return cloneBytes(v), nil
	default:
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSerialize, err)
		}
		return raw, nil
	}
}
