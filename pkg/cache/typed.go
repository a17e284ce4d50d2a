package cache

import (
	"context"
	"encoding/json"
)

// GetAs returns the value stored under key decoded as T, or def on a miss.
func GetAs[T any](ctx context.Context, c *Cache, key string, def T) T {
	var v T
	if !c.Get(ctx, key, &v) {
		return def
	}
	return v
}

// GetMultiAs decodes every found key as T. Keys that are missing or fail to
// decode map to def.
func GetMultiAs[T any](ctx context.Context, c *Cache, keys []string, def T) map[string]T {
	found := c.GetMulti(ctx, keys)
	out := make(map[string]T, len(keys))
	for _, key := range keys {
		raw, ok := found[key]
		if !ok {
			out[key] = def
			continue
		}
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			out[key] = def
			continue
		}
		out[key] = v
	}
	return out
}
