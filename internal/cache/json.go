package cache

import (
	"encoding/json"
	"time"
)

// GetJSON decodes a cached JSON value into T. A decode failure counts as a miss.
func GetJSON[T any](c Cache, key string) (T, bool) {
	var out T
	raw, ok := c.Get(key)
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		c.Delete(key)
		return out, false
	}
	return out, true
}

// SetJSON encodes value as JSON and stores it with ttl.
func SetJSON(c Cache, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.Set(key, raw, ttl)
	return nil
}
