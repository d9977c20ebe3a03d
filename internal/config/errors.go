package config

import "errors"

var (
	// ErrInvalidTimezone is returned when the timezone cannot be loaded.
	ErrInvalidTimezone = errors.New("invalid timezone")
	// ErrInvalidConfig wraps every validation failure.
	ErrInvalidConfig = errors.New("invalid configuration")
)
