package settings

import "errors"

var (
	// ErrInvalidAddress is returned when a broker URI cannot be used.
	ErrInvalidAddress = errors.New("settings: invalid broker address")

	// ErrInvalidConfig is returned by ConnectionConfig.Validate.
	ErrInvalidConfig = errors.New("settings: invalid connection config")
)
