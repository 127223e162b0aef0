package traefik

import "errors"

var (
	ErrEmptyHostname   = errors.New("hostname cannot be empty")
	ErrInvalidHostname = errors.New("hostname contains characters not allowed in a Host rule")
	ErrEmptyRoutingKey = errors.New("routing key cannot be empty")
	ErrInvalidPort     = errors.New("port must be between 1 and 65535")
)
