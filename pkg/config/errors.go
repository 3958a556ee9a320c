package config

import "errors"

var (
	// ErrUpstreamRequired is returned when upstream.url is not provided
	ErrUpstreamRequired = errors.New("upstream url is required")

	// ErrNoTenants is returned when the tenant table is empty
	ErrNoTenants = errors.New("at least one tenant must be configured")

	// ErrInvalidSessionStore is returned for an unknown session store type
	ErrInvalidSessionStore = errors.New("invalid session store type (allowed: memory, leveldb, redis)")

	// ErrInvalidOAuthMode is returned for an unknown tenant OAuth mode
	ErrInvalidOAuthMode = errors.New("invalid oauth mode (allowed: required, optional, disabled)")

	// ErrConfigFileNotFound is returned when the config file is not found
	ErrConfigFileNotFound = errors.New("configuration file not found")
)
