package config

import "errors"

var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config file")
	ErrDirEmpty           = errors.New("dir cannot be empty")
	ErrCapacityInvalid    = errors.New("capacity must be >= 1")
	ErrLogLevelInvalid    = errors.New("invalid log level")
)
