package tstdb

import "errors"

var (
	errConfigFileNotFound = errors.New("config file not found")
	errConfigFileRead     = errors.New("cannot read config file")
	errConfigInvalid      = errors.New("invalid config file")
	errPathEmpty          = errors.New("path cannot be empty")
)
