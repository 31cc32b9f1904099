package cmd

import "errors"

var (
	ErrUnknownConfigFormat = errors.New("unknown config file format")
	ErrNoSecret            = errors.New("no signing secret")
)
