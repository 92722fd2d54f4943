package config

import (
	"errors"
	"fmt"
)

// Sentinel errors for configuration loading.
var (
	// ErrInvalidYAML indicates a YAML file could not be parsed.
	ErrInvalidYAML = errors.New("invalid YAML")

	// ErrValidation indicates configuration failed validation.
	ErrValidation = errors.New("configuration validation failed")

	// ErrNotFound indicates a lookup against a registry missed.
	ErrNotFound = errors.New("not found")
)

// LoadError wraps a failure to load one configuration file.
type LoadError struct {
	File string
	Err  error
}

// NewLoadError creates a LoadError for the given file.
func NewLoadError(file string, err error) *LoadError {
	return &LoadError{File: file, Err: err}
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.File, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
