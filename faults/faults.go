// Package faults holds the error kinds shared by every part of the pipeline.
// None of them are recoverable locally: any of them tears down the whole
// pipeline.
package faults

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks a pipeline that cannot start, like too few stages
	// or an input that does not fit the pipeline.
	ErrConfiguration = errors.New("configuration error")

	// ErrIO marks a source or sink that could not read or write its data.
	ErrIO = errors.New("io error")

	// ErrProtocol marks a broken link or stage contract, like data after an
	// end marker or an unknown wire tag.
	ErrProtocol = errors.New("protocol violation")
)

func Configuration(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

func Protocol(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocol, fmt.Sprintf(format, args...))
}
