// Package patternscan locates byte signatures with "?" wildcards inside
// streams of any length while holding only a fixed-size window in memory.
//
// Patterns are written as whitespace separated hex bytes, "?" standing for
// any byte:
//
//	fe 00 68 98
//	8d 11 ? ? 8f
//
// A Scanner reads its source in chunks and carries the tail of every chunk
// over to the next one, so matches straddling a chunk boundary are found.
// Overlapping matches are all reported, in ascending offset order.
package patternscan

import (
	"errors"
	"fmt"
	"io"
)

const (
	// DefaultWindowSize is the capacity of a Scanner's read window. A pattern
	// can be at most half of the window long.
	DefaultWindowSize = 2048

	maxConsecutiveEmptyReads = 100
)

var (
	ErrInvalidPatternToken = errors.New("patternscan: invalid pattern token")
	ErrPatternTooLong      = errors.New("patternscan: pattern too long")
	ErrEmptyPattern        = errors.New("patternscan: empty pattern")
)

// TokenError reports a token that is neither "?" nor a one or two digit hex byte.
type TokenError struct {
	Token string
	Index int
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("patternscan: invalid pattern token %q at position %d", e.Token, e.Index)
}

func (e *TokenError) Unwrap() error { return ErrInvalidPatternToken }

// ReadError wraps a failure of the scanned source. Offset is the number of
// bytes that had been read successfully before it.
type ReadError struct {
	Offset int64
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("patternscan: read failed after %d bytes: %v", e.Offset, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

type Resetter interface {
	Reset(reader io.Reader)
}

// Matcher produces match offsets from a source one at a time.
type Matcher interface {
	Resetter

	//Next returns the absolute offset of the next match start.
	//It returns io.EOF once the source is exhausted.
	Next() (offset int64, err error)
}

type config struct {
	windowSize int
}

// Option configures a Scanner.
type Option func(*config)

// WithWindowSize sets the read window capacity. Values <= 0 keep DefaultWindowSize.
func WithWindowSize(size int) Option {
	return func(c *config) {
		if size > 0 {
			c.windowSize = size
		}
	}
}

func applyOptions(opts ...Option) config {
	c := config{windowSize: DefaultWindowSize}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
