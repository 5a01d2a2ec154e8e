package patternscan

import (
	"errors"
	"fmt"
	"io"
)

var errInvalidRead = errors.New("patternscan: reader returned invalid count")

// Scanner streams a source through a fixed-size window and yields the
// absolute offsets at which a Pattern matches.
//
// The window holds filled valid bytes starting at position 0. When the
// cursor gets within one pattern length of filled, the bytes from the
// cursor on are carried to the front of the window and the next chunk is
// read behind them, so a match spanning two reads is still seen. A
// Scanner must not be used from more than one goroutine at a time.
type Scanner struct {
	reader  io.Reader
	pattern *Pattern

	//window
	buf    []byte
	filled int
	cursor int

	//stream
	offset int64
	read   int64
	eof    bool
	empty  int

	//err
	lasterr error
	err     error
}

var _ Matcher = (*Scanner)(nil)

// NewScanner returns a Scanner looking for pattern in reader. Nothing is
// read until the first call to Next. It fails with ErrPatternTooLong if the
// pattern is longer than half of the window.
func NewScanner(reader io.Reader, pattern *Pattern, opts ...Option) (*Scanner, error) {
	if pattern == nil || pattern.Len() == 0 {
		return nil, ErrEmptyPattern
	}
	c := applyOptions(opts...)
	if 2*pattern.Len() > c.windowSize {
		return nil, fmt.Errorf("%w: %d bytes, at most %d for a %d byte window",
			ErrPatternTooLong, pattern.Len(), c.windowSize/2, c.windowSize)
	}
	return &Scanner{
		reader:  reader,
		pattern: pattern,
		buf:     make([]byte, c.windowSize),
	}, nil
}

// Reset rebinds the Scanner to reader and rewinds all cursors. The window is reused.
func (s *Scanner) Reset(reader io.Reader) {
	s.reader = reader
	s.filled, s.cursor = 0, 0
	s.offset, s.read = 0, 0
	s.eof, s.empty = false, 0
	s.lasterr, s.err = nil, nil
}

func (s *Scanner) Pattern() *Pattern { return s.pattern }

// Offset returns how many byte positions have been scanned so far.
func (s *Scanner) Offset() int64 { return s.offset }

// Next returns the offset of the next match. At the end of the source it
// returns io.EOF; if the source failed, a *ReadError. Bytes delivered along
// with a read error are scanned before the error is reported. Once Next has
// returned an error it keeps returning it and never reads again.
func (s *Scanner) Next() (int64, error) {
	if s.err != nil {
		return -1, s.err
	}
	plen := s.pattern.Len()
	for {
		if s.cursor+plen >= s.filled && !s.eof && s.lasterr == nil {
			s.refill()
			continue
		}
		if s.cursor+plen > s.filled {
			if s.lasterr != nil {
				s.err = &ReadError{Offset: s.read, Err: s.lasterr}
			} else {
				s.err = io.EOF
			}
			return -1, s.err
		}

		i := s.cursor
		s.cursor++
		s.offset++
		if s.pattern.Match(s.buf[i:s.filled]) {
			return s.offset - 1, nil
		}
	}
}

// refill moves the unscanned tail (at most one pattern length) to the front
// of the window and reads the next chunk behind it.
func (s *Scanner) refill() {
	carry := copy(s.buf, s.buf[s.cursor:s.filled])
	s.cursor = 0
	s.filled = carry

	n, err := s.reader.Read(s.buf[carry:])
	if n < 0 || n > len(s.buf)-carry {
		s.lasterr = errInvalidRead
		return
	}
	s.filled += n
	s.read += int64(n)

	switch {
	case err == io.EOF:
		s.eof = true
	case err != nil:
		s.lasterr = err
	case n == 0:
		s.empty++
		if s.empty >= maxConsecutiveEmptyReads {
			s.lasterr = io.ErrNoProgress
		}
	default:
		s.empty = 0
	}
}

// All drains the Scanner and returns every match offset in ascending
// order. If the source fails partway the offsets found so far are dropped.
func (s *Scanner) All() ([]int64, error) {
	var out []int64
	for {
		off, err := s.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, off)
	}
}

// First returns the first match offset and stops; the source is not read
// beyond the chunk containing the match.
func (s *Scanner) First() (int64, bool, error) {
	off, err := s.Next()
	if err == io.EOF {
		return -1, false, nil
	}
	if err != nil {
		return -1, false, err
	}
	return off, true, nil
}

// Scan compiles pattern and returns the offsets of all its matches in reader.
// An invalid pattern is reported before anything is read.
func Scan(reader io.Reader, pattern string, opts ...Option) ([]int64, error) {
	p, err := Compile(pattern)
	if err != nil {
		return nil, err
	}
	return ScanPattern(reader, p, opts...)
}

// ScanFirst compiles pattern and returns the offset of its first match in reader.
func ScanFirst(reader io.Reader, pattern string, opts ...Option) (int64, bool, error) {
	p, err := Compile(pattern)
	if err != nil {
		return -1, false, err
	}
	return ScanFirstPattern(reader, p, opts...)
}

func ScanPattern(reader io.Reader, pattern *Pattern, opts ...Option) ([]int64, error) {
	s, err := NewScanner(reader, pattern, opts...)
	if err != nil {
		return nil, err
	}
	return s.All()
}

func ScanFirstPattern(reader io.Reader, pattern *Pattern, opts ...Option) (int64, bool, error) {
	s, err := NewScanner(reader, pattern, opts...)
	if err != nil {
		return -1, false, err
	}
	return s.First()
}
