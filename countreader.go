package patternscan

import "io"

// CountingReader passes reads through to Reader and keeps track of how many
// bytes it delivered. It lets callers see how far a Scanner pulled its
// source, e.g. after First stopped early.
type CountingReader struct {
	Reader io.Reader
	total  int64
	reads  int
}

//Creates a Counting Reader
func NewCountingReader(reader io.Reader) *CountingReader {
	return &CountingReader{Reader: reader}
}

//Returns the number of bytes read so far
func (cr *CountingReader) BytesRead() int64 {
	return cr.total
}

//Returns the number of Read calls made so far
func (cr *CountingReader) Reads() int {
	return cr.reads
}

func (cr *CountingReader) Read(p []byte) (int, error) {
	n, err := cr.Reader.Read(p)
	cr.reads++
	if n > 0 {
		cr.total += int64(n)
	}
	return n, err
}
