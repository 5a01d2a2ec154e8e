package patternscan

import (
	"bytes"
	"io"
	"testing"
	"testing/iotest"
)

func TestCountingReader(t *testing.T) {
	data := bytes.Repeat([]byte("abc"), 1000)
	cr := NewCountingReader(iotest.HalfReader(bytes.NewReader(data)))

	got, err := io.ReadAll(cr)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("CountingReader altered the data")
	}
	if cr.BytesRead() != int64(len(data)) {
		t.Fatalf("BytesRead = %d, want %d", cr.BytesRead(), len(data))
	}
	if cr.Reads() < 2 {
		t.Fatalf("Reads = %d, want several", cr.Reads())
	}
}

func TestCountingReaderScan(t *testing.T) {
	data := make([]byte, 3*DefaultWindowSize+10)
	cr := NewCountingReader(bytes.NewReader(data))

	if _, err := Scan(cr, "01 02"); err != nil {
		t.Fatal(err)
	}
	if cr.BytesRead() != int64(len(data)) {
		t.Fatalf("BytesRead = %d, want the whole source of %d", cr.BytesRead(), len(data))
	}
}
