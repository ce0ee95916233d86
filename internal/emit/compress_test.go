package emit

import (
	"bytes"
	"io"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

func TestCompressGzipRoundTrips(t *testing.T) {
	data := []byte("Package: foo\nVersion: 1\n")
	out, err := CompressGzip(data)
	if err != nil {
		t.Fatalf("compressing: %v", err)
	}
	r, err := gzip.NewReader(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("opening gzip reader: %v", err)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("reading: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("round trip mismatch: got %q want %q", got, data)
	}
}

func TestCompressXZRoundTrips(t *testing.T) {
	data := []byte("Package: foo\nVersion: 1\n")
	out, err := CompressXZ(data)
	if err != nil {
		t.Fatalf("compressing: %v", err)
	}
	r, err := xz.NewReader(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("opening xz reader: %v", err)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("reading: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("round trip mismatch: got %q want %q", got, data)
	}
}

func TestCompressZstdRoundTrips(t *testing.T) {
	data := []byte("Package: foo\nVersion: 1\n")
	out, err := CompressZstd(data)
	if err != nil {
		t.Fatalf("compressing: %v", err)
	}
	r, err := zstd.NewReader(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("opening zstd reader: %v", err)
	}
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("reading: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("round trip mismatch: got %q want %q", got, data)
	}
}
