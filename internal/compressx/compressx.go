// Package compressx opens trace members that may be compressed.
//
// Traces pulled from devices are often archived as gzip or zstd. We
// pick the decompressor from the file suffix, so `methods.trace.zst`
// and `methods.trace` read the same.
package compressx

import (
	"errors"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Suffixes lists the compression suffixes we understand, in the
// order in which we probe for them.
var Suffixes = []string{"", ".gz", ".zst"}

// Open opens the given file and returns a reader for its
// decompressed content. The caller must Close the reader.
func Open(filename string) (io.ReadCloser, error) {
	fp, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	switch {
	case strings.HasSuffix(filename, ".gz"):
		zr, err := gzip.NewReader(fp)
		if err != nil {
			fp.Close()
			return nil, err
		}
		return &readCloser{Reader: zr, closers: []io.Closer{zr, fp}}, nil
	case strings.HasSuffix(filename, ".zst"):
		zr, err := zstd.NewReader(fp)
		if err != nil {
			fp.Close()
			return nil, err
		}
		return &readCloser{Reader: zr, closers: []io.Closer{zstdCloser{zr}, fp}}, nil
	default:
		return fp, nil
	}
}

// Find returns the first existing file among base followed by each of
// the Suffixes. It returns os.ErrNotExist when none exists.
func Find(base string) (string, error) {
	for _, suffix := range Suffixes {
		candidate := base + suffix
		st, err := os.Stat(candidate)
		if err == nil && st.Mode().IsRegular() {
			return candidate, nil
		}
	}
	return "", os.ErrNotExist
}

// readCloser closes all the layers of a decompressing reader.
type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (rc *readCloser) Close() error {
	var errs []error
	for _, c := range rc.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// zstdCloser adapts zstd.Decoder, whose Close returns nothing.
type zstdCloser struct {
	d *zstd.Decoder
}

func (zc zstdCloser) Close() error {
	zc.d.Close()
	return nil
}
