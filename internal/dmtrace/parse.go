package dmtrace

import (
	"bufio"
	"fmt"
	"io"

	"github.com/smartdiet/netanalyzer/internal/compressx"
	"github.com/smartdiet/netanalyzer/internal/logcat"
)

// Parse parses a method trace consisting of the key section
// immediately followed by the data section.
func Parse(r io.Reader) (*Trace, error) {
	br := bufio.NewReaderSize(r, 1<<16)
	tr := &Trace{Props: map[string]string{}}
	kp := &keyParser{br: br, tr: tr}
	if err := kp.parse(); err != nil {
		return nil, err
	}
	if err := parseData(br, tr); err != nil {
		return nil, err
	}
	tr.index()
	if tr.Truncated {
		logcat.Warnf("dmtrace: discarded trailing partial record after %d records", len(tr.Records))
	}
	logcat.Debugf("dmtrace: version %d clock %s: %d threads, %d methods, %d records",
		tr.DataVersion, tr.Clock, len(tr.Threads), len(tr.Methods), len(tr.Records))
	return tr, nil
}

// ReadFile opens the given file, decompressing it if its name ends
// with .gz or .zst, and parses it.
func ReadFile(filename string) (*Trace, error) {
	rc, err := compressx.Open(filename)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	tr, err := Parse(rc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return tr, nil
}
