package dmtrace

//
// Key section
//
// The text part of a method trace.
//

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// keySection is a section of the key, introduced by a "*name" line.
type keySection int

const (
	keySectionNone = keySection(iota)
	keySectionVersion
	keySectionThreads
	keySectionMethods
	keySectionUnknown
)

// keyParser parses the key section line by line.
type keyParser struct {
	br      *bufio.Reader
	lineno  int
	section keySection
	seenVer bool
	tr      *Trace
}

// readLine returns the next line without the line terminator.
func (kp *keyParser) readLine() (string, error) {
	line, err := kp.br.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return "", kp.errorf("unterminated line %q", line)
		}
		if errors.Is(err, io.EOF) {
			return "", kp.errorf("unexpected end of input before *end")
		}
		return "", err
	}
	kp.lineno++
	return strings.TrimRight(line, "\r\n"), nil
}

func (kp *keyParser) errorf(format string, v ...interface{}) error {
	return fmt.Errorf("%w: line %d: %s", ErrMalformedKey, kp.lineno, fmt.Sprintf(format, v...))
}

// parse consumes the key section up to and including the "*end" line.
func (kp *keyParser) parse() error {
	first, err := kp.readLine()
	if err != nil || first != "*version" {
		return ErrNoKeySection
	}
	kp.section = keySectionVersion
	for {
		line, err := kp.readLine()
		if err != nil {
			return err
		}
		if strings.HasPrefix(line, "*") {
			switch line {
			case "*end":
				return kp.finish()
			case "*version":
				kp.section = keySectionVersion
			case "*threads":
				kp.section = keySectionThreads
			case "*methods":
				kp.section = keySectionMethods
			default:
				kp.section = keySectionUnknown
			}
			continue
		}
		if err := kp.parseLine(line); err != nil {
			return err
		}
	}
}

func (kp *keyParser) parseLine(line string) error {
	switch kp.section {
	case keySectionVersion:
		return kp.parseVersionLine(line)
	case keySectionThreads:
		return kp.parseThreadLine(line)
	case keySectionMethods:
		return kp.parseMethodLine(line)
	default:
		return nil // we ignore sections we don't know about
	}
}

func (kp *keyParser) parseVersionLine(line string) error {
	if !kp.seenVer {
		v, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil {
			return kp.errorf("invalid version %q", line)
		}
		kp.tr.Version = v
		kp.seenVer = true
		return nil
	}
	key, value, found := strings.Cut(line, "=")
	if !found {
		return kp.errorf("expected key=value, got %q", line)
	}
	kp.tr.Props[key] = value
	return nil
}

func (kp *keyParser) parseThreadLine(line string) error {
	sid, name, found := strings.Cut(line, "\t")
	if !found {
		return kp.errorf("expected thread id and name, got %q", line)
	}
	id, err := strconv.ParseUint(sid, 10, 16)
	if err != nil {
		return kp.errorf("invalid thread id %q", sid)
	}
	kp.tr.Threads = append(kp.tr.Threads, &Thread{ID: uint16(id), Name: name})
	return nil
}

func (kp *keyParser) parseMethodLine(line string) error {
	fields := strings.Split(line, "\t")
	if len(fields) < 4 {
		return kp.errorf("expected at least four method fields, got %d", len(fields))
	}
	id, err := strconv.ParseUint(fields[0], 0, 32)
	if err != nil {
		return kp.errorf("invalid method id %q", fields[0])
	}
	m := &Method{
		ID:        uint32(id) &^ 3,
		Class:     fields[1],
		Name:      fields[2],
		Signature: fields[3],
	}
	if len(fields) > 4 {
		m.Source = fields[4]
	}
	if len(fields) > 5 {
		// traceview writes -1 for unknown lines
		if line, err := strconv.ParseInt(fields[5], 10, 64); err == nil && line > 0 {
			m.Line = line
		}
	}
	kp.tr.Methods = append(kp.tr.Methods, m)
	return nil
}

func (kp *keyParser) finish() error {
	if !kp.seenVer {
		return kp.errorf("missing version number")
	}
	switch Clock(kp.tr.Props["clock"]) {
	case ClockThreadCPU, ClockWall, ClockDual:
		kp.tr.Clock = Clock(kp.tr.Props["clock"])
	case "":
		// decided later from the data header
	default:
		return kp.errorf("unknown clock %q", kp.tr.Props["clock"])
	}
	return nil
}
