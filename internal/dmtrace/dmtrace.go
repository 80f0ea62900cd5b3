// Package dmtrace parses Android method traces.
//
// A method trace is what Debug.startMethodTracing writes and traceview
// reads. It starts with a text key section describing the VM, the
// threads and the method table, terminated by "*end". The binary data
// section follows: a small little-endian header and a sequence of
// fixed-size records, one per method entry or exit.
package dmtrace

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNoKeySection indicates that the input does not start with
	// the "*version" line of a method trace key section.
	ErrNoKeySection = errors.New("dmtrace: missing key section")

	// ErrMalformedKey indicates a key section line we cannot parse.
	ErrMalformedKey = errors.New("dmtrace: malformed key section")

	// ErrBadMagic indicates that the data section does not start
	// with the "SLOW" magic number.
	ErrBadMagic = errors.New("dmtrace: bad data section magic")

	// ErrUnsupportedVersion indicates a data section version we
	// do not know how to decode.
	ErrUnsupportedVersion = errors.New("dmtrace: unsupported data section version")
)

// Clock is the clock source used for record timestamps.
type Clock string

const (
	// ClockThreadCPU means records carry per-thread CPU time only.
	ClockThreadCPU = Clock("thread-cpu")

	// ClockWall means records carry wall clock time only.
	ClockWall = Clock("wall")

	// ClockDual means records carry both thread CPU and wall time.
	ClockDual = Clock("dual")
)

// HasWall returns whether records carry wall clock time.
func (c Clock) HasWall() bool {
	return c == ClockWall || c == ClockDual
}

// Action is what a record says about a method.
type Action uint8

const (
	// ActionEnter is a method entry.
	ActionEnter = Action(0)

	// ActionExit is a normal method exit.
	ActionExit = Action(1)

	// ActionUnwind is a method exit caused by an exception.
	ActionUnwind = Action(2)
)

// String returns the traceview name of the action.
func (a Action) String() string {
	switch a {
	case ActionEnter:
		return "ent"
	case ActionExit:
		return "xit"
	case ActionUnwind:
		return "unr"
	default:
		return fmt.Sprintf("action(%d)", uint8(a))
	}
}

// Thread is an entry of the threads table.
type Thread struct {
	// ID is the VM thread ID.
	ID uint16

	// Name is the thread name (e.g., "main").
	Name string
}

// Method is an entry of the method table.
type Method struct {
	// ID is the method ID with the two action bits cleared.
	ID uint32

	// Class is the class name in slashed form (e.g., "java/net/Socket").
	Class string

	// Name is the method name (e.g., "connect").
	Name string

	// Signature is the method descriptor (e.g., "(Ljava/net/SocketAddress;I)V").
	Signature string

	// Source is the source file, when known.
	Source string

	// Line is the line number, or zero when unknown.
	Line int64
}

// FullName returns the dotted class name followed by the method name.
func (m *Method) FullName() string {
	return strings.ReplaceAll(m.Class, "/", ".") + "." + m.Name
}

// String returns FullName followed by the signature.
func (m *Method) String() string {
	return m.FullName() + m.Signature
}

// Record is a single entry of the data section.
type Record struct {
	// ThreadID is the ID of the thread that entered or exited.
	ThreadID uint16

	// MethodID is the method ID with the action bits cleared.
	MethodID uint32

	// Action is enter, exit or unwind.
	Action Action

	// ThreadTime is the thread CPU time since the start of
	// tracing. Zero when the clock has no thread CPU time.
	ThreadTime time.Duration

	// WallTime is the wall clock time since the start of
	// tracing. Zero when the clock has no wall time.
	WallTime time.Duration
}

// Trace is a parsed method trace. A Trace is immutable once returned
// by Parse and safe to use from multiple goroutines.
type Trace struct {
	// Version is the key section version.
	Version int

	// DataVersion is the data section version.
	DataVersion int

	// Clock is the clock source of the records.
	Clock Clock

	// Props contains the key=value properties of the key section.
	Props map[string]string

	// Threads is the threads table in file order.
	Threads []*Thread

	// Methods is the method table in file order.
	Methods []*Method

	// StartTime is when tracing started.
	StartTime time.Time

	// RecordSize is the size of each data record in bytes.
	RecordSize int

	// Records contains the data records in file order.
	Records []Record

	// Truncated is true when the data section ended with a
	// partial record, which we discarded.
	Truncated bool

	methodByID map[uint32]*Method
	threadByID map[uint16]*Thread
}

// Method returns the method with the given ID or nil.
func (tr *Trace) Method(id uint32) *Method {
	return tr.methodByID[id&^3]
}

// Thread returns the thread with the given ID or nil.
func (tr *Trace) Thread(id uint16) *Thread {
	return tr.threadByID[id]
}

// ThreadName returns the name of the thread with the given ID or
// a placeholder name for threads missing from the threads table.
func (tr *Trace) ThreadName(id uint16) string {
	if th := tr.Thread(id); th != nil {
		return th.Name
	}
	return fmt.Sprintf("thread-%d", id)
}

// Elapsed returns the largest wall time of any record, falling back
// to thread time when the clock has no wall time.
func (tr *Trace) Elapsed() time.Duration {
	var out time.Duration
	for _, r := range tr.Records {
		t := r.WallTime
		if !tr.Clock.HasWall() {
			t = r.ThreadTime
		}
		if t > out {
			out = t
		}
	}
	return out
}

func (tr *Trace) index() {
	tr.methodByID = make(map[uint32]*Method, len(tr.Methods))
	for _, m := range tr.Methods {
		tr.methodByID[m.ID] = m
	}
	tr.threadByID = make(map[uint16]*Thread, len(tr.Threads))
	for _, th := range tr.Threads {
		tr.threadByID[th.ID] = th
	}
}
