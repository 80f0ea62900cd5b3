// Package calltree reconstructs method invocations from the enter
// and exit records of a method trace.
package calltree

import (
	"sort"
	"time"

	"github.com/smartdiet/netanalyzer/internal/dmtrace"
	"github.com/smartdiet/netanalyzer/internal/logcat"
)

// Invocation is a single execution of a method on a thread.
type Invocation struct {
	// Method is the invoked method, nil when the method ID is
	// missing from the method table.
	Method *dmtrace.Method

	// MethodID is the invoked method ID.
	MethodID uint32

	// ThreadID is the thread that executed the invocation.
	ThreadID uint16

	// Depth is zero for roots and grows by one per nesting level.
	Depth int

	// Enter is the time since the start of tracing when the method
	// was entered. We use wall time when the trace has it and thread
	// CPU time otherwise.
	Enter time.Duration

	// Exit is the time when the method returned.
	Exit time.Duration

	// ThreadTime is the thread CPU time spent in the invocation,
	// zero when the trace has no thread CPU clock.
	ThreadTime time.Duration

	// Unwound is true when the method exited by throwing.
	Unwound bool

	// Unfinished is true when the method had not returned when
	// tracing stopped.
	Unfinished bool

	// Parent is the calling invocation, nil for roots.
	Parent *Invocation

	// Children are the invocations made by this one, in order.
	Children []*Invocation

	threadEnter time.Duration
	seq         int
}

// Duration returns the inclusive duration.
func (inv *Invocation) Duration() time.Duration {
	return inv.Exit - inv.Enter
}

// SelfDuration returns the duration not spent in children.
func (inv *Invocation) SelfDuration() time.Duration {
	d := inv.Duration()
	for _, c := range inv.Children {
		d -= c.Duration()
	}
	return d
}

// Name returns the method full name or a placeholder.
func (inv *Invocation) Name() string {
	if inv.Method != nil {
		return inv.Method.FullName()
	}
	return unknownMethodName(inv.MethodID)
}

// Stack returns the invocation and its callers, outermost first.
func (inv *Invocation) Stack() []*Invocation {
	var out []*Invocation
	for cur := inv; cur != nil; cur = cur.Parent {
		out = append(out, cur)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Thread contains the invocations of a thread.
type Thread struct {
	// ID is the thread ID.
	ID uint16

	// Name is the thread name.
	Name string

	// Roots contains the outermost invocations, in order.
	Roots []*Invocation

	// Invocations contains all invocations in enter order.
	Invocations []*Invocation
}

// Forest contains the invocations of all threads.
type Forest struct {
	// Threads contains the threads in order of first record.
	Threads []*Thread

	// Orphans counts exits without a matching enter, which
	// happen for methods already running when tracing started.
	Orphans int

	// Mismatched counts frames we closed because an exit for an
	// outer method arrived before their own exit.
	Mismatched int

	// Unfinished counts frames still open when tracing stopped.
	Unfinished int

	byID map[uint16]*Thread
	seq  int
}

// Build builds the Forest of the given trace.
func Build(tr *dmtrace.Trace) *Forest {
	f := &Forest{byID: map[uint16]*Thread{}}
	stacks := map[uint16][]*Invocation{}
	last := map[uint16]dmtrace.Record{}
	useWall := tr.Clock.HasWall()
	for _, rec := range tr.Records {
		th := f.thread(tr, rec.ThreadID)
		t := rec.ThreadTime
		if useWall {
			t = rec.WallTime
		}
		last[rec.ThreadID] = rec
		stack := stacks[rec.ThreadID]
		switch rec.Action {
		case dmtrace.ActionEnter:
			inv := &Invocation{
				Method:      tr.Method(rec.MethodID),
				MethodID:    rec.MethodID,
				ThreadID:    rec.ThreadID,
				Depth:       len(stack),
				Enter:       t,
				threadEnter: rec.ThreadTime,
				seq:         f.seq,
			}
			f.seq++
			if len(stack) > 0 {
				inv.Parent = stack[len(stack)-1]
				inv.Parent.Children = append(inv.Parent.Children, inv)
			} else {
				th.Roots = append(th.Roots, inv)
			}
			th.Invocations = append(th.Invocations, inv)
			stacks[rec.ThreadID] = append(stack, inv)
		default:
			stacks[rec.ThreadID] = f.pop(stack, rec, t)
		}
	}
	for tid, stack := range stacks {
		rec := last[tid]
		t := rec.ThreadTime
		if useWall {
			t = rec.WallTime
		}
		for i := len(stack) - 1; i >= 0; i-- {
			stack[i].close(t, rec.ThreadTime)
			stack[i].Unfinished = true
			f.Unfinished++
		}
	}
	if f.Orphans > 0 || f.Mismatched > 0 {
		logcat.Debugf("calltree: %d orphan exits, %d mismatched frames", f.Orphans, f.Mismatched)
	}
	return f
}

// pop handles an exit or unwind record.
func (f *Forest) pop(stack []*Invocation, rec dmtrace.Record, t time.Duration) []*Invocation {
	idx := -1
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i].MethodID == rec.MethodID {
			idx = i
			break
		}
	}
	if idx < 0 {
		f.Orphans++
		return stack
	}
	for i := len(stack) - 1; i > idx; i-- {
		stack[i].close(t, rec.ThreadTime)
		f.Mismatched++
	}
	stack[idx].close(t, rec.ThreadTime)
	stack[idx].Unwound = rec.Action == dmtrace.ActionUnwind
	return stack[:idx]
}

func (inv *Invocation) close(t, threadTime time.Duration) {
	inv.Exit = t
	if threadTime >= inv.threadEnter {
		inv.ThreadTime = threadTime - inv.threadEnter
	}
}

func (f *Forest) thread(tr *dmtrace.Trace, tid uint16) *Thread {
	th := f.byID[tid]
	if th == nil {
		th = &Thread{ID: tid, Name: tr.ThreadName(tid)}
		f.byID[tid] = th
		f.Threads = append(f.Threads, th)
	}
	return th
}

// Thread returns the given thread or nil.
func (f *Forest) Thread(tid uint16) *Thread {
	return f.byID[tid]
}

// Invocations returns all the invocations in enter order.
func (f *Forest) Invocations() []*Invocation {
	var out []*Invocation
	for _, th := range f.Threads {
		out = append(out, th.Invocations...)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].seq < out[j].seq
	})
	return out
}

// ActiveAt returns the stack of invocations of the given thread that
// were running at time t, outermost first. An invocation counts as
// running within slack of its enter and exit times. Among siblings
// matching because of the slack we pick the nearest one.
func (f *Forest) ActiveAt(tid uint16, t, slack time.Duration) []*Invocation {
	th := f.byID[tid]
	if th == nil {
		return nil
	}
	var out []*Invocation
	level := th.Roots
	for {
		inv := nearest(level, t, slack)
		if inv == nil {
			return out
		}
		out = append(out, inv)
		level = inv.Children
	}
}

// nearest returns the invocation of level whose window contains t,
// preferring the one whose unslacked interval is closest to t.
func nearest(level []*Invocation, t, slack time.Duration) *Invocation {
	start := sort.Search(len(level), func(i int) bool {
		return level[i].Exit+slack >= t
	})
	var (
		best     *Invocation
		bestDist time.Duration
	)
	for i := start; i < len(level) && level[i].Enter-slack <= t; i++ {
		inv := level[i]
		var dist time.Duration
		switch {
		case t < inv.Enter:
			dist = inv.Enter - t
		case t > inv.Exit:
			dist = t - inv.Exit
		}
		if best == nil || dist < bestDist {
			best, bestDist = inv, dist
		}
	}
	return best
}
