package analyzer

//
// Attribution
//
// Charging packets to the methods that were running when the
// packets went on the wire.
//

import (
	"sort"
	"strings"
	"time"

	"github.com/smartdiet/netanalyzer/internal/calltree"
	"github.com/smartdiet/netanalyzer/internal/capture"
	"github.com/smartdiet/netanalyzer/internal/dmtrace"
	"github.com/smartdiet/netanalyzer/internal/flows"
	"github.com/smartdiet/netanalyzer/internal/logcat"
)

// Attribution links a packet to the invocations running on the
// thread responsible for it.
type Attribution struct {
	// Packet is the attributed packet.
	Packet *capture.Packet

	// Flow is the packet flow, nil for packets without endpoints.
	Flow *flows.Flow

	// Outgoing is true when the device sent the packet.
	Outgoing bool

	// At is the packet time on the method trace time line.
	At time.Duration

	// ThreadID is the responsible thread.
	ThreadID uint16

	// ThreadName is the responsible thread name.
	ThreadName string

	// Stack contains the invocations running on the thread at
	// time At, outermost first.
	Stack []*calltree.Invocation

	// Responsible is the innermost application (i.e., non framework)
	// invocation in Stack, or the innermost one if all the frames
	// belong to the framework.
	Responsible *calltree.Invocation
}

// Innermost returns the innermost invocation.
func (at *Attribution) Innermost() *calltree.Invocation {
	return at.Stack[len(at.Stack)-1]
}

func hasAnyPrefix(inv *calltree.Invocation, prefixes []string) bool {
	if inv.Method == nil {
		return false
	}
	for _, p := range prefixes {
		if strings.HasPrefix(inv.Method.Class, p) {
			return true
		}
	}
	return false
}

// attribute attributes every packet that we can attribute.
func (a *Analyzer) attribute() []*Attribution {
	if !a.trace.Clock.HasWall() {
		logcat.Warnf("%s: method trace clock is %s: packet times are not comparable with it",
			a.path, a.trace.Clock)
	}
	network := a.opts.networkClassPrefixes()
	framework := a.opts.frameworkClassPrefixes()
	var out []*Attribution
	for _, p := range a.packets {
		at := p.Timestamp.Sub(a.trace.StartTime) + a.opts.ClockOffset
		attr := a.attributeAt(at, network)
		if attr == nil {
			logcat.Tracef("no thread doing network I/O for %s", p.Describe())
			continue
		}
		attr.Packet = p
		if f := a.FlowOf(p); f != nil {
			attr.Flow = f
			attr.Outgoing = f.IsOutgoing(p)
		}
		attr.Responsible = attr.Innermost()
		for i := len(attr.Stack) - 1; i >= 0; i-- {
			if !hasAnyPrefix(attr.Stack[i], framework) {
				attr.Responsible = attr.Stack[i]
				break
			}
		}
		out = append(out, attr)
	}
	return out
}

// attributeAt selects the thread whose innermost network frame started
// most recently among the threads running a network frame at time at.
func (a *Analyzer) attributeAt(at time.Duration, network []string) *Attribution {
	var (
		best      *Attribution
		bestEnter time.Duration
	)
	for _, th := range a.forest.Threads {
		stack := a.forest.ActiveAt(th.ID, at, a.opts.Slack)
		for i := len(stack) - 1; i >= 0; i-- {
			if !hasAnyPrefix(stack[i], network) {
				continue
			}
			if best == nil || stack[i].Enter > bestEnter {
				best = &Attribution{At: at, ThreadID: th.ID, ThreadName: th.Name, Stack: stack}
				bestEnter = stack[i].Enter
			}
			break
		}
	}
	return best
}

// MethodNetwork contains the network activity charged to a method.
type MethodNetwork struct {
	// MethodID is the method ID.
	MethodID uint32

	// Method is the method, nil when missing from the method table.
	Method *dmtrace.Method

	// Packets counts the attributed packets with the method on stack.
	Packets int

	// Bytes sums the frame lengths of Packets.
	Bytes int64

	// SentPackets counts the Packets sent by the device.
	SentPackets int

	// SelfPackets counts the packets for which the method was the
	// responsible invocation.
	SelfPackets int

	// SelfBytes sums the frame lengths of SelfPackets.
	SelfBytes int64
}

// Name returns the method full name or a placeholder.
func (mn *MethodNetwork) Name() string {
	if mn.Method != nil {
		return mn.Method.FullName()
	}
	return (&calltree.Invocation{MethodID: mn.MethodID}).Name()
}

// MethodNetworkStats returns the network activity per method, sorted
// by decreasing Bytes, ties broken by method ID. Methods that appear
// several times on a stack count the packet once.
func (a *Analyzer) MethodNetworkStats() []*MethodNetwork {
	index := map[uint32]*MethodNetwork{}
	get := func(inv *calltree.Invocation) *MethodNetwork {
		mn := index[inv.MethodID]
		if mn == nil {
			mn = &MethodNetwork{MethodID: inv.MethodID, Method: inv.Method}
			index[inv.MethodID] = mn
		}
		return mn
	}
	for _, attr := range a.attributions {
		size := int64(attr.Packet.Length)
		seen := map[uint32]bool{}
		for _, inv := range attr.Stack {
			if seen[inv.MethodID] {
				continue
			}
			seen[inv.MethodID] = true
			mn := get(inv)
			mn.Packets++
			mn.Bytes += size
			if attr.Outgoing {
				mn.SentPackets++
			}
		}
		self := get(attr.Responsible)
		self.SelfPackets++
		self.SelfBytes += size
	}
	out := make([]*MethodNetwork, 0, len(index))
	for _, mn := range index {
		out = append(out, mn)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Bytes != out[j].Bytes {
			return out[i].Bytes > out[j].Bytes
		}
		return out[i].MethodID < out[j].MethodID
	})
	return out
}
