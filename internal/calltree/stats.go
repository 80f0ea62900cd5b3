package calltree

import (
	"fmt"
	"sort"
	"time"

	"github.com/smartdiet/netanalyzer/internal/dmtrace"
)

// MethodStats contains the aggregated timing of a method.
type MethodStats struct {
	// MethodID is the method ID.
	MethodID uint32

	// Method is the method, nil when missing from the method table.
	Method *dmtrace.Method

	// Calls is the number of invocations.
	Calls int

	// Inclusive is the time spent in the method and its callees,
	// counting recursive invocations once.
	Inclusive time.Duration

	// Exclusive is the time spent in the method itself.
	Exclusive time.Duration
}

// Name returns the method full name or a placeholder.
func (ms *MethodStats) Name() string {
	if ms.Method != nil {
		return ms.Method.FullName()
	}
	return unknownMethodName(ms.MethodID)
}

func unknownMethodName(id uint32) string {
	return fmt.Sprintf("unknown.0x%08x", id)
}

// MethodStats returns per method statistics sorted by decreasing
// inclusive time, ties broken by method ID.
func (f *Forest) MethodStats() []*MethodStats {
	index := map[uint32]*MethodStats{}
	for _, th := range f.Threads {
		for _, inv := range th.Invocations {
			ms := index[inv.MethodID]
			if ms == nil {
				ms = &MethodStats{MethodID: inv.MethodID, Method: inv.Method}
				index[inv.MethodID] = ms
			}
			ms.Calls++
			ms.Exclusive += inv.SelfDuration()
			if !inv.hasRecursiveCaller() {
				ms.Inclusive += inv.Duration()
			}
		}
	}
	out := make([]*MethodStats, 0, len(index))
	for _, ms := range index {
		out = append(out, ms)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Inclusive != out[j].Inclusive {
			return out[i].Inclusive > out[j].Inclusive
		}
		return out[i].MethodID < out[j].MethodID
	})
	return out
}

func (inv *Invocation) hasRecursiveCaller() bool {
	for cur := inv.Parent; cur != nil; cur = cur.Parent {
		if cur.MethodID == inv.MethodID {
			return true
		}
	}
	return false
}
