package analyzer

//
// Profile
//
// Exporting attributions as a pprof profile.
//

import (
	"github.com/google/pprof/profile"
	"github.com/smartdiet/netanalyzer/internal/calltree"
)

// Profile returns a pprof profile with one sample per attributed
// packet. The sample types are packets/count and bytes/bytes and
// the sample stack is the attribution stack. Samples are labeled with
// the thread name and, when known, the remote hostname.
func (a *Analyzer) Profile() *profile.Profile {
	prof := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "packets", Unit: "count"},
			{Type: "bytes", Unit: "bytes"},
		},
		DefaultSampleType: "bytes",
		PeriodType:        &profile.ValueType{Type: "packets", Unit: "count"},
		Period:            1,
		TimeNanos:         a.trace.StartTime.UnixNano(),
		DurationNanos:     a.trace.Elapsed().Nanoseconds(),
	}
	locations := map[uint32]*profile.Location{}
	location := func(inv *calltree.Invocation) *profile.Location {
		if loc, found := locations[inv.MethodID]; found {
			return loc
		}
		fn := &profile.Function{
			ID:         uint64(len(prof.Function) + 1),
			Name:       inv.Name(),
			SystemName: inv.Name(),
		}
		var line int64
		if inv.Method != nil {
			fn.SystemName = inv.Method.String()
			fn.Filename = inv.Method.Source
			fn.StartLine = inv.Method.Line
			line = inv.Method.Line
		}
		prof.Function = append(prof.Function, fn)
		loc := &profile.Location{
			ID:   uint64(len(prof.Location) + 1),
			Line: []profile.Line{{Function: fn, Line: line}},
		}
		locations[inv.MethodID] = loc
		prof.Location = append(prof.Location, loc)
		return loc
	}
	for _, attr := range a.attributions {
		sample := &profile.Sample{
			Value: []int64{1, int64(attr.Packet.Length)},
			Label: map[string][]string{"thread": {attr.ThreadName}},
		}
		if attr.Flow != nil && attr.Flow.Hostname != "" {
			sample.Label["host"] = []string{attr.Flow.Hostname}
		}
		// pprof wants the leaf first
		for i := len(attr.Stack) - 1; i >= 0; i-- {
			sample.Location = append(sample.Location, location(attr.Stack[i]))
		}
		prof.Sample = append(prof.Sample, sample)
	}
	return prof
}
