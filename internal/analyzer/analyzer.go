// Package analyzer implements the NetAnalyzer: it loads a trace made of
// a method trace and a packet capture recorded during the same run and
// tells which methods were executing when each packet went on the wire.
package analyzer

import (
	"fmt"
	"sync"
	"time"

	"github.com/smartdiet/netanalyzer/internal/calltree"
	"github.com/smartdiet/netanalyzer/internal/capture"
	"github.com/smartdiet/netanalyzer/internal/dmtrace"
	"github.com/smartdiet/netanalyzer/internal/flows"
	"github.com/smartdiet/netanalyzer/internal/logcat"
)

// DefaultNetworkClassPrefixes contains the class prefixes of the
// methods we consider to perform network I/O.
var DefaultNetworkClassPrefixes = []string{
	"java/net/",
	"javax/net/",
	"org/apache/http/",
	"libcore/io/",
	"okhttp3/",
	"com/android/okhttp/",
}

// DefaultFrameworkClassPrefixes contains the class prefixes of the
// platform and library methods. We charge packets to the innermost
// method that does not match these prefixes.
var DefaultFrameworkClassPrefixes = []string{
	"java/",
	"javax/",
	"android/",
	"dalvik/",
	"libcore/",
	"sun/",
	"org/apache/",
	"org/json/",
	"com/android/",
	"okhttp3/",
	"okio/",
}

// Options contains the analysis options. Every field is optional.
type Options struct {
	// ClockOffset is added to packet timestamps before comparing them
	// with method trace times. Use it when the capture host clock and
	// the device clock disagree.
	ClockOffset time.Duration

	// Slack widens the interval during which an invocation is
	// considered active when attributing packets.
	Slack time.Duration

	// NetworkClassPrefixes overrides DefaultNetworkClassPrefixes.
	NetworkClassPrefixes []string

	// FrameworkClassPrefixes overrides DefaultFrameworkClassPrefixes.
	FrameworkClassPrefixes []string

	// Flows contains the options for grouping packets into flows.
	Flows *flows.Options
}

func (o *Options) networkClassPrefixes() []string {
	if len(o.NetworkClassPrefixes) > 0 {
		return o.NetworkClassPrefixes
	}
	return DefaultNetworkClassPrefixes
}

func (o *Options) frameworkClassPrefixes() []string {
	if len(o.FrameworkClassPrefixes) > 0 {
		return o.FrameworkClassPrefixes
	}
	return DefaultFrameworkClassPrefixes
}

// Option modifies Options.
type Option func(o *Options)

// WithClockOffset sets Options.ClockOffset.
func WithClockOffset(d time.Duration) Option {
	return func(o *Options) {
		o.ClockOffset = d
	}
}

// WithSlack sets Options.Slack.
func WithSlack(d time.Duration) Option {
	return func(o *Options) {
		o.Slack = d
	}
}

// WithNetworkClassPrefixes sets Options.NetworkClassPrefixes.
func WithNetworkClassPrefixes(prefixes ...string) Option {
	return func(o *Options) {
		o.NetworkClassPrefixes = prefixes
	}
}

// WithFlowOptions sets Options.Flows.
func WithFlowOptions(fo *flows.Options) Option {
	return func(o *Options) {
		o.Flows = fo
	}
}

// Analyzer is a loaded trace. An Analyzer is immutable once returned
// by Open and its methods are safe to call from multiple goroutines.
type Analyzer struct {
	path         string
	members      *Members
	opts         Options
	trace        *dmtrace.Trace
	packets      []*capture.Packet
	forest       *calltree.Forest
	flows        []*flows.Flow
	flowByPacket map[int]*flows.Flow
	attributions []*Attribution
	elapsed      time.Duration
}

// Open loads the trace at path (see FindMembers for how we interpret
// path) and performs the whole analysis.
func Open(path string, options ...Option) (*Analyzer, error) {
	members, err := FindMembers(path)
	if err != nil {
		return nil, err
	}
	return OpenMembers(path, members, options...)
}

// OpenMembers is like Open but with explicit members.
func OpenMembers(path string, members *Members, options ...Option) (*Analyzer, error) {
	a := &Analyzer{path: path, members: members}
	for _, set := range options {
		set(&a.opts)
	}
	begin := time.Now()
	logcat.NewTracef("analyzing %s", path)
	if err := a.load(); err != nil {
		return nil, err
	}
	logcat.Step("reconstructing invocations")
	a.forest = calltree.Build(a.trace)
	logcat.Step("grouping packets into flows")
	a.flows = flows.Group(a.packets, a.opts.Flows)
	a.flowByPacket = map[int]*flows.Flow{}
	for _, f := range a.flows {
		for _, p := range f.Packets {
			a.flowByPacket[p.Index] = f
		}
	}
	logcat.Step("attributing packets to methods")
	a.attributions = a.attribute()
	a.elapsed = time.Since(begin)
	logcat.Noticef("%s: %d methods, %d packets, %d attributed (in %s)", path,
		len(a.trace.Methods), len(a.packets), len(a.attributions), a.elapsed)
	return a, nil
}

// load reads the method trace and the packet capture in parallel.
func (a *Analyzer) load() error {
	var (
		wg         sync.WaitGroup
		traceErr   error
		captureErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		ol := newOperationLogger("reading method trace %s", a.members.MethodTrace)
		a.trace, traceErr = dmtrace.ReadFile(a.members.MethodTrace)
		ol.stop(traceErr)
	}()
	go func() {
		defer wg.Done()
		ol := newOperationLogger("reading packet capture %s", a.members.PacketCapture)
		a.packets, captureErr = capture.ReadFile(a.members.PacketCapture)
		ol.stop(captureErr)
	}()
	wg.Wait()
	if traceErr != nil {
		return fmt.Errorf("analyzer: method trace: %w", traceErr)
	}
	if captureErr != nil {
		return fmt.Errorf("analyzer: packet capture: %w", captureErr)
	}
	return nil
}

// Path returns the path passed to Open.
func (a *Analyzer) Path() string {
	return a.path
}

// Members returns the trace members.
func (a *Analyzer) Members() Members {
	return *a.members
}

// AllMethods returns the method table of the method trace.
func (a *Analyzer) AllMethods() []*dmtrace.Method {
	return a.trace.Methods
}

// Packets returns the captured packets.
func (a *Analyzer) Packets() []*capture.Packet {
	return a.packets
}

// Trace returns the parsed method trace.
func (a *Analyzer) Trace() *dmtrace.Trace {
	return a.trace
}

// Forest returns the reconstructed invocations.
func (a *Analyzer) Forest() *calltree.Forest {
	return a.forest
}

// Invocations returns all invocations in enter order.
func (a *Analyzer) Invocations() []*calltree.Invocation {
	return a.forest.Invocations()
}

// Flows returns the flows in order of first packet.
func (a *Analyzer) Flows() []*flows.Flow {
	return a.flows
}

// FlowOf returns the flow of the given packet or nil.
func (a *Analyzer) FlowOf(p *capture.Packet) *flows.Flow {
	return a.flowByPacket[p.Index]
}

// Attributions returns the attributed packets in capture order.
func (a *Analyzer) Attributions() []*Attribution {
	return a.attributions
}

// Elapsed returns how long Open took.
func (a *Analyzer) Elapsed() time.Duration {
	return a.elapsed
}
