// Package batch analyzes many traces using a pool of goroutines.
package batch

import (
	"context"
	"errors"

	"github.com/google/pprof/profile"
	"github.com/smartdiet/netanalyzer/internal/analyzer"
	"github.com/smartdiet/netanalyzer/internal/atomicx"
	"github.com/smartdiet/netanalyzer/internal/caching"
	"github.com/smartdiet/netanalyzer/internal/logcat"
	"github.com/smartdiet/netanalyzer/internal/model"
)

// DefaultParallelism is the parallelism used when Run is passed a
// zero or negative parallelism.
const DefaultParallelism = 4

// Config configures Run.
type Config struct {
	// Options contains the analysis options.
	Options []analyzer.Option

	// Cache is the optional report cache.
	Cache *caching.Cache

	// Profile indicates that we want a pprof profile for each trace. We
	// need to analyze the trace to build the profile, hence we only
	// write to the cache in this case.
	Profile bool

	// TopN is the number of top methods in each report; see
	// analyzer.ToArchival.
	TopN int
}

// Result is the result of analyzing a trace.
type Result struct {
	// Path is the trace path.
	Path string

	// Report is the report or nil on failure.
	Report *analyzer.ArchivalReport

	// Profile is the profile, only present when Config.Profile is set.
	Profile *profile.Profile

	// Cached indicates that Report comes from the cache.
	Cached bool

	// Err is the error that occurred.
	Err error
}

// Run analyzes the traces using parallelism goroutines and returns
// a channel where it posts results in completion order. The channel
// is closed once all traces have been analyzed. When the context is
// canceled we stop analyzing the traces we did not start yet.
func Run(ctx context.Context, config *Config, parallelism int, traces ...string) <-chan *Result {
	var (
		completed = atomicx.NewInt64(0)
		done      = make(chan interface{})
		inputs    = make(chan string)
		output    = make(chan *Result)
	)
	go func() {
		defer close(inputs)
		for _, path := range traces {
			select {
			case inputs <- path:
			case <-ctx.Done():
				return
			}
		}
	}()
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}
	for i := 0; i < parallelism; i++ {
		go func() {
			for path := range inputs {
				r := config.analyze(ctx, path)
				logcat.Stepf("[%d/%d] %s: %s", completed.Add(1), len(traces),
					path, model.ErrorToStringOrOK(r.Err))
				output <- r
			}
			done <- true
		}()
	}
	go func() {
		for i := 0; i < parallelism; i++ {
			<-done
		}
		close(output)
	}()
	return output
}

// analyze analyzes a single trace.
func (c *Config) analyze(ctx context.Context, path string) *Result {
	r := &Result{Path: path}
	if err := ctx.Err(); err != nil {
		r.Err = err
		return r
	}
	members, err := analyzer.FindMembers(path)
	if err != nil {
		r.Err = err
		return r
	}
	var digest string
	if c.Cache != nil {
		digest, err = analyzer.Digest(members, c.Options...)
		if err != nil {
			logcat.Shrugf("cannot compute digest of %s: %s", path, err.Error())
		}
	}
	if digest != "" && !c.Profile {
		if report, found := c.Cache.Get(digest); found {
			// the cached report may come from a trace at another path
			report.Path = path
			r.Report, r.Cached = report, true
			return r
		}
	}
	a, err := analyzer.OpenMembers(path, members, c.Options...)
	if err != nil {
		r.Err = err
		return r
	}
	r.Report = a.ToArchival(c.TopN)
	if c.Profile {
		r.Profile = a.Profile()
	}
	if digest != "" {
		if err := c.Cache.Put(digest, r.Report); err != nil {
			logcat.Shrugf("cannot cache report for %s: %s", path, err.Error())
		}
	}
	return r
}

// ErrNoProfiles indicates that MergeProfiles got no profiles.
var ErrNoProfiles = errors.New("batch: no profiles to merge")

// MergeProfiles merges the profiles of the successful results.
func MergeProfiles(results []*Result) (*profile.Profile, error) {
	var all []*profile.Profile
	for _, r := range results {
		if r.Profile != nil && len(r.Profile.Sample) > 0 {
			all = append(all, r.Profile)
		}
	}
	if len(all) == 0 {
		return nil, ErrNoProfiles
	}
	return profile.Merge(all)
}
