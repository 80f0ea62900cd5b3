// Command netanalyzer correlates Android method traces with the
// packets captured during the same run.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/bassosimone/getoptx"
	"github.com/smartdiet/netanalyzer/internal/analyzer"
	"github.com/smartdiet/netanalyzer/internal/batch"
	"github.com/smartdiet/netanalyzer/internal/caching"
	"github.com/smartdiet/netanalyzer/internal/flows"
	"github.com/smartdiet/netanalyzer/internal/logcat"
	"github.com/smartdiet/netanalyzer/internal/metrics"
	"github.com/smartdiet/netanalyzer/internal/runtimex"
)

// CLI contains command line flags.
type CLI struct {
	AsnDatabase     string          `doc:"ASN database in mmdb format (default: embedded database)"`
	CacheFile       string          `doc:"optional file where to cache reports (default: none)" short:"C"`
	CacheMaxAge     string          `doc:"remove cached reports older than this duration (default: 720h)"`
	CountryDatabase string          `doc:"country database in mmdb format (default: embedded database)"`
	Device          []string        `doc:"add IP address of the device (default: inferred from the capture)" short:"d"`
	Emoji           bool            `doc:"enable emitting messages with emojis" short:"e"`
	Geo             bool            `doc:"annotate flows with ASN and country" short:"g"`
	Help            bool            `doc:"prints this help message" short:"h"`
	Metrics         string          `doc:"optional file where to write Prometheus metrics (default: none)"`
	Network         []string        `doc:"add class prefix of methods doing network I/O to the defaults (java/net/, libcore/io/, ...)"`
	Offset          string          `doc:"duration to add to packet times (e.g., -1.5s; default: 0s)"`
	Output          string          `doc:"file where to append JSONL reports (default: stdout)" short:"o"`
	Parallelism     int             `doc:"number of traces to analyze in parallel (default: 4)" short:"j"`
	Pprof           string          `doc:"optional file where to write a pprof profile (default: none)"`
	Slack           string          `doc:"widen the time window of each invocation by this duration (default: 0s)"`
	Top             int             `doc:"number of top methods to include in each report (default: 20, all: 0)"`
	Verbose         getoptx.Counter `doc:"enable verbose mode" short:"v"`
}

// getopt parses command line flags.
func getopt() (*CLI, []string) {
	opts := &CLI{
		AsnDatabase:     "",
		CacheFile:       "",
		CacheMaxAge:     "720h",
		CountryDatabase: "",
		Device:          []string{},
		Emoji:           false,
		Geo:             false,
		Help:            false,
		Metrics:         "",
		Network:         []string{},
		Offset:          "0s",
		Output:          "",
		Parallelism:     batch.DefaultParallelism,
		Pprof:           "",
		Slack:           "0s",
		Top:             20,
		Verbose:         0,
	}
	parser := getoptx.MustNewParser(
		opts, getoptx.AtLeastOnePositionalArgument(),
		getoptx.SetPositionalArgumentsPlaceholder("trace [trace...]"),
	)
	parser.MustGetopt(os.Args)
	if opts.Help {
		parser.PrintUsage(os.Stdout)
		os.Exit(0)
	}
	if opts.Verbose > 0 {
		logcat.IncrementLogLevel(int(opts.Verbose))
	}
	logcat.SetEnableEmojis(opts.Emoji)
	return opts, parser.Args()
}

// mustParseDuration parses a duration flag or exits.
func mustParseDuration(name, value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		fmt.Fprintf(os.Stderr, "netanalyzer: invalid --%s: %s\n", name, err.Error())
		os.Exit(1)
	}
	return d
}

// analyzerOptions returns the analysis options and the geo database
// the caller should close, if any.
func analyzerOptions(opts *CLI) ([]analyzer.Option, *flows.GeoDB) {
	fo := &flows.Options{DeviceAddrs: opts.Device}
	if opts.Geo || opts.AsnDatabase != "" || opts.CountryDatabase != "" {
		geo, err := flows.OpenGeoDB(opts.AsnDatabase, opts.CountryDatabase)
		runtimex.Must(err, "cannot open geolocation databases")
		fo.Geo = geo
	}
	options := []analyzer.Option{
		analyzer.WithClockOffset(mustParseDuration("offset", opts.Offset)),
		analyzer.WithSlack(mustParseDuration("slack", opts.Slack)),
		analyzer.WithFlowOptions(fo),
	}
	if len(opts.Network) > 0 {
		prefixes := append([]string{}, analyzer.DefaultNetworkClassPrefixes...)
		options = append(options, analyzer.WithNetworkClassPrefixes(append(prefixes, opts.Network...)...))
	}
	return options, fo.Geo
}

func main() {
	opts, traces := getopt()
	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	logcat.StartConsumer(ctx, &log.Logger{Handler: cli.New(os.Stderr), Level: log.DebugLevel}, wg)
	options, geo := analyzerOptions(opts)
	config := &batch.Config{
		Options: options,
		Profile: opts.Pprof != "",
		TopN:    opts.Top,
	}
	if opts.CacheFile != "" {
		cache, err := caching.Open(opts.CacheFile)
		runtimex.Must(err, "cannot open cache")
		config.Cache = cache
	}
	filep := os.Stdout
	if opts.Output != "" {
		var err error
		filep, err = os.OpenFile(opts.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		runtimex.Must(err, "cannot create output file")
	}
	results := processOutput(filep, batch.Run(ctx, config, opts.Parallelism, traces...))
	if filep != os.Stdout {
		runtimex.Must(filep.Close(), "cannot close output file")
	}
	maybeWritePprof(opts.Pprof, results)
	maybeWriteMetrics(opts.Metrics, results)
	if config.Cache != nil {
		_, err := config.Cache.Trim(mustParseDuration("cache-max-age", opts.CacheMaxAge))
		runtimex.Must(err, "cannot trim cache")
		runtimex.Must(config.Cache.Close(), "cannot close cache")
	}
	if geo != nil {
		geo.Close()
	}
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	cancel()
	wg.Wait()
	if failed > 0 {
		fmt.Fprintf(os.Stderr, "netanalyzer: %d/%d traces failed\n", failed, len(results))
		os.Exit(1)
	}
}

// processOutput writes each report as soon as it's available and
// returns all the results.
func processOutput(filep io.Writer, results <-chan *batch.Result) (all []*batch.Result) {
	for r := range results {
		all = append(all, r)
		if r.Err != nil {
			logcat.Warnf("%s: %s", r.Path, r.Err.Error())
			continue
		}
		if r.Cached {
			logcat.Cachef("%s: using cached report", r.Path)
		}
		store(filep, r.Report)
	}
	return
}

func store(filep io.Writer, r interface{}) {
	data, err := json.Marshal(r)
	runtimex.PanicOnError(err, "json.Marshal failed")
	data = append(data, '\n')
	_, err = filep.Write(data)
	runtimex.Must(err, "cannot write output file")
}

func maybeWritePprof(filename string, results []*batch.Result) {
	if filename == "" {
		return
	}
	prof, err := batch.MergeProfiles(results)
	if err != nil {
		logcat.Shrugf("not writing %s: %s", filename, err.Error())
		return
	}
	filep, err := os.Create(filename)
	runtimex.Must(err, "cannot create pprof file")
	runtimex.Must(prof.Write(filep), "cannot write pprof file")
	runtimex.Must(filep.Close(), "cannot close pprof file")
}

func maybeWriteMetrics(filename string, results []*batch.Result) {
	if filename == "" {
		return
	}
	var reports []*analyzer.ArchivalReport
	for _, r := range results {
		if r.Report != nil {
			reports = append(reports, r.Report)
		}
	}
	runtimex.Must(metrics.Export(filename, reports...), "cannot write metrics file")
}
