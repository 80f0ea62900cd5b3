package main

import (
	"testing"
	"time"

	"github.com/smartdiet/netanalyzer/internal/analyzer"
	"github.com/stretchr/testify/require"
)

func applyOptions(options []analyzer.Option) *analyzer.Options {
	o := &analyzer.Options{}
	for _, set := range options {
		set(o)
	}
	return o
}

func TestAnalyzerOptions(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		options, geo := analyzerOptions(&CLI{Offset: "0s", Slack: "0s"})
		require.Nil(t, geo)
		o := applyOptions(options)
		require.Nil(t, o.NetworkClassPrefixes)
		require.Zero(t, o.ClockOffset)
		require.NotNil(t, o.Flows)
	})

	t.Run("network prefixes extend the defaults", func(t *testing.T) {
		options, _ := analyzerOptions(&CLI{
			Network: []string{"com/squareup/okhttp/"},
			Offset:  "-1500ms",
			Slack:   "2ms",
		})
		o := applyOptions(options)
		expect := append(append([]string{}, analyzer.DefaultNetworkClassPrefixes...), "com/squareup/okhttp/")
		require.Equal(t, expect, o.NetworkClassPrefixes)
		require.Equal(t, -1500*time.Millisecond, o.ClockOffset)
		require.Equal(t, 2*time.Millisecond, o.Slack)
	})
}
