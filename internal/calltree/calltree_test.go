package calltree_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/smartdiet/netanalyzer/internal/calltree"
	"github.com/smartdiet/netanalyzer/internal/dmtrace"
	"github.com/smartdiet/netanalyzer/internal/dmtrace/dmtracetest"
	"github.com/stretchr/testify/require"
)

const (
	mRefresh = 0x10
	mFetch   = 0x14
	mConnect = 0x18
	mParse   = 0x1c
	mRecurse = 0x20
)

const us = time.Microsecond

func build(t *testing.T, b *dmtracetest.Builder) *calltree.Forest {
	tr, err := dmtrace.Parse(bytes.NewReader(b.Bytes()))
	require.NoError(t, err)
	return calltree.Build(tr)
}

func methods() *dmtracetest.Builder {
	return dmtracetest.New().
		Thread(1, "main").
		Thread(2, "worker").
		Method(mRefresh, "com/example/Feed", "refresh", "()V").
		Method(mFetch, "com/example/Feed", "fetch", "()[B").
		Method(mConnect, "java/net/Socket", "connect", "()V").
		Method(mParse, "org/json/JSONObject", "<init>", "(Ljava/lang/String;)V").
		Method(mRecurse, "com/example/Tree", "walk", "()V")
}

func TestBuildNesting(t *testing.T) {
	f := build(t, methods().
		Enter(1, mRefresh, 0).
		Enter(1, mFetch, 10*us).
		Enter(2, mParse, 15*us).
		Enter(1, mConnect, 20*us).
		Exit(1, mConnect, 120*us).
		Exit(1, mFetch, 150*us).
		Exit(2, mParse, 160*us).
		Enter(1, mParse, 170*us).
		Exit(1, mParse, 200*us).
		Exit(1, mRefresh, 300*us))
	require.Len(t, f.Threads, 2)
	main := f.Thread(1)
	require.Equal(t, "main", main.Name)
	require.Len(t, main.Roots, 1)
	require.Len(t, main.Invocations, 4)

	refresh := main.Roots[0]
	require.Equal(t, "com.example.Feed.refresh", refresh.Name())
	require.Equal(t, 300*us, refresh.Duration())
	require.Len(t, refresh.Children, 2)
	require.Equal(t, 300*us-140*us-30*us, refresh.SelfDuration())

	connect := refresh.Children[0].Children[0]
	require.Equal(t, 2, connect.Depth)
	require.Equal(t, 100*us, connect.Duration())
	require.Equal(t, 100*us, connect.ThreadTime)
	require.Equal(t, []*calltree.Invocation{refresh, refresh.Children[0], connect}, connect.Stack())

	all := f.Invocations()
	require.Len(t, all, 5)
	require.Equal(t, uint32(mParse), all[2].MethodID)
	require.Equal(t, uint16(2), all[2].ThreadID)
	require.Zero(t, f.Orphans)
	require.Zero(t, f.Mismatched)
	require.Zero(t, f.Unfinished)
}

func TestBuildIrregularRecords(t *testing.T) {
	f := build(t, methods().
		Exit(1, mRefresh, 5*us). // was running before tracing started
		Enter(1, mFetch, 10*us).
		Enter(1, mConnect, 20*us).
		Record(1, mFetch, dmtrace.ActionUnwind, 50*us). // connect never exits
		Enter(1, mParse, 60*us).
		Enter(1, 0x400, 70*us)) // unknown method, never exits
	require.Equal(t, 1, f.Orphans)
	require.Equal(t, 1, f.Mismatched)
	require.Equal(t, 2, f.Unfinished)

	main := f.Thread(1)
	require.Len(t, main.Roots, 2)
	fetch := main.Roots[0]
	require.True(t, fetch.Unwound)
	require.Equal(t, 50*us, fetch.Children[0].Exit)

	parse := main.Roots[1]
	require.True(t, parse.Unfinished)
	require.Equal(t, 70*us, parse.Exit)
	unknown := parse.Children[0]
	require.Nil(t, unknown.Method)
	require.Equal(t, "unknown.0x00000400", unknown.Name())
	require.Zero(t, unknown.Duration())
}

func TestBuildThreadClockOnly(t *testing.T) {
	b := methods().Enter(1, mFetch, 10*us).Exit(1, mFetch, 40*us)
	b.Clock = dmtrace.ClockThreadCPU
	f := build(t, b)
	inv := f.Thread(1).Roots[0]
	require.Equal(t, 10*us, inv.Enter)
	require.Equal(t, 30*us, inv.Duration())
}

func TestActiveAt(t *testing.T) {
	f := build(t, methods().
		Enter(1, mRefresh, 0).
		Enter(1, mFetch, 100*us).
		Exit(1, mFetch, 200*us).
		Enter(1, mConnect, 210*us).
		Exit(1, mConnect, 300*us).
		Exit(1, mRefresh, 1000*us).
		Enter(1, mParse, 2000*us).
		Exit(1, mParse, 2100*us))

	names := func(stack []*calltree.Invocation) (out []string) {
		for _, inv := range stack {
			out = append(out, inv.Method.Name)
		}
		return
	}
	require.Equal(t, []string{"refresh", "fetch"}, names(f.ActiveAt(1, 150*us, 0)))
	require.Equal(t, []string{"refresh"}, names(f.ActiveAt(1, 205*us, 0)))
	require.Equal(t, []string{"refresh", "fetch"}, names(f.ActiveAt(1, 204*us, 5*us)))
	require.Equal(t, []string{"refresh", "connect"}, names(f.ActiveAt(1, 206*us, 5*us)))
	require.Empty(t, f.ActiveAt(1, 1500*us, 0))
	require.Empty(t, f.ActiveAt(1, 1500*us, 100*us))
	require.Equal(t, []string{"<init>"}, names(f.ActiveAt(1, 1950*us, 100*us)))
	require.Empty(t, f.ActiveAt(9, 150*us, 0))
}

func TestMethodStats(t *testing.T) {
	f := build(t, methods().
		Enter(1, mRecurse, 0).
		Enter(1, mRecurse, 10*us).
		Exit(1, mRecurse, 20*us).
		Exit(1, mRecurse, 100*us).
		Enter(2, mFetch, 0).
		Exit(2, mFetch, 50*us))
	stats := f.MethodStats()
	require.Len(t, stats, 2)
	walk := stats[0]
	require.Equal(t, "com.example.Tree.walk", walk.Name())
	require.Equal(t, 2, walk.Calls)
	require.Equal(t, 100*us, walk.Inclusive)
	require.Equal(t, 100*us, walk.Exclusive)
	require.Equal(t, uint32(mFetch), stats[1].MethodID)
	require.Equal(t, 50*us, stats[1].Inclusive)
}
