package logcat

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (rl *recordingLogger) add(prefix, msg string) {
	rl.mu.Lock()
	rl.lines = append(rl.lines, prefix+msg)
	rl.mu.Unlock()
}

func (rl *recordingLogger) Debug(msg string) { rl.add("D ", msg) }
func (rl *recordingLogger) Debugf(format string, v ...interface{}) {
	rl.add("D ", fmt.Sprintf(format, v...))
}
func (rl *recordingLogger) Info(msg string) { rl.add("I ", msg) }
func (rl *recordingLogger) Infof(format string, v ...interface{}) {
	rl.add("I ", fmt.Sprintf(format, v...))
}
func (rl *recordingLogger) Warn(msg string) { rl.add("W ", msg) }
func (rl *recordingLogger) Warnf(format string, v ...interface{}) {
	rl.add("W ", fmt.Sprintf(format, v...))
}

// texts returns the texts of the messages buffered in ch.
func texts(ch chan *Msg) (out []string) {
	for {
		select {
		case m := <-ch:
			out = append(out, m.Text)
		default:
			return
		}
	}
}

func TestQueueLevelFiltering(t *testing.T) {
	q := newqueue()
	ch := make(chan *Msg, 16)
	q.subscribe(ch)
	q.emit(WARNING, "warning")
	q.emit(NOTICE, "notice")
	q.emit(INFO, "info")
	q.incrementLogLevel(2)
	q.emit(DEBUG, "debug")
	q.emit(TRACE, "trace")
	require.Equal(t, []string{"warning", "notice", "debug"}, texts(ch))

	q.unsubscribe(ch)
	q.emit(WARNING, "unsubscribed")
	require.Empty(t, texts(ch))
}

func TestIncrementLogLevelSaturates(t *testing.T) {
	q := newqueue()
	ch := make(chan *Msg, 1)
	q.subscribe(ch)
	q.incrementLogLevel(math.MinInt32)
	q.emit(WARNING, "dropped")
	require.Empty(t, texts(ch))
}

func TestQueueDropsForSlowConsumers(t *testing.T) {
	q := newqueue()
	ch := make(chan *Msg, 2)
	q.subscribe(ch)
	for i := 0; i < 5; i++ {
		q.emit(WARNING, "x")
	}
	require.Len(t, texts(ch), 2)
	require.Equal(t, int64(3), q.dropped.Load())
}

func TestStartConsumerDrainsOnCancel(t *testing.T) {
	rl := &recordingLogger{}
	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	StartConsumer(ctx, rl, wg)
	Warn("first")
	Notice("second")
	Debug("hidden")
	cancel()
	wg.Wait()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	require.Equal(t, []string{"W first", "I second"}, rl.lines)
	require.Zero(t, Dropped())
}

func TestTags(t *testing.T) {
	rl := &recordingLogger{}
	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	StartConsumer(ctx, rl, wg)
	SetEnableEmojis(false)
	Step("parsing")
	Shrugf("frame #%d", 7)
	SetEnableEmojis(true)
	Substep("threads")
	SetEnableEmojis(false)
	cancel()
	wg.Wait()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	require.Equal(t, []string{
		"I STEP:     parsing",
		"W WTF:      frame #7",
		"I 📎 threads",
	}, rl.lines)
}
