// Package logcat is the netanalyzer logging facility.
//
// Packages emit messages into a process-wide queue, each message
// having a verbosity level between WARNING and TRACE. The queue
// forwards the messages within the current verbosity to its
// consumers. Use StartConsumer to attach a consumer writing into
// an apex/log compatible logger.
//
// Each consumer has a bounded buffer. When a consumer lags behind,
// the queue drops new messages for that consumer rather than
// blocking the analysis; Dropped tells how many messages we dropped.
package logcat

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/smartdiet/netanalyzer/internal/atomicx"
)

const (
	// WARNING is for failures that may affect the results.
	WARNING = iota

	// NOTICE conveys the progress of the analysis. This is the
	// default verbosity.
	NOTICE

	// INFO explains what we are doing in more detail.
	INFO

	// DEBUG shows the details of each parsing step.
	DEBUG

	// TRACE shows per record and per packet decisions.
	TRACE
)

// Msg is a log message.
type Msg struct {
	// Time is when the message was emitted.
	Time time.Time

	// Level is the message verbosity level.
	Level int32

	// Text is the message.
	Text string
}

// consumerBuffer is the number of messages buffered by each consumer.
const consumerBuffer = 1 << 12

// queue dispatches messages to consumers.
type queue struct {
	lvl     *atomicx.Int32
	dropped *atomicx.Int64
	mu      sync.Mutex
	subs    map[chan<- *Msg]bool
}

func newqueue() *queue {
	return &queue{
		lvl:     atomicx.NewInt32(NOTICE),
		dropped: atomicx.NewInt64(0),
		subs:    map[chan<- *Msg]bool{},
	}
}

// gq is the global queue.
var gq = newqueue()

// IncrementLogLevel makes logging more verbose by increment levels,
// or less verbose when increment is negative.
func IncrementLogLevel(increment int) {
	gq.incrementLogLevel(increment)
}

func (q *queue) incrementLogLevel(increment int) {
	switch {
	case int64(increment) < math.MinInt32:
		increment = math.MinInt32
	case int64(increment) > math.MaxInt32:
		increment = math.MaxInt32
	}
	q.lvl.Add(int32(increment))
}

func (q *queue) enabled(level int32) bool {
	return level <= q.lvl.Load()
}

func (q *queue) emit(level int32, text string) {
	if q.enabled(level) {
		q.pub(level, text)
	}
}

func (q *queue) pub(level int32, text string) {
	m := &Msg{Time: time.Now(), Level: level, Text: text}
	q.mu.Lock()
	defer q.mu.Unlock()
	for ch := range q.subs {
		select {
		case ch <- m:
		default:
			q.dropped.Add(1)
		}
	}
}

func (q *queue) subscribe(ch chan<- *Msg) {
	q.mu.Lock()
	q.subs[ch] = true
	q.mu.Unlock()
}

func (q *queue) unsubscribe(ch chan<- *Msg) {
	q.mu.Lock()
	delete(q.subs, ch)
	q.mu.Unlock()
}

// Dropped returns the number of messages we could not deliver
// because a consumer was lagging behind.
func Dropped() int64 {
	return gq.dropped.Load()
}

// Emit emits a message with the given level.
func Emit(level int32, message string) {
	gq.emit(level, message)
}

// Emitf formats and emits a message with the given level.
func Emitf(level int32, format string, values ...interface{}) {
	if gq.enabled(level) {
		gq.pub(level, fmt.Sprintf(format, values...))
	}
}

// Warn emits a WARNING message.
func Warn(message string) {
	Emit(WARNING, message)
}

// Warnf formats and emits a WARNING message.
func Warnf(format string, values ...interface{}) {
	Emitf(WARNING, format, values...)
}

// Notice emits a NOTICE message.
func Notice(message string) {
	Emit(NOTICE, message)
}

// Noticef formats and emits a NOTICE message.
func Noticef(format string, values ...interface{}) {
	Emitf(NOTICE, format, values...)
}

// Info emits an INFO message.
func Info(message string) {
	Emit(INFO, message)
}

// Infof formats and emits an INFO message.
func Infof(format string, values ...interface{}) {
	Emitf(INFO, format, values...)
}

// Debug emits a DEBUG message.
func Debug(message string) {
	Emit(DEBUG, message)
}

// Debugf formats and emits a DEBUG message.
func Debugf(format string, values ...interface{}) {
	Emitf(DEBUG, format, values...)
}

// Trace emits a TRACE message.
func Trace(message string) {
	Emit(TRACE, message)
}

// Tracef formats and emits a TRACE message.
func Tracef(format string, values ...interface{}) {
	Emitf(TRACE, format, values...)
}
