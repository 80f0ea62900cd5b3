package logcat

//
// Tags
//
// Messages with a recognizable prefix.
//

import "github.com/smartdiet/netanalyzer/internal/atomicx"

var emojis = atomicx.NewBool(false)

// SetEnableEmojis selects emoji or text prefixes for tagged messages.
func SetEnableEmojis(enabled bool) {
	emojis.Store(enabled)
}

// tag is the prefix of a kind of message.
type tag struct {
	emoji string
	text  string
	level int32
}

func (t *tag) prefix() string {
	if emojis.Load() {
		return t.emoji + " "
	}
	return t.text
}

func (t *tag) emit(message string) {
	Emit(t.level, t.prefix()+message)
}

func (t *tag) emitf(format string, values ...interface{}) {
	Emitf(t.level, t.prefix()+format, values...)
}

var (
	bugTag      = &tag{emoji: "🐛", text: "BUG:      ", level: WARNING}
	shrugTag    = &tag{emoji: "🤷", text: "WTF:      ", level: WARNING}
	newTraceTag = &tag{emoji: "✨", text: "NEWTRACE: ", level: NOTICE}
	stepTag     = &tag{emoji: "📌", text: "STEP:     ", level: NOTICE}
	substepTag  = &tag{emoji: "📎", text: "SUBSTEP:  ", level: NOTICE}
	cacheTag    = &tag{emoji: "👛", text: "CACHE:    ", level: INFO}
)

// Bug reports a condition that should not happen given our own
// invariants. We keep running but results may be wrong.
func Bug(message string) {
	bugTag.emit(message)
}

// Bugf is like Bug but formats the message.
func Bugf(format string, values ...interface{}) {
	bugTag.emitf(format, values...)
}

// Shrug reports something wrong with the input that is not our fault,
// such as a frame we cannot decode.
func Shrug(message string) {
	shrugTag.emit(message)
}

// Shrugf is like Shrug but formats the message.
func Shrugf(format string, values ...interface{}) {
	shrugTag.emitf(format, values...)
}

// NewTrace announces that we start analyzing a trace.
func NewTrace(message string) {
	newTraceTag.emit(message)
}

// NewTracef is like NewTrace but formats the message.
func NewTracef(format string, values ...interface{}) {
	newTraceTag.emitf(format, values...)
}

// Step announces a step of the analysis of a trace.
func Step(message string) {
	stepTag.emit(message)
}

// Stepf is like Step but formats the message.
func Stepf(format string, values ...interface{}) {
	stepTag.emitf(format, values...)
}

// Substep announces a part of a step.
func Substep(message string) {
	substepTag.emit(message)
}

// Substepf is like Substep but formats the message.
func Substepf(format string, values ...interface{}) {
	substepTag.emitf(format, values...)
}

// Cache reports cache hits, misses and writes.
func Cache(message string) {
	cacheTag.emit(message)
}

// Cachef is like Cache but formats the message.
func Cachef(format string, values ...interface{}) {
	cacheTag.emitf(format, values...)
}
