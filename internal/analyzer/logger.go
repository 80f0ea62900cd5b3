package analyzer

import (
	"fmt"
	"sync"
	"time"

	"github.com/smartdiet/netanalyzer/internal/logcat"
	"github.com/smartdiet/netanalyzer/internal/model"
)

// slowOperationDelay is how long an operation may run before we tell
// the user it is still in progress.
const slowOperationDelay = 500 * time.Millisecond

// operationLogger reports the outcome of a load operation and, if the
// operation takes longer than slowOperationDelay, that it is in progress.
type operationLogger struct {
	begin   time.Time
	message string
	mu      sync.Mutex
	stopped bool
	timer   *time.Timer
}

func newOperationLogger(format string, v ...interface{}) *operationLogger {
	ol := &operationLogger{begin: time.Now(), message: fmt.Sprintf(format, v...)}
	ol.timer = time.AfterFunc(slowOperationDelay, ol.inProgress)
	return ol
}

func (ol *operationLogger) inProgress() {
	ol.mu.Lock()
	defer ol.mu.Unlock()
	if !ol.stopped {
		logcat.Substepf("%s... in progress", ol.message)
	}
}

// stop logs the operation result. Calls after the first are ignored.
func (ol *operationLogger) stop(err error) {
	ol.timer.Stop()
	ol.mu.Lock()
	defer ol.mu.Unlock()
	if ol.stopped {
		return
	}
	ol.stopped = true
	logcat.Substepf("%s... %s (in %s)", ol.message,
		model.ErrorToStringOrOK(err), time.Since(ol.begin))
}
