// Package model contains the interfaces and small helpers shared by
// the netanalyzer packages.
package model

// Logger is where logcat consumers write messages. The apex/log
// *log.Logger implements it.
type Logger interface {
	Debug(msg string)
	Debugf(format string, v ...interface{})
	Info(msg string)
	Infof(format string, v ...interface{})
	Warn(msg string)
	Warnf(format string, v ...interface{})
}

// ErrorToStringOrOK returns "ok" for a nil error and the error
// string otherwise.
func ErrorToStringOrOK(err error) string {
	if err != nil {
		return err.Error()
	}
	return "ok"
}
