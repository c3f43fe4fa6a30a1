package logger

import (
	"reflect"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// loggerPkg is the import path of this package, so the filter below survives
// a module rename.
var loggerPkg = reflect.TypeOf(Log{}).PkgPath()

// callerHook rewrites entry.Caller to the first frame that is neither logrus
// nor one of the wrappers in this package. logrus alone would report
// logger.go for every line logged through Entry or Log.
type callerHook struct{}

func (h *callerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *callerHook) Fire(entry *logrus.Entry) error {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !wrapperFrame(frame) {
			f := frame
			entry.Caller = &f
			return nil
		}
		if !more {
			return nil
		}
	}
}

// wrapperFrame reports frames to skip. Tests of this package log from
// logger/*_test.go and count as real callers.
func wrapperFrame(frame runtime.Frame) bool {
	fn := frame.Function
	if strings.Contains(fn, "sirupsen/logrus") || strings.HasPrefix(fn, "runtime.") {
		return true
	}
	return strings.HasPrefix(fn, loggerPkg+".") && !strings.HasSuffix(frame.File, "_test.go")
}
