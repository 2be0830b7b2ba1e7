package async

import (
	"github.com/tryfix/log"
	"runtime/debug"
)

// LogPanicTrace recovers a panicking goroutine and logs the stack before
// re-raising it as a fatal log entry.
func LogPanicTrace(logger log.Logger) {
	if r := recover(); r != nil {
		logger.Fatal(r, string(debug.Stack()))
	}
}
