package testing

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/arloliu/imgpool/types"
)

// NewTestLogger returns a logger that writes "LEVEL msg key=value ..." lines
// through t.Logf.
//
// Records logged after the test has finished are dropped, since a worker whose
// drain timed out may still be finishing a job in the background.
func NewTestLogger(t *testing.T) types.Logger {
	l := &testLogger{t: t}
	t.Cleanup(func() { l.finished.Store(true) })

	return l
}

type testLogger struct {
	t        *testing.T
	finished atomic.Bool
}

var _ types.Logger = (*testLogger)(nil)

func (l *testLogger) Debug(msg string, keysAndValues ...any) { l.log("DEBUG", msg, keysAndValues) }
func (l *testLogger) Info(msg string, keysAndValues ...any)  { l.log("INFO", msg, keysAndValues) }
func (l *testLogger) Warn(msg string, keysAndValues ...any)  { l.log("WARN", msg, keysAndValues) }
func (l *testLogger) Error(msg string, keysAndValues ...any) { l.log("ERROR", msg, keysAndValues) }

// Fatal marks the test failed. It does not stop the calling goroutine, which is
// usually not the test's own.
func (l *testLogger) Fatal(msg string, keysAndValues ...any) {
	if l.finished.Load() {
		return
	}
	l.t.Errorf("FATAL %s", format(msg, keysAndValues))
}

func (l *testLogger) log(level, msg string, keysAndValues []any) {
	if l.finished.Load() {
		return
	}
	l.t.Logf("%s %s", level, format(msg, keysAndValues))
}

func format(msg string, keysAndValues []any) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(keysAndValues); i += 2 {
		if i+1 < len(keysAndValues) {
			fmt.Fprintf(&b, " %v=%v", keysAndValues[i], keysAndValues[i+1])
		} else {
			fmt.Fprintf(&b, " %v=<missing>", keysAndValues[i])
		}
	}

	return b.String()
}
