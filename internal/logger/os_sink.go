package logger

import (
	"fmt"
	"io"
)

// osSink is the default LogSink, writing to an *os.File (or any io.Writer, for tests).
type osSink struct {
	w io.Writer
}

func newOSSink(w io.Writer) *osSink { return &osSink{w: w} }

// Info implements LogSink.
func (s *osSink) Info(level int, msg string, keysAndValues ...interface{}) {
	fmt.Fprintf(s.w, "[%d] %s %v\n", level, msg, keysAndValues)
}
