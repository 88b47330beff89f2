package fleetws

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// writerLogger writes one line per record to an io.Writer. Fields are printed
// sorted by key so output is stable.
type writerLogger struct {
	mu     *sync.Mutex
	writer io.Writer
	fields map[string]any
}

// NewWriterLogger returns a Logger that writes plain text lines to w.
func NewWriterLogger(w io.Writer) Logger {
	return &writerLogger{
		mu:     &sync.Mutex{},
		writer: w,
		fields: make(map[string]any),
	}
}

func (l *writerLogger) WithField(key string, value any) Logger {
	next := &writerLogger{
		mu:     l.mu,
		writer: l.writer,
		fields: make(map[string]any, len(l.fields)+1),
	}
	for k, v := range l.fields {
		next.fields[k] = v
	}
	next.fields[key] = value
	return next
}

func (l *writerLogger) formatFields() string {
	if len(l.fields) == 0 {
		return ""
	}

	keys := make([]string, 0, len(l.fields))
	for k := range l.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(" [")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%v", k, l.fields[k])
	}
	b.WriteString("]")
	return b.String()
}

func (l *writerLogger) log(level, msg string) {
	timestamp := time.Now().Format("2006-01-02 15:04:05")

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.writer, "[%s] %s%s: %s\n", timestamp, level, l.formatFields(), msg)
}

func (l *writerLogger) Debug(args ...any) { l.log("DEBUG", fmt.Sprint(args...)) }

func (l *writerLogger) Debugf(format string, args ...any) {
	l.log("DEBUG", fmt.Sprintf(format, args...))
}

func (l *writerLogger) Info(args ...any) { l.log("INFO", fmt.Sprint(args...)) }

func (l *writerLogger) Infof(format string, args ...any) {
	l.log("INFO", fmt.Sprintf(format, args...))
}

func (l *writerLogger) Warn(args ...any) { l.log("WARN", fmt.Sprint(args...)) }

func (l *writerLogger) Warnf(format string, args ...any) {
	l.log("WARN", fmt.Sprintf(format, args...))
}

func (l *writerLogger) Error(args ...any) { l.log("ERROR", fmt.Sprint(args...)) }

func (l *writerLogger) Errorf(format string, args ...any) {
	l.log("ERROR", fmt.Sprintf(format, args...))
}
