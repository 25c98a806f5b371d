package logs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

type Level string

const (
	INFO  Level = "INFO"
	WARN  Level = "WARN"
	ERROR Level = "ERROR"
	DEBUG Level = "DEBUG"
)

// levelPriority defines the priority of each log level
// higher value = more severe
var levelPriority = map[Level]int{
	DEBUG: 1,
	INFO:  2,
	WARN:  3,
	ERROR: 4,
}

var slogLevels = map[Level]slog.Level{
	DEBUG: slog.LevelDebug,
	INFO:  slog.LevelInfo,
	WARN:  slog.LevelWarn,
	ERROR: slog.LevelError,
}

// ParseLevel maps a case-insensitive level name to a Level.
func ParseLevel(s string) (Level, error) {
	level := Level(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := levelPriority[level]; !ok {
		return "", fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

type Entry struct {
	TimeStamp time.Time      `json:"timestamp"`
	Level     Level          `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// ring is shared between a Logger and the loggers derived from it with With.
type ring struct {
	mu      sync.Mutex
	entries []Entry
	maxSize int
}

type Logger struct {
	buf    *ring
	level  Level
	sink   slog.Handler
	fields []any
}

// level: minimum log level to record (e.g. DEBUG, INFO, WARN, ERROR)
//
// maxSize: maximum number of log entries kept in memory
func NewLogger(maxSize int, level Level) *Logger {
	return &Logger{
		buf: &ring{
			entries: make([]Entry, 0, maxSize),
			maxSize: maxSize,
		},
		level: level,
	}
}

// WithSink returns a logger that also forwards every recorded entry to h.
// The in-memory buffer is shared with l.
func (l *Logger) WithSink(h slog.Handler) *Logger {
	return &Logger{buf: l.buf, level: l.level, sink: h, fields: l.fields}
}

// With returns a logger that adds the given key/value pairs to every entry.
func (l *Logger) With(kv ...any) *Logger {
	fields := make([]any, 0, len(l.fields)+len(kv))
	fields = append(fields, l.fields...)
	fields = append(fields, kv...)
	return &Logger{buf: l.buf, level: l.level, sink: l.sink, fields: fields}
}

// log applies level filtering and ring buffer behavior
func (l *Logger) log(level Level, msg string, kv []any) {
	if levelPriority[level] < levelPriority[l.level] {
		return
	}

	all := kv
	if len(l.fields) > 0 {
		all = append(append([]any{}, l.fields...), kv...)
	}

	entry := Entry{
		TimeStamp: time.Now(),
		Level:     level,
		Message:   msg,
		Fields:    toFields(all),
	}

	l.buf.push(entry)

	if l.sink != nil {
		l.forward(entry, all)
	}
}

func (l *Logger) forward(entry Entry, kv []any) {
	ctx := context.Background()
	lvl := slogLevels[entry.Level]
	if !l.sink.Enabled(ctx, lvl) {
		return
	}
	rec := slog.NewRecord(entry.TimeStamp, lvl, entry.Message, 0)
	rec.Add(kv...)
	_ = l.sink.Handle(ctx, rec)
}

func (r *ring) push(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxSize <= 0 {
		return
	}
	if len(r.entries) >= r.maxSize {
		// remove oldest entry (ring behavior)
		r.entries = r.entries[1:]
	}
	r.entries = append(r.entries, e)
}

// toFields turns alternating key/value pairs into a map.
// A trailing key without a value is recorded under "!BADKEY", like slog does.
func toFields(kv []any) map[string]any {
	if len(kv) == 0 {
		return nil
	}
	out := make(map[string]any, len(kv)/2+1)
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok || i+1 >= len(kv) {
			out["!BADKEY"] = kv[i]
			continue
		}
		v := kv[i+1]
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		out[key] = v
	}
	return out
}

func (l *Logger) Debug(msg string, kv ...any) {
	l.log(DEBUG, msg, kv)
}

func (l *Logger) Info(msg string, kv ...any) {
	l.log(INFO, msg, kv)
}

func (l *Logger) Warn(msg string, kv ...any) {
	l.log(WARN, msg, kv)
}

func (l *Logger) Error(msg string, kv ...any) {
	l.log(ERROR, msg, kv)
}

func (l *Logger) GetLast(n int) []Entry {
	l.buf.mu.Lock()
	defer l.buf.mu.Unlock()

	entries := l.buf.entries
	if n < 0 {
		n = 0
	}
	if n > len(entries) {
		n = len(entries)
	}

	start := len(entries) - n
	out := make([]Entry, n)
	copy(out, entries[start:])
	return out
}
