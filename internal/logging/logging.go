// Package logging writes one-line JSON log entries.
//
// Entries are plain maps so call sites stay free to attach whatever fields
// matter to them. "ts" and "level" are filled in when missing: level is
// "error" when status is "error", otherwise "info".
package logging

import (
	"encoding/json"
	"io"
	"net/url"
	"os"
	"sync"
	"time"
)

// Logger serializes entries to a writer, one JSON object per line.
// It is safe for concurrent use.
type Logger struct {
	mu        *sync.Mutex
	w         io.Writer
	loc       *time.Location
	component string
}

// New returns a Logger writing to w with timestamps in loc.
func New(w io.Writer, loc *time.Location) *Logger {
	if w == nil {
		w = os.Stdout
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Logger{mu: &sync.Mutex{}, w: w, loc: loc}
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return New(io.Discard, time.UTC)
}

// With returns a Logger that tags each entry with the given component.
// The returned logger shares the writer and lock of its parent.
func (l *Logger) With(component string) *Logger {
	if l == nil {
		return nil
	}
	cp := *l
	cp.component = component
	return &cp
}

// Log writes data as a single JSON line. data is not retained.
func (l *Logger) Log(data map[string]any) {
	if l == nil {
		return
	}
	entry := make(map[string]any, len(data)+3)
	for k, v := range data {
		if err, ok := v.(error); ok && err != nil {
			v = err.Error()
		}
		entry[k] = v
	}
	entry["ts"] = time.Now().In(l.loc).Format(time.RFC3339Nano)
	if _, ok := entry["level"]; !ok {
		if entry["status"] == "error" {
			entry["level"] = "error"
		} else {
			entry["level"] = "info"
		}
	}
	if _, ok := entry["component"]; !ok && l.component != "" {
		entry["component"] = l.component
	}

	b, err := json.Marshal(entry)
	if err != nil {
		return
	}
	b = append(b, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.w.Write(b)
}

// Info logs an event with status "success".
func (l *Logger) Info(event string, fields map[string]any) {
	l.Log(merge(fields, map[string]any{"event": event, "status": "success"}))
}

// Error logs an event with status "error" and the error message.
func (l *Logger) Error(event string, err error, fields map[string]any) {
	extra := map[string]any{"event": event, "status": "error"}
	if err != nil {
		extra["error_message"] = err.Error()
	}
	l.Log(merge(fields, extra))
}

func merge(base, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// RedactURL drops the query string, fragment and userinfo so signatures and
// tokens embedded in presigned URLs never reach the logs.
func RedactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "[unparseable-url]"
	}
	u.User = nil
	if u.RawQuery != "" {
		u.RawQuery = "redacted"
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

// RedactToken keeps a short prefix of a secret for correlation.
func RedactToken(tok string) string {
	const keep = 6
	if tok == "" {
		return ""
	}
	if len(tok) <= keep {
		return "***"
	}
	return tok[:keep] + "..."
}

// Truncate shortens s to at most n bytes, for response bodies in diagnostics.
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
