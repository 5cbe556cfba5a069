package monitoring

import (
	"fmt"
	"strings"
	"sync"
)

// Warnings accumulates recoverable modelling warnings for a run. A warning
// never aborts the run; the caller decides how to surface the report.
// The zero value is ready to use and safe for concurrent use.
type Warnings struct {
	mu    sync.Mutex
	items []string
}

// Add appends one warning. Empty messages are ignored.
func (w *Warnings) Add(msg string) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return
	}
	w.mu.Lock()
	w.items = append(w.items, msg)
	w.mu.Unlock()
	Logf("[warning] %s", msg)
}

// Addf formats and appends one warning.
func (w *Warnings) Addf(format string, v ...interface{}) {
	w.Add(fmt.Sprintf(format, v...))
}

// Len returns the number of warnings recorded so far.
func (w *Warnings) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.items)
}

// Items returns a copy of the recorded warnings in insertion order.
func (w *Warnings) Items() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.items))
	copy(out, w.items)
	return out
}

// Text renders the report, one numbered warning per line.
// It returns "" when nothing has been recorded.
func (w *Warnings) Text() string {
	items := w.Items()
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	for i, msg := range items {
		fmt.Fprintf(&b, "%3d: %s\n", i+1, msg)
	}
	return b.String()
}
