// Package debug is a category-tagged log for a terminal app whose
// stdout belongs to the UI. Messages go to a file under the user config
// dir; nothing is written until Enable is called.
package debug

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

type logger struct {
	mu       sync.Mutex
	out      *os.File
	only     map[string]bool // nil means every category passes
	counters map[string]int
}

var std logger

// Enable opens <config dir>/sub000/debug.log and truncates any previous
// run. The selector narrows output to a comma-separated category list
// ("engine,batch"); "1", "*" or "all" keep everything.
func Enable(selector string) error {
	std.mu.Lock()
	defer std.mu.Unlock()

	if std.out != nil {
		return nil
	}

	dir, err := os.UserConfigDir()
	if err != nil {
		return fmt.Errorf("resolving config dir: %w", err)
	}
	dir = filepath.Join(dir, "sub000")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	f, err := os.OpenFile(filepath.Join(dir, "debug.log"), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	std.out = f
	std.only = parseSelector(selector)
	std.counters = make(map[string]int)

	std.write("debug", "log opened, selector %q", selector)
	return nil
}

// Disable closes the log file. Further Log calls are dropped.
func Disable() {
	std.mu.Lock()
	defer std.mu.Unlock()
	if std.out != nil {
		std.out.Close()
		std.out = nil
	}
}

func parseSelector(s string) map[string]bool {
	s = strings.TrimSpace(s)
	switch s {
	case "", "1", "*", "all":
		return nil
	}
	only := make(map[string]bool)
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			only[c] = true
		}
	}
	return only
}

// write appends one line. Caller holds the mutex.
func (l *logger) write(category, format string, args ...any) {
	if l.out == nil {
		return
	}
	if l.only != nil && !l.only[category] && category != "debug" {
		return
	}
	fmt.Fprintf(l.out, "[%s] %-10s %s\n",
		time.Now().Format("15:04:05.000"), category, fmt.Sprintf(format, args...))
	// Flush per line so a host crash doesn't eat the tail.
	l.out.Sync()
}

// Log writes one line under the given category.
func Log(category, format string, args ...any) {
	std.mu.Lock()
	std.write(category, format, args...)
	std.mu.Unlock()
}

// Warn logs and also prints to stderr. Reserved for startup failures
// the user must see (missing host binding, unopenable ports).
func Warn(category, format string, args ...any) {
	Log(category, format, args...)
	fmt.Fprintf(os.Stderr, "warning: %s\n", fmt.Sprintf(format, args...))
}

// LogEvery writes only every nth call with the same category and
// format, for per-tick events that would otherwise drown the log.
func LogEvery(n int, category, format string, args ...any) {
	std.mu.Lock()
	defer std.mu.Unlock()
	if std.out == nil {
		return
	}
	key := category + "\x00" + format
	std.counters[key]++
	if c := std.counters[key]; c%n == 0 {
		std.write(category, format+" [call %d]", append(args, c)...)
	}
}
