// Package progress renders the protocol driver's stderr progress lines
// with the verbosity gating spec.md §4.6 requires: status lines print only
// at info verbosity, using carriage returns to rewrite in place on a
// terminal; at debug verbosity, per-object trace lines print instead with
// no in-place rewriting.
package progress

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// Level is the three-tier verbosity the remote-helper `option verbosity N`
// command selects (spec.md §4.6).
type Level int

const (
	LevelError Level = iota
	LevelInfo
	LevelDebug
)

// Reporter renders one progress stream (e.g. "Writing objects" or
// "Receiving objects") to w at the given verbosity.
type Reporter struct {
	w     io.Writer
	level Level
	label string
	isTTY bool
}

// NewReporter returns a Reporter writing label-prefixed lines to w.
func NewReporter(w io.Writer, level Level, label string) *Reporter {
	isTTY := false
	if f, ok := w.(*os.File); ok {
		isTTY = term.IsTerminal(int(f.Fd()))
	}
	return &Reporter{w: w, level: level, label: label, isTTY: isTTY}
}

// Event reports done/total progress. It is a no-op below info verbosity,
// and a no-op at debug verbosity (Trace is used there instead).
func (r *Reporter) Event(done, total int) {
	if r.level != LevelInfo {
		return
	}
	var pct float64
	if total > 0 {
		pct = float64(done) / float64(total) * 100
	}
	line := fmt.Sprintf("%s: %3.0f%% (%d/%d)", r.label, pct, done, total)
	switch {
	case done >= total && total > 0:
		if r.isTTY {
			fmt.Fprintf(r.w, "\r%s, done.\n", line)
		} else {
			fmt.Fprintf(r.w, "%s, done.\n", line)
		}
	case r.isTTY:
		fmt.Fprintf(r.w, "\r%s", line)
	default:
		fmt.Fprintln(r.w, line)
	}
}

// Trace prints a per-object debug line. It is a no-op below debug
// verbosity.
func (r *Reporter) Trace(format string, args ...interface{}) {
	if r.level < LevelDebug {
		return
	}
	fmt.Fprintf(r.w, format+"\n", args...)
}
