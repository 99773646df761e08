package cargo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrorKind categorizes a hard failure of the resolution subprocess.
type ErrorKind int

const (
	// NotFound: the manifest (or the cargo binary) does not exist.
	NotFound ErrorKind = iota
	// ManifestInvalid: cargo rejected the manifest; Span may point at the
	// offending location.
	ManifestInvalid
	// ResolutionFailed: the dependency graph could not be resolved.
	ResolutionFailed
	// LockfileConflict: the lock file is out of sync and cargo refused to
	// update it.
	LockfileConflict
	// Timeout: the subprocess exceeded its wall-clock budget.
	Timeout
	// IO: spawning or talking to the subprocess failed.
	IO
)

func (k ErrorKind) String() string {
	switch k {
	case NotFound:
		return "not found"
	case ManifestInvalid:
		return "manifest invalid"
	case ResolutionFailed:
		return "resolution failed"
	case LockfileConflict:
		return "lockfile conflict"
	case Timeout:
		return "timeout"
	default:
		return "io"
	}
}

// Span is a 1-based line/column location scraped from cargo's stderr.
type Span struct {
	Line   int
	Column int
}

// Error is a hard failure from cargo. It carries the raw stderr for
// diagnosis and, when cargo printed one, the manifest location.
type Error struct {
	Kind    ErrorKind
	Message string
	Stderr  string
	Span    *Span
}

func (e *Error) Error() string {
	return fmt.Sprintf("cargo %s: %s", e.Kind, e.Message)
}

var tomlSpanRe = regexp.MustCompile(`TOML parse error at line (\d+), column (\d+)`)

// classify turns a subprocess failure into a typed Error. The stderr text
// carries cargo's own categorization; exec/context errors map to IO and
// Timeout.
func classify(err error, stderr string) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: Timeout, Message: "cargo did not finish in time", Stderr: stderr}
	}

	msg := firstErrorLine(stderr)
	out := &Error{Message: msg, Stderr: stderr}
	switch {
	case msg == "":
		out.Kind = IO
		out.Message = err.Error()
	case strings.Contains(stderr, "could not find `Cargo.toml`"),
		strings.Contains(stderr, "No such file or directory"):
		out.Kind = NotFound
	case strings.Contains(stderr, "failed to parse manifest"),
		strings.Contains(stderr, "TOML parse error"):
		out.Kind = ManifestInvalid
		if m := tomlSpanRe.FindStringSubmatch(stderr); m != nil {
			line, _ := strconv.Atoi(m[1])
			col, _ := strconv.Atoi(m[2])
			out.Span = &Span{Line: line, Column: col}
		}
	case strings.Contains(stderr, "lock file") && strings.Contains(stderr, "--locked"),
		strings.Contains(stderr, "the lock file needs to be updated"):
		out.Kind = LockfileConflict
	default:
		out.Kind = ResolutionFailed
	}
	return out
}

// firstErrorLine extracts the most useful single line from cargo stderr:
// the first `error:` line, joined with the first `Caused by:` detail.
func firstErrorLine(stderr string) string {
	var errLine, cause string
	lines := strings.Split(stderr, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if errLine == "" && strings.HasPrefix(trimmed, "error") {
			errLine = strings.TrimSpace(strings.TrimPrefix(trimmed, "error:"))
		}
		if cause == "" && strings.HasPrefix(trimmed, "Caused by:") {
			for _, next := range lines[i+1:] {
				if t := strings.TrimSpace(next); t != "" {
					cause = t
					break
				}
			}
		}
	}
	switch {
	case errLine != "" && cause != "":
		return errLine + ": " + cause
	case errLine != "":
		return errLine
	default:
		return cause
	}
}
