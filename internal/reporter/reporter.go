// Package reporter accumulates warnings and errors produced while packing,
// de-duplicates warnings about the same dependency id (spec.md §5 ordering
// guarantee: "warnings about the same dependency id are emitted at most
// once"), and decides, via a pluggable policy, whether an error should abort
// the run.
package reporter

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidSource is returned by Handler.Error once at least one error was
// reported through that Handler, whatever the configured Reporter decided.
var ErrInvalidSource = errors.New("pack failed: invalid source")

// Reporter decides what happens to a reported error or warning. Returning a
// non-nil error from HandleError aborts the operation that reported it;
// returning nil lets the caller continue (the error is still recorded).
// A nil Reporter behaves like DefaultReporter.
type Reporter interface {
	HandleError(err error) error
	HandleWarning(err error)
}

// DefaultReporter aborts on the first error and silently drops warnings.
type DefaultReporter struct{}

func (DefaultReporter) HandleError(err error) error { return err }
func (DefaultReporter) HandleWarning(error)         {}

// CollectingReporter never aborts; it records every error and warning for
// the caller to inspect after the run, which is what the orchestrator (C8)
// uses so that a single pack() invocation can surface every failure per the
// propagation policy in spec.md §7.
type CollectingReporter struct {
	mu       sync.Mutex
	Errors   []error
	Warnings []error
}

func (r *CollectingReporter) HandleError(err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, err)
	return nil
}

func (r *CollectingReporter) HandleWarning(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Warnings = append(r.Warnings, err)
}

// Handler wraps a Reporter, tracks whether any error has occurred, and
// de-duplicates warnings keyed by dependency id so repeated resolution
// attempts against the same unresolved dependency warn only once.
type Handler struct {
	mu         sync.Mutex
	reporter   Reporter
	sawError   bool
	warnedKeys map[int64]bool
}

// NewHandler creates a Handler around r. A nil r uses DefaultReporter.
func NewHandler(r Reporter) *Handler {
	if r == nil {
		r = DefaultReporter{}
	}
	return &Handler{reporter: r, warnedKeys: make(map[int64]bool)}
}

// SubHandler returns a Handler that reports through the same Reporter and
// shares the same warned-keys set, for a nested operation (e.g. one file's
// analysis) whose errors should still flow to the parent's Reporter.
func (h *Handler) SubHandler() *Handler {
	return &Handler{reporter: h.reporter, warnedKeys: h.warnedKeys}
}

// HandleErrorf reports a formatted error. If the Reporter decides to abort,
// the returned error is non-nil and the caller must stop.
func (h *Handler) HandleErrorf(format string, args ...any) error {
	return h.HandleError(fmt.Errorf(format, args...))
}

// HandleError reports err. A nil return means the caller may continue.
func (h *Handler) HandleError(err error) error {
	h.mu.Lock()
	h.sawError = true
	h.mu.Unlock()
	return h.reporter.HandleError(err)
}

// HandleWarningOnce reports a warning for the given dependency id, but only
// the first time that id is seen by this Handler tree.
func (h *Handler) HandleWarningOnce(dependencyID int64, err error) {
	h.mu.Lock()
	if h.warnedKeys[dependencyID] {
		h.mu.Unlock()
		return
	}
	h.warnedKeys[dependencyID] = true
	h.mu.Unlock()
	h.reporter.HandleWarning(err)
}

// HandleWarning reports a warning with no de-duplication key.
func (h *Handler) HandleWarning(err error) {
	h.reporter.HandleWarning(err)
}

// Error returns ErrInvalidSource if any error was reported through this
// Handler (whether or not the Reporter aborted), or nil if none was.
func (h *Handler) Error() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sawError {
		return ErrInvalidSource
	}
	return nil
}
