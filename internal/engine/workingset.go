package engine

import "errors"

var (
	// ErrNoInitialTemplate means neither a template file nor an analytic width was configured.
	ErrNoInitialTemplate = errors.New("no initial template: set a template file or a gaussian width")
	// ErrNoAcceptedChannels means an iteration finished without a single accepted fit.
	ErrNoAcceptedChannels = errors.New("no channels accepted in iteration")
	// ErrEmptyWorkingSet means there are no observation files left to process.
	ErrEmptyWorkingSet = errors.New("working set is empty")
)

// WorkingSet is the ordered list of observation files for a run. It only
// ever shrinks: a file that fails in any pass is removed for good.
type WorkingSet struct {
	files []string
}

// NewWorkingSet copies files into a new working set.
func NewWorkingSet(files []string) *WorkingSet {
	return &WorkingSet{files: append([]string(nil), files...)}
}

// Files returns a snapshot of the current membership.
func (w *WorkingSet) Files() []string {
	return append([]string(nil), w.files...)
}

// Len returns the number of files left.
func (w *WorkingSet) Len() int {
	return len(w.files)
}

// First returns the first file, if any.
func (w *WorkingSet) First() (string, bool) {
	if len(w.files) == 0 {
		return "", false
	}
	return w.files[0], true
}

// Retain replaces the membership with the files for which keep returns true
// and reports how many were removed. index refers to the position in the
// snapshot the caller iterated over.
func (w *WorkingSet) Retain(keep func(index int, path string) bool) int {
	next := make([]string, 0, len(w.files))
	for i, path := range w.files {
		if keep(i, path) {
			next = append(next, path)
		}
	}
	removed := len(w.files) - len(next)
	w.files = next
	return removed
}
