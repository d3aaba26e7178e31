// Package report tallies what one stage run did to its items
package report

import (
	"sort"
	"sync"
	"time"

	"kaggleharvest/internal/core/exclusion"
)

// Failure is an item that was logged and left for a later run
type Failure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// Report is the outcome of one stage run. Methods are safe for concurrent use
type Report struct {
	Stage      string
	Listed     int // items seen from the input or the remote listing
	Written    int // items persisted to the output
	Excluded   int // items skipped because the exclusion set named them
	Duplicates int // repeated ids dropped
	Recorded   int // permanent outcomes added to the exclusion set
	Repaired   int // fetched entries dropped because their artifacts were gone
	Failures   []Failure
	Elapsed    time.Duration

	// Exclusions is the set as it stood when the run ended
	Exclusions *exclusion.Set `json:"-"`

	mu sync.Mutex
}

// New starts a report for stage
func New(stage string) *Report { return &Report{Stage: stage} }

// Count applies fn to the report under its lock
func (r *Report) Count(fn func(r *Report)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r)
}

// Fail records an item failure
func (r *Report) Fail(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failures = append(r.Failures, Failure{ID: id, Error: err.Error()})
}

// FailedIDs returns the ids of failed items, sorted
func (r *Report) FailedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		out = append(out, f.ID)
	}
	sort.Strings(out)
	return out
}

// Failed is the number of item failures
func (r *Report) Failed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Failures)
}

// Row is one line of a rendered summary
type Row struct {
	Name  string
	Value any
}

// Rows flattens the counters for display, zero counters included
func (r *Report) Rows() []Row {
	r.mu.Lock()
	defer r.mu.Unlock()
	rows := []Row{
		{"listed", r.Listed},
		{"written", r.Written},
		{"excluded", r.Excluded},
		{"duplicates", r.Duplicates},
		{"recorded", r.Recorded},
		{"repaired", r.Repaired},
		{"failed", len(r.Failures)},
	}
	if r.Exclusions != nil {
		rows = append(rows, Row{"exclusion entries", r.Exclusions.Len()})
	}
	return append(rows, Row{"elapsed", r.Elapsed.Round(time.Millisecond)})
}
