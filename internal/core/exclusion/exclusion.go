// Package exclusion implements the persisted skip list shared by the harvest
// stages. An entry either denylists an id (curated) or records that the id was
// already processed, so a re-run only touches what is left.
//
// Files are plain JSON: a legacy array of ids, or an object mapping id to
// reason. Curated files may be JSON5 (comments, trailing commas). Saves always
// write the object form sorted by id, through a temp file and rename
package exclusion

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"slices"
	"sync"

	"kaggleharvest/internal/core/catalog"
	perr "kaggleharvest/internal/platform/errors"
	"kaggleharvest/internal/platform/fsutil"

	"github.com/titanous/json5"
)

// Reason tags why an id is in the set
type Reason string

// Known reasons
const (
	ReasonExcluded  Reason = "excluded"  // curated denylist
	ReasonFetched   Reason = "fetched"   // processed by a stage
	ReasonForbidden Reason = "forbidden" // 403 from the platform
	ReasonNotFound  Reason = "not_found" // 404 from the platform
	ReasonSkipped   Reason = "skipped"   // filtered by language or kind
)

// ReasonFor maps a permanent per-item failure to the reason it is recorded
// under. Other failures are not recorded
func ReasonFor(err error) (Reason, bool) {
	if !perr.Permanent(err) {
		return "", false
	}
	if perr.IsCode(err, perr.ErrorCodeForbidden) {
		return ReasonForbidden, true
	}
	return ReasonNotFound, true
}

type entry struct {
	id     string
	reason Reason
}

// Set is a concurrency safe exclusion set keyed by normalized id
type Set struct {
	mu      sync.Mutex
	entries map[string]entry
}

// New returns an empty set
func New() *Set { return &Set{entries: map[string]entry{}} }

// Load reads path. A missing or blank file yields an empty set
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return New(), nil
		}
		return nil, perr.IOf(err, "read exclusion file %s", path)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, perr.WithOp(err, path)
	}
	return s, nil
}

// Parse decodes an exclusion document
func Parse(data []byte) (*Set, error) {
	s := New()
	if len(bytes.TrimSpace(data)) == 0 {
		return s, nil
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		// hand-edited denylists may carry comments or trailing commas
		doc = nil
		if err5 := json5.Unmarshal(data, &doc); err5 != nil {
			return nil, perr.JSONErrf("invalid exclusion file: %v", err)
		}
	}

	switch v := doc.(type) {
	case nil:
		return s, nil
	case []any:
		for i, item := range v {
			id, ok := item.(string)
			if !ok {
				return nil, perr.Newf(perr.ErrorCodeValidation, "exclusion entry %d is not a string", i)
			}
			s.Add(id, ReasonExcluded)
		}
	case map[string]any:
		// sorted for deterministic first-reason-wins on colliding ids
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, id := range keys {
			reason, ok := v[id].(string)
			if !ok {
				return nil, perr.WithField(perr.Newf(perr.ErrorCodeValidation, "reason for %q is not a string", id), id)
			}
			if reason == "" {
				reason = string(ReasonExcluded)
			}
			s.Add(id, Reason(reason))
		}
	default:
		return nil, perr.Newf(perr.ErrorCodeValidation, "exclusion file must be an array or an object")
	}
	return s, nil
}

// Contains reports whether id is in the set
func (s *Set) Contains(id string) bool {
	_, ok := s.Reason(id)
	return ok
}

// Reason returns the recorded reason for id
func (s *Set) Reason(id string) (Reason, bool) {
	key := catalog.NormalizeID(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return e.reason, ok
}

// Add records id. The first reason wins; it reports whether id was new
func (s *Set) Add(id string, reason Reason) bool {
	key := catalog.NormalizeID(id)
	if key == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; ok {
		return false
	}
	s.entries[key] = entry{id: id, reason: reason}
	return true
}

// Remove drops id; used when a recorded artifact has gone missing
func (s *Set) Remove(id string) bool {
	key := catalog.NormalizeID(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; !ok {
		return false
	}
	delete(s.entries, key)
	return true
}

// Len returns the number of entries
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// IDs returns the recorded ids (as first added) sorted
func (s *Set) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.id)
	}
	slices.Sort(out)
	return out
}

// WithReason returns the sorted ids recorded with reason r
func (s *Set) WithReason(r Reason) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.entries {
		if e.reason == r {
			out = append(out, e.id)
		}
	}
	slices.Sort(out)
	return out
}

// Snapshot copies the set as id -> reason
func (s *Set) Snapshot() map[string]Reason {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Reason, len(s.entries))
	for _, e := range s.entries {
		out[e.id] = e.reason
	}
	return out
}

// MarshalJSON renders the persisted object form
func (s *Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}

// Save writes the set to path atomically. The lock is held for the whole write
// so concurrent savers never interleave an older snapshot over a newer one
func (s *Set) Save(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := make(map[string]Reason, len(s.entries))
	for _, e := range s.entries {
		snap[e.id] = e.reason
	}
	if err := fsutil.WriteJSONAtomic(path, snap); err != nil {
		return perr.WithOp(err, "exclusion.save")
	}
	return nil
}
