// Package catalog defines the competition and kernel records exchanged between
// harvest stages and the JSON files that carry them.
//
// Records keep every field the platform returned. Only the identifier fields
// are interpreted; the rest travel through Extra untouched so a later stage
// (or a human) sees exactly what the listing produced
package catalog

import (
	"encoding/json"
	"maps"
	"strings"

	perr "kaggleharvest/internal/platform/errors"
)

// Competition is one platform contest, keyed by its slug
type Competition struct {
	ID    string                     `json:"id" validate:"required,slug"`
	Extra map[string]json.RawMessage `json:"-"`
}

// Kernel is one submission, keyed by owner/slug, belonging to a single competition
type Kernel struct {
	ID            string                     `json:"id" validate:"required,kernel_ref"`
	CompetitionID string                     `json:"competitionId,omitempty" validate:"omitempty,slug"`
	Extra         map[string]json.RawMessage `json:"-"`
}

// reserved keys never land in Extra
var (
	competitionKeys = []string{"id"}
	kernelKeys      = []string{"id", "competitionId"}
)

// MarshalJSON flattens Extra next to id. Keys are emitted sorted so output is stable
func (c Competition) MarshalJSON() ([]byte, error) {
	m := cloneExtra(c.Extra, competitionKeys)
	m["id"] = mustRaw(c.ID)
	return json.Marshal(m)
}

// UnmarshalJSON accepts either a full object or a bare slug string
func (c *Competition) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*c = Competition{ID: strings.TrimSpace(s)}
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	id, err := stringField(m, "id")
	if err != nil {
		return err
	}
	*c = Competition{ID: id, Extra: cloneExtra(m, competitionKeys)}
	if len(c.Extra) == 0 {
		c.Extra = nil
	}
	return nil
}

// MarshalJSON flattens Extra next to id and competitionId
func (k Kernel) MarshalJSON() ([]byte, error) {
	m := cloneExtra(k.Extra, kernelKeys)
	m["id"] = mustRaw(k.ID)
	if k.CompetitionID != "" {
		m["competitionId"] = mustRaw(k.CompetitionID)
	}
	return json.Marshal(m)
}

// UnmarshalJSON accepts either a full object or a bare owner/slug string
func (k *Kernel) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*k = Kernel{ID: strings.TrimSpace(s)}
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	id, err := stringField(m, "id")
	if err != nil {
		return err
	}
	comp, err := stringField(m, "competitionId")
	if err != nil {
		return err
	}
	*k = Kernel{ID: id, CompetitionID: comp, Extra: cloneExtra(m, kernelKeys)}
	if len(k.Extra) == 0 {
		k.Extra = nil
	}
	return nil
}

// Str returns a string pass-through field, or "" when absent or not a string
func (k Kernel) Str(key string) string { return extraString(k.Extra, key) }

// Str returns a string pass-through field, or "" when absent or not a string
func (c Competition) Str(key string) string { return extraString(c.Extra, key) }

// Title is a convenience accessor for logging
func (k Kernel) Title() string { return k.Str("title") }

// Language is the kernel language as listed (python, r, ...)
func (k Kernel) Language() string { return k.Str("language") }

func cloneExtra(src map[string]json.RawMessage, reserved []string) map[string]json.RawMessage {
	m := make(map[string]json.RawMessage, len(src)+len(reserved))
	maps.Copy(m, src)
	for _, k := range reserved {
		delete(m, k)
	}
	return m
}

func stringField(m map[string]json.RawMessage, key string) (string, error) {
	raw, ok := m[key]
	if !ok || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", perr.Newf(perr.ErrorCodeValidation, "%s must be a string", key)
	}
	return strings.TrimSpace(s), nil
}

func extraString(m map[string]json.RawMessage, key string) string {
	raw, ok := m[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func mustRaw(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
