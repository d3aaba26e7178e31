package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"kaggleharvest/internal/platform/bind"
	perr "kaggleharvest/internal/platform/errors"
	"kaggleharvest/internal/platform/fsutil"
)

// DecodeCompetitions parses a competition catalog: a JSON array of objects
// with at least "id", or a legacy array of slug strings
func DecodeCompetitions(data []byte) ([]Competition, error) {
	return decodeArray[Competition](data, nil)
}

// DecodeKernels parses a kernel catalog. Records without competitionId inherit
// the given competition (usually derived from the file name)
func DecodeKernels(data []byte, competitionID string) ([]Kernel, error) {
	return decodeArray(data, func(k *Kernel) {
		if k.CompetitionID == "" {
			k.CompetitionID = competitionID
		}
	})
}

// ReadCompetitions loads a competition catalog file
func ReadCompetitions(path string) ([]Competition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, perr.IOf(err, "read competition catalog %s", path)
	}
	out, err := DecodeCompetitions(data)
	if err != nil {
		return nil, perr.WithOp(err, path)
	}
	return out, nil
}

// ReadKernels loads a kernel catalog file named <competition>.json
func ReadKernels(path string) ([]Kernel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, perr.IOf(err, "read kernel catalog %s", path)
	}
	out, err := DecodeKernels(data, CompetitionFromPath(path))
	if err != nil {
		return nil, perr.WithOp(err, path)
	}
	return out, nil
}

// WriteCompetitions stores the catalog atomically as indented JSON
func WriteCompetitions(path string, cs []Competition) error {
	if cs == nil {
		cs = []Competition{}
	}
	return fsutil.WriteJSONAtomic(path, cs)
}

// WriteKernels stores a kernel catalog atomically as indented JSON
func WriteKernels(path string, ks []Kernel) error {
	if ks == nil {
		ks = []Kernel{}
	}
	return fsutil.WriteJSONAtomic(path, ks)
}

// KernelCatalogPath is where the kernel stage writes a competition's kernels
func KernelCatalogPath(dir, competitionID string) string {
	return filepath.Join(dir, competitionID+".json")
}

// CompetitionFromPath derives the competition slug from a kernel catalog file name
func CompetitionFromPath(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func decodeArray[T any](data []byte, fix func(*T)) ([]T, error) {
	raws, err := bind.DecodeBytes[[]json.RawMessage](data)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raws))
	for i, raw := range raws {
		var rec T
		if err := json.Unmarshal(raw, &rec); err != nil {
			if _, ok := perr.As(err); ok {
				return nil, perr.Wrapf(err, perr.ErrorCodeValidation, "record %d", i)
			}
			return nil, perr.Newf(perr.ErrorCodeValidation, "record %d: %v", i, err)
		}
		if fix != nil {
			fix(&rec)
		}
		if err := bind.Struct(rec); err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeValidation, "record %d", i)
		}
		out = append(out, rec)
	}
	return out, nil
}
