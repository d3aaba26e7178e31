package service

import (
	"os"
	"path/filepath"
	"strings"

	"kaggleharvest/internal/adapters/ingest/kaggle"
	"kaggleharvest/internal/core/catalog"
	"kaggleharvest/internal/core/exclusion"
	perr "kaggleharvest/internal/platform/errors"
)

// artifactIndex records which stems have a source file and a metadata
// sidecar in the output directory, keyed by normalized stem
type artifactIndex map[string]artifactState

type artifactState struct {
	source, meta bool
}

func (a artifactState) complete() bool { return a.source && a.meta }

// has reports whether both artifacts of kernelID are present
func (idx artifactIndex) has(kernelID string) bool {
	return idx[catalog.NormalizeID(catalog.ArtifactStem(kernelID))].complete()
}

// scanArtifacts indexes outputDir. A missing directory is an empty index
func scanArtifacts(outputDir string) (artifactIndex, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return artifactIndex{}, nil
		}
		return nil, perr.IOf(err, "scan output dir %s", outputDir)
	}
	idx := make(artifactIndex, len(entries)/2)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.Contains(name, ".part.") {
			continue
		}
		var stem string
		isMeta := strings.HasSuffix(name, kaggle.MetaSuffix)
		if isMeta {
			stem = strings.TrimSuffix(name, kaggle.MetaSuffix)
		} else {
			stem = strings.TrimSuffix(name, filepath.Ext(name))
		}
		key := catalog.NormalizeID(stem)
		st := idx[key]
		if isMeta {
			st.meta = true
		} else {
			st.source = true
		}
		idx[key] = st
	}
	return idx, nil
}

// reconcile drops fetched entries whose artifacts are gone so they are pulled
// again. It returns the repaired ids
func reconcile(excl *exclusion.Set, idx artifactIndex) []string {
	var repaired []string
	for _, id := range excl.WithReason(exclusion.ReasonFetched) {
		if idx.has(id) {
			continue
		}
		if excl.Remove(id) {
			repaired = append(repaired, id)
		}
	}
	return repaired
}
