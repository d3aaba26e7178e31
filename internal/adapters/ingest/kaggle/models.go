package kaggle

import (
	"bytes"
	"encoding/json"
	"maps"
	"net/url"
	"path"
	"strings"

	"kaggleharvest/internal/core/catalog"
	perr "kaggleharvest/internal/platform/errors"
)

// apiRecord is a listing entry as returned by the platform. Only ref is
// interpreted; the numeric platform id moves to "kaggleId" so "id" can hold the slug
type apiRecord map[string]json.RawMessage

func (r apiRecord) str(key string) string {
	raw, ok := r[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func (r apiRecord) passThrough() map[string]json.RawMessage {
	m := make(map[string]json.RawMessage, len(r))
	maps.Copy(m, r)
	if id, ok := m["id"]; ok {
		m["kaggleId"] = id
		delete(m, "id")
	}
	delete(m, "competitionId")
	return m
}

// competitionSlug extracts the slug from a ref that is either a bare slug or a
// competition URL such as https://www.kaggle.com/competitions/titanic
func competitionSlug(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if u, err := url.Parse(ref); err == nil && u.Host != "" {
		ref = u.Path
	}
	ref = strings.TrimRight(ref, "/")
	return path.Base(ref)
}

func toCompetition(r apiRecord) (catalog.Competition, error) {
	slug := competitionSlug(r.str("ref"))
	if slug == "" || slug == "." || slug == "/" {
		return catalog.Competition{}, perr.Newf(perr.ErrorCodeUnknown, "competition listing entry without ref")
	}
	return catalog.Competition{ID: slug, Extra: r.passThrough()}, nil
}

func toKernel(r apiRecord, competitionID string) (catalog.Kernel, error) {
	ref := r.str("ref")
	if ref == "" {
		return catalog.Kernel{}, perr.Newf(perr.ErrorCodeUnknown, "kernel listing entry without ref for %s", competitionID)
	}
	return catalog.Kernel{ID: ref, CompetitionID: competitionID, Extra: r.passThrough()}, nil
}

// pullResponse is the body of kernels/pull
type pullResponse struct {
	Metadata json.RawMessage `json:"metadata"`
	Blob     *pullBlob       `json:"blob"`
}

type pullBlob struct {
	Source     *string `json:"source"`
	Language   string  `json:"language"`
	KernelType string  `json:"kernelType"`
}

type pullMetadata struct {
	Language   string `json:"language"`
	KernelType string `json:"kernelType"`
}

// Kernel types the harvester knows how to store
const (
	KernelTypeNotebook = "notebook"
	KernelTypeScript   = "script"
)

// File is one artifact of a pulled kernel
type File struct {
	Name string
	Data []byte
}

// Notebook is a pulled kernel: what the platform says about it and the files
// to persist. Files is empty for kernel types without a known extension
type Notebook struct {
	KernelID   string
	Language   string
	KernelType string
	Files      []File
}

// SourceExt maps kernel type and language to the stored file extension
func SourceExt(kernelType, language string) (string, bool) {
	kt := strings.ToLower(strings.TrimSpace(kernelType))
	lang := strings.ToLower(strings.TrimSpace(language))
	switch kt {
	case KernelTypeNotebook:
		switch lang {
		case "r":
			return ".irnb", true
		default:
			return ".ipynb", true
		}
	case KernelTypeScript:
		switch lang {
		case "python":
			return ".py", true
		case "r":
			return ".r", true
		case "rmarkdown":
			return ".rmd", true
		case "julia":
			return ".jl", true
		case "sqlite":
			return ".sql", true
		}
	}
	return "", false
}

// MetaSuffix names the metadata sidecar written next to each source file
const MetaSuffix = ".meta.json"

func toNotebook(kernelID string, body pullResponse) (Notebook, error) {
	if len(body.Metadata) == 0 || string(body.Metadata) == "null" {
		return Notebook{}, perr.NotFoundf("kernel %s: missing metadata", kernelID)
	}
	var md pullMetadata
	if err := json.Unmarshal(body.Metadata, &md); err != nil {
		return Notebook{}, malformedResponse(err, "kernel %s: invalid metadata", kernelID)
	}
	if body.Blob == nil || body.Blob.Source == nil {
		return Notebook{}, perr.NotFoundf("kernel %s: missing source", kernelID)
	}
	if md.Language == "" {
		md.Language = body.Blob.Language
	}
	if md.KernelType == "" {
		md.KernelType = body.Blob.KernelType
	}

	nb := Notebook{
		KernelID:   kernelID,
		Language:   strings.ToLower(md.Language),
		KernelType: strings.ToLower(md.KernelType),
	}
	ext, ok := SourceExt(nb.KernelType, nb.Language)
	if !ok {
		return nb, nil
	}

	stem := catalog.ArtifactStem(kernelID)
	nb.Files = []File{
		{Name: stem + ext, Data: []byte(*body.Blob.Source)},
		{Name: stem + MetaSuffix, Data: indentJSON(body.Metadata)},
	}
	return nb, nil
}

// malformedResponse marks an undecodable platform payload. It stays a per-item
// failure: a broken response for one kernel must not stop the stage
func malformedResponse(err error, format string, a ...any) error {
	return perr.Wrapf(err, perr.ErrorCodeUnknown, format, a...)
}

func indentJSON(raw json.RawMessage) []byte {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "    "); err != nil {
		return append([]byte(nil), raw...)
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}
