package catalog

import (
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// pool of fresh transformer chains
var idChainPool = sync.Pool{
	New: func() any {
		return transform.Chain(norm.NFKC, cases.Fold())
	},
}

// NormalizeID returns the comparison key for a platform identifier.
// Slugs are case-insensitive on the platform, so "Titanic" and "titanic" collide
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	id = strings.ToValidUTF8(id, "")

	tr := idChainPool.Get().(transform.Transformer)
	out, _, err := transform.String(tr, id)
	tr.Reset()
	idChainPool.Put(tr)
	if err != nil {
		return strings.ToLower(id)
	}
	return out
}

// SameID reports whether a and b name the same platform object
func SameID(a, b string) bool { return NormalizeID(a) == NormalizeID(b) }

// stemEscaper keeps ArtifactStem injective: "_" becomes "_-" so "__" can only
// come from the owner/slug separator
var stemEscaper = strings.NewReplacer("_", "_-", "/", "__")

// ArtifactStem maps a kernel id to a flat file name stem: owner/slug -> owner__slug,
// my_team/nb -> my_-team__nb. Distinct ids never share a stem
func ArtifactStem(kernelID string) string {
	return stemEscaper.Replace(strings.TrimSpace(kernelID))
}
