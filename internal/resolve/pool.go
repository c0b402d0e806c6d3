package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"path"
	"sort"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/felixgeelhaar/storyboard/internal/plan"
	"github.com/felixgeelhaar/storyboard/internal/state"
)

// AssetID derives a stable asset identifier from a URI. Deterministic so the
// same candidate keeps the same id across scheduling ticks.
func AssetID(uri string) string {
	sum := blake3.Sum256([]byte(uri))
	return fmt.Sprintf("ast_%x", sum[:8])
}

// buildAssetPool gathers candidate assets for one dispatch, in pool order:
// upstream dependency artifacts, user uploads, previously selected image
// inputs. The pool is rebuilt fresh per dispatch; candidates are deduplicated
// by asset id with later sources superseding earlier ones.
func (r *Resolver) buildAssetPool(deps []DependencyArtifact, sess *state.Session) []plan.Asset {
	byID := make(map[string]int)
	var pool []plan.Asset

	add := func(a plan.Asset) {
		if a.URI == "" {
			return
		}
		if a.AssetID == "" {
			a.AssetID = AssetID(a.URI)
		}
		if a.MimeType == "" {
			a.MimeType = guessMime(a.URI)
		}
		if !a.IsImage {
			a.IsImage = strings.HasPrefix(a.MimeType, "image/")
		}
		if idx, ok := byID[a.AssetID]; ok {
			pool[idx] = a
			return
		}
		byID[a.AssetID] = len(pool)
		pool = append(pool, a)
	}

	for _, dep := range deps {
		for _, ref := range extractAssetRefs(dep.Raw) {
			producer := plan.Capability("")
			if dep.IsResearch {
				producer = plan.CapabilityResearcher
			}
			add(plan.Asset{
				URI:                ref.URI,
				SourceType:         plan.SourceDependencyArtifact,
				ProducerStepID:     dep.StepID,
				ProducerCapability: producer,
				RoleHints:          ref.Hints,
				Label:              ref.Label,
			})
		}
	}

	for _, a := range sess.UserUploads {
		a.SourceType = plan.SourceUserUpload
		add(a)
	}
	for _, a := range sess.SelectedImageInputs {
		a.SourceType = plan.SourceSelectedImageInput
		a.IsImage = true
		add(a)
	}

	return pool
}

// assetRef is a URI found inside a dependency artifact, with hint context
// from the JSON keys it was found under.
type assetRef struct {
	URI   string
	Hints []string
	Label string
}

// extractAssetRefs walks arbitrary artifact JSON collecting strings that look
// like asset URIs. The enclosing object keys become role hints so a URL
// stored under "style_reference_url" ranks for the style_reference role.
func extractAssetRefs(raw json.RawMessage) []assetRef {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil
	}
	var refs []assetRef
	walkRefs(decoded, nil, &refs)
	return refs
}

func walkRefs(node any, hints []string, refs *[]assetRef) {
	switch v := node.(type) {
	case map[string]any:
		// sorted keys: pool positions feed the final selection tiebreak, so
		// the walk order must be stable across ticks
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			next := append(append([]string(nil), hints...), key)
			walkRefs(v[key], next, refs)
		}
	case []any:
		for _, child := range v {
			walkRefs(child, hints, refs)
		}
	case string:
		if !looksLikeAssetURI(v) {
			return
		}
		label := ""
		if len(hints) > 0 {
			label = hints[len(hints)-1]
		}
		*refs = append(*refs, assetRef{
			URI:   v,
			Hints: append([]string(nil), hints...),
			Label: label,
		})
	}
}

var assetExtensions = []string{
	".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg",
	".pptx", ".pdf", ".csv", ".json", ".xlsx",
}

func looksLikeAssetURI(s string) bool {
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") ||
		strings.HasPrefix(s, "file://") || strings.HasPrefix(s, "blob://") {
		return true
	}
	if strings.ContainsAny(s, " \n\t") {
		return false
	}
	ext := strings.ToLower(path.Ext(s))
	for _, known := range assetExtensions {
		if ext == known {
			return true
		}
	}
	return false
}

func guessMime(uri string) string {
	ext := strings.ToLower(path.Ext(strings.SplitN(uri, "?", 2)[0]))
	if ext == "" {
		return "application/octet-stream"
	}
	if mt := mime.TypeByExtension(ext); mt != "" {
		return mt
	}
	return "application/octet-stream"
}

// Materialize fetches the bytes behind a cataloged asset. Used when a worker
// needs the reference content itself rather than the URI; returns nil bytes
// when the blob no longer exists upstream.
func (r *Resolver) Materialize(ctx context.Context, asset plan.Asset) ([]byte, error) {
	if r.fetcher == nil {
		return nil, fmt.Errorf("no blob fetcher configured")
	}
	return r.fetcher.FetchBytes(ctx, asset.URI)
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
