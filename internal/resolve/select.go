package resolve

import (
	"path"
	"sort"
	"strings"

	"github.com/felixgeelhaar/storyboard/internal/plan"
)

// Ranking weights. Role-hint containment dominates source affinity so an
// explicitly tagged candidate always beats one matched only by provenance.
const (
	scoreRoleHint       = 7
	scoreSourceAffinity = 5
)

// roleHeuristic describes what a requirement role expects from a candidate.
type roleHeuristic struct {
	wantImage bool
	mimes     []string
	hints     []string
	sources   []plan.AssetSourceType
}

// roleHeuristics is the fixed role semantics table. Roles not listed here are
// constrained only by the requirement's own mime_allow patterns.
var roleHeuristics = map[string]roleHeuristic{
	"style_reference": {
		wantImage: true,
		hints:     []string{"style", "reference", "design", "tone"},
		sources:   []plan.AssetSourceType{plan.SourceSelectedImageInput, plan.SourceUserUpload},
	},
	"layout_reference": {
		wantImage: true,
		hints:     []string{"layout", "template", "structure"},
		sources:   []plan.AssetSourceType{plan.SourceDependencyArtifact, plan.SourceUserUpload},
	},
	"template_source": {
		mimes:   []string{"application/*"},
		hints:   []string{"template", "master", "theme"},
		sources: []plan.AssetSourceType{plan.SourceDerivedTemplate, plan.SourceUserUpload},
	},
	"data_source": {
		mimes:   []string{"application/json", "text/*", "application/vnd.*"},
		hints:   []string{"data", "table", "figures", "csv"},
		sources: []plan.AssetSourceType{plan.SourceUserUpload, plan.SourceDependencyArtifact},
	},
	"character_reference": {
		wantImage: true,
		hints:     []string{"character", "portrait", "face"},
		sources:   []plan.AssetSourceType{plan.SourceSelectedImageInput, plan.SourceUserUpload},
	},
}

// selectAssets resolves every requirement on the step against the pool and
// returns the union of selected assets plus one binding per role. A required
// role with zero survivors still produces a binding, carrying the
// required_but_not_found reason; dispatch proceeds regardless.
func selectAssets(step *plan.PlanStep, pool []plan.Asset) ([]plan.Asset, []plan.AssetBinding) {
	var bindings []plan.AssetBinding
	selectedByID := make(map[string]plan.Asset)
	var order []string

	for _, req := range step.AssetRequirements {
		chosen := selectForRequirement(req, pool)

		binding := plan.AssetBinding{Role: req.Role, AssetIDs: make([]string, 0, len(chosen))}
		for _, a := range chosen {
			binding.AssetIDs = append(binding.AssetIDs, a.AssetID)
			if _, ok := selectedByID[a.AssetID]; !ok {
				selectedByID[a.AssetID] = a
				order = append(order, a.AssetID)
			}
		}
		if req.Required && len(chosen) == 0 {
			binding.Reason = plan.ReasonRequiredNotFound
		}
		bindings = append(bindings, binding)
	}

	selected := make([]plan.Asset, 0, len(order))
	for _, id := range order {
		selected = append(selected, selectedByID[id])
	}
	return selected, bindings
}

// selectForRequirement filters the pool for one requirement and returns the
// top max_items candidates by rank. Source preference is a soft filter: when
// it eliminates every candidate, selection retries without it.
func selectForRequirement(req plan.AssetRequirement, pool []plan.Asset) []plan.Asset {
	heuristic, hasHeuristic := roleHeuristics[req.Role]

	filter := func(respectSourcePref bool) []plan.Asset {
		var out []plan.Asset
		for _, a := range pool {
			if !mimeAllowed(req.MimeAllow, a.MimeType) {
				continue
			}
			if hasHeuristic && !matchesHeuristic(heuristic, a) {
				continue
			}
			if respectSourcePref && len(req.SourcePreference) > 0 && !sourcePreferred(req.SourcePreference, a.SourceType) {
				continue
			}
			out = append(out, a)
		}
		return out
	}

	survivors := filter(true)
	if len(survivors) == 0 && len(req.SourcePreference) > 0 {
		survivors = filter(false)
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		si := rank(req, heuristic, hasHeuristic, survivors[i])
		sj := rank(req, heuristic, hasHeuristic, survivors[j])
		if si != sj {
			return si > sj
		}
		// recency: higher producer step id wins
		return survivors[i].ProducerStepID > survivors[j].ProducerStepID
	})

	max := req.MaxItems
	if max <= 0 {
		max = 1
	}
	if len(survivors) > max {
		survivors = survivors[:max]
	}
	return survivors
}

func rank(req plan.AssetRequirement, h roleHeuristic, hasHeuristic bool, a plan.Asset) int {
	score := 0
	if hintMatches(req.Role, h.hints, a.RoleHints) {
		score += scoreRoleHint
	}
	if hasHeuristic {
		for _, src := range h.sources {
			if a.SourceType == src {
				score += scoreSourceAffinity
				break
			}
		}
	}
	return score
}

// hintMatches reports whether any asset role hint contains the requirement
// role or one of the heuristic hint words.
func hintMatches(role string, heuristicHints []string, assetHints []string) bool {
	for _, hint := range assetHints {
		if containsFold(hint, role) || containsFold(role, hint) {
			return true
		}
		for _, expected := range heuristicHints {
			if containsFold(hint, expected) {
				return true
			}
		}
	}
	return false
}

// matchesHeuristic checks the role's fixed expectations against a candidate.
// A hint match overrides the image/mime expectation so explicitly tagged
// candidates are never dropped by shape alone.
func matchesHeuristic(h roleHeuristic, a plan.Asset) bool {
	for _, hint := range a.RoleHints {
		for _, expected := range h.hints {
			if containsFold(hint, expected) {
				return true
			}
		}
	}
	if h.wantImage {
		return a.IsImage
	}
	if len(h.mimes) > 0 {
		return mimeAllowed(h.mimes, a.MimeType)
	}
	return true
}

// mimeAllowed matches a mime type against glob patterns like "image/*".
// An empty pattern list allows everything.
func mimeAllowed(patterns []string, mimeType string) bool {
	if len(patterns) == 0 {
		return true
	}
	// strip parameters such as "; charset=utf-8"
	mimeType = strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	for _, pattern := range patterns {
		if ok, err := path.Match(pattern, mimeType); err == nil && ok {
			return true
		}
	}
	return false
}

func sourcePreferred(prefs []string, source plan.AssetSourceType) bool {
	for _, pref := range prefs {
		if pref == string(source) {
			return true
		}
	}
	return false
}
