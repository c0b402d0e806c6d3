// Package resolve computes a step's input context before dispatch: the
// upstream artifacts it may read and a ranked, filtered pool of candidate
// assets for its declared requirements.
package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/felixgeelhaar/storyboard/internal/log"
	"github.com/felixgeelhaar/storyboard/internal/plan"
	"github.com/felixgeelhaar/storyboard/internal/state"
	"github.com/felixgeelhaar/storyboard/internal/store"
)

// DefaultResearchCharBudget bounds how much research text is injected into a
// downstream prompt.
const DefaultResearchCharBudget = 3000

// TruncationSuffix marks research text cut at the character budget.
const TruncationSuffix = "...(truncated)"

// Config tunes the resolver.
type Config struct {
	// ResearchCharBudget caps research artifact text per dependency.
	// Zero means DefaultResearchCharBudget.
	ResearchCharBudget int

	// LegacyResearchScan enables the deprecated fallback that scans all
	// research artifacts when a step declares research-labeled inputs but no
	// explicit depends_on. Prefer explicit dependencies; the scan can pick up
	// artifacts from unrelated earlier plan revisions.
	LegacyResearchScan bool
}

// DependencyArtifact is one loaded upstream artifact.
type DependencyArtifact struct {
	StepID     int             `json:"step_id"`
	Key        string          `json:"key"`
	Raw        json.RawMessage `json:"raw,omitempty"`
	Text       string          `json:"text,omitempty"`
	IsResearch bool            `json:"is_research,omitempty"`
}

// Resolved is the full input context for one step dispatch.
type Resolved struct {
	PlannedInputs       []string
	DependsOnStepIDs    []int
	DependencyArtifacts []DependencyArtifact
	ResearchInputs      []string
	Assets              []plan.Asset
	Bindings            []plan.AssetBinding
	Warnings            []string
}

// Resolver loads dependency artifacts and selects assets for steps.
type Resolver struct {
	artifacts store.ArtifactStore
	fetcher   store.BlobFetcher
	cfg       Config
	logger    *log.Logger
}

// New creates a resolver over the given artifact store. The blob fetcher is
// optional; when nil, assets are cataloged by URI without materialization.
func New(artifacts store.ArtifactStore, fetcher store.BlobFetcher, cfg Config, logger *log.Logger) *Resolver {
	if cfg.ResearchCharBudget <= 0 {
		cfg.ResearchCharBudget = DefaultResearchCharBudget
	}
	if logger == nil {
		logger = log.DefaultLogger()
	}
	return &Resolver{artifacts: artifacts, fetcher: fetcher, cfg: cfg, logger: logger}
}

// Resolve builds the input context for a step. Missing upstream artifacts are
// warnings, not errors: dispatch proceeds with whatever could be loaded.
// Selection results are persisted on the session so repeated scheduling ticks
// are idempotent and auditable.
func (r *Resolver) Resolve(ctx context.Context, p *plan.Plan, step *plan.PlanStep, sess *state.Session) (*Resolved, error) {
	res := &Resolved{
		PlannedInputs: append([]string(nil), step.Inputs...),
	}

	depIDs, warnings := r.dependencyStepIDs(p, step)
	res.DependsOnStepIDs = depIDs
	res.Warnings = append(res.Warnings, warnings...)

	for _, depID := range depIDs {
		artifact, warning := r.loadArtifact(p, step, depID)
		if warning != "" {
			res.Warnings = append(res.Warnings, warning)
			continue
		}
		res.DependencyArtifacts = append(res.DependencyArtifacts, artifact)
		if artifact.IsResearch {
			res.ResearchInputs = append(res.ResearchInputs, artifact.Text)
		}
	}

	pool := r.buildAssetPool(res.DependencyArtifacts, sess)
	res.Assets, res.Bindings = selectAssets(step, pool)
	for _, binding := range res.Bindings {
		if binding.Reason == plan.ReasonRequiredNotFound {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("required asset role %q has no matching candidates", binding.Role))
		}
	}

	sess.RecordSelection(step.ID, res.Assets, res.Bindings)

	r.logger.DebugContext(ctx, "step resolved",
		"step_id", step.ID,
		"dependencies", len(res.DependencyArtifacts),
		"assets", len(res.Assets),
		"warnings", len(res.Warnings))
	return res, nil
}

var researchKeyPattern = regexp.MustCompile(`^step_([0-9]+)_research$`)

// dependencyStepIDs returns the explicit depends_on list, or, when the legacy
// scan is enabled and the step labels a research input without declaring a
// dependency, every step id that has produced a research artifact.
func (r *Resolver) dependencyStepIDs(p *plan.Plan, step *plan.PlanStep) ([]int, []string) {
	if len(step.DependsOn) > 0 {
		return append([]int(nil), step.DependsOn...), nil
	}
	if !r.cfg.LegacyResearchScan || !hasResearchInput(step) {
		return nil, nil
	}

	keys, err := r.artifacts.Keys()
	if err != nil {
		return nil, []string{fmt.Sprintf("research artifact scan failed: %v", err)}
	}

	var ids []int
	for _, key := range keys {
		m := researchKeyPattern.FindStringSubmatch(key)
		if m == nil {
			continue
		}
		id, err := strconv.Atoi(m[1])
		if err != nil || id >= step.ID {
			continue
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var warnings []string
	if len(ids) > 0 {
		warnings = append(warnings,
			fmt.Sprintf("step %d has no explicit depends_on; scanned %d research artifact(s)", step.ID, len(ids)))
	}
	return ids, warnings
}

func hasResearchInput(step *plan.PlanStep) bool {
	for _, input := range step.Inputs {
		if containsFold(input, "research") || containsFold(input, "調査") {
			return true
		}
	}
	return false
}

// loadArtifact loads one dependency artifact and renders its text form.
// Research text is truncated to the configured character budget.
func (r *Resolver) loadArtifact(p *plan.Plan, step *plan.PlanStep, depID int) (DependencyArtifact, string) {
	depStep := p.StepByID(depID)

	key := ""
	isResearch := false
	if depStep != nil {
		key = depStep.ArtifactKey()
		isResearch = depStep.Capability == plan.CapabilityResearcher
	} else {
		// legacy scan ids have no plan step; the key scheme is fixed
		key = fmt.Sprintf("step_%d_research", depID)
		isResearch = true
	}

	raw, ok, err := r.artifacts.Get(key)
	if err != nil {
		return DependencyArtifact{}, fmt.Sprintf("load artifact %s: %v", key, err)
	}
	if !ok {
		return DependencyArtifact{}, fmt.Sprintf("artifact %s not found for step %d dependency %d", key, step.ID, depID)
	}

	text := artifactText(raw)
	if isResearch {
		text = TruncateResearch(text, r.cfg.ResearchCharBudget)
	}

	return DependencyArtifact{
		StepID:     depID,
		Key:        key,
		Raw:        raw,
		Text:       text,
		IsResearch: isResearch,
	}, ""
}

// artifactText renders an artifact for prompt injection: JSON strings are
// unquoted, everything else passes through verbatim.
func artifactText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// TruncateResearch cuts research text at the character budget, appending the
// truncation suffix. Deterministic: the same input always yields the same
// output. Budget is counted in runes so multibyte text never splits.
func TruncateResearch(text string, budget int) string {
	if budget <= 0 {
		budget = DefaultResearchCharBudget
	}
	runes := []rune(text)
	if len(runes) <= budget {
		return text
	}
	return string(runes[:budget]) + TruncationSuffix
}
