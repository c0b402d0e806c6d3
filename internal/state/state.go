// Package state holds the typed session container owned by the orchestration
// engine. One State belongs to exactly one conversation thread; concurrent
// sessions use fully independent instances and never share plan, artifact, or
// asset data.
package state

import (
	"github.com/google/uuid"

	"github.com/felixgeelhaar/storyboard/internal/plan"
)

// Session is the single-writer orchestration state for one conversation
// thread. All mutation happens at step-status commit points inside the
// supervisor; workers never touch it directly.
type Session struct {
	// SessionID identifies the conversation thread
	SessionID string `json:"session_id"`

	Plan *plan.Plan `json:"plan,omitempty"`

	// BaselineHash is the content hash of the normalized plan, recorded once
	// per plan generation for idempotency and audit
	BaselineHash string `json:"plan_baseline_hash,omitempty"`

	// PendingPatchOps is the queued patch log awaiting the patch gate
	PendingPatchOps []map[string]any `json:"pending_patch_ops,omitempty"`

	// InterruptPending is set while a clarification is outstanding; it
	// downgrades a "new" intent to "refine" to prevent accidental replans
	InterruptPending bool `json:"interrupt_pending,omitempty"`

	// RethinkUsedByStep counts retries per origin step id
	RethinkUsedByStep map[int]int `json:"rethink_used_by_step,omitempty"`
	// RethinkUsedTurn counts retries across the current conversation turn
	RethinkUsedTurn int `json:"rethink_used_turn,omitempty"`

	// AssetCatalog is the global pool of every asset candidate seen this session
	AssetCatalog map[string]plan.Asset `json:"asset_catalog,omitempty"`
	// SelectedAssetsByStep records the resolved asset set per dispatched step
	SelectedAssetsByStep map[int][]plan.Asset `json:"selected_assets_by_step,omitempty"`
	// AssetBindingsByStep records the requirement-role bindings per step
	AssetBindingsByStep map[int][]plan.AssetBinding `json:"asset_bindings_by_step,omitempty"`

	// UserUploads are conversation attachments eligible for asset pooling
	UserUploads []plan.Asset `json:"user_uploads,omitempty"`
	// SelectedImageInputs are images the user explicitly chose as inputs
	SelectedImageInputs []plan.Asset `json:"selected_image_inputs,omitempty"`

	// AssetUnitLedger maps known asset unit ids ("slide:3") to metadata
	AssetUnitLedger map[string]any `json:"asset_unit_ledger,omitempty"`

	// QualityReports holds the latest report per inspected step id
	QualityReports map[int]plan.QualityReport `json:"quality_reports,omitempty"`
}

// NewSession creates an empty session with a fresh id.
func NewSession() *Session {
	return &Session{
		SessionID:            uuid.NewString(),
		RethinkUsedByStep:    make(map[int]int),
		AssetCatalog:         make(map[string]plan.Asset),
		SelectedAssetsByStep: make(map[int][]plan.Asset),
		AssetBindingsByStep:  make(map[int][]plan.AssetBinding),
		QualityReports:       make(map[int]plan.QualityReport),
	}
}

// BeginTurn resets the per-turn retry counter at the start of a conversation
// turn. Per-step counters survive across turns.
func (s *Session) BeginTurn() {
	s.RethinkUsedTurn = 0
}

// HasPlan reports whether a non-empty plan exists.
func (s *Session) HasPlan() bool {
	return s.Plan != nil && !s.Plan.IsEmpty()
}

// RecordQualityReport stores the latest report for a step.
func (s *Session) RecordQualityReport(report plan.QualityReport) {
	if s.QualityReports == nil {
		s.QualityReports = make(map[int]plan.QualityReport)
	}
	s.QualityReports[report.StepID] = report
}

// CatalogAsset inserts an asset into the global catalog. Existing entries are
// superseded, never mutated in place.
func (s *Session) CatalogAsset(a plan.Asset) {
	if s.AssetCatalog == nil {
		s.AssetCatalog = make(map[string]plan.Asset)
	}
	s.AssetCatalog[a.AssetID] = a
}

// RecordSelection persists the resolver output for a step so repeated
// scheduling ticks stay idempotent and auditable.
func (s *Session) RecordSelection(stepID int, assets []plan.Asset, bindings []plan.AssetBinding) {
	if s.SelectedAssetsByStep == nil {
		s.SelectedAssetsByStep = make(map[int][]plan.Asset)
	}
	if s.AssetBindingsByStep == nil {
		s.AssetBindingsByStep = make(map[int][]plan.AssetBinding)
	}
	s.SelectedAssetsByStep[stepID] = assets
	s.AssetBindingsByStep[stepID] = bindings
	for _, a := range assets {
		s.CatalogAsset(a)
	}
}
