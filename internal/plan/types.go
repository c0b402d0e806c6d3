package plan

import "fmt"

// Capability identifies which worker kind a step is routed to.
type Capability string

const (
	// CapabilityWriter produces textual content (outlines, slide bodies, scripts)
	CapabilityWriter Capability = "writer"
	// CapabilityVisualizer produces rendered visual output (slides, pages, panels)
	CapabilityVisualizer Capability = "visualizer"
	// CapabilityResearcher gathers source material via the map-reduce sub-scheduler
	CapabilityResearcher Capability = "researcher"
	// CapabilityDataAnalyst derives figures and tables from structured data
	CapabilityDataAnalyst Capability = "data_analyst"
)

// Capabilities lists all valid worker capabilities in routing order.
var Capabilities = []Capability{
	CapabilityWriter,
	CapabilityVisualizer,
	CapabilityResearcher,
	CapabilityDataAnalyst,
}

// IsValid reports whether c is one of the four fixed capabilities.
func (c Capability) IsValid() bool {
	switch c {
	case CapabilityWriter, CapabilityVisualizer, CapabilityResearcher, CapabilityDataAnalyst:
		return true
	}
	return false
}

// ArtifactSuffix returns the artifact key suffix for the capability.
// Artifacts are stored under "step_{id}_{suffix}".
func (c Capability) ArtifactSuffix() string {
	switch c {
	case CapabilityWriter:
		return "writing"
	case CapabilityVisualizer:
		return "visualization"
	case CapabilityResearcher:
		return "research"
	case CapabilityDataAnalyst:
		return "analysis"
	default:
		return "output"
	}
}

// Status represents the lifecycle state of a plan step.
type Status string

const (
	// StatusPending means the step has not been dispatched yet
	StatusPending Status = "pending"
	// StatusInProgress means the step is dispatched to a worker
	StatusInProgress Status = "in_progress"
	// StatusCompleted means the step's artifact has been written
	StatusCompleted Status = "completed"
	// StatusBlocked means dispatch failed or the worker signalled unrecoverable failure
	StatusBlocked Status = "blocked"
)

// TargetScope declares the minimal update unit(s) a refine or regenerate
// request applies to.
type TargetScope struct {
	// AssetUnitIDs are canonical "<kind>:<index>" unit references
	AssetUnitIDs []string `json:"asset_unit_ids,omitempty"`

	SlideNumbers []int    `json:"slide_numbers,omitempty"`
	PageNumbers  []int    `json:"page_numbers,omitempty"`
	PanelNumbers []int    `json:"panel_numbers,omitempty"`
	CharacterIDs []string `json:"character_ids,omitempty"`
	ArtifactIDs  []string `json:"artifact_ids,omitempty"`
}

// IsEmpty reports whether the scope constrains nothing.
func (s *TargetScope) IsEmpty() bool {
	if s == nil {
		return true
	}
	return len(s.AssetUnitIDs) == 0 && len(s.SlideNumbers) == 0 && len(s.PageNumbers) == 0 &&
		len(s.PanelNumbers) == 0 && len(s.CharacterIDs) == 0 && len(s.ArtifactIDs) == 0
}

// RequirementScope selects whether an asset requirement applies per plan or per asset unit.
type RequirementScope string

const (
	// ScopeGlobal applies the requirement once for the whole step
	ScopeGlobal RequirementScope = "global"
	// ScopePerUnit applies the requirement to each targeted asset unit
	ScopePerUnit RequirementScope = "per_unit"
)

// AssetRequirement is a step's declaration of an input asset it wants resolved.
type AssetRequirement struct {
	// Role is a free-text semantic tag, e.g. "style_reference", "data_source"
	Role string `json:"role"`
	// Required marks the requirement as mandatory for quality purposes.
	// A missing required asset never blocks dispatch; it is surfaced via
	// failed_checks downstream.
	Required bool             `json:"required"`
	Scope    RequirementScope `json:"scope,omitempty"`
	// MimeAllow holds glob patterns such as "image/*" or "application/json"
	MimeAllow []string `json:"mime_allow,omitempty"`
	// SourcePreference ranks preferred asset source types (soft filter)
	SourcePreference []string `json:"source_preference,omitempty"`
	// MaxItems bounds how many assets may bind to the role (1-8)
	MaxItems int `json:"max_items,omitempty"`
}

// AssetSourceType classifies where a pooled asset candidate came from.
type AssetSourceType string

const (
	// SourceUserUpload is a file the user attached to the conversation
	SourceUserUpload AssetSourceType = "user_upload"
	// SourceDependencyArtifact is a file referenced by an upstream step artifact
	SourceDependencyArtifact AssetSourceType = "dependency_artifact"
	// SourceSelectedImageInput is an image the user previously picked as input
	SourceSelectedImageInput AssetSourceType = "selected_image_input"
	// SourceDerivedTemplate is a template extracted from earlier output
	SourceDerivedTemplate AssetSourceType = "derived_template"
)

// Asset is a pooled candidate usable as worker input. Assets are built fresh
// per step dispatch and never mutated, only superseded.
type Asset struct {
	AssetID            string          `json:"asset_id"`
	URI                string          `json:"uri"`
	MimeType           string          `json:"mime_type"`
	IsImage            bool            `json:"is_image"`
	SourceType         AssetSourceType `json:"source_type"`
	ProducerStepID     int             `json:"producer_step_id,omitempty"`
	ProducerCapability Capability      `json:"producer_capability,omitempty"`
	ProducerMode       string          `json:"producer_mode,omitempty"`
	RoleHints          []string        `json:"role_hints,omitempty"`
	Label              string          `json:"label,omitempty"`
	Title              string          `json:"title,omitempty"`
}

// AssetBinding records which assets were selected for one requirement role.
type AssetBinding struct {
	Role     string   `json:"role"`
	AssetIDs []string `json:"asset_ids"`
	// Reason is set when a required role could not be satisfied,
	// e.g. "required_but_not_found"
	Reason string `json:"reason,omitempty"`
}

// ReasonRequiredNotFound marks a required role with zero matching assets.
const ReasonRequiredNotFound = "required_but_not_found"

// QualityReport is the outcome of inspecting a step's artifact and result
// summary for failure signals. Consumed by the retry controller.
type QualityReport struct {
	StepID       int      `json:"step_id"`
	Passed       bool     `json:"passed"`
	FailedChecks []string `json:"failed_checks,omitempty"`
	Notes        string   `json:"notes,omitempty"`
}

// PlanStep is one unit of work in a plan.
type PlanStep struct {
	// ID is unique within the plan and immutable once assigned
	ID          int        `json:"id"`
	Capability  Capability `json:"capability"`
	Mode        string     `json:"mode,omitempty"`
	Instruction string     `json:"instruction"`
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`

	// Inputs and Outputs are free-text labels for human-readable dependency
	// declarations; machine dependencies live in DependsOn.
	Inputs  []string `json:"inputs,omitempty"`
	Outputs []string `json:"outputs,omitempty"`

	Preconditions   []string `json:"preconditions,omitempty"`
	Validation      []string `json:"validation,omitempty"`
	SuccessCriteria []string `json:"success_criteria,omitempty"`

	// Fallback lists ordered recovery strategies for the step
	Fallback []string `json:"fallback,omitempty"`

	// DependsOn references earlier step ids only (no self-reference)
	DependsOn []int `json:"depends_on,omitempty"`

	TargetScope       *TargetScope       `json:"target_scope,omitempty"`
	AssetRequirements []AssetRequirement `json:"asset_requirements,omitempty"`
	DesignDirection   string             `json:"design_direction,omitempty"`

	Status        Status `json:"status"`
	ResultSummary string `json:"result_summary,omitempty"`

	// OriginStepID links a fallback step back to the step it replaces (0 = none)
	OriginStepID int `json:"origin_step_id,omitempty"`
}

// ArtifactKey returns the artifact store key for the step's output.
func (s *PlanStep) ArtifactKey() string {
	return fmt.Sprintf("step_%d_%s", s.ID, s.Capability.ArtifactSuffix())
}

// Plan is an ordered list of typed steps.
type Plan struct {
	Steps []PlanStep `json:"steps"`
}

// IsEmpty reports whether the plan has no steps.
func (p *Plan) IsEmpty() bool {
	return p == nil || len(p.Steps) == 0
}

// MaxID returns the highest step id in the plan, or 0 for an empty plan.
func (p *Plan) MaxID() int {
	max := 0
	for i := range p.Steps {
		if p.Steps[i].ID > max {
			max = p.Steps[i].ID
		}
	}
	return max
}

// NextID returns the next monotonically assigned step id.
func (p *Plan) NextID() int {
	return p.MaxID() + 1
}

// StepByID returns a pointer to the step with the given id, or nil.
func (p *Plan) StepByID(id int) *PlanStep {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i]
		}
	}
	return nil
}

// FindCurrentStep returns the in_progress step if one exists, otherwise the
// first pending step, otherwise nil (plan exhausted).
func (p *Plan) FindCurrentStep() *PlanStep {
	for i := range p.Steps {
		if p.Steps[i].Status == StatusInProgress {
			return &p.Steps[i]
		}
	}
	for i := range p.Steps {
		if p.Steps[i].Status == StatusPending {
			return &p.Steps[i]
		}
	}
	return nil
}

// BlockedSteps returns all blocked steps in plan order.
func (p *Plan) BlockedSteps() []*PlanStep {
	var blocked []*PlanStep
	for i := range p.Steps {
		if p.Steps[i].Status == StatusBlocked {
			blocked = append(blocked, &p.Steps[i])
		}
	}
	return blocked
}

// CountByStatus returns how many steps currently carry the given status.
func (p *Plan) CountByStatus(status Status) int {
	n := 0
	for i := range p.Steps {
		if p.Steps[i].Status == status {
			n++
		}
	}
	return n
}
