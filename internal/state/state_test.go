package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/storyboard/internal/plan"
)

func TestNewSession(t *testing.T) {
	sess := NewSession()
	require.NotEmpty(t, sess.SessionID)
	assert.False(t, sess.HasPlan())

	other := NewSession()
	assert.NotEqual(t, sess.SessionID, other.SessionID)
}

func TestBeginTurn_ResetsOnlyTurnCounter(t *testing.T) {
	sess := NewSession()
	sess.RethinkUsedByStep[3] = 2
	sess.RethinkUsedTurn = 5

	sess.BeginTurn()

	assert.Equal(t, 0, sess.RethinkUsedTurn)
	assert.Equal(t, 2, sess.RethinkUsedByStep[3], "per-step budget survives across turns")
}

func TestRecordSelection_CatalogsAssets(t *testing.T) {
	sess := NewSession()
	assets := []plan.Asset{
		{AssetID: "ast_1", URI: "https://example.com/style.png", SourceType: plan.SourceUserUpload},
	}
	bindings := []plan.AssetBinding{{Role: "style_reference", AssetIDs: []string{"ast_1"}}}

	sess.RecordSelection(4, assets, bindings)

	assert.Equal(t, assets, sess.SelectedAssetsByStep[4])
	assert.Equal(t, bindings, sess.AssetBindingsByStep[4])
	assert.Contains(t, sess.AssetCatalog, "ast_1")
}

func TestHasPlan(t *testing.T) {
	sess := NewSession()
	sess.Plan = &plan.Plan{}
	assert.False(t, sess.HasPlan(), "empty plan counts as no plan")

	sess.Plan.AppendStep(plan.PlanStep{Capability: plan.CapabilityWriter, Instruction: "draft"})
	assert.True(t, sess.HasPlan())
}
