package directory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) (*Engine, *memStore) {
	t.Helper()
	store := newMemStore()
	store.addGroup(GroupConfig{GroupID: "g-eng", Name: "Engineers", MembershipType: MembershipTypeDynamic, RuleLogic: RuleLogicAnd})
	store.addGroup(GroupConfig{GroupID: "g-static", Name: "Hand picked", MembershipType: MembershipTypeStatic})
	return NewEngine(testDirectory(), store, store), store
}

func TestRuleCRUD(t *testing.T) {
	engine, _ := newTestEngine(t)

	r1, err := engine.AddRule("g-eng", Rule{Field: FieldDepartment, Operator: OpIsUnder, Value: "Engineering"})
	require.NoError(t, err)
	assert.NotEmpty(t, r1.ID)
	assert.Equal(t, 1, r1.SortOrder)

	r2, err := engine.AddRule("g-eng", Rule{Field: FieldJobTitle, Operator: OpContains, Value: "Manager"})
	require.NoError(t, err)
	assert.Equal(t, 2, r2.SortOrder)

	_, err = engine.AddRule("g-eng", Rule{Field: FieldEmail, Operator: "sounds_like", Value: "x"})
	assert.ErrorIs(t, err, ErrInvalidRule)

	_, err = engine.AddRule("g-missing", Rule{Field: FieldEmail, Operator: OpEquals, Value: "x"})
	assert.ErrorIs(t, err, ErrGroupNotFound)

	r2.Value = "Engineer"
	require.NoError(t, engine.UpdateRule(r2))

	require.NoError(t, engine.DeleteRule(r1.ID))
	assert.ErrorIs(t, engine.DeleteRule(r1.ID), ErrRuleNotFound)

	rules, err := engine.GetRules("g-eng")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	// Deleting a rule leaves the survivors' order untouched.
	assert.Equal(t, 2, rules[0].SortOrder)
	assert.Equal(t, "Engineer", rules[0].Value)

	_, err = engine.GetRules("g-missing")
	assert.ErrorIs(t, err, ErrGroupNotFound)
}

func TestEvaluateRules(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.AddRule("g-eng", Rule{Field: FieldDepartment, Operator: OpIsUnder, Value: "Engineering"})
	require.NoError(t, err)
	_, err = engine.AddRule("g-eng", Rule{Field: FieldJobTitle, Operator: OpContains, Value: "Manager"})
	require.NoError(t, err)

	eval, err := engine.EvaluateRules("g-eng")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, eval.MatchingUserIDs)
	assert.Equal(t, 1, eval.MatchingUserCount)
	assert.Nil(t, eval.MatchingUsers)
	assert.False(t, eval.EvaluatedAt.IsZero())

	_, err = engine.EvaluateRules("g-missing")
	assert.ErrorIs(t, err, ErrGroupNotFound)
}

func TestEvaluateRulesPreview(t *testing.T) {
	engine, store := newTestEngine(t)
	logic := RuleLogicOr
	require.NoError(t, store.SetGroupMembershipType("g-eng", MembershipTypeDynamic, WithRuleLogic(logic)))

	_, err := engine.AddRule("g-eng", Rule{Field: FieldManager, Operator: OpIsUnder, Value: "vp-eng", IncludeNested: true})
	require.NoError(t, err)

	eval, err := engine.EvaluateRules("g-eng", WithUserPreview(2))
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "carol"}, eval.MatchingUserIDs)
	assert.Equal(t, 3, eval.MatchingUserCount)

	// The preview is capped and purely presentational.
	require.Len(t, eval.MatchingUsers, 2)
	assert.Equal(t, "alice@acme.test", eval.MatchingUsers[0].Email)
	assert.Equal(t, "Platform", eval.MatchingUsers[0].Department)
}

func TestApplyRulesReconciles(t *testing.T) {
	engine, store := newTestEngine(t)

	_, err := engine.AddRule("g-eng", Rule{Field: FieldDepartment, Operator: OpIsUnder, Value: "Platform"})
	require.NoError(t, err)

	// Stale dynamic member sam, static member ceo; alice and carol match.
	now := time.Now().UTC()
	require.NoError(t, store.ApplyMembershipDelta("g-eng", []string{"sam"}, nil, now))
	store.addStaticMember("g-eng", "ceo")

	res, err := engine.ApplyRules("g-eng")
	require.NoError(t, err)
	assert.Equal(t, &ApplyResult{Added: 2, Removed: 1, Unchanged: 0}, res)

	members, err := store.ActiveDynamicMembers("g-eng")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "carol"}, members)

	// Removal is a soft-deactivation; the audit row survives.
	sam := store.members["g-eng"][memberKey("sam", MembershipSourceDynamic)]
	require.NotNil(t, sam)
	assert.False(t, sam.Active)
	assert.NotNil(t, sam.RemovedAt)

	// The static row is untouched.
	ceo := store.members["g-eng"][memberKey("ceo", MembershipSourceStatic)]
	require.NotNil(t, ceo)
	assert.True(t, ceo.Active)

	// The evaluation time is stamped.
	group, err := store.GetGroup("g-eng")
	require.NoError(t, err)
	require.NotNil(t, group.LastRuleEvaluation)
}

func TestApplyRulesIdempotent(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.AddRule("g-eng", Rule{Field: FieldDepartment, Operator: OpIsUnder, Value: "Platform"})
	require.NoError(t, err)

	first, err := engine.ApplyRules("g-eng")
	require.NoError(t, err)
	assert.Equal(t, &ApplyResult{Added: 2, Removed: 0, Unchanged: 0}, first)

	second, err := engine.ApplyRules("g-eng")
	require.NoError(t, err)
	assert.Equal(t, &ApplyResult{Added: 0, Removed: 0, Unchanged: 2}, second)
}

func TestApplyRulesReactivatesSoftRemoved(t *testing.T) {
	engine, store := newTestEngine(t)

	_, err := engine.AddRule("g-eng", Rule{Field: FieldDepartment, Operator: OpIsUnder, Value: "Platform"})
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, store.ApplyMembershipDelta("g-eng", []string{"alice"}, nil, now))
	require.NoError(t, store.ApplyMembershipDelta("g-eng", nil, []string{"alice"}, now))

	res, err := engine.ApplyRules("g-eng")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Added)

	alice := store.members["g-eng"][memberKey("alice", MembershipSourceDynamic)]
	require.NotNil(t, alice)
	assert.True(t, alice.Active)
	assert.Nil(t, alice.RemovedAt)
}

func TestApplyRulesRequiresDynamicGroup(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.ApplyRules("g-static")
	assert.ErrorIs(t, err, ErrNotDynamicGroup)

	_, err = engine.ApplyRules("g-missing")
	assert.ErrorIs(t, err, ErrGroupNotFound)
}

func TestGroupsNeedingRefresh(t *testing.T) {
	engine, store := newTestEngine(t)

	stale := time.Now().UTC().Add(-2 * time.Hour)
	fresh := time.Now().UTC()
	store.addGroup(GroupConfig{GroupID: "g-due", MembershipType: MembershipTypeDynamic, RefreshInterval: 30, LastRuleEvaluation: &stale})
	store.addGroup(GroupConfig{GroupID: "g-never", MembershipType: MembershipTypeDynamic, RefreshInterval: 30})
	store.addGroup(GroupConfig{GroupID: "g-fresh", MembershipType: MembershipTypeDynamic, RefreshInterval: 30, LastRuleEvaluation: &fresh})
	store.addGroup(GroupConfig{GroupID: "g-off", MembershipType: MembershipTypeDynamic, RefreshInterval: 0, LastRuleEvaluation: &stale})

	due, err := engine.GroupsNeedingRefresh()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"g-due", "g-never"}, due)
}

func TestRefreshDueGroups(t *testing.T) {
	engine, store := newTestEngine(t)
	require.NoError(t, store.SetGroupMembershipType("g-eng", MembershipTypeDynamic, WithRefreshInterval(15)))

	_, err := engine.AddRule("g-eng", Rule{Field: FieldDepartment, Operator: OpIsUnder, Value: "Platform"})
	require.NoError(t, err)

	results, err := engine.RefreshDueGroups(4)
	require.NoError(t, err)
	require.Contains(t, results, "g-eng")
	assert.Equal(t, 2, results["g-eng"].Added)

	// Freshly stamped groups are no longer due.
	due, err := engine.GroupsNeedingRefresh()
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestUserReportsTo(t *testing.T) {
	engine, _ := newTestEngine(t)

	direct, err := engine.UserReportsTo("alice", "vp-eng", false)
	require.NoError(t, err)
	assert.True(t, direct)

	skip, err := engine.UserReportsTo("carol", "vp-eng", false)
	require.NoError(t, err)
	assert.False(t, skip)

	nested, err := engine.UserReportsTo("carol", "vp-eng", true)
	require.NoError(t, err)
	assert.True(t, nested)

	_, err = engine.UserReportsTo("nobody", "vp-eng", false)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestGetReportingChain(t *testing.T) {
	engine, _ := newTestEngine(t)

	reports, err := engine.GetReportingChain("vp-eng")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob", "carol"}, reports)

	withSelf, err := engine.GetReportingChain("vp-eng", WithManagerIncluded())
	require.NoError(t, err)
	assert.Contains(t, withSelf, "vp-eng")
	assert.Len(t, withSelf, 4)

	shallow, err := engine.GetReportingChain("vp-eng", WithMaxDepth(1))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, shallow)

	_, err = engine.GetReportingChain("nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestGetManagementChain(t *testing.T) {
	engine, _ := newTestEngine(t)

	chain, err := engine.GetManagementChain("carol", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "vp-eng", "ceo"}, chain)
}

func TestSetMembershipType(t *testing.T) {
	engine, store := newTestEngine(t)

	err := engine.SetMembershipType("g-static", MembershipTypeDynamic, WithRuleLogic(RuleLogicOr), WithRefreshInterval(60))
	require.NoError(t, err)

	group, err := store.GetGroup("g-static")
	require.NoError(t, err)
	assert.Equal(t, MembershipTypeDynamic, group.MembershipType)
	assert.Equal(t, RuleLogicOr, group.RuleLogic)
	assert.Equal(t, 60, group.RefreshInterval)

	assert.Error(t, engine.SetMembershipType("g-static", "hybrid"))
	assert.ErrorIs(t, engine.SetMembershipType("g-missing", MembershipTypeStatic), ErrGroupNotFound)
}
