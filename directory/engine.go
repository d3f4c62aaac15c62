package directory

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Engine wires the evaluation pipeline to persisted rules and membership.
// It is stateless apart from per-group apply locks; construct one per set of
// ports and share it freely.
type Engine struct {
	dir     DirectoryReader
	rules   RuleStore
	members MembershipStore
	eval    *Evaluator

	applyLocks sync.Map // groupID -> *sync.Mutex
}

type EngineOption func(*Engine)

// WithStrictEvaluation propagates rule errors instead of degrading bad
// rules to an empty match.
func WithStrictEvaluation() EngineOption {
	return func(e *Engine) { e.eval = NewEvaluator(e.dir, WithStrictRules()) }
}

func NewEngine(dir DirectoryReader, rules RuleStore, members MembershipStore, options ...EngineOption) *Engine {
	e := &Engine{
		dir:     dir,
		rules:   rules,
		members: members,
		eval:    NewEvaluator(dir),
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// Evaluation is the result of a rule evaluation run. MatchingUsers is only
// populated when a preview was requested and is capped; it never feeds back
// into the match set.
type Evaluation struct {
	MatchingUserIDs   []string
	MatchingUserCount int
	MatchingUsers     []UserSummary
	EvaluatedAt       time.Time
}

// ApplyResult reports reconciliation counts only; id lists are deliberately
// not part of the contract.
type ApplyResult struct {
	Added     int
	Removed   int
	Unchanged int
}

type EvaluateOption func(*evaluateSettings)

type evaluateSettings struct {
	previewLimit int
}

// WithUserPreview resolves up to limit matching users to display summaries.
func WithUserPreview(limit int) EvaluateOption {
	return func(s *evaluateSettings) { s.previewLimit = limit }
}

func (e *Engine) GetRules(groupID string) ([]Rule, error) {
	if _, err := e.rules.GetGroup(groupID); err != nil {
		return nil, err
	}
	return e.rules.GetRules(groupID)
}

// AddRule validates and appends a rule to the group. A missing ID is
// assigned; sort order is always the next slot in the group.
func (e *Engine) AddRule(groupID string, rule Rule) (Rule, error) {
	if _, err := e.rules.GetGroup(groupID); err != nil {
		return Rule{}, err
	}

	rule.GroupID = groupID
	if err := rule.Validate(); err != nil {
		return Rule{}, err
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}

	return e.rules.InsertRule(rule)
}

func (e *Engine) UpdateRule(rule Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	return e.rules.UpdateRule(rule)
}

func (e *Engine) DeleteRule(ruleID string) error {
	return e.rules.DeleteRule(ruleID)
}

func (e *Engine) SetMembershipType(groupID string, membershipType MembershipType, options ...GroupOption) error {
	switch membershipType {
	case MembershipTypeStatic, MembershipTypeDynamic:
	default:
		return fmt.Errorf("invalid membership type %q", membershipType)
	}
	return e.rules.SetGroupMembershipType(groupID, membershipType, options...)
}

// EvaluateRules computes the group's current match set without touching
// persisted membership.
func (e *Engine) EvaluateRules(groupID string, options ...EvaluateOption) (*Evaluation, error) {
	settings := evaluateSettings{}
	for _, opt := range options {
		opt(&settings)
	}

	group, err := e.rules.GetGroup(groupID)
	if err != nil {
		return nil, err
	}

	rules, err := e.rules.GetRules(groupID)
	if err != nil {
		return nil, err
	}

	set, err := e.eval.Evaluate(rules, group.RuleLogic)
	if err != nil {
		return nil, err
	}

	result := &Evaluation{
		MatchingUserIDs:   sortedIDs(set),
		MatchingUserCount: len(set),
		EvaluatedAt:       time.Now().UTC(),
	}

	for _, id := range result.MatchingUserIDs {
		if settings.previewLimit <= 0 || len(result.MatchingUsers) >= settings.previewLimit {
			break
		}
		user, err := e.dir.GetUser(id)
		if err != nil {
			continue
		}
		result.MatchingUsers = append(result.MatchingUsers, UserSummary{
			ID:         user.ID,
			Name:       user.Name,
			Email:      user.Email,
			Department: user.Department,
			JobTitle:   user.JobTitle,
		})
	}

	return result, nil
}

// ApplyRules evaluates the group and reconciles persisted dynamic
// membership with the minimal add/remove delta. Overlapping runs on the
// same group are serialized; different groups proceed independently.
func (e *Engine) ApplyRules(groupID string) (*ApplyResult, error) {
	lock := e.applyLock(groupID)
	lock.Lock()
	defer lock.Unlock()

	group, err := e.rules.GetGroup(groupID)
	if err != nil {
		return nil, err
	}
	if group.MembershipType != MembershipTypeDynamic {
		return nil, ErrNotDynamicGroup
	}

	evaluation, err := e.EvaluateRules(groupID)
	if err != nil {
		return nil, err
	}

	current, err := e.members.ActiveDynamicMembers(groupID)
	if err != nil {
		return nil, err
	}
	existing := map[string]bool{}
	for _, id := range current {
		existing[id] = true
	}

	candidates := map[string]bool{}
	var toAdd []string
	for _, id := range evaluation.MatchingUserIDs {
		candidates[id] = true
		if !existing[id] {
			toAdd = append(toAdd, id)
		}
	}
	var toRemove []string
	for _, id := range current {
		if !candidates[id] {
			toRemove = append(toRemove, id)
		}
	}

	if err := e.members.ApplyMembershipDelta(groupID, toAdd, toRemove, evaluation.EvaluatedAt); err != nil {
		return nil, fmt.Errorf("apply membership delta: %w", err)
	}

	return &ApplyResult{
		Added:     len(toAdd),
		Removed:   len(toRemove),
		Unchanged: len(candidates) - len(toAdd),
	}, nil
}

// GroupsNeedingRefresh returns dynamic groups whose scheduled refresh is
// due: refresh enabled and either never evaluated or evaluated longer ago
// than the interval.
func (e *Engine) GroupsNeedingRefresh() ([]string, error) {
	groups, err := e.rules.DynamicGroups()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var due []string
	for _, g := range groups {
		if g.RefreshInterval <= 0 {
			continue
		}
		if g.LastRuleEvaluation == nil ||
			now.Sub(*g.LastRuleEvaluation) >= time.Duration(g.RefreshInterval)*time.Minute {
			due = append(due, g.GroupID)
		}
	}
	return due, nil
}

// RefreshDueGroups applies every due group, at most maxConcurrent at a
// time. Results are keyed by group; the first failure is returned alongside
// whatever completed.
func (e *Engine) RefreshDueGroups(maxConcurrent int) (map[string]*ApplyResult, error) {
	due, err := e.GroupsNeedingRefresh()
	if err != nil {
		return nil, err
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	var mu sync.Mutex
	results := make(map[string]*ApplyResult, len(due))

	g := errgroup.Group{}
	g.SetLimit(maxConcurrent)
	for _, groupID := range due {
		groupID := groupID
		g.Go(func() error {
			res, err := e.ApplyRules(groupID)
			if err != nil {
				return fmt.Errorf("group %s: %w", groupID, err)
			}
			mu.Lock()
			results[groupID] = res
			mu.Unlock()
			return nil
		})
	}

	return results, g.Wait()
}

// UserReportsTo reports whether userID sits under managerID: directly, or
// anywhere in the management chain when includeNested is true.
func (e *Engine) UserReportsTo(userID, managerID string, includeNested bool) (bool, error) {
	user, err := e.dir.GetUser(userID)
	if err != nil {
		return false, err
	}
	if user.ManagerID == managerID {
		return true, nil
	}
	if !includeNested {
		return false, nil
	}

	chain, err := e.eval.res.ManagementChain(userID, MaxTraversalDepth)
	if err != nil {
		return false, err
	}
	for _, id := range chain {
		if id == managerID {
			return true, nil
		}
	}
	return false, nil
}

type ChainOption func(*chainSettings)

type chainSettings struct {
	includeManager bool
	maxDepth       int
}

func WithManagerIncluded() ChainOption {
	return func(s *chainSettings) { s.includeManager = true }
}

func WithMaxDepth(depth int) ChainOption {
	return func(s *chainSettings) { s.maxDepth = depth }
}

// GetReportingChain returns everyone ultimately reporting to managerID.
func (e *Engine) GetReportingChain(managerID string, options ...ChainOption) ([]string, error) {
	settings := chainSettings{maxDepth: MaxTraversalDepth}
	for _, opt := range options {
		opt(&settings)
	}

	if _, err := e.dir.GetUser(managerID); err != nil {
		return nil, err
	}

	reports, err := e.eval.res.reportingClosureDepth(managerID, settings.maxDepth)
	if err != nil {
		return nil, err
	}
	if settings.includeManager {
		reports = append([]string{managerID}, reports...)
	}
	return reports, nil
}

// GetManagementChain returns userID's chain of managers, nearest first.
func (e *Engine) GetManagementChain(userID string, maxDepth int) ([]string, error) {
	return e.eval.res.ManagementChain(userID, maxDepth)
}

func (e *Engine) applyLock(groupID string) *sync.Mutex {
	lock, _ := e.applyLocks.LoadOrStore(groupID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}
