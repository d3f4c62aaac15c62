package directory

import (
	"fmt"
	"sort"
)

// Evaluator computes the matching user set for a rule list. It is a pure
// read-only computation over the directory port; any number of evaluations
// may run concurrently.
type Evaluator struct {
	dir    DirectoryReader
	res    *Resolver
	strict bool
}

type EvaluatorOption func(*Evaluator)

// WithStrictRules makes a malformed rule abort the whole evaluation instead
// of contributing an empty match set.
func WithStrictRules() EvaluatorOption {
	return func(e *Evaluator) { e.strict = true }
}

func NewEvaluator(dir DirectoryReader, options ...EvaluatorOption) *Evaluator {
	e := &Evaluator{dir: dir, res: NewResolver(dir)}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// Evaluate combines each rule's match set under the group logic. A group
// with zero rules matches nobody regardless of logic. Under AND the running
// intersection short-circuits to empty.
func (e *Evaluator) Evaluate(rules []Rule, logic RuleLogic) (map[string]struct{}, error) {
	result := map[string]struct{}{}
	if len(rules) == 0 {
		return result, nil
	}

	users, err := e.dir.ActiveUsers()
	if err != nil {
		return nil, err
	}

	for i, rule := range rules {
		set, err := e.matchSet(rule, users)
		if err != nil {
			if e.strict {
				return nil, fmt.Errorf("rule %s: %w", rule.ID, err)
			}
			// Lenient: the bad rule matches nothing.
			set = map[string]struct{}{}
		}

		if logic == RuleLogicOr {
			for id := range set {
				result[id] = struct{}{}
			}
			continue
		}

		if i == 0 {
			result = set
		} else {
			for id := range result {
				if _, ok := set[id]; !ok {
					delete(result, id)
				}
			}
		}
		if len(result) == 0 {
			break
		}
	}

	return result, nil
}

// matchSet evaluates a single rule against the snapshot.
func (e *Evaluator) matchSet(rule Rule, users []DirectoryUser) (map[string]struct{}, error) {
	match, err := e.compile(rule)
	if err != nil {
		return nil, err
	}

	set := map[string]struct{}{}
	for _, u := range users {
		if !u.Eligible() {
			continue
		}
		if match(u) {
			set[u.ID] = struct{}{}
		}
	}
	return set, nil
}

// sortedIDs flattens a match set into a stable slice.
func sortedIDs(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
