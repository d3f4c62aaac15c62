package directory

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

// matcher tests a single compiled rule against one directory user.
type matcher func(u DirectoryUser) bool

// fold canonicalises a string for case-insensitive comparison via Unicode
// case folding.
func fold(s string) string {
	return cases.Fold().String(s)
}

// Validate checks the rule's field and operator vocabulary without touching
// the directory. Regex patterns are compiled here so bad rules are rejected
// at write time even though evaluation degrades them lazily.
func (r Rule) Validate() error {
	switch r.Field {
	case FieldDepartment, FieldDepartmentID, FieldLocation, FieldLocationID,
		FieldJobTitle, FieldManager, FieldOrgUnitPath, FieldEmployeeType,
		FieldUserType, FieldCostCenter, FieldEmail, FieldCustom:
	default:
		return fmt.Errorf("%w: unknown field %q", ErrInvalidRule, r.Field)
	}

	switch r.Operator {
	case OpIsEmpty, OpIsNotEmpty:
		if r.Field == FieldCustom && r.Value == "" {
			return fmt.Errorf("%w: customField rules need a key in value", ErrInvalidRule)
		}
	case OpRegex:
		if _, err := regexp.Compile(r.compareValue()); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRule, err)
		}
	case OpEquals, OpNotEquals, OpContains, OpNotContains, OpStartsWith,
		OpEndsWith, OpInList, OpNotInList, OpIsUnder, OpIsNotUnder:
		if r.Value == "" {
			return fmt.Errorf("%w: operator %q needs a value", ErrInvalidRule, r.Operator)
		}
	default:
		return fmt.Errorf("%w: unknown operator %q", ErrInvalidRule, r.Operator)
	}

	return nil
}

// target returns the user attribute a rule reads, and the comparison value
// after any customField key has been stripped from it.
func (r Rule) target(u DirectoryUser) (fieldValue, compareValue string) {
	switch r.Field {
	case FieldDepartment:
		return u.Department, r.Value
	case FieldDepartmentID:
		return u.DepartmentID, r.Value
	case FieldLocation:
		return u.Location, r.Value
	case FieldLocationID:
		return u.LocationID, r.Value
	case FieldJobTitle:
		return u.JobTitle, r.Value
	case FieldManager:
		return u.ManagerID, r.Value
	case FieldOrgUnitPath:
		return u.OrgUnitPath, r.Value
	case FieldEmployeeType:
		return u.EmployeeType, r.Value
	case FieldUserType:
		return u.UserType, r.Value
	case FieldCostCenter:
		return u.CostCenter, r.Value
	case FieldEmail:
		return u.Email, r.Value
	case FieldCustom:
		// customField rules encode "key=expected"; a bare key reads the
		// attribute with an empty comparison value (is_empty style).
		key, _, _ := strings.Cut(r.Value, "=")
		return u.CustomFields[strings.TrimSpace(key)], r.compareValue()
	}
	return "", r.Value
}

// compareValue returns the value a matcher compares against. For customField
// rules that is everything after the key, so list and regex operators see
// the same stripped value the equality operators do.
func (r Rule) compareValue() string {
	if r.Field == FieldCustom {
		_, expected, _ := strings.Cut(r.Value, "=")
		return expected
	}
	return r.Value
}

// compile turns one rule into a matcher. Hierarchy operators resolve their
// closure once, up front, so matching each user is a set lookup.
func (e *Evaluator) compile(rule Rule) (matcher, error) {
	canon := func(s string) string { return fold(s) }
	if rule.CaseSensitive {
		canon = func(s string) string { return s }
	}

	switch rule.Operator {
	case OpEquals:
		return func(u DirectoryUser) bool {
			fv, cv := rule.target(u)
			return canon(fv) == canon(cv)
		}, nil

	case OpNotEquals:
		return func(u DirectoryUser) bool {
			fv, cv := rule.target(u)
			return canon(fv) != canon(cv)
		}, nil

	case OpContains:
		return func(u DirectoryUser) bool {
			fv, cv := rule.target(u)
			return strings.Contains(canon(fv), canon(cv))
		}, nil

	case OpNotContains:
		return func(u DirectoryUser) bool {
			fv, cv := rule.target(u)
			return !strings.Contains(canon(fv), canon(cv))
		}, nil

	case OpStartsWith:
		return func(u DirectoryUser) bool {
			fv, cv := rule.target(u)
			return strings.HasPrefix(canon(fv), canon(cv))
		}, nil

	case OpEndsWith:
		return func(u DirectoryUser) bool {
			fv, cv := rule.target(u)
			return strings.HasSuffix(canon(fv), canon(cv))
		}, nil

	case OpIsEmpty:
		return func(u DirectoryUser) bool {
			fv, _ := rule.target(u)
			return strings.TrimSpace(fv) == ""
		}, nil

	case OpIsNotEmpty:
		return func(u DirectoryUser) bool {
			fv, _ := rule.target(u)
			return strings.TrimSpace(fv) != ""
		}, nil

	case OpInList, OpNotInList:
		want := map[string]bool{}
		for _, item := range strings.Split(rule.compareValue(), ",") {
			if item = strings.TrimSpace(item); item != "" {
				want[canon(item)] = true
			}
		}
		negate := rule.Operator == OpNotInList
		return func(u DirectoryUser) bool {
			fv, _ := rule.target(u)
			return want[canon(fv)] != negate
		}, nil

	case OpRegex:
		pattern := rule.compareValue()
		if !rule.CaseSensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
		}
		return func(u DirectoryUser) bool {
			fv, _ := rule.target(u)
			return re.MatchString(fv)
		}, nil

	case OpIsUnder:
		return e.compileIsUnder(rule, canon)

	case OpIsNotUnder:
		// Strict negation of is_under for the same field family.
		m, err := e.compileIsUnder(rule, canon)
		if err != nil {
			return nil, err
		}
		return func(u DirectoryUser) bool { return !m(u) }, nil
	}

	return nil, fmt.Errorf("%w: unknown operator %q", ErrInvalidRule, rule.Operator)
}

// compileIsUnder builds the field-family-specific containment test:
// tree closure for department/location fields, reporting closure for the
// manager field, and a path prefix test for orgUnitPath and anything else.
func (e *Evaluator) compileIsUnder(rule Rule, canon func(string) string) (matcher, error) {
	switch rule.Field {
	case FieldDepartment, FieldDepartmentID, FieldLocation, FieldLocationID:
		kind := HierarchyDepartment
		if rule.Field == FieldLocation || rule.Field == FieldLocationID {
			kind = HierarchyLocation
		}
		closure, err := e.res.TreeClosure(kind, rule.Value)
		if err != nil {
			return nil, err
		}

		ids := map[string]bool{}
		names := map[string]bool{}
		for _, node := range closure {
			ids[node.ID] = true
			names[canon(node.Name)] = true
		}

		byID := rule.Field == FieldDepartmentID || rule.Field == FieldLocationID
		return func(u DirectoryUser) bool {
			fv, _ := rule.target(u)
			if byID {
				return ids[fv]
			}
			return names[canon(fv)]
		}, nil

	case FieldManager:
		reports, err := e.res.ReportingClosure(rule.Value, rule.IncludeNested)
		if err != nil {
			return nil, err
		}
		in := map[string]bool{}
		for _, id := range reports {
			in[id] = true
		}
		return func(u DirectoryUser) bool { return in[u.ID] }, nil
	}

	// orgUnitPath already encodes ancestry; a prefix test is the closure.
	// Other fields get the same conservative treatment.
	return func(u DirectoryUser) bool {
		fv, cv := rule.target(u)
		return strings.HasPrefix(canon(fv), canon(cv))
	}, nil
}
