package directory

import "time"

type RuleLogic string

const (
	RuleLogicAnd RuleLogic = "AND"
	RuleLogicOr  RuleLogic = "OR"
)

type MembershipType string

const (
	MembershipTypeStatic  MembershipType = "static"
	MembershipTypeDynamic MembershipType = "dynamic"
)

// MembershipSource records which subsystem owns a membership row. Static
// rows are administrator-managed and never touched by rule evaluation.
type MembershipSource string

const (
	MembershipSourceStatic  MembershipSource = "static"
	MembershipSourceDynamic MembershipSource = "dynamic"
)

type Field string

const (
	FieldDepartment   Field = "department"
	FieldDepartmentID Field = "departmentId"
	FieldLocation     Field = "location"
	FieldLocationID   Field = "locationId"
	FieldJobTitle     Field = "jobTitle"
	FieldManager      Field = "managerId"
	FieldOrgUnitPath  Field = "orgUnitPath"
	FieldEmployeeType Field = "employeeType"
	FieldUserType     Field = "userType"
	FieldCostCenter   Field = "costCenter"
	FieldEmail        Field = "email"
	FieldCustom       Field = "customField"
)

type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"
	OpIsEmpty     Operator = "is_empty"
	OpIsNotEmpty  Operator = "is_not_empty"
	OpInList      Operator = "in_list"
	OpNotInList   Operator = "not_in_list"
	OpRegex       Operator = "regex"
	OpIsUnder     Operator = "is_under"
	OpIsNotUnder  Operator = "is_not_under"
)

type HierarchyKind string

const (
	HierarchyDepartment HierarchyKind = "department"
	HierarchyLocation   HierarchyKind = "location"
)

// Rule is one predicate of a dynamic group. SortOrder is display-only; the
// evaluated result is independent of rule ordering.
type Rule struct {
	ID            string   `json:"id"`
	GroupID       string   `json:"groupId"`
	Field         Field    `json:"field"`
	Operator      Operator `json:"operator"`
	Value         string   `json:"value"`
	CaseSensitive bool     `json:"caseSensitive"`
	IncludeNested bool     `json:"includeNested"`
	SortOrder     int      `json:"sortOrder"`
}

type GroupConfig struct {
	GroupID            string
	Name               string
	Description        string
	MembershipType     MembershipType
	RuleLogic          RuleLogic
	RefreshInterval    int // minutes; 0 disables scheduled refresh
	LastRuleEvaluation *time.Time
}

type MembershipRecord struct {
	GroupID       string
	UserID        string
	Source        MembershipSource
	Active        bool
	RuleMatchedAt *time.Time
	RemovedAt     *time.Time
}

const statusActive = "active"

// DirectoryUser is the read-only projection rules are tested against.
type DirectoryUser struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Email        string            `json:"email"`
	Department   string            `json:"department"`
	DepartmentID string            `json:"departmentId"`
	Location     string            `json:"location"`
	LocationID   string            `json:"locationId"`
	JobTitle     string            `json:"jobTitle"`
	ManagerID    string            `json:"managerId"`
	OrgUnitPath  string            `json:"orgUnitPath"`
	EmployeeType string            `json:"employeeType"`
	UserType     string            `json:"userType"`
	CostCenter   string            `json:"costCenter"`
	Status       string            `json:"status"`
	DeletedAt    *time.Time        `json:"deletedAt,omitempty"`
	CustomFields map[string]string `json:"customFields,omitempty"`
}

// Eligible reports whether the user may match any rule at all.
func (u DirectoryUser) Eligible() bool {
	return u.Status == statusActive && u.DeletedAt == nil
}

// HierarchyNode is one entry of a parent-pointer tree (departments or
// locations). A root node has an empty ParentID.
type HierarchyNode struct {
	ID       string        `json:"id"`
	Kind     HierarchyKind `json:"kind"`
	Name     string        `json:"name"`
	ParentID string        `json:"parentId"`
}

// UserSummary is the capped presentation projection returned by evaluation
// previews. It never feeds back into the match set.
type UserSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Department string `json:"department"`
	JobTitle   string `json:"jobTitle"`
}
