package directory

import "time"

// DirectoryReader is the read port evaluation runs against. Implementations
// must return only active, non-deleted users from ActiveUsers and
// DirectReports.
type DirectoryReader interface {
	ActiveUsers() ([]DirectoryUser, error)
	GetUser(userID string) (*DirectoryUser, error)
	DirectReports(managerID string) ([]string, error)
	FindNode(kind HierarchyKind, idOrName string) (*HierarchyNode, error)
	ChildNodes(kind HierarchyKind, parentID string) ([]HierarchyNode, error)
}

// RuleStore persists group configuration and rule rows.
type RuleStore interface {
	GetGroup(groupID string) (*GroupConfig, error)
	SetGroupMembershipType(groupID string, membershipType MembershipType, options ...GroupOption) error
	DynamicGroups() ([]GroupConfig, error)

	GetRules(groupID string) ([]Rule, error)
	InsertRule(rule Rule) (Rule, error)
	UpdateRule(rule Rule) error
	DeleteRule(ruleID string) error
}

// MembershipStore is the write port for dynamic membership rows. Static
// rows are outside its contract entirely.
type MembershipStore interface {
	ActiveDynamicMembers(groupID string) ([]string, error)

	// ApplyMembershipDelta applies adds and removes atomically for one
	// group and stamps the group's last evaluation time. Adds reactivate a
	// previously soft-removed row rather than inserting a duplicate;
	// removes deactivate the row and set its removal time.
	ApplyMembershipDelta(groupID string, add, remove []string, evaluatedAt time.Time) error
}

type GroupOption func(*GroupPayload)

type GroupPayload struct {
	RuleLogic       *RuleLogic
	RefreshInterval *int
}

func WithRuleLogic(logic RuleLogic) GroupOption {
	return func(p *GroupPayload) { p.RuleLogic = &logic }
}

func WithRefreshInterval(minutes int) GroupOption {
	return func(p *GroupPayload) { p.RefreshInterval = &minutes }
}
