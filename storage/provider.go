package storage

import (
	"time"

	"github.com/kubex/directory-storage/directory"
)

// Provider is the full persistence surface: the directory read port the
// evaluation engine consumes, the rule and membership stores, and the write
// helpers an identity-sync caller uses to populate the directory.
type Provider interface {
	// Directory read port
	ActiveUsers() ([]directory.DirectoryUser, error)
	GetUser(userID string) (*directory.DirectoryUser, error)
	DirectReports(managerID string) ([]string, error)
	FindNode(kind directory.HierarchyKind, idOrName string) (*directory.HierarchyNode, error)
	ChildNodes(kind directory.HierarchyKind, parentID string) ([]directory.HierarchyNode, error)

	// Directory sync writes
	UpsertDirectoryUser(user directory.DirectoryUser) error
	UpsertOrgNode(node directory.HierarchyNode) error

	// Groups and rules
	CreateGroup(groupID, name, description string) error
	GetGroup(groupID string) (*directory.GroupConfig, error)
	SetGroupMembershipType(groupID string, membershipType directory.MembershipType, options ...directory.GroupOption) error
	DynamicGroups() ([]directory.GroupConfig, error)
	GetRules(groupID string) ([]directory.Rule, error)
	InsertRule(rule directory.Rule) (directory.Rule, error)
	UpdateRule(rule directory.Rule) error
	DeleteRule(ruleID string) error

	// Membership
	ActiveDynamicMembers(groupID string) ([]string, error)
	ApplyMembershipDelta(groupID string, add, remove []string, evaluatedAt time.Time) error
	AddStaticMember(groupID, userID string) error
	RemoveStaticMember(groupID, userID string) error
	GroupMembers(groupID string) ([]directory.MembershipRecord, error)

	Connect() error
	Close() error
}
