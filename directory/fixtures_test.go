package directory

import (
	"strings"
	"time"
)

// fakeDirectory is an in-memory read port for deterministic tests.
type fakeDirectory struct {
	users []DirectoryUser
	nodes []HierarchyNode
}

func (d *fakeDirectory) ActiveUsers() ([]DirectoryUser, error) {
	var out []DirectoryUser
	for _, u := range d.users {
		if u.Eligible() {
			out = append(out, u)
		}
	}
	return out, nil
}

func (d *fakeDirectory) GetUser(userID string) (*DirectoryUser, error) {
	for _, u := range d.users {
		if u.ID == userID {
			user := u
			return &user, nil
		}
	}
	return nil, ErrUserNotFound
}

func (d *fakeDirectory) DirectReports(managerID string) ([]string, error) {
	var out []string
	for _, u := range d.users {
		if u.Eligible() && u.ManagerID == managerID {
			out = append(out, u.ID)
		}
	}
	return out, nil
}

func (d *fakeDirectory) FindNode(kind HierarchyKind, idOrName string) (*HierarchyNode, error) {
	for _, n := range d.nodes {
		if n.Kind == kind && (n.ID == idOrName || strings.EqualFold(n.Name, idOrName)) {
			node := n
			return &node, nil
		}
	}
	return nil, ErrNodeNotFound
}

func (d *fakeDirectory) ChildNodes(kind HierarchyKind, parentID string) ([]HierarchyNode, error) {
	var out []HierarchyNode
	for _, n := range d.nodes {
		if n.Kind == kind && n.ParentID == parentID {
			out = append(out, n)
		}
	}
	return out, nil
}

// memStore is an in-memory RuleStore + MembershipStore.
type memStore struct {
	groups  map[string]*GroupConfig
	rules   []Rule
	members map[string]map[string]*MembershipRecord // groupID -> userID+source
}

func newMemStore() *memStore {
	return &memStore{
		groups:  map[string]*GroupConfig{},
		members: map[string]map[string]*MembershipRecord{},
	}
}

func memberKey(userID string, source MembershipSource) string {
	return userID + "/" + string(source)
}

func (s *memStore) addGroup(g GroupConfig) {
	if g.RuleLogic == "" {
		g.RuleLogic = RuleLogicAnd
	}
	s.groups[g.GroupID] = &g
}

func (s *memStore) addStaticMember(groupID, userID string) {
	if s.members[groupID] == nil {
		s.members[groupID] = map[string]*MembershipRecord{}
	}
	s.members[groupID][memberKey(userID, MembershipSourceStatic)] = &MembershipRecord{
		GroupID: groupID, UserID: userID, Source: MembershipSourceStatic, Active: true,
	}
}

func (s *memStore) GetGroup(groupID string) (*GroupConfig, error) {
	g, ok := s.groups[groupID]
	if !ok {
		return nil, ErrGroupNotFound
	}
	cp := *g
	return &cp, nil
}

func (s *memStore) SetGroupMembershipType(groupID string, mt MembershipType, options ...GroupOption) error {
	g, ok := s.groups[groupID]
	if !ok {
		return ErrGroupNotFound
	}
	payload := GroupPayload{}
	for _, opt := range options {
		opt(&payload)
	}
	g.MembershipType = mt
	if payload.RuleLogic != nil {
		g.RuleLogic = *payload.RuleLogic
	}
	if payload.RefreshInterval != nil {
		g.RefreshInterval = *payload.RefreshInterval
	}
	return nil
}

func (s *memStore) DynamicGroups() ([]GroupConfig, error) {
	var out []GroupConfig
	for _, g := range s.groups {
		if g.MembershipType == MembershipTypeDynamic {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (s *memStore) GetRules(groupID string) ([]Rule, error) {
	var out []Rule
	for _, r := range s.rules {
		if r.GroupID == groupID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) InsertRule(rule Rule) (Rule, error) {
	next := 0
	for _, r := range s.rules {
		if r.GroupID == rule.GroupID && r.SortOrder > next {
			next = r.SortOrder
		}
	}
	rule.SortOrder = next + 1
	s.rules = append(s.rules, rule)
	return rule, nil
}

func (s *memStore) UpdateRule(rule Rule) error {
	for i, r := range s.rules {
		if r.ID == rule.ID {
			rule.GroupID = r.GroupID
			rule.SortOrder = r.SortOrder
			s.rules[i] = rule
			return nil
		}
	}
	return ErrRuleNotFound
}

func (s *memStore) DeleteRule(ruleID string) error {
	for i, r := range s.rules {
		if r.ID == ruleID {
			s.rules = append(s.rules[:i], s.rules[i+1:]...)
			return nil
		}
	}
	return ErrRuleNotFound
}

func (s *memStore) ActiveDynamicMembers(groupID string) ([]string, error) {
	var out []string
	for _, m := range s.members[groupID] {
		if m.Source == MembershipSourceDynamic && m.Active {
			out = append(out, m.UserID)
		}
	}
	return out, nil
}

func (s *memStore) ApplyMembershipDelta(groupID string, add, remove []string, evaluatedAt time.Time) error {
	if s.members[groupID] == nil {
		s.members[groupID] = map[string]*MembershipRecord{}
	}
	for _, userID := range add {
		key := memberKey(userID, MembershipSourceDynamic)
		at := evaluatedAt
		if existing, ok := s.members[groupID][key]; ok {
			existing.Active = true
			existing.RuleMatchedAt = &at
			existing.RemovedAt = nil
			continue
		}
		s.members[groupID][key] = &MembershipRecord{
			GroupID: groupID, UserID: userID, Source: MembershipSourceDynamic,
			Active: true, RuleMatchedAt: &at,
		}
	}
	for _, userID := range remove {
		if m, ok := s.members[groupID][memberKey(userID, MembershipSourceDynamic)]; ok {
			at := evaluatedAt
			m.Active = false
			m.RemovedAt = &at
		}
	}
	if g, ok := s.groups[groupID]; ok {
		at := evaluatedAt
		g.LastRuleEvaluation = &at
	}
	return nil
}

// testDirectory builds the org used across the package tests.
//
// Departments: Engineering(dep-eng) > Platform(dep-plat) > SRE(dep-sre),
// Engineering > QA(dep-qa), Sales(dep-sales).
// Locations: EMEA(loc-emea) > London(loc-lon).
// Reporting: ceo > vp-eng > (alice, bob); alice > carol.
func testDirectory() *fakeDirectory {
	return &fakeDirectory{
		nodes: []HierarchyNode{
			{ID: "dep-eng", Kind: HierarchyDepartment, Name: "Engineering"},
			{ID: "dep-plat", Kind: HierarchyDepartment, Name: "Platform", ParentID: "dep-eng"},
			{ID: "dep-sre", Kind: HierarchyDepartment, Name: "SRE", ParentID: "dep-plat"},
			{ID: "dep-qa", Kind: HierarchyDepartment, Name: "QA", ParentID: "dep-eng"},
			{ID: "dep-sales", Kind: HierarchyDepartment, Name: "Sales"},
			{ID: "loc-emea", Kind: HierarchyLocation, Name: "EMEA"},
			{ID: "loc-lon", Kind: HierarchyLocation, Name: "London", ParentID: "loc-emea"},
		},
		users: []DirectoryUser{
			{ID: "ceo", Name: "Dana CEO", Email: "dana@acme.test", Department: "Leadership", Status: statusActive},
			{ID: "vp-eng", Name: "Vera VP", Email: "vera@acme.test", Department: "Engineering", DepartmentID: "dep-eng",
				JobTitle: "VP Engineering", ManagerID: "ceo", OrgUnitPath: "/corp/eng", Status: statusActive},
			{ID: "alice", Name: "Alice A", Email: "alice@acme.test", Department: "Platform", DepartmentID: "dep-plat",
				Location: "London", LocationID: "loc-lon", JobTitle: "Engineering Manager", ManagerID: "vp-eng",
				OrgUnitPath: "/corp/eng/platform", EmployeeType: "full_time", CostCenter: "cc-100", Status: statusActive},
			{ID: "bob", Name: "Bob B", Email: "bob@acme.test", Department: "QA", DepartmentID: "dep-qa",
				JobTitle: "Analyst", ManagerID: "vp-eng", OrgUnitPath: "/corp/eng/qa", Status: statusActive,
				CustomFields: map[string]string{"team": "quality"}},
			{ID: "carol", Name: "Carol C", Email: "carol@acme.test", Department: "SRE", DepartmentID: "dep-sre",
				JobTitle: "SRE", ManagerID: "alice", OrgUnitPath: "/corp/eng/platform/sre", Status: statusActive},
			{ID: "sam", Name: "Sam S", Email: "sam@acme.test", Department: "Sales", DepartmentID: "dep-sales",
				JobTitle: "Engineering Manager", OrgUnitPath: "/corp/sales", Status: statusActive},
			{ID: "gone", Name: "Gone G", Email: "gone@acme.test", Department: "Platform", DepartmentID: "dep-plat",
				Status: "suspended"},
		},
	}
}
