package sql

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/kubex/directory-storage/directory"
	"golang.org/x/sync/errgroup"
)

const (
	mySQLDuplicateEntry   = 1062
	sqlLiteDuplicateEntry = 1555
)

// boolToInt keeps parameter binding portable across the mysql and libsql
// drivers, which disagree on native bool support.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (p *Provider) isDuplicateConflict(err error) bool {
	var me1 *mysql.MySQLError
	if errors.As(err, &me1) && (me1.Number == mySQLDuplicateEntry || me1.Number == sqlLiteDuplicateEntry) {
		return true
	}
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return true
	}
	return false
}

const userColumns = "`user`, `name`, `email`, `department`, `department_id`, `location`, `location_id`, " +
	"`job_title`, `manager`, `org_unit_path`, `employee_type`, `user_type`, `cost_center`, `status`, `deleted_at`, `custom_fields`"

func scanUser(scan func(dest ...any) error) (*directory.DirectoryUser, error) {
	var u directory.DirectoryUser
	deletedAt := sql.NullString{}
	customFields := sql.NullString{}
	if err := scan(&u.ID, &u.Name, &u.Email, &u.Department, &u.DepartmentID, &u.Location, &u.LocationID,
		&u.JobTitle, &u.ManagerID, &u.OrgUnitPath, &u.EmployeeType, &u.UserType, &u.CostCenter,
		&u.Status, &deletedAt, &customFields); err != nil {
		return nil, err
	}
	if deletedAt.Valid && deletedAt.String != "" {
		t := timeFromString(deletedAt.String)
		u.DeletedAt = &t
	}
	if customFields.Valid && customFields.String != "" {
		json.Unmarshal([]byte(customFields.String), &u.CustomFields)
	}
	return &u, nil
}

func (p *Provider) ActiveUsers() ([]directory.DirectoryUser, error) {
	rows, err := p.primaryConnection.Query("SELECT " + userColumns + " FROM directory_users WHERE status = 'active' AND deleted_at IS NULL")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []directory.DirectoryUser
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (p *Provider) GetUser(userID string) (*directory.DirectoryUser, error) {
	row := p.primaryConnection.QueryRow("SELECT "+userColumns+" FROM directory_users WHERE `user` = ?", userID)
	u, err := scanUser(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, directory.ErrUserNotFound
	}
	return u, err
}

func (p *Provider) DirectReports(managerID string) ([]string, error) {
	rows, err := p.primaryConnection.Query("SELECT `user` FROM directory_users WHERE manager = ? AND status = 'active' AND deleted_at IS NULL", managerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		reports = append(reports, userID)
	}
	return reports, rows.Err()
}

func (p *Provider) FindNode(kind directory.HierarchyKind, idOrName string) (*directory.HierarchyNode, error) {
	row := p.primaryConnection.QueryRow(
		"SELECT `node`, `name`, `parent` FROM org_nodes WHERE kind = ? AND (`node` = ? OR LOWER(`name`) = LOWER(?))",
		string(kind), idOrName, idOrName)

	node := directory.HierarchyNode{Kind: kind}
	err := row.Scan(&node.ID, &node.Name, &node.ParentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, directory.ErrNodeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func (p *Provider) ChildNodes(kind directory.HierarchyKind, parentID string) ([]directory.HierarchyNode, error) {
	rows, err := p.primaryConnection.Query("SELECT `node`, `name`, `parent` FROM org_nodes WHERE kind = ? AND parent = ?", string(kind), parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []directory.HierarchyNode
	for rows.Next() {
		node := directory.HierarchyNode{Kind: kind}
		if err := rows.Scan(&node.ID, &node.Name, &node.ParentID); err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

func (p *Provider) UpsertDirectoryUser(u directory.DirectoryUser) error {
	defer p.update()

	customFields := sql.NullString{}
	if len(u.CustomFields) > 0 {
		raw, err := json.Marshal(u.CustomFields)
		if err != nil {
			return err
		}
		customFields = sql.NullString{String: string(raw), Valid: true}
	}
	deletedAt := sql.NullString{}
	if u.DeletedAt != nil {
		deletedAt = sql.NullString{String: timeToString(*u.DeletedAt), Valid: true}
	}
	if u.Status == "" {
		u.Status = "active"
	}

	_, err := p.primaryConnection.Exec(
		"INSERT INTO directory_users ("+userColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		u.ID, u.Name, u.Email, u.Department, u.DepartmentID, u.Location, u.LocationID,
		u.JobTitle, u.ManagerID, u.OrgUnitPath, u.EmployeeType, u.UserType, u.CostCenter,
		u.Status, deletedAt, customFields)

	if p.isDuplicateConflict(err) {
		_, err = p.primaryConnection.Exec(
			"UPDATE directory_users SET `name` = ?, email = ?, department = ?, department_id = ?, location = ?, location_id = ?, "+
				"job_title = ?, manager = ?, org_unit_path = ?, employee_type = ?, user_type = ?, cost_center = ?, "+
				"status = ?, deleted_at = ?, custom_fields = ? WHERE `user` = ?",
			u.Name, u.Email, u.Department, u.DepartmentID, u.Location, u.LocationID,
			u.JobTitle, u.ManagerID, u.OrgUnitPath, u.EmployeeType, u.UserType, u.CostCenter,
			u.Status, deletedAt, customFields, u.ID)
	}
	return err
}

func (p *Provider) UpsertOrgNode(node directory.HierarchyNode) error {
	defer p.update()

	_, err := p.primaryConnection.Exec(
		"INSERT INTO org_nodes (`kind`, `node`, `name`, `parent`) VALUES (?, ?, ?, ?)",
		string(node.Kind), node.ID, node.Name, node.ParentID)

	if p.isDuplicateConflict(err) {
		_, err = p.primaryConnection.Exec(
			"UPDATE org_nodes SET `name` = ?, parent = ? WHERE kind = ? AND `node` = ?",
			node.Name, node.ParentID, string(node.Kind), node.ID)
	}
	return err
}

func (p *Provider) CreateGroup(groupID, name, description string) error {
	_, err := p.primaryConnection.Exec(
		"INSERT INTO `groups` (`group`, `name`, `description`) VALUES (?, ?, ?)", groupID, name, description)
	if p.isDuplicateConflict(err) {
		return directory.ErrDuplicate
	}
	p.update()
	return err
}

func (p *Provider) GetGroup(groupID string) (*directory.GroupConfig, error) {
	row := p.primaryConnection.QueryRow(
		"SELECT `group`, `name`, `description`, membership_type, rule_logic, refresh_interval, last_evaluation "+
			"FROM `groups` WHERE `group` = ?", groupID)

	var g directory.GroupConfig
	var membershipType, ruleLogic string
	lastEval := sql.NullString{}
	err := row.Scan(&g.GroupID, &g.Name, &g.Description, &membershipType, &ruleLogic, &g.RefreshInterval, &lastEval)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, directory.ErrGroupNotFound
	}
	if err != nil {
		return nil, err
	}

	g.MembershipType = directory.MembershipType(membershipType)
	g.RuleLogic = directory.RuleLogic(ruleLogic)
	if lastEval.Valid && lastEval.String != "" {
		t := timeFromString(lastEval.String)
		g.LastRuleEvaluation = &t
	}
	return &g, nil
}

func (p *Provider) SetGroupMembershipType(groupID string, membershipType directory.MembershipType, options ...directory.GroupOption) error {
	switch membershipType {
	case directory.MembershipTypeStatic, directory.MembershipTypeDynamic:
	default:
		return errors.New("invalid membership type")
	}

	if _, err := p.GetGroup(groupID); err != nil {
		return err
	}

	payload := directory.GroupPayload{}
	for _, opt := range options {
		opt(&payload)
	}

	fields := []string{"membership_type = ?"}
	vals := []any{string(membershipType)}
	if payload.RuleLogic != nil {
		fields = append(fields, "rule_logic = ?")
		vals = append(vals, string(*payload.RuleLogic))
	}
	if payload.RefreshInterval != nil {
		fields = append(fields, "refresh_interval = ?")
		vals = append(vals, *payload.RefreshInterval)
	}
	vals = append(vals, groupID)

	_, err := p.primaryConnection.Exec(
		fmt.Sprintf("UPDATE `groups` SET %s WHERE `group` = ?", strings.Join(fields, ", ")), vals...)
	p.update()
	return err
}

func (p *Provider) DynamicGroups() ([]directory.GroupConfig, error) {
	rows, err := p.primaryConnection.Query(
		"SELECT `group`, `name`, `description`, membership_type, rule_logic, refresh_interval, last_evaluation " +
			"FROM `groups` WHERE membership_type = 'dynamic'")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []directory.GroupConfig
	for rows.Next() {
		var g directory.GroupConfig
		var membershipType, ruleLogic string
		lastEval := sql.NullString{}
		if err := rows.Scan(&g.GroupID, &g.Name, &g.Description, &membershipType, &ruleLogic, &g.RefreshInterval, &lastEval); err != nil {
			return nil, err
		}
		g.MembershipType = directory.MembershipType(membershipType)
		g.RuleLogic = directory.RuleLogic(ruleLogic)
		if lastEval.Valid && lastEval.String != "" {
			t := timeFromString(lastEval.String)
			g.LastRuleEvaluation = &t
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (p *Provider) GetRules(groupID string) ([]directory.Rule, error) {
	rows, err := p.primaryConnection.Query(
		"SELECT `rule`, `group`, field, operator, `value`, case_sensitive, include_nested, sort_order "+
			"FROM group_rules WHERE `group` = ? ORDER BY sort_order ASC", groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []directory.Rule
	for rows.Next() {
		var r directory.Rule
		var field, operator string
		value := sql.NullString{}
		if err := rows.Scan(&r.ID, &r.GroupID, &field, &operator, &value, &r.CaseSensitive, &r.IncludeNested, &r.SortOrder); err != nil {
			return nil, err
		}
		r.Field = directory.Field(field)
		r.Operator = directory.Operator(operator)
		r.Value = value.String
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (p *Provider) InsertRule(rule directory.Rule) (directory.Rule, error) {
	defer p.update()

	row := p.primaryConnection.QueryRow("SELECT COALESCE(MAX(sort_order), 0) FROM group_rules WHERE `group` = ?", rule.GroupID)
	var maxOrder int
	if err := row.Scan(&maxOrder); err != nil {
		return directory.Rule{}, err
	}
	rule.SortOrder = maxOrder + 1

	_, err := p.primaryConnection.Exec(
		"INSERT INTO group_rules (`rule`, `group`, field, operator, `value`, case_sensitive, include_nested, sort_order) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		rule.ID, rule.GroupID, string(rule.Field), string(rule.Operator), rule.Value, boolToInt(rule.CaseSensitive), boolToInt(rule.IncludeNested), rule.SortOrder)
	if p.isDuplicateConflict(err) {
		return directory.Rule{}, directory.ErrDuplicate
	}
	if err != nil {
		return directory.Rule{}, err
	}
	return rule, nil
}

func (p *Provider) UpdateRule(rule directory.Rule) error {
	defer p.update()

	res, err := p.primaryConnection.Exec(
		"UPDATE group_rules SET field = ?, operator = ?, `value` = ?, case_sensitive = ?, include_nested = ? WHERE `rule` = ?",
		string(rule.Field), string(rule.Operator), rule.Value, boolToInt(rule.CaseSensitive), boolToInt(rule.IncludeNested), rule.ID)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return directory.ErrRuleNotFound
	}
	return nil
}

func (p *Provider) DeleteRule(ruleID string) error {
	defer p.update()

	res, err := p.primaryConnection.Exec("DELETE FROM group_rules WHERE `rule` = ?", ruleID)
	if err != nil {
		return err
	}
	// Remaining rules keep their sort order; it is display-only.
	if rows, _ := res.RowsAffected(); rows == 0 {
		return directory.ErrRuleNotFound
	}
	return nil
}

func (p *Provider) ActiveDynamicMembers(groupID string) ([]string, error) {
	rows, err := p.primaryConnection.Query(
		"SELECT `user` FROM group_memberships WHERE `group` = ? AND source = ? AND active = 1",
		groupID, string(directory.MembershipSourceDynamic))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		members = append(members, userID)
	}
	return members, rows.Err()
}

// ApplyMembershipDelta runs the whole reconciliation write as one
// transaction: a crash between adds and removes never leaves the group
// half-updated.
func (p *Provider) ApplyMembershipDelta(groupID string, add, remove []string, evaluatedAt time.Time) error {
	defer p.update()

	tx, err := p.primaryConnection.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stamp := timeToString(evaluatedAt)
	source := string(directory.MembershipSourceDynamic)

	for _, userID := range add {
		_, err := tx.Exec(
			"INSERT INTO group_memberships (`group`, `user`, source, active, matched_at) VALUES (?, ?, ?, 1, ?)",
			groupID, userID, source, stamp)
		if p.isDuplicateConflict(err) {
			_, err = tx.Exec(
				"UPDATE group_memberships SET active = 1, matched_at = ?, removed_at = NULL WHERE `group` = ? AND `user` = ? AND source = ?",
				stamp, groupID, userID, source)
		}
		if err != nil {
			return err
		}
	}

	for _, userID := range remove {
		if _, err := tx.Exec(
			"UPDATE group_memberships SET active = 0, removed_at = ? WHERE `group` = ? AND `user` = ? AND source = ?",
			stamp, groupID, userID, source); err != nil {
			return err
		}
	}

	if _, err := tx.Exec("UPDATE `groups` SET last_evaluation = ? WHERE `group` = ?", stamp, groupID); err != nil {
		return err
	}

	return tx.Commit()
}

func (p *Provider) AddStaticMember(groupID, userID string) error {
	defer p.update()

	_, err := p.primaryConnection.Exec(
		"INSERT INTO group_memberships (`group`, `user`, source, active) VALUES (?, ?, ?, 1)",
		groupID, userID, string(directory.MembershipSourceStatic))
	if p.isDuplicateConflict(err) {
		_, err = p.primaryConnection.Exec(
			"UPDATE group_memberships SET active = 1, removed_at = NULL WHERE `group` = ? AND `user` = ? AND source = ?",
			groupID, userID, string(directory.MembershipSourceStatic))
	}
	return err
}

func (p *Provider) RemoveStaticMember(groupID, userID string) error {
	defer p.update()

	_, err := p.primaryConnection.Exec(
		"UPDATE group_memberships SET active = 0, removed_at = ? WHERE `group` = ? AND `user` = ? AND source = ?",
		timeToString(time.Now()), groupID, userID, string(directory.MembershipSourceStatic))
	return err
}

// GroupMembers returns every membership row for a group, static and
// dynamic, active or soft-removed. Group existence and membership rows are
// fetched in parallel.
func (p *Provider) GroupMembers(groupID string) ([]directory.MembershipRecord, error) {
	var records []directory.MembershipRecord

	g := errgroup.Group{}
	g.Go(func() error {
		_, err := p.GetGroup(groupID)
		return err
	})
	g.Go(func() error {
		rows, err := p.primaryConnection.Query(
			"SELECT `user`, source, active, matched_at, removed_at FROM group_memberships WHERE `group` = ?", groupID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			record := directory.MembershipRecord{GroupID: groupID}
			var source string
			matchedAt := sql.NullString{}
			removedAt := sql.NullString{}
			if err := rows.Scan(&record.UserID, &source, &record.Active, &matchedAt, &removedAt); err != nil {
				return err
			}
			record.Source = directory.MembershipSource(source)
			if matchedAt.Valid && matchedAt.String != "" {
				t := timeFromString(matchedAt.String)
				record.RuleMatchedAt = &t
			}
			if removedAt.Valid && removedAt.String != "" {
				t := timeFromString(removedAt.String)
				record.RemovedAt = &t
			}
			records = append(records, record)
		}
		return rows.Err()
	})

	return records, g.Wait()
}
