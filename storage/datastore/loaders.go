package datastore

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"cloud.google.com/go/datastore"
	"github.com/kubex/directory-storage/directory"
)

func toEntity(u directory.DirectoryUser) *userEntity {
	e := &userEntity{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		Department:   u.Department,
		DepartmentID: u.DepartmentID,
		Location:     u.Location,
		LocationID:   u.LocationID,
		JobTitle:     u.JobTitle,
		Manager:      u.ManagerID,
		OrgUnitPath:  u.OrgUnitPath,
		EmployeeType: u.EmployeeType,
		UserType:     u.UserType,
		CostCenter:   u.CostCenter,
		Status:       u.Status,
	}
	if u.DeletedAt != nil {
		e.DeletedAt = *u.DeletedAt
	}
	if len(u.CustomFields) > 0 {
		e.CustomFields, _ = json.Marshal(u.CustomFields)
	}
	return e
}

func fromEntity(e userEntity) directory.DirectoryUser {
	u := directory.DirectoryUser{
		ID:           e.ID,
		Name:         e.Name,
		Email:        e.Email,
		Department:   e.Department,
		DepartmentID: e.DepartmentID,
		Location:     e.Location,
		LocationID:   e.LocationID,
		JobTitle:     e.JobTitle,
		ManagerID:    e.Manager,
		OrgUnitPath:  e.OrgUnitPath,
		EmployeeType: e.EmployeeType,
		UserType:     e.UserType,
		CostCenter:   e.CostCenter,
		Status:       e.Status,
	}
	if !e.DeletedAt.IsZero() {
		deletedAt := e.DeletedAt
		u.DeletedAt = &deletedAt
	}
	if len(e.CustomFields) > 0 {
		json.Unmarshal(e.CustomFields, &u.CustomFields)
	}
	return u
}

func (p *Provider) UpsertDirectoryUser(u directory.DirectoryUser) error {
	e := toEntity(u)
	_, err := p.client.Put(context.Background(), e.dsID(), e)
	return err
}

func (p *Provider) UpsertOrgNode(node directory.HierarchyNode) error {
	e := &nodeEntity{ID: node.ID, Kind: string(node.Kind), Name: node.Name, Parent: node.ParentID}
	_, err := p.client.Put(context.Background(), e.dsID(), e)
	return err
}

func (p *Provider) ActiveUsers() ([]directory.DirectoryUser, error) {
	var entities []userEntity
	q := datastore.NewQuery(kindUser).FilterField("Status", "=", "active")
	if _, err := p.client.GetAll(context.Background(), q, &entities); err != nil {
		return nil, err
	}

	var users []directory.DirectoryUser
	for _, e := range entities {
		if u := fromEntity(e); u.Eligible() {
			users = append(users, u)
		}
	}
	return users, nil
}

func (p *Provider) GetUser(userID string) (*directory.DirectoryUser, error) {
	e := userEntity{ID: userID}
	if err := p.client.Get(context.Background(), e.dsID(), &e); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, directory.ErrUserNotFound
		}
		return nil, err
	}
	u := fromEntity(e)
	return &u, nil
}

func (p *Provider) DirectReports(managerID string) ([]string, error) {
	var entities []userEntity
	q := datastore.NewQuery(kindUser).FilterField("Manager", "=", managerID).FilterField("Status", "=", "active")
	if _, err := p.client.GetAll(context.Background(), q, &entities); err != nil {
		return nil, err
	}

	var reports []string
	for _, e := range entities {
		if u := fromEntity(e); u.Eligible() && u.ManagerID == managerID {
			reports = append(reports, u.ID)
		}
	}
	return reports, nil
}

func (p *Provider) nodesOfKind(kind directory.HierarchyKind) ([]directory.HierarchyNode, error) {
	var entities []nodeEntity
	q := datastore.NewQuery(kindOrgNode).FilterField("Kind", "=", string(kind))
	if _, err := p.client.GetAll(context.Background(), q, &entities); err != nil {
		return nil, err
	}

	var nodes []directory.HierarchyNode
	for _, e := range entities {
		if e.Kind != string(kind) {
			continue
		}
		nodes = append(nodes, directory.HierarchyNode{
			ID: e.ID, Kind: kind, Name: e.Name, ParentID: e.Parent,
		})
	}
	return nodes, nil
}

func (p *Provider) FindNode(kind directory.HierarchyKind, idOrName string) (*directory.HierarchyNode, error) {
	nodes, err := p.nodesOfKind(kind)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if n.ID == idOrName || strings.EqualFold(n.Name, idOrName) {
			node := n
			return &node, nil
		}
	}
	return nil, directory.ErrNodeNotFound
}

func (p *Provider) ChildNodes(kind directory.HierarchyKind, parentID string) ([]directory.HierarchyNode, error) {
	nodes, err := p.nodesOfKind(kind)
	if err != nil {
		return nil, err
	}
	var children []directory.HierarchyNode
	for _, n := range nodes {
		if n.ParentID == parentID {
			children = append(children, n)
		}
	}
	return children, nil
}
