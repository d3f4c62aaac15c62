package jsonfile

import (
	"strings"

	"github.com/kubex/directory-storage/directory"
)

func (p Provider) allUsers() ([]directory.DirectoryUser, error) {
	var users []directory.DirectoryUser
	err := p.readInto("directory", "users", &users)
	return users, err
}

func (p Provider) allNodes(kind directory.HierarchyKind) ([]directory.HierarchyNode, error) {
	var nodes []directory.HierarchyNode
	err := p.readInto("hierarchy", string(kind), &nodes)
	for i := range nodes {
		nodes[i].Kind = kind
	}
	return nodes, err
}

func (p Provider) ActiveUsers() ([]directory.DirectoryUser, error) {
	users, err := p.allUsers()
	if err != nil {
		return nil, err
	}
	var active []directory.DirectoryUser
	for _, u := range users {
		if u.Eligible() {
			active = append(active, u)
		}
	}
	return active, nil
}

func (p Provider) GetUser(userID string) (*directory.DirectoryUser, error) {
	users, err := p.allUsers()
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.ID == userID {
			user := u
			return &user, nil
		}
	}
	return nil, directory.ErrUserNotFound
}

func (p Provider) DirectReports(managerID string) ([]string, error) {
	users, err := p.allUsers()
	if err != nil {
		return nil, err
	}
	var reports []string
	for _, u := range users {
		if u.Eligible() && u.ManagerID == managerID {
			reports = append(reports, u.ID)
		}
	}
	return reports, nil
}

func (p Provider) FindNode(kind directory.HierarchyKind, idOrName string) (*directory.HierarchyNode, error) {
	nodes, err := p.allNodes(kind)
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

func (p Provider) ChildNodes(kind directory.HierarchyKind, parentID string) ([]directory.HierarchyNode, error) {
	nodes, err := p.allNodes(kind)
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
