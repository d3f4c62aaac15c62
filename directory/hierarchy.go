package directory

import "fmt"

// MaxTraversalDepth bounds every hierarchy walk. A cycle introduced by bad
// directory data stops expanding at this depth instead of looping.
const MaxTraversalDepth = 20

// Resolver computes closures over the directory's parent-pointer trees and
// the manager reporting graph. It holds no state beyond the read port and is
// safe for concurrent use.
type Resolver struct {
	dir DirectoryReader
}

func NewResolver(dir DirectoryReader) *Resolver {
	return &Resolver{dir: dir}
}

// TreeClosure returns the node identified by idOrName plus all of its
// descendants, breadth-first.
func (r *Resolver) TreeClosure(kind HierarchyKind, idOrName string) ([]HierarchyNode, error) {
	root, err := r.dir.FindNode(kind, idOrName)
	if err != nil {
		return nil, fmt.Errorf("resolve %s %q: %w", kind, idOrName, err)
	}

	nodes := []HierarchyNode{*root}
	seen := map[string]bool{root.ID: true}
	frontier := []string{root.ID}

	for depth := 0; depth < MaxTraversalDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, parentID := range frontier {
			children, err := r.dir.ChildNodes(kind, parentID)
			if err != nil {
				return nil, err
			}
			for _, child := range children {
				if seen[child.ID] {
					continue
				}
				seen[child.ID] = true
				nodes = append(nodes, child)
				next = append(next, child.ID)
			}
		}
		frontier = next
	}

	return nodes, nil
}

// ReportingClosure returns the IDs of everyone reporting to managerID:
// direct reports only when nested is false, the full transitive closure
// (depth-capped) when true. The manager is not part of the result.
func (r *Resolver) ReportingClosure(managerID string, nested bool) ([]string, error) {
	if !nested {
		return r.dir.DirectReports(managerID)
	}
	return r.reportingClosureDepth(managerID, MaxTraversalDepth)
}

func (r *Resolver) reportingClosureDepth(managerID string, maxDepth int) ([]string, error) {
	if maxDepth <= 0 || maxDepth > MaxTraversalDepth {
		maxDepth = MaxTraversalDepth
	}

	direct, err := r.dir.DirectReports(managerID)
	if err != nil {
		return nil, err
	}

	var reports []string
	seen := map[string]bool{managerID: true}
	frontier := direct

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, userID := range frontier {
			if seen[userID] {
				continue
			}
			seen[userID] = true
			reports = append(reports, userID)

			below, err := r.dir.DirectReports(userID)
			if err != nil {
				return nil, err
			}
			next = append(next, below...)
		}
		frontier = next
	}

	return reports, nil
}

// ManagementChain walks the manager edges upward from userID and returns
// the chain in reporting order, nearest manager first. maxDepth caps the
// walk; values outside (0, MaxTraversalDepth] fall back to the cap.
func (r *Resolver) ManagementChain(userID string, maxDepth int) ([]string, error) {
	if maxDepth <= 0 || maxDepth > MaxTraversalDepth {
		maxDepth = MaxTraversalDepth
	}

	user, err := r.dir.GetUser(userID)
	if err != nil {
		return nil, err
	}

	var chain []string
	seen := map[string]bool{userID: true}
	current := user.ManagerID

	for depth := 0; depth < maxDepth && current != ""; depth++ {
		if seen[current] {
			break
		}
		seen[current] = true
		chain = append(chain, current)

		manager, err := r.dir.GetUser(current)
		if err != nil {
			// A dangling manager reference ends the chain.
			break
		}
		current = manager.ManagerID
	}

	return chain, nil
}
