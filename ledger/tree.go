package ledger

import "sort"

// AccountTree is a parent -> children index over a flat account list.
// It never assumes the parent links are acyclic.
type AccountTree struct {
	byID     map[AccountID]Account
	children map[AccountID][]AccountID
}

// NewAccountTree indexes accounts. Later duplicates replace earlier ones.
func NewAccountTree(accounts []Account) *AccountTree {
	t := &AccountTree{
		byID:     make(map[AccountID]Account, len(accounts)),
		children: make(map[AccountID][]AccountID),
	}
	for _, a := range accounts {
		t.byID[a.ID] = a
	}
	for _, a := range t.byID {
		if a.ParentID != "" {
			t.children[a.ParentID] = append(t.children[a.ParentID], a.ID)
		}
	}
	for parent := range t.children {
		kids := t.children[parent]
		sort.Slice(kids, func(i, j int) bool { return t.byID[kids[i]].Code < t.byID[kids[j]].Code })
	}
	return t
}

// Children returns the direct children of id ordered by code.
func (t *AccountTree) Children(id AccountID) []Account {
	ids := t.children[id]
	out := make([]Account, 0, len(ids))
	for _, c := range ids {
		out = append(out, t.byID[c])
	}
	return out
}

// Descendants returns every account below id, breadth first, excluding id.
// Each account is visited once even if the links form a cycle.
func (t *AccountTree) Descendants(id AccountID) []AccountID {
	visited := map[AccountID]bool{id: true}
	var out []AccountID
	queue := []AccountID{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, c := range t.children[cur] {
			if visited[c] {
				continue
			}
			visited[c] = true
			out = append(out, c)
			queue = append(queue, c)
		}
	}
	return out
}

// WouldCycle reports whether making parent the parent of id would close a
// cycle, i.e. parent is id itself or already below id.
func (t *AccountTree) WouldCycle(id, parent AccountID) bool {
	if parent == "" {
		return false
	}
	if parent == id {
		return true
	}
	for _, d := range t.Descendants(id) {
		if d == parent {
			return true
		}
	}
	return false
}
