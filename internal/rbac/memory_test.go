package rbac_test

import (
	"context"
	"sort"
	"sync"

	"github.com/odyssey-erp/stockflow/internal/rbac"
)

type memoryStore struct {
	mu          sync.Mutex
	permissions map[string]rbac.Permission
	roles       map[int64]rbac.Role
	rolePerms   map[int64][]int64
	userRoles   map[int64][]int64
	branches    map[int64][]int64
	locations   map[int64]int64
	nextID      int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		permissions: map[string]rbac.Permission{},
		roles:       map[int64]rbac.Role{},
		rolePerms:   map[int64][]int64{},
		userRoles:   map[int64][]int64{},
		branches:    map[int64][]int64{},
		locations:   map[int64]int64{},
	}
}

func (m *memoryStore) ListPermissions(context.Context) ([]rbac.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]rbac.Permission, 0, len(m.permissions))
	for _, p := range m.permissions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memoryStore) EnsurePermission(_ context.Context, name, description string) (rbac.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.permissions[name]
	if !ok {
		m.nextID++
		p = rbac.Permission{ID: m.nextID, Name: name}
	}
	p.Description = description
	m.permissions[name] = p
	return p, nil
}

func (m *memoryStore) CreateRole(_ context.Context, name, description string) (rbac.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	r := rbac.Role{ID: m.nextID, Name: name, Description: description}
	m.roles[r.ID] = r
	return r, nil
}

func (m *memoryStore) SetRolePermissions(_ context.Context, roleID int64, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolePerms[roleID] = append([]int64(nil), ids...)
	return nil
}

func (m *memoryStore) AssignRole(_ context.Context, userID, roleID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userRoles[userID] = append(m.userRoles[userID], roleID)
	return nil
}

func (m *memoryStore) AssignBranch(_ context.Context, userID, branchID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.branches[userID] = append(m.branches[userID], branchID)
	return nil
}

func (m *memoryStore) UserPermissions(_ context.Context, userID int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID := map[int64]string{}
	for _, p := range m.permissions {
		byID[p.ID] = p.Name
	}
	var out []string
	for _, roleID := range m.userRoles[userID] {
		for _, pid := range m.rolePerms[roleID] {
			out = append(out, byID[pid])
		}
	}
	return out, nil
}

func (m *memoryStore) UserBranches(_ context.Context, userID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.branches[userID]...), nil
}

func (m *memoryStore) LocationBranch(_ context.Context, locationID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.locations[locationID]
	if !ok {
		return 0, rbac.ErrNotFound
	}
	return b, nil
}
