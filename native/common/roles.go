package common

import (
	"sync"

	"rwalend/crypto"
)

// Role names recognised by the pool. Roles are explicit capability grants
// looked up before privileged operations, not an object hierarchy.
const (
	RoleAdmin      = "admin"
	RoleLiquidator = "liquidator"
)

// RoleView is the read side consumed by engines performing access checks.
type RoleView interface {
	HasRole(role string, addr crypto.Address) bool
}

// RoleRegistry is an in-memory role store safe for concurrent access.
type RoleRegistry struct {
	mu     sync.RWMutex
	grants map[string]map[string]struct{}
}

// NewRoleRegistry constructs an empty registry.
func NewRoleRegistry() *RoleRegistry {
	return &RoleRegistry{grants: make(map[string]map[string]struct{})}
}

// Grant assigns the role to the address. Granting twice is a no-op.
func (r *RoleRegistry) Grant(role string, addr crypto.Address) {
	if r == nil || role == "" || addr.IsZero() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.grants[role]
	if !ok {
		members = make(map[string]struct{})
		r.grants[role] = members
	}
	members[string(addr.Bytes())] = struct{}{}
}

// Revoke removes the role from the address if present.
func (r *RoleRegistry) Revoke(role string, addr crypto.Address) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if members, ok := r.grants[role]; ok {
		delete(members, string(addr.Bytes()))
	}
}

// HasRole reports whether the address currently holds the role.
func (r *RoleRegistry) HasRole(role string, addr crypto.Address) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	members, ok := r.grants[role]
	if !ok {
		return false
	}
	_, ok = members[string(addr.Bytes())]
	return ok
}

// Members returns the number of addresses holding the role.
func (r *RoleRegistry) Members(role string) int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.grants[role])
}
