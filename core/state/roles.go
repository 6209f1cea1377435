package state

import (
	"fmt"
	"strings"

	"cdpchain/crypto"
)

const rolePrefix = "role/"

func roleKey(role string) []byte {
	return []byte(rolePrefix + strings.TrimSpace(role))
}

// SetRole grants role to addr.
func (m *Manager) SetRole(role string, addr crypto.Address) error {
	if strings.TrimSpace(role) == "" {
		return fmt.Errorf("role must not be empty")
	}
	if addr.IsZero() {
		return fmt.Errorf("address must not be empty")
	}
	return m.KVAppend(roleKey(role), addr.Bytes())
}

// RemoveRole revokes role from addr.
func (m *Manager) RemoveRole(role string, addr crypto.Address) error {
	if strings.TrimSpace(role) == "" {
		return fmt.Errorf("role must not be empty")
	}
	return m.KVRemove(roleKey(role), addr.Bytes())
}

// RoleMembers lists the accounts holding role.
func (m *Manager) RoleMembers(role string) ([]crypto.Address, error) {
	var raw [][]byte
	if err := m.KVGetList(roleKey(role), &raw); err != nil {
		return nil, err
	}
	members := make([]crypto.Address, 0, len(raw))
	for _, entry := range raw {
		members = append(members, crypto.BytesToAddress(entry))
	}
	return members, nil
}

func (m *Manager) HasRole(role string, addr crypto.Address) bool {
	if addr.IsZero() || strings.TrimSpace(role) == "" {
		return false
	}
	members, err := m.RoleMembers(role)
	if err != nil {
		return false
	}
	for _, member := range members {
		if member == addr {
			return true
		}
	}
	return false
}
