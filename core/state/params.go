package state

import (
	"fmt"
	"strings"
)

const paramsPrefix = "params/"

func paramsKey(name string) []byte {
	return []byte(paramsPrefix + strings.TrimSpace(name))
}

// ParamStoreSet stores a raw governance parameter value.
func (m *Manager) ParamStoreSet(name string, value []byte) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("params: name must not be empty")
	}
	return m.KVPut(paramsKey(name), value)
}

// ParamStoreGet loads a raw governance parameter value.
func (m *Manager) ParamStoreGet(name string) ([]byte, bool, error) {
	if strings.TrimSpace(name) == "" {
		return nil, false, fmt.Errorf("params: name must not be empty")
	}
	var value []byte
	ok, err := m.KVGet(paramsKey(name), &value)
	if err != nil || !ok {
		return nil, ok, err
	}
	return value, true, nil
}
