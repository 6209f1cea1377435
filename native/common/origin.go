package common

import (
	"cdpchain/core/types"
	"cdpchain/crypto"
)

// GovernanceRole is held by accounts whose signed calls count as root.
const GovernanceRole = "governance"

// RoleView exposes role membership.
type RoleView interface {
	HasRole(role string, addr crypto.Address) bool
}

// EnsureRoot accepts the root origin and signed origins holding the
// governance role.
func EnsureRoot(roles RoleView, origin types.Origin) error {
	switch origin.Kind {
	case types.OriginRoot:
		return nil
	case types.OriginSigned:
		if roles != nil && roles.HasRole(GovernanceRole, origin.Signer) {
			return nil
		}
	}
	return ErrBadOrigin
}

// EnsureSigned returns the signer of a signed origin.
func EnsureSigned(origin types.Origin) (crypto.Address, error) {
	if origin.Kind != types.OriginSigned || origin.Signer.IsZero() {
		return crypto.Address{}, ErrBadOrigin
	}
	return origin.Signer, nil
}
