package types

import "cdpchain/crypto"

// OriginKind classifies who dispatched a call.
type OriginKind uint8

const (
	// OriginNone is an unsigned call (e.g. a keeper-submitted liquidation).
	OriginNone OriginKind = iota
	// OriginSigned is a call signed by an account.
	OriginSigned
	// OriginRoot is the privileged governance origin.
	OriginRoot
)

// Origin identifies the dispatcher of an operation.
type Origin struct {
	Kind   OriginKind
	Signer crypto.Address
}

func RootOrigin() Origin { return Origin{Kind: OriginRoot} }

func NoneOrigin() Origin { return Origin{Kind: OriginNone} }

func SignedOrigin(addr crypto.Address) Origin {
	return Origin{Kind: OriginSigned, Signer: addr}
}

func (o Origin) IsRoot() bool { return o.Kind == OriginRoot }

func (o Origin) String() string {
	switch o.Kind {
	case OriginRoot:
		return "root"
	case OriginSigned:
		return "signed:" + o.Signer.String()
	default:
		return "none"
	}
}
