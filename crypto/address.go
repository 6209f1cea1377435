package crypto

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix defines the human-readable part of bech32 account ids.
type AddressPrefix string

const CDPPrefix AddressPrefix = "cdp"

// AddressLength is the raw length of an account id.
const AddressLength = 20

// Address represents a 20-byte account id. The zero value is the empty
// address. Addresses are comparable and can be used as map keys.
type Address struct {
	raw [AddressLength]byte
}

func NewAddress(b []byte) Address {
	if len(b) != AddressLength {
		panic("address must be 20 bytes long")
	}
	var addr Address
	copy(addr.raw[:], b)
	return addr
}

// BytesToAddress left-pads or truncates b into an address. It never panics and
// is intended for decoding stored keys.
func BytesToAddress(b []byte) Address {
	var addr Address
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(addr.raw[AddressLength-len(b):], b)
	return addr
}

// ModuleAddress derives the account controlled by a protocol module. The
// derivation is keccak256("module/" + name) truncated to 20 bytes, so module
// accounts have no private key.
func ModuleAddress(name string) Address {
	sum := crypto.Keccak256([]byte("module/" + strings.TrimSpace(name)))
	return NewAddress(sum[len(sum)-AddressLength:])
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.raw[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(CDPPrefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Hex returns the 0x-prefixed hex form, mostly useful in logs.
func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a.raw[:])
}

func (a Address) Bytes() []byte {
	out := make([]byte, AddressLength)
	copy(out, a.raw[:])
	return out
}

// IsZero reports whether the address is the empty address.
func (a Address) IsZero() bool {
	return a.raw == [AddressLength]byte{}
}

// Compare orders addresses bytewise.
func (a Address) Compare(other Address) int {
	return bytes.Compare(a.raw[:], other.raw[:])
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	decoded, err := DecodeAddress(string(text))
	if err != nil {
		return err
	}
	*a = decoded
	return nil
}

func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(strings.TrimSpace(addrStr))
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	if AddressPrefix(prefix) != CDPPrefix {
		return Address{}, fmt.Errorf("unexpected address prefix %q", prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != AddressLength {
		return Address{}, fmt.Errorf("address must be %d bytes, got %d", AddressLength, len(conv))
	}
	return NewAddress(conv), nil
}
