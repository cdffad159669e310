package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix is the human-readable part of a bech32 encoded address.
type AddressPrefix string

const (
	// PropsPrefix is used for every account, token, pool and app address.
	PropsPrefix AddressPrefix = "props"
)

// Address is a 20-byte account identifier rendered with a bech32 prefix.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

func NewAddress(prefix AddressPrefix, b []byte) (Address, error) {
	if len(b) != common.AddressLength {
		return Address{}, fmt.Errorf("crypto: address must be %d bytes, got %d", common.AddressLength, len(b))
	}
	return Address{prefix: prefix, bytes: append([]byte(nil), b...)}, nil
}

// MustNewAddress panics on malformed input. Intended for already validated
// 20-byte values.
func MustNewAddress(prefix AddressPrefix, b []byte) Address {
	addr, err := NewAddress(prefix, b)
	if err != nil {
		panic(err)
	}
	return addr
}

// FromCommon renders an account address with the protocol prefix.
func FromCommon(addr common.Address) Address {
	return Address{prefix: PropsPrefix, bytes: addr.Bytes()}
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Bytes() []byte {
	return a.bytes
}

// Common returns the address as a go-ethereum address value.
func (a Address) Common() common.Address {
	return common.BytesToAddress(a.bytes)
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	return NewAddress(AddressPrefix(prefix), conv)
}

// ParseAddress accepts either a bech32 address carrying the props prefix or a
// 0x-prefixed hex address.
func ParseAddress(value string) (common.Address, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return common.Address{}, fmt.Errorf("crypto: empty address")
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		if !common.IsHexAddress(trimmed) {
			return common.Address{}, fmt.Errorf("crypto: invalid hex address %q", trimmed)
		}
		return common.HexToAddress(trimmed), nil
	}
	decoded, err := DecodeAddress(trimmed)
	if err != nil {
		return common.Address{}, err
	}
	if decoded.Prefix() != PropsPrefix {
		return common.Address{}, fmt.Errorf("crypto: unexpected address prefix %q", decoded.Prefix())
	}
	return decoded.Common(), nil
}

// FormatAddress renders an address in its bech32 form.
func FormatAddress(addr common.Address) string {
	return FromCommon(addr).String()
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Sign produces a 65-byte recoverable signature over a 32-byte digest.
func (k *PrivateKey) Sign(digest []byte) ([]byte, error) {
	return crypto.Sign(digest, k.PrivateKey)
}

func (k *PublicKey) Address() Address {
	return FromCommon(crypto.PubkeyToAddress(*k.PublicKey))
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}
