package state

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math/big"
	"reflect"
	"sort"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// Manager provides typed access to protocol state stored in a KV backend.
// Keys are keccak hashed; values are RLP encoded.
type Manager struct {
	kv KV
}

// NewManager creates a state manager operating on the provided store.
func NewManager(kv KV) *Manager {
	return &Manager{kv: kv}
}

var (
	rolePrefix  = []byte("role:")
	paramPrefix = []byte("params/")
)

func roleKey(role string) []byte {
	buf := make([]byte, len(rolePrefix)+len(role))
	copy(buf, rolePrefix)
	copy(buf[len(rolePrefix):], role)
	return ethcrypto.Keccak256(buf)
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// ParamStoreKey returns the unhashed key under which a named parameter lives.
func ParamStoreKey(name string) []byte {
	buf := make([]byte, len(paramPrefix)+len(name))
	copy(buf, paramPrefix)
	copy(buf[len(paramPrefix):], name)
	return buf
}

// SetRole associates an address with the specified role. Duplicate assignments
// are ignored while the stored list remains sorted for determinism.
func (m *Manager) SetRole(role string, addr []byte) error {
	trimmed := strings.TrimSpace(role)
	if trimmed == "" {
		return fmt.Errorf("role must not be empty")
	}
	if len(addr) == 0 {
		return fmt.Errorf("address must not be empty")
	}
	members, err := m.RoleMembers(trimmed)
	if err != nil {
		return err
	}
	for _, existing := range members {
		if bytes.Equal(existing, addr) {
			return nil
		}
	}
	members = append(members, append([]byte(nil), addr...))
	sort.Slice(members, func(i, j int) bool {
		return hex.EncodeToString(members[i]) < hex.EncodeToString(members[j])
	})
	return m.writeRole(trimmed, members)
}

// RemoveRole revokes the role from the address. Missing assignments are a no-op.
func (m *Manager) RemoveRole(role string, addr []byte) error {
	trimmed := strings.TrimSpace(role)
	members, err := m.RoleMembers(trimmed)
	if err != nil {
		return err
	}
	kept := members[:0]
	for _, existing := range members {
		if !bytes.Equal(existing, addr) {
			kept = append(kept, existing)
		}
	}
	return m.writeRole(trimmed, kept)
}

func (m *Manager) writeRole(role string, members [][]byte) error {
	encoded, err := rlp.EncodeToBytes(members)
	if err != nil {
		return err
	}
	return m.kv.Put(roleKey(role), encoded)
}

// RoleMembers returns all addresses assigned to the provided role.
func (m *Manager) RoleMembers(role string) ([][]byte, error) {
	data, err := m.kv.Get(roleKey(strings.TrimSpace(role)))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return [][]byte{}, nil
	}
	var members [][]byte
	if err := rlp.DecodeBytes(data, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// HasRole reports whether the provided address is associated with the
// specified role. Errors while reading the underlying state result in a false
// return.
func (m *Manager) HasRole(role string, addr []byte) bool {
	if len(addr) == 0 {
		return false
	}
	members, err := m.RoleMembers(role)
	if err != nil {
		return false
	}
	for _, member := range members {
		if bytes.Equal(member, addr) {
			return true
		}
	}
	return false
}

// KVPut stores the provided value under the supplied key using RLP encoding.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.kv.Put(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.kv.Get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the value stored under key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return m.kv.Delete(kvKey(key))
}

// KVAppend appends the provided value to the RLP-encoded byte slice list stored
// under the supplied key. Duplicate values are ignored to keep the index
// deterministic.
func (m *Manager) KVAppend(key []byte, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	var list [][]byte
	if err := m.KVGetList(key, &list); err != nil {
		return err
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	return m.KVPut(key, list)
}

// KVGetList retrieves an RLP-encoded slice stored under the provided key and
// decodes it into the supplied destination slice pointer. When no value is
// present the destination is initialised with an empty slice.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.kv.Get(kvKey(key))
	if err != nil {
		return err
	}
	if len(data) == 0 {
		val := reflect.ValueOf(out)
		if val.Kind() != reflect.Ptr || val.IsNil() {
			return fmt.Errorf("kv: destination must be a non-nil pointer")
		}
		elem := val.Elem()
		if elem.Kind() != reflect.Slice {
			return fmt.Errorf("kv: destination must point to a slice")
		}
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
		return nil
	}
	return rlp.DecodeBytes(data, out)
}

// ParamStoreSet writes a raw parameter value.
func (m *Manager) ParamStoreSet(name string, value []byte) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("params: name must not be empty")
	}
	return m.kv.Put(kvKey(ParamStoreKey(name)), append([]byte(nil), value...))
}

// ParamStoreGet reads a raw parameter value.
func (m *Manager) ParamStoreGet(name string) ([]byte, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false, fmt.Errorf("params: name must not be empty")
	}
	data, err := m.kv.Get(kvKey(ParamStoreKey(name)))
	if err != nil {
		return nil, false, err
	}
	if len(data) == 0 {
		return nil, false, nil
	}
	return data, true, nil
}

// KVGetBigInt loads an unsigned integer stored with KVPutBigInt. Missing keys
// decode as zero.
func (m *Manager) KVGetBigInt(key []byte) (*big.Int, error) {
	value := new(big.Int)
	if _, err := m.KVGet(key, value); err != nil {
		return nil, err
	}
	return value, nil
}

// KVPutBigInt stores a non-negative integer.
func (m *Manager) KVPutBigInt(key []byte, value *big.Int) error {
	if value == nil {
		value = big.NewInt(0)
	}
	if value.Sign() < 0 {
		return fmt.Errorf("kv: negative value for %q", string(key))
	}
	return m.KVPut(key, value)
}
