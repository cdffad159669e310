package crypto

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/keystore"
)

var (
	errNilKey       = errors.New("crypto: nil private key")
	errEmptyPath    = errors.New("crypto: empty keystore path")
	errNoKeystoreFS = errors.New("crypto: keystore produced no file")
)

// SaveToKeystore encrypts the key into a v3 keystore file at path and returns
// the address it controls.
func SaveToKeystore(path string, key *PrivateKey, passphrase string) (Address, error) {
	if key == nil {
		return Address{}, errNilKey
	}
	if path == "" {
		return Address{}, errEmptyPath
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Address{}, err
	}

	// The go-ethereum keystore names its own files, so import into a scratch
	// directory and move the result into place.
	scratch, err := os.MkdirTemp(dir, "keystore-")
	if err != nil {
		return Address{}, err
	}
	defer os.RemoveAll(scratch)

	ks := keystore.NewKeyStore(scratch, keystore.LightScryptN, keystore.LightScryptP)
	account, err := ks.ImportECDSA(key.PrivateKey, passphrase)
	if err != nil {
		return Address{}, err
	}
	entries, err := os.ReadDir(scratch)
	if err != nil {
		return Address{}, err
	}
	if len(entries) == 0 {
		return Address{}, errNoKeystoreFS
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Address{}, err
	}
	if err := os.Rename(filepath.Join(scratch, entries[0].Name()), path); err != nil {
		return Address{}, err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return Address{}, err
	}
	return FromCommon(account.Address), nil
}

// LoadFromKeystore decrypts a v3 keystore file.
func LoadFromKeystore(path, passphrase string) (*PrivateKey, error) {
	if path == "" {
		return nil, errEmptyPath
	}
	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	decrypted, err := keystore.DecryptKey(keyJSON, passphrase)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{PrivateKey: decrypted.PrivateKey}, nil
}
