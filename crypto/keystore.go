package crypto

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/keystore"
)

var (
	errNilKey        = errors.New("crypto: nil private key")
	errEmptyKeystore = errors.New("crypto: empty keystore path")
)

// SaveToKeystore encrypts key into an Ethereum v3 keystore file at path. The
// parent directory is created with 0700 permissions and the file is replaced
// atomically.
func SaveToKeystore(path string, key *PrivateKey, passphrase string) error {
	if key == nil {
		return errNilKey
	}
	if path == "" {
		return errEmptyKeystore
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmpDir, err := os.MkdirTemp(dir, "keystore-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpDir)

	ks := keystore.NewKeyStore(tmpDir, keystore.StandardScryptN, keystore.StandardScryptP)
	if _, err := ks.ImportECDSA(key.PrivateKey, passphrase); err != nil {
		return fmt.Errorf("crypto: import key: %w", err)
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return errors.New("crypto: failed to create keystore file")
	}

	src := filepath.Join(tmpDir, entries[0].Name())
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Rename(src, path); err != nil {
		return err
	}
	return os.Chmod(path, 0o600)
}

// LoadFromKeystore decrypts an Ethereum v3 keystore file using the supplied passphrase.
func LoadFromKeystore(path, passphrase string) (*PrivateKey, error) {
	if path == "" {
		return nil, errEmptyKeystore
	}
	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	decrypted, err := keystore.DecryptKey(keyJSON, passphrase)
	if err != nil {
		return nil, fmt.Errorf("crypto: decrypt keystore: %w", err)
	}
	return &PrivateKey{PrivateKey: decrypted.PrivateKey}, nil
}

// KeystoreAddress reads the plaintext address recorded in a v3 keystore file
// without decrypting the key material.
func KeystoreAddress(path string) (Address, error) {
	if path == "" {
		return Address{}, errEmptyKeystore
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Address{}, err
	}
	var header struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(raw, &header); err != nil {
		return Address{}, fmt.Errorf("crypto: parse keystore: %w", err)
	}
	decoded, err := hexDecode(header.Address)
	if err != nil {
		return Address{}, fmt.Errorf("crypto: keystore address: %w", err)
	}
	return BytesToAddress(decoded)
}
