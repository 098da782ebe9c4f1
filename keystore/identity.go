package keystore

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/blockberries/watchberry/types"
)

const (
	keyFilePerm = 0600
	keyDirPerm  = 0700
)

// Errors
var (
	ErrKeyLoad      = errors.New("failed to load key")
	ErrUnknownParty = errors.New("party not in roster")
)

// Identity holds an entity's Ed25519 key pair
type Identity struct {
	pubKey  types.PublicKey
	privKey ed25519.PrivateKey
}

// identityFile is the on-disk key file structure
type identityFile struct {
	PubKey  []byte `json:"pub_key"`
	PrivKey []byte `json:"priv_key"`
}

// LoadIdentity reads a key pair from a key file. A missing or malformed
// file is reported as ErrKeyLoad; keys are never generated implicitly.
func LoadIdentity(path string) (*Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyLoad, err)
	}

	var kf identityFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrKeyLoad, path, err)
	}

	if len(kf.PubKey) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: invalid public key size %d", ErrKeyLoad, len(kf.PubKey))
	}
	if len(kf.PrivKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: invalid private key size %d", ErrKeyLoad, len(kf.PrivKey))
	}

	return &Identity{
		pubKey:  types.MustNewPublicKey(kf.PubKey),
		privKey: kf.PrivKey,
	}, nil
}

// GenerateIdentity creates a fresh key pair and writes it to path.
// Fails if a key file already exists there.
func GenerateIdentity(path string) (*Identity, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: key file already exists: %s", ErrKeyLoad, path)
	}

	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	id := &Identity{
		pubKey:  types.MustNewPublicKey(pub),
		privKey: priv,
	}
	if err := id.save(path); err != nil {
		return nil, err
	}
	return id, nil
}

// save writes the key file
func (id *Identity) save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, keyDirPerm); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}

	kf := identityFile{
		PubKey:  id.pubKey.Data,
		PrivKey: id.privKey,
	}
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal key: %w", err)
	}

	if err := os.WriteFile(path, data, keyFilePerm); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

// PubKey returns the public half of the identity
func (id *Identity) PubKey() types.PublicKey {
	return id.pubKey
}

// PrivKey returns the private signing key
func (id *Identity) PrivKey() ed25519.PrivateKey {
	return id.privKey
}
