package wallet

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// keystoreFile is the on-disk JSON format for the encrypted master seed.
type keystoreFile struct {
	Version    int       `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	SealedSeed []byte    `json:"sealed_seed"`
}

// Keystore manages the encrypted master seed on disk. One gateway process
// holds exactly one seed file.
type Keystore struct {
	path string
}

// NewKeystore creates a keystore that reads/writes seed.keystore in the
// given directory. The directory is created if it doesn't exist.
func NewKeystore(dir string) (*Keystore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	return &Keystore{path: filepath.Join(dir, "seed.keystore")}, nil
}

// Exists reports whether a seed file is present.
func (ks *Keystore) Exists() bool {
	_, err := os.Stat(ks.path)
	return err == nil
}

// Create seals the seed with the passphrase and writes the keystore file.
// Fails if a seed file already exists.
func (ks *Keystore) Create(seed, passphrase []byte) error {
	if ks.Exists() {
		return fmt.Errorf("keystore %s already exists", ks.path)
	}

	sealed, err := SealSeed(seed, passphrase)
	if err != nil {
		return fmt.Errorf("seal seed: %w", err)
	}

	kf := keystoreFile{
		Version:    1,
		CreatedAt:  time.Now().UTC(),
		SealedSeed: sealed,
	}

	data, err := json.MarshalIndent(&kf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal keystore: %w", err)
	}

	// Write via a temp file then rename for crash safety.
	tmp := ks.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write keystore: %w", err)
	}
	if err := os.Rename(tmp, ks.path); err != nil {
		return fmt.Errorf("rename keystore: %w", err)
	}
	return nil
}

// Load decrypts the keystore and returns the seed bytes.
func (ks *Keystore) Load(passphrase []byte) ([]byte, error) {
	data, err := os.ReadFile(ks.path)
	if err != nil {
		return nil, fmt.Errorf("read keystore: %w", err)
	}

	var kf keystoreFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse keystore: %w", err)
	}
	if kf.Version != 1 {
		return nil, fmt.Errorf("unsupported keystore version %d", kf.Version)
	}

	seed, err := OpenSeed(kf.SealedSeed, passphrase)
	if err != nil {
		return nil, fmt.Errorf("unlock keystore: %w", err)
	}
	return seed, nil
}
