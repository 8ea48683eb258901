package gameclient

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

// Identity is a player's long-term keypair, persisted so the registry
// binding survives restarts.
type Identity struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

type identityFile struct {
	PrivateKey string `json:"private_key"`
	PublicKey  string `json:"public_key"`
}

// DefaultIdentityDir is where the interactive client keeps its keypair.
func DefaultIdentityDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".rogue-talk"), nil
}

// LoadOrCreateIdentity reads dir/identity.json, generating and saving a
// fresh keypair when the file is absent or unreadable.
func LoadOrCreateIdentity(dir string) (*Identity, error) {
	path := filepath.Join(dir, "identity.json")
	if id, err := readIdentity(path); err == nil {
		return id, nil
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create identity dir: %w", err)
	}
	data, err := json.MarshalIndent(identityFile{
		PrivateKey: hex.EncodeToString(priv.Seed()),
		PublicKey:  hex.EncodeToString(pub),
	}, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, fmt.Errorf("write identity: %w", err)
	}
	return &Identity{Public: pub, Private: priv}, nil
}

func readIdentity(path string) (*Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f identityFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	seed, err := hex.DecodeString(f.PrivateKey)
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("invalid private key in %s", path)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Identity{Public: priv.Public().(ed25519.PublicKey), Private: priv}, nil
}
