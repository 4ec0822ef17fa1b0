package core

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
)

const (
	PrivKeyFile = "trustee_ed25519.priv"
	PubKeyFile  = "trustee_ed25519.pub"
)

// GenerateAndSaveKeypair generates an Ed25519 keypair under dir and saves it
// to disk if not already present. Existing key files are loaded instead.
func GenerateAndSaveKeypair(dir string) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	privPath := filepath.Join(dir, PrivKeyFile)
	pubPath := filepath.Join(dir, PubKeyFile)

	if _, err := os.Stat(privPath); err == nil {
		return LoadKeypair(dir)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	if err := os.WriteFile(privPath, []byte(hex.EncodeToString(priv)), 0600); err != nil {
		return nil, nil, err
	}
	if err := os.WriteFile(pubPath, []byte(hex.EncodeToString(pub)), 0644); err != nil {
		return nil, nil, err
	}
	return pub, priv, nil
}

// LoadKeypair reads a previously saved Ed25519 keypair from dir.
func LoadKeypair(dir string) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	privHex, err := os.ReadFile(filepath.Join(dir, PrivKeyFile))
	if err != nil {
		return nil, nil, err
	}
	pubHex, err := os.ReadFile(filepath.Join(dir, PubKeyFile))
	if err != nil {
		return nil, nil, err
	}
	priv, err := hex.DecodeString(strings.TrimSpace(string(privHex)))
	if err != nil {
		return nil, nil, err
	}
	pub, err := hex.DecodeString(strings.TrimSpace(string(pubHex)))
	if err != nil {
		return nil, nil, err
	}
	return ed25519.PublicKey(pub), ed25519.PrivateKey(priv), nil
}
