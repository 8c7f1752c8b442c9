package soft

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"chlumarket/internal/domain"
)

const (
	SourceGenerated = "generated"
	SourceMemory    = "memory"
)

// LoadOrCreate reads the PEM/PKCS8 ed25519 key at path, or generates one and
// writes it with 0600 permissions. The returned source is "fs:<path>" for a
// loaded key and "generated" for a new one.
func LoadOrCreate(path string) (domain.KeyPair, string, error) {
	if path == "" {
		return domain.KeyPair{}, "", errors.New("key path is required")
	}
	info, err := os.Stat(path)
	switch {
	case err == nil && info.Size() > 0:
		priv, err := readKeyFile(path)
		if err != nil {
			return domain.KeyPair{}, "", err
		}
		return pairOf(priv), "fs:" + path, nil
	case err == nil, os.IsNotExist(err):
		pair, err := Generate()
		if err != nil {
			return domain.KeyPair{}, "", err
		}
		if err := writeKeyFile(path, pair.Private); err != nil {
			return domain.KeyPair{}, "", err
		}
		return pair, SourceGenerated, nil
	default:
		return domain.KeyPair{}, "", err
	}
}

func Generate() (domain.KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return domain.KeyPair{}, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return domain.KeyPair{Public: pub, Private: priv}, nil
}

func pairOf(priv ed25519.PrivateKey) domain.KeyPair {
	return domain.KeyPair{Public: priv.Public().(ed25519.PublicKey), Private: priv}
}

func writeKeyFile(path string, priv ed25519.PrivateKey) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create key dir: %w", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if err := pem.Encode(f, &pem.Block{Type: "PRIVATE KEY", Bytes: der}); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func readKeyFile(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to decode PEM block from key file")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("key is not an ed25519 private key")
	}
	return priv, nil
}
