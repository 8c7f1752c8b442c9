package soft

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multicodec"
)

// Export serializes a private key as multibase base58btc over the
// multicodec ed25519-priv prefix and the 32 byte seed.
func Export(priv ed25519.PrivateKey) (string, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return "", errors.New("invalid ed25519 private key length")
	}
	buf := binary.AppendUvarint(nil, uint64(multicodec.Ed25519Priv))
	buf = append(buf, priv.Seed()...)
	return multibase.Encode(multibase.Base58BTC, buf)
}

func Import(exported string) (ed25519.PrivateKey, error) {
	_, raw, err := multibase.Decode(exported)
	if err != nil {
		return nil, fmt.Errorf("decode exported key: %w", err)
	}
	code, n := binary.Uvarint(raw)
	if n <= 0 || multicodec.Code(code) != multicodec.Ed25519Priv {
		return nil, errors.New("exported key is not an ed25519 private key")
	}
	return parsePrivateKey(raw[n:])
}

func parsePrivateKey(raw []byte) (ed25519.PrivateKey, error) {
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(append([]byte(nil), raw...)), nil
	default:
		return nil, errors.New("invalid ed25519 private key length")
	}
}
