package crypto

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"chlumarket/internal/domain"

	"github.com/multiformats/go-multibase"
)

var ErrMalformedSignature = errors.New("malformed signature value")

// SignAddress signs the bytes of a content address string and returns a
// signature attributed to creator.
func SignAddress(address string, key ed25519.PrivateKey, creator string, now time.Time) (domain.Signature, error) {
	if len(key) != ed25519.PrivateKeySize {
		return domain.Signature{}, errors.New("invalid ed25519 private key")
	}
	sig := ed25519.Sign(key, []byte(address))
	value, err := multibase.Encode(multibase.Base58BTC, sig)
	if err != nil {
		return domain.Signature{}, fmt.Errorf("encode signature: %w", err)
	}
	return domain.Signature{
		Type:           domain.SignatureType,
		Created:        now.UnixMilli(),
		Creator:        creator,
		SignatureValue: value,
	}, nil
}

// VerifyAddressSignature checks a multibase encoded signature over address.
func VerifyAddressSignature(address string, pub ed25519.PublicKey, signatureValue string) (bool, error) {
	if len(pub) != ed25519.PublicKeySize {
		return false, errors.New("invalid ed25519 public key")
	}
	_, sig, err := multibase.Decode(signatureValue)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	if len(sig) != ed25519.SignatureSize {
		return false, ErrMalformedSignature
	}
	return ed25519.Verify(pub, []byte(address), sig), nil
}
