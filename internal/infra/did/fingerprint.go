// Package did builds and resolves did:chlu identities. The method specific
// id is the multibase (base58btc) encoding of the multicodec ed25519-pub
// prefix followed by the raw public key, so every id commits to its key.
package did

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"chlumarket/internal/domain"

	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multicodec"
)

var ErrInvalidDocument = errors.New("did: invalid document")

// Fingerprint encodes pub as a multibase multicodec key fingerprint.
func Fingerprint(pub ed25519.PublicKey) string {
	buf := binary.AppendUvarint(nil, uint64(multicodec.Ed25519Pub))
	buf = append(buf, pub...)
	out, _ := multibase.Encode(multibase.Base58BTC, buf)
	return out
}

// ParseFingerprint is the inverse of Fingerprint.
func ParseFingerprint(fp string) (ed25519.PublicKey, error) {
	enc, raw, err := multibase.Decode(fp)
	if err != nil {
		return nil, fmt.Errorf("decode fingerprint: %w", err)
	}
	if enc != multibase.Base58BTC {
		return nil, fmt.Errorf("unexpected fingerprint encoding %c", enc)
	}
	code, n := binary.Uvarint(raw)
	if n <= 0 || multicodec.Code(code) != multicodec.Ed25519Pub {
		return nil, errors.New("fingerprint is not an ed25519 public key")
	}
	key := raw[n:]
	if len(key) != ed25519.PublicKeySize {
		return nil, errors.New("fingerprint has wrong key length")
	}
	return ed25519.PublicKey(key), nil
}

func FromPublicKey(pub ed25519.PublicKey) string {
	return domain.DIDPrefix + Fingerprint(pub)
}

// PublicKeyOf extracts the key an identity commits to.
func PublicKeyOf(id string) (ed25519.PublicKey, error) {
	if !domain.IsValidIdentity(id) {
		return nil, domain.ErrInvalidIdentity
	}
	return ParseFingerprint(strings.TrimPrefix(id, domain.DIDPrefix))
}

func NewDocument(pub ed25519.PublicKey) domain.DIDDocument {
	fp := Fingerprint(pub)
	id := domain.DIDPrefix + fp
	return domain.DIDDocument{
		ID: id,
		PublicKey: []domain.PublicKey{{
			ID:                 id + "#" + fp,
			Type:               domain.KeyType,
			Controller:         id,
			PublicKeyMultibase: fp,
		}},
	}
}

// Keys returns the ed25519 keys listed in doc.
func Keys(doc domain.DIDDocument) ([]ed25519.PublicKey, error) {
	out := make([]ed25519.PublicKey, 0, len(doc.PublicKey))
	for _, pk := range doc.PublicKey {
		key, err := ParseFingerprint(pk.PublicKeyMultibase)
		if err != nil {
			return nil, fmt.Errorf("%w: key %s: %v", ErrInvalidDocument, pk.ID, err)
		}
		out = append(out, key)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no keys", ErrInvalidDocument)
	}
	return out, nil
}

// Validate checks that doc lists the key its id commits to. A document that
// passes can be trusted without a network lookup.
func Validate(doc domain.DIDDocument) error {
	idKey, err := PublicKeyOf(doc.ID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	keys, err := Keys(doc)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if bytes.Equal(k, idKey) {
			return nil
		}
	}
	return fmt.Errorf("%w: id key not listed", ErrInvalidDocument)
}
