package domain

import (
	"crypto/ed25519"
	"strings"
)

const (
	DIDPrefix     = "did:chlu:"
	SignatureType = "Ed25519Signature2018"
	KeyType       = "Ed25519VerificationKey2018"
)

func IsValidIdentity(id string) bool {
	return strings.HasPrefix(id, DIDPrefix) && len(id) > len(DIDPrefix)
}

type Signature struct {
	Type           string `json:"type,omitempty"`
	Created        int64  `json:"created,omitempty"`
	Creator        string `json:"creator"`
	SignatureValue string `json:"signatureValue"`
}

type PublicKey struct {
	ID                 string `json:"id"`
	Type               string `json:"type"`
	Controller         string `json:"controller"`
	PublicKeyMultibase string `json:"publicKeyMultibase"`
}

// DIDDocument lists the signing keys currently bound to a DID.
type DIDDocument struct {
	ID        string      `json:"id"`
	PublicKey []PublicKey `json:"publicKey"`
}

type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// MarketplaceIdentity is the long-lived key of the marketplace itself.
type MarketplaceIdentity struct {
	Document     DIDDocument
	Keys         KeyPair
	PublicKeyRef string
	Source       string
}

func (m MarketplaceIdentity) DID() string {
	return m.Document.ID
}
