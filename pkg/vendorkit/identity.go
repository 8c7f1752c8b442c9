// Package vendorkit is the vendor side of the marketplace handshake: it
// creates a vendor DID, signs what the marketplace asks the vendor to sign,
// and talks to the marketplace REST API.
package vendorkit

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"time"

	"chlumarket/internal/infra/crypto"
	"chlumarket/internal/infra/did"
	"chlumarket/internal/infra/keys/soft"
)

// Identity is a vendor DID with its signing key.
type Identity struct {
	Document DIDDocument
	key      ed25519.PrivateKey
	now      func() time.Time
}

func NewIdentity() (*Identity, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate vendor key: %w", err)
	}
	return identityFromKey(priv), nil
}

// ImportIdentity restores an identity from the output of Export.
func ImportIdentity(exported string) (*Identity, error) {
	priv, err := soft.Import(exported)
	if err != nil {
		return nil, err
	}
	return identityFromKey(priv), nil
}

func identityFromKey(priv ed25519.PrivateKey) *Identity {
	return &Identity{
		Document: documentFrom(did.NewDocument(priv.Public().(ed25519.PublicKey))),
		key:      priv,
		now:      time.Now,
	}
}

func (i *Identity) DID() string {
	return i.Document.ID
}

func (i *Identity) Export() (string, error) {
	return soft.Export(i.key)
}

// SignAddress signs a content address such as the delegated key reference
// returned at registration.
func (i *Identity) SignAddress(address string) (Signature, error) {
	sig, err := crypto.SignAddress(address, i.key, i.DID(), i.now())
	if err != nil {
		return Signature{}, err
	}
	return signatureFrom(sig), nil
}

// SignObject signs the content address of v, which is how profile payloads
// are signed.
func (i *Identity) SignObject(v any) (Signature, error) {
	address, _, err := crypto.AddressOf(v)
	if err != nil {
		return Signature{}, err
	}
	return i.SignAddress(address)
}

// VerifyMarketplaceSignature checks the marketplace's signature over the
// delegated key reference against the marketplace DID.
func VerifyMarketplaceSignature(reg Registration, marketplaceDID string) error {
	if reg.MarketplaceSignature.Creator != marketplaceDID {
		return fmt.Errorf("marketplace signature created by %s, expected %s", reg.MarketplaceSignature.Creator, marketplaceDID)
	}
	pub, err := did.PublicKeyOf(marketplaceDID)
	if err != nil {
		return err
	}
	ok, err := crypto.VerifyAddressSignature(reg.DelegatedPublicKeyRef, pub, reg.MarketplaceSignature.SignatureValue)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("marketplace signature over %s is invalid", reg.DelegatedPublicKeyRef)
	}
	return nil
}
