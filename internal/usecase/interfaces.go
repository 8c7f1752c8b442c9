package usecase

import (
	"context"
	"crypto/ed25519"
	"time"

	"chlumarket/internal/domain"
)

type Clock func() time.Time

// Component is anything the lifecycle starts and stops as one unit.
type Component interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Directory persists vendor records keyed by vendor id.
type Directory interface {
	Component
	GetVendorIDs(ctx context.Context) ([]string, error)
	GetVendor(ctx context.Context, vendorID string) (domain.Vendor, error)
	CreateVendor(ctx context.Context, vendor domain.Vendor) error
	// UpdateVendor reads the record, applies fn and writes the result in
	// one transaction. An error from fn aborts the write.
	UpdateVendor(ctx context.Context, vendorID string, fn func(*domain.Vendor) error) error
	Search(ctx context.Context, query map[string]any, limit, offset int) (int64, []domain.Vendor, error)
}

// IdentityProvider covers key handling, signing and content addressed
// storage.
type IdentityProvider interface {
	Component
	GenerateKeyPair() (domain.KeyPair, error)
	StorePublicKey(ctx context.Context, pub ed25519.PublicKey) (string, error)
	ContentAddress(payload any) (string, error)
	SignHash(hash string, key ed25519.PrivateKey, creator string) (domain.Signature, error)
	// VerifyHash checks sig over hash against creator's key. doc is used
	// when it belongs to creator; otherwise the identity is resolved from
	// the network, waiting for replication up to a bounded timeout.
	VerifyHash(ctx context.Context, creator string, doc *domain.DIDDocument, hash string, sig domain.Signature) (bool, error)
	VerifyDelegated(ctx context.Context, keyRef, hash string, sig domain.Signature) (bool, error)
	ExportPrivateKey(key ed25519.PrivateKey) (string, error)
	ImportPrivateKey(exported string) (ed25519.PrivateKey, error)
	StoreObject(ctx context.Context, v any) (string, error)
	LoadOrCreateIdentity(ctx context.Context) (domain.MarketplaceIdentity, error)
	NodeID() string
	Network() string
}

type PoPRPolicy interface {
	Evaluate(ctx context.Context, input domain.PoPRPolicyInput) (domain.PolicyResult, error)
}
