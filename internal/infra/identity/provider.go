// Package identity is the signing and content addressing backend of the
// marketplace: ed25519 keys, did:chlu documents and a pinned blob store.
package identity

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"chlumarket/internal/domain"
	"chlumarket/internal/infra/cas"
	"chlumarket/internal/infra/crypto"
	"chlumarket/internal/infra/did"
	"chlumarket/internal/infra/keys/soft"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("marketplace/identity")

type Config struct {
	// KeyPath is the marketplace key file. Empty keeps the key in memory.
	KeyPath        string
	Network        string
	ResolveTimeout time.Duration
}

type Provider struct {
	cfg      Config
	store    cas.Store
	registry did.Registry
	resolver *did.Resolver
	now      func() time.Time
}

func NewProvider(cfg Config, store cas.Store, registry did.Registry) (*Provider, error) {
	if store == nil {
		return nil, errors.New("content store is required")
	}
	if registry == nil {
		return nil, errors.New("did registry is required")
	}
	return &Provider{
		cfg:      cfg,
		store:    store,
		registry: registry,
		resolver: &did.Resolver{Registry: registry, Timeout: cfg.ResolveTimeout},
		now:      time.Now,
	}, nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

func (p *Provider) Start(ctx context.Context) error {
	if r, ok := p.registry.(pinger); ok {
		if err := r.Ping(ctx); err != nil {
			return fmt.Errorf("did registry: %w", err)
		}
	}
	log.Debugw("identity provider started", "node", p.store.NodeID(), "network", p.cfg.Network)
	return nil
}

func (p *Provider) Stop(context.Context) error {
	log.Debug("identity provider stopped")
	return nil
}

func (p *Provider) GenerateKeyPair() (domain.KeyPair, error) {
	return soft.Generate()
}

func (p *Provider) StorePublicKey(ctx context.Context, pub ed25519.PublicKey) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", errors.New("invalid ed25519 public key")
	}
	return p.storePinned(ctx, pub)
}

func (p *Provider) ContentAddress(payload any) (string, error) {
	address, _, err := crypto.AddressOf(payload)
	return address, err
}

func (p *Provider) SignHash(hash string, key ed25519.PrivateKey, creator string) (domain.Signature, error) {
	return crypto.SignAddress(hash, key, creator, p.now())
}

func (p *Provider) VerifyHash(ctx context.Context, creator string, doc *domain.DIDDocument, hash string, sig domain.Signature) (bool, error) {
	if sig.Creator != creator || !domain.IsValidIdentity(creator) {
		return false, nil
	}
	keys, err := p.keysFor(ctx, creator, doc)
	if err != nil {
		if errors.Is(err, did.ErrNotPublished) || errors.Is(err, did.ErrInvalidDocument) {
			log.Infow("signature rejected: identity unavailable", "did", creator, "err", err)
			return false, nil
		}
		return false, err
	}
	for _, key := range keys {
		ok, err := crypto.VerifyAddressSignature(hash, key, sig.SignatureValue)
		if err != nil {
			if errors.Is(err, crypto.ErrMalformedSignature) {
				return false, nil
			}
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// keysFor picks the keys to verify against. A caller supplied document is
// only trusted for the key its id commits to; a resolved one is trusted as
// published.
func (p *Provider) keysFor(ctx context.Context, creator string, doc *domain.DIDDocument) ([]ed25519.PublicKey, error) {
	if doc != nil && doc.ID == creator {
		if err := did.Validate(*doc); err != nil {
			return nil, err
		}
		key, err := did.PublicKeyOf(creator)
		if err != nil {
			return nil, err
		}
		return []ed25519.PublicKey{key}, nil
	}
	resolved, err := p.resolver.Resolve(ctx, creator, true)
	if err != nil {
		return nil, err
	}
	if resolved.ID != creator {
		return nil, fmt.Errorf("%w: resolved id mismatch", did.ErrInvalidDocument)
	}
	return did.Keys(resolved)
}

func (p *Provider) VerifyDelegated(ctx context.Context, keyRef, hash string, sig domain.Signature) (bool, error) {
	raw, err := p.store.Get(ctx, keyRef)
	if err != nil {
		return false, fmt.Errorf("load delegated key %s: %w", keyRef, err)
	}
	ok, err := crypto.VerifyAddressSignature(hash, ed25519.PublicKey(raw), sig.SignatureValue)
	if errors.Is(err, crypto.ErrMalformedSignature) {
		return false, nil
	}
	return ok, err
}

func (p *Provider) ExportPrivateKey(key ed25519.PrivateKey) (string, error) {
	return soft.Export(key)
}

func (p *Provider) ImportPrivateKey(exported string) (ed25519.PrivateKey, error) {
	return soft.Import(exported)
}

func (p *Provider) StoreObject(ctx context.Context, v any) (string, error) {
	canonical, err := crypto.Canonicalize(v)
	if err != nil {
		return "", err
	}
	return p.storePinned(ctx, canonical)
}

func (p *Provider) storePinned(ctx context.Context, data []byte) (string, error) {
	address, err := p.store.Put(ctx, data)
	if err != nil {
		return "", err
	}
	if err := p.store.Pin(ctx, address); err != nil {
		return "", err
	}
	return address, nil
}

// LoadOrCreateIdentity reads or creates the marketplace key, stores and pins
// its public half and publishes its DID document.
func (p *Provider) LoadOrCreateIdentity(ctx context.Context) (domain.MarketplaceIdentity, error) {
	var (
		pair   domain.KeyPair
		source string
		err    error
	)
	if p.cfg.KeyPath == "" {
		pair, err = soft.Generate()
		source = soft.SourceMemory
	} else {
		pair, source, err = soft.LoadOrCreate(p.cfg.KeyPath)
	}
	if err != nil {
		return domain.MarketplaceIdentity{}, fmt.Errorf("marketplace key: %w", err)
	}
	ref, err := p.StorePublicKey(ctx, pair.Public)
	if err != nil {
		return domain.MarketplaceIdentity{}, err
	}
	doc := did.NewDocument(pair.Public)
	if err := p.registry.Publish(ctx, doc); err != nil {
		return domain.MarketplaceIdentity{}, fmt.Errorf("publish marketplace did: %w", err)
	}
	return domain.MarketplaceIdentity{
		Document:     doc,
		Keys:         pair,
		PublicKeyRef: ref,
		Source:       source,
	}, nil
}

func (p *Provider) NodeID() string {
	return p.store.NodeID()
}

func (p *Provider) Network() string {
	return p.cfg.Network
}
