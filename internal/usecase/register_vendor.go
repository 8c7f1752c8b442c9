package usecase

import (
	"context"
	"errors"
	"fmt"

	"chlumarket/internal/domain"
)

// RegisterVendor mints and countersigns a delegated key for vendorID and
// stores a new vendor record. Registration is create-only.
func (m *Marketplace) RegisterVendor(ctx context.Context, vendorID string) (domain.Registration, error) {
	if !domain.IsValidIdentity(vendorID) {
		return domain.Registration{}, domain.NewError(domain.ErrInvalidIdentity, "invalid vendor identity "+vendorID)
	}
	if err := m.Start(ctx); err != nil {
		return domain.Registration{}, err
	}
	reg, err := m.registerVendor(ctx, vendorID)
	if err != nil {
		return domain.Registration{}, normalize(err)
	}
	log.Infow("vendor registered", "vendor", vendorID, "key_ref", reg.DelegatedPublicKeyRef)
	return reg, nil
}

func (m *Marketplace) registerVendor(ctx context.Context, vendorID string) (domain.Registration, error) {
	if _, err := m.Directory.GetVendor(ctx, vendorID); err == nil {
		return domain.Registration{}, domain.NewError(domain.ErrAlreadyExists, "vendor "+vendorID+" is already registered")
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Registration{}, err
	}

	delegated, err := m.Identity.GenerateKeyPair()
	if err != nil {
		return domain.Registration{}, fmt.Errorf("generate delegated key: %w", err)
	}
	keyRef, err := m.Identity.StorePublicKey(ctx, delegated.Public)
	if err != nil {
		return domain.Registration{}, fmt.Errorf("store delegated public key: %w", err)
	}
	marketplace, err := m.loadIdentity(ctx)
	if err != nil {
		return domain.Registration{}, fmt.Errorf("load marketplace identity: %w", err)
	}
	signature, err := m.Identity.SignHash(keyRef, marketplace.Keys.Private, marketplace.DID())
	if err != nil {
		return domain.Registration{}, fmt.Errorf("sign delegated key: %w", err)
	}
	exported, err := m.Identity.ExportPrivateKey(delegated.Private)
	if err != nil {
		return domain.Registration{}, fmt.Errorf("export delegated key: %w", err)
	}

	now := m.now().UTC()
	vendor := domain.Vendor{
		VendorID:              vendorID,
		DelegatedPublicKeyRef: keyRef,
		DelegatedPrivateKey:   exported,
		MarketplaceSignature:  signature,
		Profile:               map[string]any{},
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := m.Directory.CreateVendor(ctx, vendor); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return domain.Registration{}, domain.NewError(domain.ErrAlreadyExists, "vendor "+vendorID+" is already registered")
		}
		return domain.Registration{}, err
	}
	return domain.Registration{
		VendorID:              vendorID,
		DelegatedPublicKeyRef: keyRef,
		MarketplaceSignature:  signature,
	}, nil
}
