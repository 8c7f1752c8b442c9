package usecase

import (
	"context"
	"fmt"

	"chlumarket/internal/domain"
)

// UpdateVendorSignature records the vendor's countersignature over its
// delegated key reference, completing the handshake.
func (m *Marketplace) UpdateVendorSignature(ctx context.Context, sig domain.Signature, doc *domain.DIDDocument) error {
	if err := m.Start(ctx); err != nil {
		return err
	}
	return normalize(m.updateVendorSignature(ctx, sig, doc))
}

func (m *Marketplace) updateVendorSignature(ctx context.Context, sig domain.Signature, doc *domain.DIDDocument) error {
	vendor, err := m.Directory.GetVendor(ctx, sig.Creator)
	if err != nil {
		return vendorLookupError(sig.Creator, err)
	}
	if err := m.verify(ctx, sig, doc, vendor.DelegatedPublicKeyRef); err != nil {
		return err
	}

	err = m.Directory.UpdateVendor(ctx, vendor.VendorID, func(v *domain.Vendor) error {
		if v.DelegatedPublicKeyRef != vendor.DelegatedPublicKeyRef {
			return domain.NewError(domain.ErrInvalidSignature, "delegated key changed during update")
		}
		stored := sig
		v.VendorSignature = &stored
		v.UpdatedAt = m.now().UTC()
		return nil
	})
	if err != nil {
		return vendorLookupError(vendor.VendorID, err)
	}
	log.Infow("vendor signature recorded", "vendor", vendor.VendorID)
	return nil
}

// verify checks that sig was made by sig.Creator over hash.
func (m *Marketplace) verify(ctx context.Context, sig domain.Signature, doc *domain.DIDDocument, hash string) error {
	if sig.SignatureValue == "" {
		return domain.NewError(domain.ErrInvalidSignature, "signature value is required")
	}
	ok, err := m.Identity.VerifyHash(ctx, sig.Creator, doc, hash, sig)
	if err != nil {
		return fmt.Errorf("verify signature: %w", err)
	}
	if !ok {
		return domain.NewError(domain.ErrInvalidSignature, "signature is not valid")
	}
	return nil
}
