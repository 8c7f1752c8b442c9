package usecase

import (
	"context"

	"chlumarket/internal/domain"
)

// SetProfile replaces the vendor's profile with a validated payload signed
// by the vendor.
func (m *Marketplace) SetProfile(ctx context.Context, profile map[string]any, sig domain.Signature, doc *domain.DIDDocument) error {
	if err := m.Start(ctx); err != nil {
		return err
	}
	return normalize(m.writeProfile(ctx, profile, sig, doc, false))
}

// PatchProfile merges a signed partial payload over the stored profile. The
// merged result must still validate.
func (m *Marketplace) PatchProfile(ctx context.Context, patch map[string]any, sig domain.Signature, doc *domain.DIDDocument) error {
	if err := m.Start(ctx); err != nil {
		return err
	}
	return normalize(m.writeProfile(ctx, patch, sig, doc, true))
}

func (m *Marketplace) writeProfile(ctx context.Context, payload map[string]any, sig domain.Signature, doc *domain.DIDDocument, merge bool) error {
	if payload == nil {
		payload = map[string]any{}
	}
	vendor, err := m.Directory.GetVendor(ctx, sig.Creator)
	if err != nil {
		return vendorLookupError(sig.Creator, err)
	}
	// Fail fast on invalid input before paying for signature resolution.
	if _, err := buildProfile(vendor.Profile, payload, merge); err != nil {
		return err
	}

	hash, err := m.Identity.ContentAddress(payload)
	if err != nil {
		return err
	}
	if err := m.verify(ctx, sig, doc, hash); err != nil {
		return err
	}

	err = m.Directory.UpdateVendor(ctx, vendor.VendorID, func(v *domain.Vendor) error {
		next, err := buildProfile(v.Profile, payload, merge)
		if err != nil {
			return err
		}
		v.Profile = next
		v.UpdatedAt = m.now().UTC()
		return nil
	})
	if err != nil {
		return vendorLookupError(vendor.VendorID, err)
	}
	log.Infow("vendor profile updated", "vendor", vendor.VendorID, "patch", merge)
	return nil
}

func buildProfile(current, payload map[string]any, merge bool) (map[string]any, error) {
	var base map[string]any
	if merge {
		base = current
	}
	raw := domain.MergeProfile(base, payload)
	// name is always derived
	delete(raw, "name")
	parsed, err := domain.ParseProfile(raw)
	if err != nil {
		return nil, err
	}
	return domain.WithDisplayName(raw, parsed), nil
}
