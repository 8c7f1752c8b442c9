package usecase

import (
	"context"
	"fmt"
	"strings"

	"chlumarket/internal/domain"
)

// CreatePoPR issues a payment request for vendorID signed with the vendor's
// delegated key and stores it at a content address.
func (m *Marketplace) CreatePoPR(ctx context.Context, vendorID string, opts domain.PoPROptions) (domain.IssuedPoPR, error) {
	if err := m.Start(ctx); err != nil {
		return domain.IssuedPoPR{}, err
	}
	issued, err := m.createPoPR(ctx, vendorID, opts)
	if err != nil {
		return domain.IssuedPoPR{}, normalize(err)
	}
	log.Infow("popr issued", "vendor", vendorID, "address", issued.ContentAddress)
	return issued, nil
}

func (m *Marketplace) createPoPR(ctx context.Context, vendorID string, opts domain.PoPROptions) (domain.IssuedPoPR, error) {
	vendor, err := m.Directory.GetVendor(ctx, vendorID)
	if err != nil {
		return domain.IssuedPoPR{}, vendorLookupError(vendorID, err)
	}

	popr := m.assemblePoPR(vendor, opts)
	if err := m.checkPolicy(ctx, vendor, popr); err != nil {
		return domain.IssuedPoPR{}, err
	}

	marketplace, err := m.loadIdentity(ctx)
	if err != nil {
		return domain.IssuedPoPR{}, fmt.Errorf("load marketplace identity: %w", err)
	}
	marketplaceSig := vendor.MarketplaceSignature
	popr.Marketplace = domain.PoPRParty{ID: marketplace.DID(), Signature: &marketplaceSig}
	popr.Vendor = domain.PoPRParty{ID: vendor.VendorID, Signature: vendor.VendorSignature}

	key, err := m.Identity.ImportPrivateKey(vendor.DelegatedPrivateKey)
	if err != nil {
		return domain.IssuedPoPR{}, fmt.Errorf("import delegated key: %w", err)
	}
	hash, err := m.Identity.ContentAddress(popr.Unsigned())
	if err != nil {
		return domain.IssuedPoPR{}, err
	}
	sig, err := m.Identity.SignHash(hash, key, popr.KeyLocation)
	if err != nil {
		return domain.IssuedPoPR{}, fmt.Errorf("sign popr: %w", err)
	}
	// The stored private key must still match the published key_location.
	ok, err := m.Identity.VerifyDelegated(ctx, vendor.DelegatedPublicKeyRef, hash, sig)
	if err != nil {
		return domain.IssuedPoPR{}, fmt.Errorf("verify popr signature: %w", err)
	}
	if !ok {
		return domain.IssuedPoPR{}, fmt.Errorf("delegated key of vendor %s does not match %s", vendor.VendorID, popr.KeyLocation)
	}
	popr.Signature = &sig

	address, err := m.Identity.StoreObject(ctx, popr)
	if err != nil {
		return domain.IssuedPoPR{}, fmt.Errorf("store popr: %w", err)
	}
	return domain.IssuedPoPR{PoPR: popr, ContentAddress: address}, nil
}

func (m *Marketplace) assemblePoPR(vendor domain.Vendor, opts domain.PoPROptions) domain.PoPR {
	baseURL := strings.TrimRight(m.PublicURL, "/")
	vendorURL := domain.PoPRPlaceholder
	if baseURL != "" {
		vendorURL = baseURL + "/vendors/" + vendor.VendorID
	}
	popr := domain.PoPR{
		ItemID:               orPlaceholder(opts.ItemID),
		InvoiceID:            orPlaceholder(opts.InvoiceID),
		CustomerID:           orPlaceholder(opts.CustomerID),
		CreatedAt:            m.issuedAt(),
		CurrencySymbol:       orPlaceholder(opts.CurrencySymbol),
		MarketplaceURL:       orPlaceholder(firstNonEmpty(opts.MarketplaceURL, baseURL)),
		MarketplaceVendorURL: firstNonEmpty(opts.MarketplaceVendorURL, vendorURL),
		KeyLocation:          "/ipfs/" + vendor.DelegatedPublicKeyRef,
		ChluVersion:          domain.ChluVersion,
		Attributes:           opts.Attributes,
	}
	if opts.CreatedAt != nil {
		popr.CreatedAt = *opts.CreatedAt
	}
	if opts.ExpiresAt != nil {
		popr.ExpiresAt = *opts.ExpiresAt
	}
	if opts.Amount != nil {
		popr.Amount = *opts.Amount
	}
	if popr.Attributes == nil {
		popr.Attributes = []any{}
	}
	return popr
}

func (m *Marketplace) checkPolicy(ctx context.Context, vendor domain.Vendor, popr domain.PoPR) error {
	input := domain.PoPRPolicyInput{
		VendorID:       vendor.VendorID,
		VendorSigned:   vendor.VendorSignature != nil,
		Amount:         popr.Amount,
		CurrencySymbol: popr.CurrencySymbol,
		CreatedAt:      popr.CreatedAt,
		ExpiresAt:      popr.ExpiresAt,
	}
	var result domain.PolicyResult
	if m.Policy == nil {
		result = RequireVendorSignature(input)
	} else {
		var err error
		result, err = m.Policy.Evaluate(ctx, input)
		if err != nil {
			return fmt.Errorf("evaluate popr policy: %w", err)
		}
	}
	if result.Allow {
		return nil
	}
	data := make(map[string]string, len(result.Deny))
	for _, deny := range result.Deny {
		if deny.Code == domain.DenyVendorSignatureMissing {
			return domain.NewError(domain.ErrNotFound, "vendor "+vendor.VendorID+" has not countersigned its delegated key")
		}
		data[deny.Code] = deny.Message
	}
	return &domain.Error{Kind: domain.ErrValidationFailed, Message: "popr request denied by policy", Data: data}
}

// RequireVendorSignature is the fallback policy when no engine is
// configured: a vendor must complete the handshake before issuing PoPRs.
func RequireVendorSignature(input domain.PoPRPolicyInput) domain.PolicyResult {
	if input.VendorSigned {
		return domain.PolicyResult{Allow: true}
	}
	return domain.PolicyResult{Deny: []domain.PolicyDeny{{
		Code:    domain.DenyVendorSignatureMissing,
		Message: "vendor signature is missing",
	}}}
}

func orPlaceholder(s string) string {
	if s == "" {
		return domain.PoPRPlaceholder
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
