package domain

import "time"

type Vendor struct {
	VendorID              string
	DelegatedPublicKeyRef string
	DelegatedPrivateKey   string `json:"-"`
	MarketplaceSignature  Signature
	VendorSignature       *Signature
	Profile               map[string]any
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// PublicVendor is the read model returned to callers. It has no field for
// delegated key material.
type PublicVendor struct {
	VendorID              string         `json:"vendorId"`
	DelegatedPublicKeyRef string         `json:"delegatedPublicKeyRef"`
	MarketplaceSignature  Signature      `json:"marketplaceSignature"`
	VendorSignature       *Signature     `json:"vendorSignature"`
	Profile               map[string]any `json:"profile"`
}

func (v Vendor) Public() PublicVendor {
	profile := v.Profile
	if profile == nil {
		profile = map[string]any{}
	}
	return PublicVendor{
		VendorID:              v.VendorID,
		DelegatedPublicKeyRef: v.DelegatedPublicKeyRef,
		MarketplaceSignature:  v.MarketplaceSignature,
		VendorSignature:       v.VendorSignature,
		Profile:               profile,
	}
}

type Registration struct {
	VendorID              string    `json:"vendorId"`
	DelegatedPublicKeyRef string    `json:"delegatedPublicKeyRef"`
	MarketplaceSignature  Signature `json:"marketplaceSignature"`
}

type SearchResult struct {
	Count int64          `json:"count"`
	Rows  []PublicVendor `json:"rows"`
}

type WellKnown struct {
	Identity string `json:"identity"`
	NodeID   string `json:"nodeId"`
	Network  string `json:"network"`
}
