package vendorkit

import (
	"chlumarket/internal/domain"
)

// Signature is a detached signature over a content address.
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

type DIDDocument struct {
	ID        string      `json:"id"`
	PublicKey []PublicKey `json:"publicKey"`
}

type WellKnown struct {
	Identity string `json:"identity"`
	NodeID   string `json:"nodeId"`
	Network  string `json:"network"`
}

// Registration is what the marketplace returns when a vendor registers: the
// delegated key reference and the marketplace's signature over it.
type Registration struct {
	VendorID              string    `json:"vendorId"`
	DelegatedPublicKeyRef string    `json:"delegatedPublicKeyRef"`
	MarketplaceSignature  Signature `json:"marketplaceSignature"`
}

type Vendor struct {
	VendorID              string         `json:"vendorId"`
	DelegatedPublicKeyRef string         `json:"delegatedPublicKeyRef"`
	MarketplaceSignature  Signature      `json:"marketplaceSignature"`
	VendorSignature       *Signature     `json:"vendorSignature"`
	Profile               map[string]any `json:"profile"`
}

// PoPROptions are the optional fields of a payment request. Nil pointers and
// empty strings let the marketplace pick defaults.
type PoPROptions struct {
	ItemID               string   `json:"item_id,omitempty"`
	InvoiceID            string   `json:"invoice_id,omitempty"`
	CustomerID           string   `json:"customer_id,omitempty"`
	CreatedAt            *int64   `json:"created_at,omitempty"`
	ExpiresAt            *int64   `json:"expires_at,omitempty"`
	CurrencySymbol       string   `json:"currency_symbol,omitempty"`
	Amount               *float64 `json:"amount,omitempty"`
	MarketplaceURL       string   `json:"marketplace_url,omitempty"`
	MarketplaceVendorURL string   `json:"marketplace_vendor_url,omitempty"`
	Attributes           []any    `json:"attributes,omitempty"`
}

type PoPRParty struct {
	ID        string     `json:"id"`
	Signature *Signature `json:"signature"`
}

type PoPR struct {
	ItemID               string     `json:"item_id"`
	InvoiceID            string     `json:"invoice_id"`
	CustomerID           string     `json:"customer_id"`
	CreatedAt            int64      `json:"created_at"`
	ExpiresAt            int64      `json:"expires_at"`
	CurrencySymbol       string     `json:"currency_symbol"`
	Amount               float64    `json:"amount"`
	MarketplaceURL       string     `json:"marketplace_url"`
	MarketplaceVendorURL string     `json:"marketplace_vendor_url"`
	KeyLocation          string     `json:"key_location"`
	Marketplace          PoPRParty  `json:"marketplace"`
	Vendor               PoPRParty  `json:"vendor"`
	ChluVersion          int        `json:"chlu_version"`
	Attributes           []any      `json:"attributes"`
	Signature            *Signature `json:"signature,omitempty"`
}

type IssuedPoPR struct {
	PoPR           PoPR   `json:"popr"`
	ContentAddress string `json:"contentAddress"`
}

func signatureFrom(s domain.Signature) Signature {
	return Signature{Type: s.Type, Created: s.Created, Creator: s.Creator, SignatureValue: s.SignatureValue}
}

func documentFrom(d domain.DIDDocument) DIDDocument {
	doc := DIDDocument{ID: d.ID, PublicKey: make([]PublicKey, len(d.PublicKey))}
	for i, k := range d.PublicKey {
		doc.PublicKey[i] = PublicKey(k)
	}
	return doc
}
