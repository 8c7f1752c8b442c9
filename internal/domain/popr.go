package domain

const (
	PoPRPlaceholder = "unspecified"
	ChluVersion     = 0
)

// PoPROptions carries the caller's transaction payload. Nil pointers and
// empty strings fall back to defaults.
type PoPROptions struct {
	ItemID               string   `json:"item_id"`
	InvoiceID            string   `json:"invoice_id"`
	CustomerID           string   `json:"customer_id"`
	CreatedAt            *int64   `json:"created_at"`
	ExpiresAt            *int64   `json:"expires_at"`
	CurrencySymbol       string   `json:"currency_symbol"`
	Amount               *float64 `json:"amount"`
	MarketplaceURL       string   `json:"marketplace_url"`
	MarketplaceVendorURL string   `json:"marketplace_vendor_url"`
	Attributes           []any    `json:"attributes"`
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

// Unsigned returns a copy without the signature, which is the form that
// gets content addressed and signed.
func (p PoPR) Unsigned() PoPR {
	p.Signature = nil
	return p
}

type IssuedPoPR struct {
	PoPR           PoPR   `json:"popr"`
	ContentAddress string `json:"contentAddress"`
}
