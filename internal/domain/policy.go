package domain

type PoPRPolicyInput struct {
	VendorID       string  `json:"vendor_id"`
	VendorSigned   bool    `json:"vendor_signed"`
	Amount         float64 `json:"amount"`
	CurrencySymbol string  `json:"currency_symbol"`
	CreatedAt      int64   `json:"created_at"`
	ExpiresAt      int64   `json:"expires_at"`
}

type PolicyDeny struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type PolicyResult struct {
	Allow bool         `json:"allow"`
	Deny  []PolicyDeny `json:"deny,omitempty"`
}

const DenyVendorSignatureMissing = "VENDOR_SIGNATURE_MISSING"
