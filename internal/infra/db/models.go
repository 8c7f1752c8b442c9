package db

import "time"

type VendorModel struct {
	Seq                   int64     `gorm:"primaryKey;autoIncrement"`
	VendorID              string    `gorm:"uniqueIndex;not null"`
	DelegatedPublicKeyRef string    `gorm:"uniqueIndex;not null"`
	DelegatedPrivateKey   string    `gorm:"not null"`
	MarketplaceSignature  []byte    `gorm:"type:jsonb;not null"`
	VendorSignature       []byte    `gorm:"type:jsonb"`
	Profile               []byte    `gorm:"type:jsonb;not null"`
	CreatedAt             time.Time `gorm:"not null"`
	UpdatedAt             time.Time `gorm:"not null"`
}

func (VendorModel) TableName() string {
	return "vendors"
}
