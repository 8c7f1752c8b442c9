package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chlumarket/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VendorDirectory keeps vendor records in postgres with the profile in a
// jsonb column so searches run in the database.
type VendorDirectory struct {
	db *gorm.DB
}

func NewVendorDirectory(db *gorm.DB) *VendorDirectory {
	return &VendorDirectory{db: db}
}

func (r *VendorDirectory) Start(ctx context.Context) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if err := r.db.WithContext(ctx).AutoMigrate(&VendorModel{}); err != nil {
		return fmt.Errorf("migrate vendors: %w", err)
	}
	return nil
}

func (r *VendorDirectory) Stop(context.Context) error {
	return nil
}

func (r *VendorDirectory) GetVendorIDs(ctx context.Context) ([]string, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	ids := []string{}
	err := r.db.WithContext(ctx).
		Model(&VendorModel{}).
		Order("seq ASC").
		Pluck("vendor_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *VendorDirectory) GetVendor(ctx context.Context, vendorID string) (domain.Vendor, error) {
	if r.db == nil {
		return domain.Vendor{}, errDBUnavailable
	}
	var model VendorModel
	err := r.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		First(&model).Error
	if err != nil {
		return domain.Vendor{}, translateError(err)
	}
	return vendorFromModel(model)
}

func (r *VendorDirectory) CreateVendor(ctx context.Context, vendor domain.Vendor) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model, err := vendorToModel(vendor)
	if err != nil {
		return err
	}
	return translateError(r.db.WithContext(ctx).Create(&model).Error)
}

func (r *VendorDirectory) UpdateVendor(ctx context.Context, vendorID string, fn func(*domain.Vendor) error) error {
	if r.db == nil {
		return errDBUnavailable
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model VendorModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("vendor_id = ?", vendorID).
			First(&model).Error
		if err != nil {
			return translateError(err)
		}
		current, err := vendorFromModel(model)
		if err != nil {
			return err
		}
		if err := fn(&current); err != nil {
			return err
		}
		next, err := vendorToModel(current)
		if err != nil {
			return err
		}
		return tx.Model(&VendorModel{}).
			Where("vendor_id = ?", vendorID).
			Updates(map[string]any{
				"vendor_signature": next.VendorSignature,
				"profile":          next.Profile,
				"updated_at":       next.UpdatedAt,
			}).Error
	})
}

func (r *VendorDirectory) Search(ctx context.Context, query map[string]any, limit, offset int) (int64, []domain.Vendor, error) {
	if r.db == nil {
		return 0, nil, errDBUnavailable
	}
	scope := func(db *gorm.DB) *gorm.DB {
		for _, f := range domain.ParseSearchQuery(query) {
			if f.Number != nil {
				db = db.Where("jsonb_typeof(profile -> ?) = 'number' AND (profile ->> ?)::numeric = ?", f.Field, f.Field, *f.Number)
				continue
			}
			db = db.Where(`jsonb_typeof(profile -> ?) IN ('string', 'number') AND (profile ->> ?) ILIKE ? ESCAPE '\'`,
				f.Field, f.Field, "%"+domain.EscapeLike(*f.Text)+"%")
		}
		return db
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&VendorModel{}).Scopes(scope).Count(&count).Error; err != nil {
		return 0, nil, err
	}
	q := r.db.WithContext(ctx).Scopes(scope).Order("seq ASC").Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	var models []VendorModel
	if err := q.Find(&models).Error; err != nil {
		return 0, nil, err
	}
	out := make([]domain.Vendor, 0, len(models))
	for _, m := range models {
		v, err := vendorFromModel(m)
		if err != nil {
			return 0, nil, err
		}
		out = append(out, v)
	}
	return count, out, nil
}

func vendorToModel(v domain.Vendor) (VendorModel, error) {
	msig, err := json.Marshal(v.MarketplaceSignature)
	if err != nil {
		return VendorModel{}, err
	}
	var vsig []byte
	if v.VendorSignature != nil {
		if vsig, err = json.Marshal(v.VendorSignature); err != nil {
			return VendorModel{}, err
		}
	}
	profile := v.Profile
	if profile == nil {
		profile = map[string]any{}
	}
	p, err := json.Marshal(profile)
	if err != nil {
		return VendorModel{}, err
	}
	createdAt := v.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	updatedAt := v.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}
	return VendorModel{
		VendorID:              v.VendorID,
		DelegatedPublicKeyRef: v.DelegatedPublicKeyRef,
		DelegatedPrivateKey:   v.DelegatedPrivateKey,
		MarketplaceSignature:  msig,
		VendorSignature:       vsig,
		Profile:               p,
		CreatedAt:             createdAt,
		UpdatedAt:             updatedAt,
	}, nil
}

func vendorFromModel(m VendorModel) (domain.Vendor, error) {
	v := domain.Vendor{
		VendorID:              m.VendorID,
		DelegatedPublicKeyRef: m.DelegatedPublicKeyRef,
		DelegatedPrivateKey:   m.DelegatedPrivateKey,
		Profile:               map[string]any{},
		CreatedAt:             m.CreatedAt,
		UpdatedAt:             m.UpdatedAt,
	}
	if err := json.Unmarshal(m.MarketplaceSignature, &v.MarketplaceSignature); err != nil {
		return domain.Vendor{}, fmt.Errorf("decode marketplace signature: %w", err)
	}
	if len(m.VendorSignature) > 0 && string(m.VendorSignature) != "null" {
		var sig domain.Signature
		if err := json.Unmarshal(m.VendorSignature, &sig); err != nil {
			return domain.Vendor{}, fmt.Errorf("decode vendor signature: %w", err)
		}
		v.VendorSignature = &sig
	}
	if len(m.Profile) > 0 {
		if err := json.Unmarshal(m.Profile, &v.Profile); err != nil {
			return domain.Vendor{}, fmt.Errorf("decode profile: %w", err)
		}
	}
	return v, nil
}
