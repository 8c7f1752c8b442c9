// Package vendormem is an in-process vendor directory. Records are kept in
// registration order and deep copied on every read and write.
package vendormem

import (
	"context"
	"encoding/json"
	"sync"

	"chlumarket/internal/domain"
)

type Directory struct {
	mu      sync.Mutex
	order   []string
	vendors map[string]domain.Vendor
}

func New() *Directory {
	return &Directory{vendors: make(map[string]domain.Vendor)}
}

func (d *Directory) Start(context.Context) error { return nil }

func (d *Directory) Stop(context.Context) error { return nil }

func (d *Directory) GetVendorIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string{}, d.order...), nil
}

func (d *Directory) GetVendor(ctx context.Context, vendorID string) (domain.Vendor, error) {
	if err := ctx.Err(); err != nil {
		return domain.Vendor{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.vendors[vendorID]
	if !ok {
		return domain.Vendor{}, domain.ErrNotFound
	}
	return clone(v), nil
}

func (d *Directory) CreateVendor(ctx context.Context, vendor domain.Vendor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.vendors[vendor.VendorID]; ok {
		return domain.ErrAlreadyExists
	}
	for _, existing := range d.vendors {
		if existing.DelegatedPublicKeyRef == vendor.DelegatedPublicKeyRef {
			return domain.ErrAlreadyExists
		}
	}
	d.vendors[vendor.VendorID] = clone(vendor)
	d.order = append(d.order, vendor.VendorID)
	return nil
}

func (d *Directory) UpdateVendor(ctx context.Context, vendorID string, fn func(*domain.Vendor) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	current, ok := d.vendors[vendorID]
	if !ok {
		return domain.ErrNotFound
	}
	next := clone(current)
	if err := fn(&next); err != nil {
		return err
	}
	next.VendorID = current.VendorID
	next.DelegatedPublicKeyRef = current.DelegatedPublicKeyRef
	next.DelegatedPrivateKey = current.DelegatedPrivateKey
	next.MarketplaceSignature = current.MarketplaceSignature
	d.vendors[vendorID] = clone(next)
	return nil
}

func (d *Directory) Search(ctx context.Context, query map[string]any, limit, offset int) (int64, []domain.Vendor, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	filters := domain.ParseSearchQuery(query)

	d.mu.Lock()
	defer d.mu.Unlock()
	var matched []domain.Vendor
	for _, id := range d.order {
		v := d.vendors[id]
		if matchesAll(v.Profile, filters) {
			matched = append(matched, v)
		}
	}
	count := int64(len(matched))
	if offset >= len(matched) {
		return count, []domain.Vendor{}, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	out := make([]domain.Vendor, 0, len(matched))
	for _, v := range matched {
		out = append(out, clone(v))
	}
	return count, out, nil
}

func matchesAll(profile map[string]any, filters []domain.FieldFilter) bool {
	for _, f := range filters {
		if !f.Matches(profile) {
			return false
		}
	}
	return true
}

func clone(v domain.Vendor) domain.Vendor {
	if v.VendorSignature != nil {
		sig := *v.VendorSignature
		v.VendorSignature = &sig
	}
	v.Profile = cloneProfile(v.Profile)
	return v
}

func cloneProfile(p map[string]any) map[string]any {
	if p == nil {
		return map[string]any{}
	}
	b, err := json.Marshal(p)
	if err != nil {
		return p
	}
	out := map[string]any{}
	if err := json.Unmarshal(b, &out); err != nil {
		return p
	}
	return out
}
