// Package directorytest is a conformance suite run against every vendor
// directory backend.
package directorytest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"chlumarket/internal/domain"
	"chlumarket/internal/usecase"

	"github.com/stretchr/testify/require"
)

func vendor(n int, profile map[string]any) domain.Vendor {
	now := time.Unix(1700000000, 0).UTC()
	return domain.Vendor{
		VendorID:              fmt.Sprintf("did:chlu:zvendor%02d", n),
		DelegatedPublicKeyRef: fmt.Sprintf("bafkreikey%02d", n),
		DelegatedPrivateKey:   fmt.Sprintf("zsecret%02d", n),
		MarketplaceSignature: domain.Signature{
			Type:           domain.SignatureType,
			Creator:        "did:chlu:zmarket",
			SignatureValue: fmt.Sprintf("zsig%02d", n),
		},
		Profile:   profile,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Run exercises the directory contract. newDir must return an empty,
// started directory.
func Run(t *testing.T, newDir func(t *testing.T) usecase.Directory) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		d := newDir(t)
		v := vendor(1, map[string]any{})
		require.NoError(t, d.CreateVendor(ctx, v))

		got, err := d.GetVendor(ctx, v.VendorID)
		require.NoError(t, err)
		require.Equal(t, v.VendorID, got.VendorID)
		require.Equal(t, v.DelegatedPublicKeyRef, got.DelegatedPublicKeyRef)
		require.Equal(t, v.DelegatedPrivateKey, got.DelegatedPrivateKey)
		require.Equal(t, v.MarketplaceSignature, got.MarketplaceSignature)
		require.Nil(t, got.VendorSignature)
		require.Empty(t, got.Profile)

		_, err = d.GetVendor(ctx, "did:chlu:zmissing")
		require.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("duplicate id", func(t *testing.T) {
		d := newDir(t)
		v := vendor(1, nil)
		require.NoError(t, d.CreateVendor(ctx, v))
		dup := vendor(2, nil)
		dup.VendorID = v.VendorID
		require.ErrorIs(t, d.CreateVendor(ctx, dup), domain.ErrAlreadyExists)

		got, err := d.GetVendor(ctx, v.VendorID)
		require.NoError(t, err)
		require.Equal(t, v.DelegatedPublicKeyRef, got.DelegatedPublicKeyRef)
	})

	t.Run("duplicate key ref", func(t *testing.T) {
		d := newDir(t)
		require.NoError(t, d.CreateVendor(ctx, vendor(1, nil)))
		dup := vendor(2, nil)
		dup.DelegatedPublicKeyRef = vendor(1, nil).DelegatedPublicKeyRef
		require.ErrorIs(t, d.CreateVendor(ctx, dup), domain.ErrAlreadyExists)
	})

	t.Run("concurrent create of one id", func(t *testing.T) {
		d := newDir(t)
		const n = 8
		errs := make([]error, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				v := vendor(10+i, nil)
				v.VendorID = vendor(1, nil).VendorID
				errs[i] = d.CreateVendor(ctx, v)
			}(i)
		}
		wg.Wait()

		created := 0
		for _, err := range errs {
			if err == nil {
				created++
				continue
			}
			require.ErrorIs(t, err, domain.ErrAlreadyExists)
		}
		require.Equal(t, 1, created)
		ids, err := d.GetVendorIDs(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{vendor(1, nil).VendorID}, ids)
	})

	t.Run("ids in registration order", func(t *testing.T) {
		d := newDir(t)
		for _, n := range []int{3, 1, 2} {
			require.NoError(t, d.CreateVendor(ctx, vendor(n, nil)))
		}
		ids, err := d.GetVendorIDs(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{vendor(3, nil).VendorID, vendor(1, nil).VendorID, vendor(2, nil).VendorID}, ids)
	})

	t.Run("update applies and keeps immutable fields", func(t *testing.T) {
		d := newDir(t)
		v := vendor(1, nil)
		require.NoError(t, d.CreateVendor(ctx, v))
		sig := domain.Signature{Creator: v.VendorID, SignatureValue: "zvendor"}
		require.NoError(t, d.UpdateVendor(ctx, v.VendorID, func(cur *domain.Vendor) error {
			cur.VendorSignature = &sig
			cur.Profile = map[string]any{"name": "Jane"}
			cur.DelegatedPublicKeyRef = "tampered"
			return nil
		}))
		got, err := d.GetVendor(ctx, v.VendorID)
		require.NoError(t, err)
		require.Equal(t, &sig, got.VendorSignature)
		require.Equal(t, "Jane", got.Profile["name"])
		require.Equal(t, v.DelegatedPublicKeyRef, got.DelegatedPublicKeyRef)
	})

	t.Run("update aborts on error", func(t *testing.T) {
		d := newDir(t)
		v := vendor(1, map[string]any{"name": "before"})
		require.NoError(t, d.CreateVendor(ctx, v))
		boom := errors.New("boom")
		err := d.UpdateVendor(ctx, v.VendorID, func(cur *domain.Vendor) error {
			cur.Profile["name"] = "after"
			return boom
		})
		require.ErrorIs(t, err, boom)
		got, err := d.GetVendor(ctx, v.VendorID)
		require.NoError(t, err)
		require.Equal(t, "before", got.Profile["name"])

		require.ErrorIs(t, d.UpdateVendor(ctx, "did:chlu:zmissing", func(*domain.Vendor) error { return nil }), domain.ErrNotFound)
	})

	t.Run("search", func(t *testing.T) {
		d := newDir(t)
		profiles := []map[string]any{
			{"type": "individual", "name": "Jane Doe (jdoe)", "rating": 5.0},
			{"type": "individual", "name": "John Doe (jd)", "rating": 3.0},
			{"type": "business", "name": "Acme 100% Ltd", "rating": 5.0},
			{"type": "business", "name": "Doe Hardware", "rating": 4.0},
		}
		for i, p := range profiles {
			require.NoError(t, d.CreateVendor(ctx, vendor(i+1, p)))
		}

		count, rows, err := d.Search(ctx, map[string]any{"name": "doe"}, 0, 0)
		require.NoError(t, err)
		require.EqualValues(t, 3, count)
		require.Len(t, rows, 3)

		count, rows, err = d.Search(ctx, map[string]any{"name": "doe"}, 2, 0)
		require.NoError(t, err)
		require.EqualValues(t, 3, count)
		require.Len(t, rows, 2)

		count, rows, err = d.Search(ctx, map[string]any{"name": "doe"}, 2, 2)
		require.NoError(t, err)
		require.EqualValues(t, 3, count)
		require.Len(t, rows, 1)

		count, rows, err = d.Search(ctx, map[string]any{"type": "individual", "rating": 5.0}, 10, 0)
		require.NoError(t, err)
		require.EqualValues(t, 1, count)
		require.Equal(t, vendor(1, nil).VendorID, rows[0].VendorID)

		count, _, err = d.Search(ctx, map[string]any{"name": "100%"}, 0, 0)
		require.NoError(t, err)
		require.EqualValues(t, 1, count)

		count, _, err = d.Search(ctx, map[string]any{"name": "doe", "ignored": []any{1}}, 0, 0)
		require.NoError(t, err)
		require.EqualValues(t, 3, count)

		count, rows, err = d.Search(ctx, map[string]any{}, 0, 10)
		require.NoError(t, err)
		require.EqualValues(t, 4, count)
		require.Empty(t, rows)
	})
}
