package usecase_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chlumarket/internal/domain"
	"chlumarket/internal/infra/cas"
	"chlumarket/internal/infra/crypto"
	"chlumarket/internal/infra/did"
	"chlumarket/internal/infra/identity"
	"chlumarket/internal/infra/policyopa"
	"chlumarket/internal/infra/vendormem"
	"chlumarket/internal/usecase"

	"github.com/stretchr/testify/require"
)

type harness struct {
	mkt      *usecase.Marketplace
	dir      *vendormem.Directory
	provider *identity.Provider
	registry *did.MemoryRegistry
	store    *cas.Memory
}

func newHarness(t *testing.T, policy usecase.PoPRPolicy) *harness {
	t.Helper()
	store := cas.NewMemory()
	registry := did.NewMemoryRegistry()
	provider, err := identity.NewProvider(identity.Config{
		Network:        "test",
		ResolveTimeout: 200 * time.Millisecond,
	}, store, registry)
	require.NoError(t, err)

	dir := vendormem.New()
	mkt := usecase.NewMarketplace(dir, provider, policy, "https://market.example")
	var tick atomic.Int64
	tick.Store(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli())
	mkt.Clock = func() time.Time { return time.UnixMilli(tick.Add(1)) }
	t.Cleanup(func() { _ = mkt.Stop(context.Background()) })

	return &harness{mkt: mkt, dir: dir, provider: provider, registry: registry, store: store}
}

type vendorKey struct {
	doc  domain.DIDDocument
	priv ed25519.PrivateKey
}

func newVendorKey(t *testing.T) vendorKey {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return vendorKey{doc: did.NewDocument(pub), priv: priv}
}

func (v vendorKey) id() string { return v.doc.ID }

func (v vendorKey) sign(t *testing.T, address string) domain.Signature {
	t.Helper()
	sig, err := crypto.SignAddress(address, v.priv, v.id(), time.Now())
	require.NoError(t, err)
	return sig
}

func (v vendorKey) signObject(t *testing.T, obj any) domain.Signature {
	t.Helper()
	address, _, err := crypto.AddressOf(obj)
	require.NoError(t, err)
	return v.sign(t, address)
}

// handshake registers the vendor and records its countersignature.
func (h *harness) handshake(t *testing.T, v vendorKey) domain.Registration {
	t.Helper()
	ctx := context.Background()
	reg, err := h.mkt.RegisterVendor(ctx, v.id())
	require.NoError(t, err)
	require.NoError(t, h.mkt.UpdateVendorSignature(ctx, v.sign(t, reg.DelegatedPublicKeyRef), &v.doc))
	return reg
}

func individualProfile() map[string]any {
	return map[string]any{
		"type":          "individual",
		"vendorAddress": "1BoatSLRHtKNngkdXEeobR76b53LETtpyT",
		"email":         "first@example.com",
		"username":      "user",
		"firstname":     "First",
		"lastname":      "Last",
	}
}

func requireKind(t *testing.T, err error, kind error) *domain.Error {
	t.Helper()
	require.ErrorIs(t, err, kind)
	var derr *domain.Error
	require.True(t, errors.As(err, &derr))
	return derr
}

func TestRegisterVendorThenGet(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	v := newVendorKey(t)

	reg, err := h.mkt.RegisterVendor(ctx, v.id())
	require.NoError(t, err)
	require.Equal(t, v.id(), reg.VendorID)
	require.NotEmpty(t, reg.DelegatedPublicKeyRef)

	market, err := h.mkt.MarketplaceIdentity(ctx)
	require.NoError(t, err)
	require.Equal(t, market.DID(), reg.MarketplaceSignature.Creator)
	require.Equal(t, domain.SignatureType, reg.MarketplaceSignature.Type)
	ok, err := h.provider.VerifyHash(ctx, market.DID(), nil, reg.DelegatedPublicKeyRef, reg.MarketplaceSignature)
	require.NoError(t, err)
	require.True(t, ok)

	vendor, err := h.mkt.GetVendor(ctx, v.id())
	require.NoError(t, err)
	require.Nil(t, vendor.VendorSignature)
	require.Equal(t, reg.DelegatedPublicKeyRef, vendor.DelegatedPublicKeyRef)
	require.Empty(t, vendor.Profile)

	stored, err := h.dir.GetVendor(ctx, v.id())
	require.NoError(t, err)
	require.NotEmpty(t, stored.DelegatedPrivateKey)
	body, err := json.Marshal(vendor)
	require.NoError(t, err)
	require.NotContains(t, string(body), stored.DelegatedPrivateKey)

	pub, err := h.store.Get(ctx, reg.DelegatedPublicKeyRef)
	require.NoError(t, err)
	require.Len(t, pub, ed25519.PublicKeySize)
	require.True(t, h.store.Pinned(ctx, reg.DelegatedPublicKeyRef))

	ids, err := h.mkt.GetVendorIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{v.id()}, ids)
	require.Equal(t, usecase.StateStarted, h.mkt.Lifecycle.State())
}

func TestRegisterVendorRejectsInvalidIdentity(t *testing.T) {
	h := newHarness(t, nil)
	for _, id := range []string{"", "bob", "did:chlu:", "did:web:example.com"} {
		_, err := h.mkt.RegisterVendor(context.Background(), id)
		derr := requireKind(t, err, domain.ErrInvalidIdentity)
		require.Equal(t, 400, derr.Status())
	}
	ids, err := h.mkt.GetVendorIDs(context.Background())
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestRegisterVendorTwiceLeavesRecordUnchanged(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	v := newVendorKey(t)

	first, err := h.mkt.RegisterVendor(ctx, v.id())
	require.NoError(t, err)
	_, err = h.mkt.RegisterVendor(ctx, v.id())
	derr := requireKind(t, err, domain.ErrAlreadyExists)
	require.Equal(t, 409, derr.Status())

	vendor, err := h.mkt.GetVendor(ctx, v.id())
	require.NoError(t, err)
	require.Equal(t, first.DelegatedPublicKeyRef, vendor.DelegatedPublicKeyRef)
	require.Equal(t, first.MarketplaceSignature, vendor.MarketplaceSignature)
}

func TestRegisterVendorConcurrentDuplicates(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	v := newVendorKey(t)

	const n = 8
	regs := make([]domain.Registration, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			regs[i], errs[i] = h.mkt.RegisterVendor(ctx, v.id())
		}(i)
	}
	wg.Wait()

	var winner *domain.Registration
	duplicates := 0
	for i := range errs {
		if errs[i] == nil {
			require.Nil(t, winner, "more than one registration succeeded")
			winner = &regs[i]
			continue
		}
		requireKind(t, errs[i], domain.ErrAlreadyExists)
		duplicates++
	}
	require.NotNil(t, winner)
	require.Equal(t, n-1, duplicates)

	vendor, err := h.mkt.GetVendor(ctx, v.id())
	require.NoError(t, err)
	require.Equal(t, winner.DelegatedPublicKeyRef, vendor.DelegatedPublicKeyRef)
	ids, err := h.mkt.GetVendorIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{v.id()}, ids)
}

func TestGetVendorUnknown(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.mkt.GetVendor(context.Background(), newVendorKey(t).id())
	requireKind(t, err, domain.ErrNotFound)
}

func TestUpdateVendorSignature(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	v := newVendorKey(t)
	reg, err := h.mkt.RegisterVendor(ctx, v.id())
	require.NoError(t, err)

	sig := v.sign(t, reg.DelegatedPublicKeyRef)
	require.NoError(t, h.mkt.UpdateVendorSignature(ctx, sig, &v.doc))

	vendor, err := h.mkt.GetVendor(ctx, v.id())
	require.NoError(t, err)
	require.NotNil(t, vendor.VendorSignature)
	require.Equal(t, sig, *vendor.VendorSignature)
}

func TestUpdateVendorSignatureRejectsBadSignatures(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	v := newVendorKey(t)
	other := newVendorKey(t)
	reg, err := h.mkt.RegisterVendor(ctx, v.id())
	require.NoError(t, err)

	cases := []struct {
		name string
		sig  domain.Signature
		doc  *domain.DIDDocument
	}{
		{name: "wrong payload", sig: v.sign(t, "bafkreigh2akiscaildcqabsyg3dfr6chu3fgpregiymsck7e7aqa4s52zy"), doc: &v.doc},
		{name: "empty value", sig: domain.Signature{Creator: v.id()}, doc: &v.doc},
		{name: "garbage value", sig: domain.Signature{Creator: v.id(), SignatureValue: "not-a-signature"}, doc: &v.doc},
		{
			name: "foreign key",
			sig: func() domain.Signature {
				s := other.sign(t, reg.DelegatedPublicKeyRef)
				s.Creator = v.id()
				return s
			}(),
			doc: &v.doc,
		},
		{
			name: "forged document",
			sig: func() domain.Signature {
				s := other.sign(t, reg.DelegatedPublicKeyRef)
				s.Creator = v.id()
				return s
			}(),
			doc: &domain.DIDDocument{ID: v.id(), PublicKey: other.doc.PublicKey},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := h.mkt.UpdateVendorSignature(ctx, tc.sig, tc.doc)
			require.Error(t, err)
			var derr *domain.Error
			require.True(t, errors.As(err, &derr))
			require.Equal(t, 400, derr.Status())

			vendor, err := h.mkt.GetVendor(ctx, v.id())
			require.NoError(t, err)
			require.Nil(t, vendor.VendorSignature)
		})
	}
}

func TestUpdateVendorSignatureUnknownCreator(t *testing.T) {
	h := newHarness(t, nil)
	v := newVendorKey(t)
	err := h.mkt.UpdateVendorSignature(context.Background(), v.sign(t, "bafkreigh2akiscaildcqabsyg3dfr6chu3fgpregiymsck7e7aqa4s52zy"), &v.doc)
	requireKind(t, err, domain.ErrNotFound)
}

func TestUpdateVendorSignatureResolvesPublishedIdentity(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	v := newVendorKey(t)
	reg, err := h.mkt.RegisterVendor(ctx, v.id())
	require.NoError(t, err)

	// Published after the request arrives: resolution keeps polling.
	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = h.registry.Publish(context.Background(), v.doc)
	}()
	require.NoError(t, h.mkt.UpdateVendorSignature(ctx, v.sign(t, reg.DelegatedPublicKeyRef), nil))
}

func TestUpdateVendorSignatureUnpublishedIdentityFails(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	v := newVendorKey(t)
	reg, err := h.mkt.RegisterVendor(ctx, v.id())
	require.NoError(t, err)

	err = h.mkt.UpdateVendorSignature(ctx, v.sign(t, reg.DelegatedPublicKeyRef), nil)
	requireKind(t, err, domain.ErrInvalidSignature)

	vendor, err := h.mkt.GetVendor(ctx, v.id())
	require.NoError(t, err)
	require.Nil(t, vendor.VendorSignature)
}

func TestSetProfile(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	v := newVendorKey(t)
	h.handshake(t, v)

	profile := individualProfile()
	require.NoError(t, h.mkt.SetProfile(ctx, profile, v.signObject(t, profile), &v.doc))

	vendor, err := h.mkt.GetVendor(ctx, v.id())
	require.NoError(t, err)
	require.Equal(t, "First Last (user)", vendor.Profile["name"])
	require.Equal(t, "first@example.com", vendor.Profile["email"])
}

func TestSetProfileIgnoresSuppliedName(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	v := newVendorKey(t)
	h.handshake(t, v)

	profile := map[string]any{
		"type":          "business",
		"vendorAddress": "addr",
		"email":         "shop@example.com",
		"businessname":  "Acme",
		"name":          "Something Else",
	}
	require.NoError(t, h.mkt.SetProfile(ctx, profile, v.signObject(t, profile), &v.doc))

	vendor, err := h.mkt.GetVendor(ctx, v.id())
	require.NoError(t, err)
	require.Equal(t, "Acme", vendor.Profile["name"])
}

func TestSetProfileValidation(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	v := newVendorKey(t)
	h.handshake(t, v)

	profile := individualProfile()
	delete(profile, "email")
	err := h.mkt.SetProfile(ctx, profile, v.signObject(t, profile), &v.doc)
	derr := requireKind(t, err, domain.ErrValidationFailed)
	require.Contains(t, derr.Data, "email")

	profile = individualProfile()
	profile["email"] = "not-an-email"
	err = h.mkt.SetProfile(ctx, profile, v.signObject(t, profile), &v.doc)
	derr = requireKind(t, err, domain.ErrValidationFailed)
	require.Contains(t, derr.Data, "email")

	vendor, err := h.mkt.GetVendor(ctx, v.id())
	require.NoError(t, err)
	require.Empty(t, vendor.Profile)
}

func TestSetProfileRejectsSignatureOverOtherPayload(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	v := newVendorKey(t)
	h.handshake(t, v)

	profile := individualProfile()
	signed := v.signObject(t, profile)
	profile["firstname"] = "Mallory"
	err := h.mkt.SetProfile(ctx, profile, signed, &v.doc)
	requireKind(t, err, domain.ErrInvalidSignature)

	vendor, err := h.mkt.GetVendor(ctx, v.id())
	require.NoError(t, err)
	require.Empty(t, vendor.Profile)
}

func TestPatchProfilePreservesOtherFields(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	v := newVendorKey(t)
	h.handshake(t, v)

	profile := individualProfile()
	require.NoError(t, h.mkt.SetProfile(ctx, profile, v.signObject(t, profile), &v.doc))

	patch := map[string]any{"lastname": "Other"}
	require.NoError(t, h.mkt.PatchProfile(ctx, patch, v.signObject(t, patch), &v.doc))

	vendor, err := h.mkt.GetVendor(ctx, v.id())
	require.NoError(t, err)
	require.Equal(t, "Other", vendor.Profile["lastname"])
	require.Equal(t, "first@example.com", vendor.Profile["email"])
	require.Equal(t, "First Other (user)", vendor.Profile["name"])

	bad := map[string]any{"email": "broken"}
	err = h.mkt.PatchProfile(ctx, bad, v.signObject(t, bad), &v.doc)
	requireKind(t, err, domain.ErrValidationFailed)

	vendor, err = h.mkt.GetVendor(ctx, v.id())
	require.NoError(t, err)
	require.Equal(t, "first@example.com", vendor.Profile["email"])
}

func TestCreatePoPR(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	v := newVendorKey(t)
	reg := h.handshake(t, v)

	amount := 12.5
	issued, err := h.mkt.CreatePoPR(ctx, v.id(), domain.PoPROptions{
		Amount:         &amount,
		CurrencySymbol: "BTC",
		InvoiceID:      "inv-1",
	})
	require.NoError(t, err)

	popr := issued.PoPR
	require.Equal(t, "/ipfs/"+reg.DelegatedPublicKeyRef, popr.KeyLocation)
	require.Equal(t, 12.5, popr.Amount)
	require.Equal(t, "inv-1", popr.InvoiceID)
	require.Equal(t, domain.PoPRPlaceholder, popr.ItemID)
	require.Equal(t, "https://market.example", popr.MarketplaceURL)
	require.Equal(t, "https://market.example/vendors/"+v.id(), popr.MarketplaceVendorURL)
	require.Equal(t, v.id(), popr.Vendor.ID)
	require.NotNil(t, popr.Vendor.Signature)
	require.NotNil(t, popr.Marketplace.Signature)
	require.Equal(t, reg.MarketplaceSignature, *popr.Marketplace.Signature)
	require.NotNil(t, popr.Signature)
	require.Equal(t, popr.KeyLocation, popr.Signature.Creator)

	hash, _, err := crypto.AddressOf(popr.Unsigned())
	require.NoError(t, err)
	ok, err := h.provider.VerifyDelegated(ctx, reg.DelegatedPublicKeyRef, hash, *popr.Signature)
	require.NoError(t, err)
	require.True(t, ok)

	raw, err := h.store.Get(ctx, issued.ContentAddress)
	require.NoError(t, err)
	require.NoError(t, crypto.VerifyAddress(issued.ContentAddress, raw))
	require.True(t, h.store.Pinned(ctx, issued.ContentAddress))
}

func TestCreatePoPRTwiceYieldsDistinctAddresses(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	v := newVendorKey(t)
	h.handshake(t, v)

	first, err := h.mkt.CreatePoPR(ctx, v.id(), domain.PoPROptions{})
	require.NoError(t, err)
	second, err := h.mkt.CreatePoPR(ctx, v.id(), domain.PoPROptions{})
	require.NoError(t, err)
	require.NotEqual(t, first.ContentAddress, second.ContentAddress)
	require.Less(t, first.PoPR.CreatedAt, second.PoPR.CreatedAt)

	shape := func(p domain.PoPR) domain.PoPR {
		p.CreatedAt = 0
		p.Signature = nil
		return p
	}
	require.Equal(t, shape(first.PoPR), shape(second.PoPR))
}

func TestCreatePoPRBackToBackOnWallClock(t *testing.T) {
	h := newHarness(t, nil)
	h.mkt.Clock = nil
	ctx := context.Background()
	v := newVendorKey(t)
	h.handshake(t, v)

	seen := map[string]bool{}
	var last int64
	for i := 0; i < 100; i++ {
		issued, err := h.mkt.CreatePoPR(ctx, v.id(), domain.PoPROptions{})
		require.NoError(t, err)
		require.False(t, seen[issued.ContentAddress], "address reused at issue %d", i)
		seen[issued.ContentAddress] = true
		require.Greater(t, issued.PoPR.CreatedAt, last)
		last = issued.PoPR.CreatedAt
	}
}

func TestCreatePoPRConcurrentOnFrozenClock(t *testing.T) {
	h := newHarness(t, nil)
	frozen := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	h.mkt.Clock = func() time.Time { return frozen }
	ctx := context.Background()
	v := newVendorKey(t)
	h.handshake(t, v)

	const n = 16
	addresses := make([]string, n)
	createdAt := make([]int64, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			issued, err := h.mkt.CreatePoPR(ctx, v.id(), domain.PoPROptions{})
			addresses[i], createdAt[i], errs[i] = issued.ContentAddress, issued.PoPR.CreatedAt, err
		}(i)
	}
	wg.Wait()

	seenAddr := map[string]bool{}
	seenTime := map[int64]bool{}
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.False(t, seenAddr[addresses[i]])
		require.False(t, seenTime[createdAt[i]])
		require.GreaterOrEqual(t, createdAt[i], frozen.UnixMilli())
		seenAddr[addresses[i]] = true
		seenTime[createdAt[i]] = true
	}
}

func TestCreatePoPRRejectsMismatchedDelegatedKey(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	v := newVendorKey(t)
	h.handshake(t, v)

	stray, err := h.provider.GenerateKeyPair()
	require.NoError(t, err)
	exported, err := h.provider.ExportPrivateKey(stray.Private)
	require.NoError(t, err)
	require.NoError(t, h.dir.UpdateVendor(ctx, v.id(), func(cur *domain.Vendor) error {
		cur.DelegatedPrivateKey = exported
		return nil
	}))

	_, err = h.mkt.CreatePoPR(ctx, v.id(), domain.PoPROptions{})
	derr := requireKind(t, err, domain.ErrUpstreamFailure)
	require.Equal(t, 500, derr.Status())
}

func TestCreatePoPRRequiresCountersignature(t *testing.T) {
	for _, tc := range []struct {
		name   string
		policy func(t *testing.T) usecase.PoPRPolicy
	}{
		{name: "fallback", policy: func(*testing.T) usecase.PoPRPolicy { return nil }},
		{name: "opa", policy: func(t *testing.T) usecase.PoPRPolicy {
			engine, err := policyopa.NewEngineFromPath(context.Background(), "")
			require.NoError(t, err)
			return engine
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, tc.policy(t))
			ctx := context.Background()
			v := newVendorKey(t)
			_, err := h.mkt.RegisterVendor(ctx, v.id())
			require.NoError(t, err)

			_, err = h.mkt.CreatePoPR(ctx, v.id(), domain.PoPROptions{})
			requireKind(t, err, domain.ErrNotFound)

			_, err = h.mkt.CreatePoPR(ctx, newVendorKey(t).id(), domain.PoPROptions{})
			requireKind(t, err, domain.ErrNotFound)
		})
	}
}

func TestCreatePoPRPolicyDenial(t *testing.T) {
	engine, err := policyopa.NewEngineFromPath(context.Background(), "")
	require.NoError(t, err)
	h := newHarness(t, engine)
	ctx := context.Background()
	v := newVendorKey(t)
	h.handshake(t, v)

	amount := -1.0
	_, err = h.mkt.CreatePoPR(ctx, v.id(), domain.PoPROptions{Amount: &amount})
	derr := requireKind(t, err, domain.ErrValidationFailed)
	require.Contains(t, derr.Data, "AMOUNT_NEGATIVE")

	amount = 1
	issued, err := h.mkt.CreatePoPR(ctx, v.id(), domain.PoPROptions{Amount: &amount})
	require.NoError(t, err)
	require.NotEmpty(t, issued.ContentAddress)
}

func TestSearch(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		v := newVendorKey(t)
		h.handshake(t, v)
		profile := map[string]any{
			"type":          "business",
			"vendorAddress": fmt.Sprintf("addr-%d", i),
			"email":         fmt.Sprintf("shop%d@example.com", i),
			"businessname":  fmt.Sprintf("Shop %d", i),
		}
		require.NoError(t, h.mkt.SetProfile(ctx, profile, v.signObject(t, profile), &v.doc))
	}

	all, err := h.mkt.Search(ctx, map[string]any{"type": "business"}, 2, 0)
	require.NoError(t, err)
	require.Equal(t, int64(5), all.Count)
	require.Len(t, all.Rows, 2)

	tail, err := h.mkt.Search(ctx, map[string]any{"type": "business"}, 2, 4)
	require.NoError(t, err)
	require.Equal(t, int64(5), tail.Count)
	require.Len(t, tail.Rows, 1)

	one, err := h.mkt.Search(ctx, map[string]any{"businessname": "shop 3"}, 10, 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), one.Count)
	require.Equal(t, "Shop 3", one.Rows[0].Profile["businessname"])

	none, err := h.mkt.Search(ctx, map[string]any{"businessname": "nothing"}, 10, 0)
	require.NoError(t, err)
	require.Zero(t, none.Count)
	require.NotNil(t, none.Rows)
	require.Empty(t, none.Rows)

	clamped, err := h.mkt.Search(ctx, map[string]any{}, -3, -1)
	require.NoError(t, err)
	require.Equal(t, int64(5), clamped.Count)
}

type countingProvider struct {
	usecase.IdentityProvider
	loads atomic.Int32
}

func (p *countingProvider) LoadOrCreateIdentity(ctx context.Context) (domain.MarketplaceIdentity, error) {
	p.loads.Add(1)
	time.Sleep(20 * time.Millisecond)
	return p.IdentityProvider.LoadOrCreateIdentity(ctx)
}

func TestMarketplaceIdentityLoadsOnce(t *testing.T) {
	h := newHarness(t, nil)
	counting := &countingProvider{IdentityProvider: h.provider}
	mkt := usecase.NewMarketplace(h.dir, counting, nil, "")
	t.Cleanup(func() { _ = mkt.Stop(context.Background()) })

	var wg sync.WaitGroup
	dids := make([]string, 16)
	errs := make([]error, len(dids))
	for i := range dids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := mkt.MarketplaceIdentity(context.Background())
			dids[i], errs[i] = id.DID(), err
		}(i)
	}
	wg.Wait()

	require.Equal(t, int32(1), counting.loads.Load())
	for i, id := range dids {
		require.NoError(t, errs[i])
		require.Equal(t, dids[0], id)
	}

	wk, err := mkt.WellKnown(context.Background())
	require.NoError(t, err)
	require.Equal(t, dids[0], wk.Identity)
	require.Equal(t, "test", wk.Network)
	require.NotEmpty(t, wk.NodeID)
	require.Equal(t, int32(1), counting.loads.Load())
}

func TestOperationsRestartAfterStop(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	require.Equal(t, usecase.StateStopped, h.mkt.Lifecycle.State())

	_, err := h.mkt.GetVendorIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, usecase.StateStarted, h.mkt.Lifecycle.State())

	require.NoError(t, h.mkt.Stop(ctx))
	require.Equal(t, usecase.StateStopped, h.mkt.Lifecycle.State())

	_, err = h.mkt.RegisterVendor(ctx, newVendorKey(t).id())
	require.NoError(t, err)
	require.Equal(t, usecase.StateStarted, h.mkt.Lifecycle.State())
}
