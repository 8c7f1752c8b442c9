package vendorkit

import (
	"context"
	"fmt"
)

// Setup runs the vendor half of the handshake: register the vendor DID,
// check the marketplace's signature over the delegated key, then countersign
// the key reference.
func Setup(ctx context.Context, client *Client, id *Identity) (Registration, error) {
	wk, err := client.WellKnown(ctx)
	if err != nil {
		return Registration{}, fmt.Errorf("fetch marketplace identity: %w", err)
	}
	reg, err := client.Register(ctx, id.DID())
	if err != nil {
		return Registration{}, fmt.Errorf("register vendor: %w", err)
	}
	if err := VerifyMarketplaceSignature(reg, wk.Identity); err != nil {
		return Registration{}, err
	}
	sig, err := id.SignAddress(reg.DelegatedPublicKeyRef)
	if err != nil {
		return Registration{}, fmt.Errorf("sign delegated key: %w", err)
	}
	doc := id.Document
	if err := client.SubmitSignature(ctx, sig, &doc); err != nil {
		return Registration{}, fmt.Errorf("submit signature: %w", err)
	}
	return reg, nil
}

// PublishProfile signs and uploads a full profile for id.
func PublishProfile(ctx context.Context, client *Client, id *Identity, profile map[string]any) error {
	sig, err := id.SignObject(profile)
	if err != nil {
		return err
	}
	doc := id.Document
	return client.SetProfile(ctx, profile, sig, &doc)
}
