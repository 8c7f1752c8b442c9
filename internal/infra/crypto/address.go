package crypto

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// AddressBytes returns the CIDv1 (raw codec, sha2-256) of data.
func AddressBytes(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("multihash: %w", err)
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// AddressOf canonicalizes v and returns the content address of the result
// together with the canonical bytes.
func AddressOf(v any) (string, []byte, error) {
	canonical, err := Canonicalize(v)
	if err != nil {
		return "", nil, err
	}
	c, err := AddressBytes(canonical)
	if err != nil {
		return "", nil, err
	}
	return c.String(), canonical, nil
}

// VerifyAddress reports whether data hashes to the given CID string.
func VerifyAddress(address string, data []byte) error {
	want, err := cid.Decode(address)
	if err != nil {
		return fmt.Errorf("decode cid: %w", err)
	}
	got, err := want.Prefix().Sum(data)
	if err != nil {
		return err
	}
	if !got.Equals(want) {
		return fmt.Errorf("content does not match %s", address)
	}
	return nil
}
