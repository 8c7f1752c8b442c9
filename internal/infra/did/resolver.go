package did

import (
	"context"
	"errors"
	"time"

	"chlumarket/internal/domain"

	"github.com/cenkalti/backoff/v4"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("marketplace/did")

// Resolver looks DIDs up in a registry. With wait set it keeps polling until
// the document replicates or Timeout elapses.
type Resolver struct {
	Registry Registry
	Timeout  time.Duration
	// InitialInterval is the first polling delay; zero uses 50ms.
	InitialInterval time.Duration
}

func (r *Resolver) Resolve(ctx context.Context, id string, wait bool) (domain.DIDDocument, error) {
	if r == nil || r.Registry == nil {
		return domain.DIDDocument{}, errors.New("did resolver is not configured")
	}
	if !wait || r.Timeout <= 0 {
		return r.Registry.Lookup(ctx, id)
	}

	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.InitialInterval
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = 50 * time.Millisecond
	}
	policy.MaxInterval = time.Second
	policy.MaxElapsedTime = r.Timeout

	var doc domain.DIDDocument
	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		found, err := r.Registry.Lookup(ctx, id)
		if err == nil {
			doc = found
			return nil
		}
		if errors.Is(err, ErrNotPublished) {
			return err
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		log.Debugw("did resolution gave up", "did", id, "attempts", attempts, "err", err)
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.DIDDocument{}, ErrNotPublished
		}
		return domain.DIDDocument{}, err
	}
	return doc, nil
}
