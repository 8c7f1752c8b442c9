package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"chlumarket/internal/domain"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/sync/singleflight"
)

var log = logging.Logger("marketplace/usecase")

// Marketplace is the vendor trust core. Every operation starts the
// lifecycle first so callers never need an explicit bootstrap step.
type Marketplace struct {
	Directory Directory
	Identity  IdentityProvider
	Policy    PoPRPolicy
	Lifecycle *Lifecycle
	Clock     Clock
	PublicURL string

	identityLoad singleflight.Group
	identityMu   sync.RWMutex
	identity     *domain.MarketplaceIdentity

	issueMu    sync.Mutex
	lastIssued int64
}

func NewMarketplace(directory Directory, identity IdentityProvider, policy PoPRPolicy, publicURL string) *Marketplace {
	return &Marketplace{
		Directory: directory,
		Identity:  identity,
		Policy:    policy,
		Lifecycle: NewLifecycle(directory, identity),
		PublicURL: publicURL,
	}
}

func (m *Marketplace) Start(ctx context.Context) error {
	if m == nil || m.Directory == nil || m.Identity == nil {
		return domain.Upstream(errors.New("marketplace is not configured"))
	}
	if m.Lifecycle == nil {
		return domain.Upstream(errors.New("marketplace lifecycle is not configured"))
	}
	return normalize(m.Lifecycle.Start(ctx))
}

func (m *Marketplace) Stop(ctx context.Context) error {
	if m == nil || m.Lifecycle == nil {
		return nil
	}
	return normalize(m.Lifecycle.Stop(ctx))
}

func (m *Marketplace) now() time.Time {
	if m.Clock != nil {
		return m.Clock()
	}
	return time.Now()
}

// issuedAt returns a PoPR creation time in unix milliseconds, strictly
// greater than every value it returned before.
func (m *Marketplace) issuedAt() int64 {
	ts := m.now().UnixMilli()
	m.issueMu.Lock()
	defer m.issueMu.Unlock()
	if ts <= m.lastIssued {
		ts = m.lastIssued + 1
	}
	m.lastIssued = ts
	return ts
}

// MarketplaceIdentity returns the marketplace key, loading or creating it on
// first use. Concurrent first calls share a single load.
func (m *Marketplace) MarketplaceIdentity(ctx context.Context) (domain.MarketplaceIdentity, error) {
	if err := m.Start(ctx); err != nil {
		return domain.MarketplaceIdentity{}, err
	}
	id, err := m.loadIdentity(ctx)
	return id, normalize(err)
}

func (m *Marketplace) loadIdentity(ctx context.Context) (domain.MarketplaceIdentity, error) {
	m.identityMu.RLock()
	cached := m.identity
	m.identityMu.RUnlock()
	if cached != nil {
		return *cached, nil
	}

	v, err, _ := m.identityLoad.Do("identity", func() (any, error) {
		m.identityMu.RLock()
		cached := m.identity
		m.identityMu.RUnlock()
		if cached != nil {
			return *cached, nil
		}
		id, err := m.Identity.LoadOrCreateIdentity(ctx)
		if err != nil {
			return nil, err
		}
		m.identityMu.Lock()
		m.identity = &id
		m.identityMu.Unlock()
		log.Infow("marketplace identity loaded", "did", id.DID(), "source", id.Source)
		return id, nil
	})
	if err != nil {
		return domain.MarketplaceIdentity{}, err
	}
	return v.(domain.MarketplaceIdentity), nil
}

func (m *Marketplace) GetVendorIDs(ctx context.Context) ([]string, error) {
	if err := m.Start(ctx); err != nil {
		return nil, err
	}
	ids, err := m.Directory.GetVendorIDs(ctx)
	if err != nil {
		return nil, normalize(err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func (m *Marketplace) GetVendor(ctx context.Context, vendorID string) (domain.PublicVendor, error) {
	if err := m.Start(ctx); err != nil {
		return domain.PublicVendor{}, err
	}
	v, err := m.Directory.GetVendor(ctx, vendorID)
	if err != nil {
		return domain.PublicVendor{}, normalize(vendorLookupError(vendorID, err))
	}
	return v.Public(), nil
}

func (m *Marketplace) Search(ctx context.Context, query map[string]any, limit, offset int) (domain.SearchResult, error) {
	if err := m.Start(ctx); err != nil {
		return domain.SearchResult{}, err
	}
	if limit < 0 {
		limit = 0
	}
	if offset < 0 {
		offset = 0
	}
	count, vendors, err := m.Directory.Search(ctx, query, limit, offset)
	if err != nil {
		return domain.SearchResult{}, normalize(err)
	}
	rows := make([]domain.PublicVendor, 0, len(vendors))
	for _, v := range vendors {
		rows = append(rows, v.Public())
	}
	return domain.SearchResult{Count: count, Rows: rows}, nil
}

func (m *Marketplace) WellKnown(ctx context.Context) (domain.WellKnown, error) {
	id, err := m.MarketplaceIdentity(ctx)
	if err != nil {
		return domain.WellKnown{}, err
	}
	return domain.WellKnown{
		Identity: id.DID(),
		NodeID:   m.Identity.NodeID(),
		Network:  m.Identity.Network(),
	}, nil
}

func vendorLookupError(vendorID string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewError(domain.ErrNotFound, "vendor "+vendorID+" is not registered")
	}
	return err
}

func normalize(err error) error {
	if err == nil {
		return nil
	}
	return domain.Normalize(err)
}
