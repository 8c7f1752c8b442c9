package did

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"chlumarket/internal/domain"

	"github.com/redis/go-redis/v9"
)

var ErrNotPublished = errors.New("did: document not published")

// Registry is the network view of published DID documents.
type Registry interface {
	Publish(ctx context.Context, doc domain.DIDDocument) error
	Lookup(ctx context.Context, id string) (domain.DIDDocument, error)
}

type MemoryRegistry struct {
	mu   sync.RWMutex
	docs map[string]domain.DIDDocument
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{docs: make(map[string]domain.DIDDocument)}
}

func (r *MemoryRegistry) Publish(_ context.Context, doc domain.DIDDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.ID] = doc
	return nil
}

func (r *MemoryRegistry) Lookup(ctx context.Context, id string) (domain.DIDDocument, error) {
	if err := ctx.Err(); err != nil {
		return domain.DIDDocument{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[id]
	if !ok {
		return domain.DIDDocument{}, ErrNotPublished
	}
	return doc, nil
}

const redisKeyPrefix = "chlu:did:"

// RedisRegistry stores documents in a Redis pool it does not own; the
// caller closes the client.
type RedisRegistry struct {
	client redis.UniversalClient
}

func NewRedisRegistry(client redis.UniversalClient) (*RedisRegistry, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	return &RedisRegistry{client: client}, nil
}

func (r *RedisRegistry) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRegistry) Publish(ctx context.Context, doc domain.DIDDocument) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisKeyPrefix+doc.ID, payload, 0).Err()
}

func (r *RedisRegistry) Lookup(ctx context.Context, id string) (domain.DIDDocument, error) {
	payload, err := r.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.DIDDocument{}, ErrNotPublished
		}
		return domain.DIDDocument{}, err
	}
	var doc domain.DIDDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return domain.DIDDocument{}, fmt.Errorf("decode did document: %w", err)
	}
	return doc, nil
}
