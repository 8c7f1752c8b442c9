package cas

import (
	"bytes"
	"context"
	"sync"

	"chlumarket/internal/infra/crypto"

	"github.com/google/uuid"
)

type Memory struct {
	mu     sync.RWMutex
	blobs  map[string][]byte
	pins   map[string]struct{}
	nodeID string
}

func NewMemory() *Memory {
	return &Memory{
		blobs:  make(map[string][]byte),
		pins:   make(map[string]struct{}),
		nodeID: uuid.NewString(),
	}
}

func (m *Memory) Put(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id, err := crypto.AddressBytes(data)
	if err != nil {
		return "", err
	}
	key := id.String()

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.blobs[key]; ok {
		if !bytes.Equal(existing, data) {
			return "", ErrImmutable
		}
		return key, nil
	}
	m.blobs[key] = append([]byte(nil), data...)
	return key, nil
}

func (m *Memory) Get(ctx context.Context, address string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[address]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (m *Memory) Has(_ context.Context, address string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blobs[address]
	return ok
}

func (m *Memory) Pin(_ context.Context, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[address]; !ok {
		return ErrNotFound
	}
	m.pins[address] = struct{}{}
	return nil
}

func (m *Memory) Pinned(_ context.Context, address string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.pins[address]
	return ok
}

func (m *Memory) NodeID() string {
	return m.nodeID
}
