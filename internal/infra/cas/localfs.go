package cas

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"chlumarket/internal/infra/crypto"

	"github.com/google/uuid"
	"github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("marketplace/cas")

// LocalFS keeps blobs under <root>/blocks/<cid[:2]>/<cid>, written once with
// read-only permissions. Pins are empty marker files under <root>/pins.
type LocalFS struct {
	root   string
	nodeID string
}

func NewLocalFS(root string) (*LocalFS, error) {
	if root == "" {
		return nil, errors.New("cas: root directory is required")
	}
	for _, dir := range []string{filepath.Join(root, "blocks"), filepath.Join(root, "pins")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	nodeID, err := loadOrCreateNodeID(filepath.Join(root, "node_id"))
	if err != nil {
		return nil, err
	}
	log.Debugw("opened local content store", "root", root, "node", nodeID)
	return &LocalFS{root: root, nodeID: nodeID}, nil
}

func loadOrCreateNodeID(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err == nil {
		if id := strings.TrimSpace(string(b)); id != "" {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("read node id: %w", err)
	}
	id := uuid.NewString()
	if err := os.WriteFile(path, []byte(id+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("write node id: %w", err)
	}
	return id, nil
}

func (c *LocalFS) Put(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id, err := crypto.AddressBytes(data)
	if err != nil {
		return "", err
	}
	path := c.blockPath(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o444)
	if err != nil {
		if !os.IsExist(err) {
			return "", err
		}
		existing, rerr := c.read(id)
		if rerr != nil || !bytes.Equal(existing, data) {
			return "", ErrImmutable
		}
		return id.String(), nil
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return id.String(), nil
}

func (c *LocalFS) Get(ctx context.Context, address string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id, err := cid.Decode(address)
	if err != nil {
		return nil, ErrInvalidCID
	}
	return c.read(id)
}

func (c *LocalFS) read(id cid.Cid) ([]byte, error) {
	b, err := os.ReadFile(c.blockPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := crypto.VerifyAddress(id.String(), b); err != nil {
		return nil, ErrCIDMismatch
	}
	return b, nil
}

func (c *LocalFS) Has(_ context.Context, address string) bool {
	id, err := cid.Decode(address)
	if err != nil {
		return false
	}
	_, err = os.Stat(c.blockPath(id))
	return err == nil
}

func (c *LocalFS) Pin(ctx context.Context, address string) error {
	if !c.Has(ctx, address) {
		return ErrNotFound
	}
	return os.WriteFile(filepath.Join(c.root, "pins", address), nil, 0o644)
}

func (c *LocalFS) Pinned(_ context.Context, address string) bool {
	if strings.ContainsAny(address, `/\`) {
		return false
	}
	_, err := os.Stat(filepath.Join(c.root, "pins", address))
	return err == nil
}

func (c *LocalFS) NodeID() string {
	return c.nodeID
}

func (c *LocalFS) blockPath(id cid.Cid) string {
	s := id.String()
	return filepath.Join(c.root, "blocks", s[:2], s)
}
