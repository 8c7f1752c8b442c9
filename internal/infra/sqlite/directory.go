// Package sqlite is the embedded vendor directory, backed by a single
// SQLite file through the pure Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"chlumarket/internal/domain"

	logging "github.com/ipfs/go-log/v2"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var log = logging.Logger("marketplace/sqlite")

const busyTimeoutMs = 5000

const schema = `
CREATE TABLE IF NOT EXISTS vendors (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	vendor_id TEXT NOT NULL UNIQUE,
	delegated_public_key_ref TEXT NOT NULL UNIQUE,
	delegated_private_key TEXT NOT NULL,
	marketplace_signature TEXT NOT NULL,
	vendor_signature TEXT,
	profile TEXT NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
)`

const vendorColumns = `vendor_id, delegated_public_key_ref, delegated_private_key,
	marketplace_signature, vendor_signature, profile, created_at, updated_at`

var errClosed = errors.New("sqlite directory is not started")

type Directory struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

// New returns a directory stored at path. Use ":memory:" for a throwaway
// database. Nothing is opened until Start.
func New(path string) *Directory {
	return &Directory{path: path}
}

func (d *Directory) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db != nil {
		return nil
	}
	dsn := ":memory:"
	if d.path != ":memory:" && d.path != "" {
		if err := os.MkdirAll(filepath.Dir(d.path), 0o755); err != nil {
			return fmt.Errorf("create db directory: %w", err)
		}
		dsn = "file:" + filepath.Clean(d.path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeoutMs)); err != nil {
		db.Close()
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return fmt.Errorf("ensure schema: %w", err)
	}
	d.db = db
	log.Infow("sqlite directory opened", "path", dsn)
	return nil
}

func (d *Directory) Stop(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}

func (d *Directory) conn() (*sql.DB, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.db == nil {
		return nil, errClosed
	}
	return d.db, nil
}

func (d *Directory) GetVendorIDs(ctx context.Context) ([]string, error) {
	db, err := d.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT vendor_id FROM vendors ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (d *Directory) GetVendor(ctx context.Context, vendorID string) (domain.Vendor, error) {
	db, err := d.conn()
	if err != nil {
		return domain.Vendor{}, err
	}
	return getVendor(ctx, db, vendorID)
}

func getVendor(ctx context.Context, q queryer, vendorID string) (domain.Vendor, error) {
	row := q.QueryRowContext(ctx, `SELECT `+vendorColumns+` FROM vendors WHERE vendor_id = ?`, vendorID)
	v, err := scanVendor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Vendor{}, domain.ErrNotFound
	}
	return v, err
}

func (d *Directory) CreateVendor(ctx context.Context, vendor domain.Vendor) error {
	db, err := d.conn()
	if err != nil {
		return err
	}
	r, err := toRow(vendor)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `INSERT INTO vendors (`+vendorColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.vendorID, r.keyRef, r.privateKey, r.marketplaceSig, r.vendorSig, r.profile, r.createdAt, r.updatedAt)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

func (d *Directory) UpdateVendor(ctx context.Context, vendorID string, fn func(*domain.Vendor) error) error {
	db, err := d.conn()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	current, err := getVendor(ctx, tx, vendorID)
	if err != nil {
		return err
	}
	next := current
	if err := fn(&next); err != nil {
		return err
	}
	r, err := toRow(next)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `UPDATE vendors SET vendor_signature = ?, profile = ?, updated_at = ? WHERE vendor_id = ?`,
		r.vendorSig, r.profile, r.updatedAt, vendorID)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (d *Directory) Search(ctx context.Context, query map[string]any, limit, offset int) (int64, []domain.Vendor, error) {
	db, err := d.conn()
	if err != nil {
		return 0, nil, err
	}
	where, args := buildFilter(domain.ParseSearchQuery(query))

	var count int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vendors`+where, args...).Scan(&count); err != nil {
		return 0, nil, err
	}
	if limit <= 0 {
		limit = -1
	}
	pageArgs := append(append([]any{}, args...), limit, offset)
	rows, err := db.QueryContext(ctx, `SELECT `+vendorColumns+` FROM vendors`+where+` ORDER BY seq LIMIT ? OFFSET ?`, pageArgs...)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()
	out := []domain.Vendor{}
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return 0, nil, err
		}
		out = append(out, v)
	}
	return count, out, rows.Err()
}

func buildFilter(filters []domain.FieldFilter) (string, []any) {
	if len(filters) == 0 {
		return "", nil
	}
	clauses := make([]string, 0, len(filters))
	var args []any
	for _, f := range filters {
		path := "$." + f.Field
		if f.Number != nil {
			clauses = append(clauses, `(json_type(profile, ?) IN ('integer', 'real') AND json_extract(profile, ?) = ?)`)
			args = append(args, path, path, *f.Number)
			continue
		}
		clauses = append(clauses, `(json_type(profile, ?) IN ('text', 'integer', 'real') AND CAST(json_extract(profile, ?) AS TEXT) LIKE ? ESCAPE '\')`)
		args = append(args, path, path, "%"+domain.EscapeLike(*f.Text)+"%")
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type vendorRow struct {
	vendorID       string
	keyRef         string
	privateKey     string
	marketplaceSig string
	vendorSig      sql.NullString
	profile        string
	createdAt      int64
	updatedAt      int64
}

func toRow(v domain.Vendor) (vendorRow, error) {
	msig, err := json.Marshal(v.MarketplaceSignature)
	if err != nil {
		return vendorRow{}, err
	}
	var vsig sql.NullString
	if v.VendorSignature != nil {
		b, err := json.Marshal(v.VendorSignature)
		if err != nil {
			return vendorRow{}, err
		}
		vsig = sql.NullString{String: string(b), Valid: true}
	}
	profile := v.Profile
	if profile == nil {
		profile = map[string]any{}
	}
	p, err := json.Marshal(profile)
	if err != nil {
		return vendorRow{}, err
	}
	return vendorRow{
		vendorID:       v.VendorID,
		keyRef:         v.DelegatedPublicKeyRef,
		privateKey:     v.DelegatedPrivateKey,
		marketplaceSig: string(msig),
		vendorSig:      vsig,
		profile:        string(p),
		createdAt:      v.CreatedAt.UnixMilli(),
		updatedAt:      v.UpdatedAt.UnixMilli(),
	}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVendor(s scanner) (domain.Vendor, error) {
	var r vendorRow
	if err := s.Scan(&r.vendorID, &r.keyRef, &r.privateKey, &r.marketplaceSig, &r.vendorSig, &r.profile, &r.createdAt, &r.updatedAt); err != nil {
		return domain.Vendor{}, err
	}
	v := domain.Vendor{
		VendorID:              r.vendorID,
		DelegatedPublicKeyRef: r.keyRef,
		DelegatedPrivateKey:   r.privateKey,
		Profile:               map[string]any{},
		CreatedAt:             time.UnixMilli(r.createdAt).UTC(),
		UpdatedAt:             time.UnixMilli(r.updatedAt).UTC(),
	}
	if err := json.Unmarshal([]byte(r.marketplaceSig), &v.MarketplaceSignature); err != nil {
		return domain.Vendor{}, fmt.Errorf("decode marketplace signature: %w", err)
	}
	if r.vendorSig.Valid {
		var sig domain.Signature
		if err := json.Unmarshal([]byte(r.vendorSig.String), &sig); err != nil {
			return domain.Vendor{}, fmt.Errorf("decode vendor signature: %w", err)
		}
		v.VendorSignature = &sig
	}
	if err := json.Unmarshal([]byte(r.profile), &v.Profile); err != nil {
		return domain.Vendor{}, fmt.Errorf("decode profile: %w", err)
	}
	return v, nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
