// Package store provides the SQLite-backed product catalog.
//
// The schema mirrors the upstream supplier's catalog shape: products
// with a brand, N categories, N features, a 1:1 price row with three
// tiers, and per-branch stock. The assistant's search tool only sees
// products that are visible and in stock at the reference branch;
// inventory sync writes the whole thing.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a lookup matches no record. Callers at
// the tool boundary translate it into a user-facing error payload
// instead of propagating it.
var ErrNotFound = errors.New("store: not found")

// Store is a SQLite-backed product catalog.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the catalog database at path using the cgo
// SQLite driver, with WAL mode and a busy timeout for concurrent
// readers during sync.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s, err := New(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing database handle and ensures the schema exists.
// Tests use this with the pure-Go driver against :memory:.
func New(db *sql.DB, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{db: db, logger: logger.With("component", "store")}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS brands (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		logo_url TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS categories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		level INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS branches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		supplier_id TEXT NOT NULL UNIQUE,
		model TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		warranty TEXT NOT NULL DEFAULT '',
		main_image TEXT NOT NULL DEFAULT '',
		brand_id INTEGER REFERENCES brands(id) ON DELETE SET NULL,
		visible BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_sync TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_products_supplier ON products(supplier_id);
	CREATE INDEX IF NOT EXISTS idx_products_model ON products(model);

	CREATE TABLE IF NOT EXISTS product_categories (
		product_id INTEGER NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		category_id INTEGER NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
		PRIMARY KEY (product_id, category_id)
	);

	CREATE TABLE IF NOT EXISTS features (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		product_id INTEGER NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		text TEXT NOT NULL,
		position INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_features_product ON features(product_id, position);

	CREATE TABLE IF NOT EXISTS prices (
		product_id INTEGER PRIMARY KEY REFERENCES products(id) ON DELETE CASCADE,
		normal REAL,
		special REAL,
		discount REAL,
		list_price REAL,
		margin REAL NOT NULL DEFAULT 20.0
	);

	CREATE TABLE IF NOT EXISTS branch_stock (
		product_id INTEGER NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		branch_id INTEGER NOT NULL REFERENCES branches(id) ON DELETE CASCADE,
		quantity INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (product_id, branch_id)
	);
	CREATE INDEX IF NOT EXISTS idx_branch_stock_branch ON branch_stock(branch_id);

	CREATE TABLE IF NOT EXISTS exchange_rates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		rate REAL NOT NULL,
		updated_by TEXT NOT NULL DEFAULT '',
		update_type TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.Exec(schema)
	return err
}
