package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ProductRecord is the supplier-shaped input for one product, as
// consumed by inventory sync. Everything is replaced on import; the
// catalog is a mirror of the supplier, not a merge target.
type ProductRecord struct {
	SupplierID  string
	Model       string
	Title       string
	Description string
	Warranty    string
	MainImage   string
	Brand       string
	Categories  []string
	Features    []string
	Price       *Price
	Stock       map[string]int // branch slug → quantity
}

// ImportProduct upserts one supplier product and all its related rows
// in a single transaction, so a failed import never leaves a partial
// product behind. Returns the internal product id.
func (s *Store) ImportProduct(ctx context.Context, rec ProductRecord) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	var brandID sql.NullInt64
	if rec.Brand != "" {
		id, err := upsertName(ctx, tx,
			`INSERT INTO brands (name) VALUES (?) ON CONFLICT(name) DO UPDATE SET name = excluded.name`,
			`SELECT id FROM brands WHERE name = ?`, rec.Brand)
		if err != nil {
			return 0, fmt.Errorf("upsert brand: %w", err)
		}
		brandID = sql.NullInt64{Int64: id, Valid: true}
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO products (supplier_id, model, title, description, warranty, main_image, brand_id, last_sync)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(supplier_id) DO UPDATE SET
			model = excluded.model,
			title = excluded.title,
			description = excluded.description,
			warranty = excluded.warranty,
			main_image = excluded.main_image,
			brand_id = excluded.brand_id,
			last_sync = excluded.last_sync`,
		rec.SupplierID, rec.Model, rec.Title, rec.Description,
		rec.Warranty, rec.MainImage, brandID, now,
	); err != nil {
		return 0, fmt.Errorf("upsert product: %w", err)
	}

	var productID int64
	if err := tx.QueryRowContext(ctx,
		`SELECT id FROM products WHERE supplier_id = ?`, rec.SupplierID,
	).Scan(&productID); err != nil {
		return 0, fmt.Errorf("resolve product id: %w", err)
	}

	if rec.Price != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO prices (product_id, normal, special, discount, list_price, margin)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(product_id) DO UPDATE SET
				normal = excluded.normal,
				special = excluded.special,
				discount = excluded.discount,
				list_price = excluded.list_price,
				margin = excluded.margin`,
			productID, rec.Price.Normal, rec.Price.Special,
			rec.Price.Discount, rec.Price.List, rec.Price.Margin,
		); err != nil {
			return 0, fmt.Errorf("upsert price: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM product_categories WHERE product_id = ?`, productID); err != nil {
		return 0, fmt.Errorf("clear categories: %w", err)
	}
	for _, name := range rec.Categories {
		catID, err := upsertName(ctx, tx,
			`INSERT INTO categories (name) VALUES (?) ON CONFLICT(name) DO UPDATE SET name = excluded.name`,
			`SELECT id FROM categories WHERE name = ?`, name)
		if err != nil {
			return 0, fmt.Errorf("upsert category: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO product_categories (product_id, category_id) VALUES (?, ?)`,
			productID, catID); err != nil {
			return 0, fmt.Errorf("link category: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM features WHERE product_id = ?`, productID); err != nil {
		return 0, fmt.Errorf("clear features: %w", err)
	}
	for i, text := range rec.Features {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO features (product_id, text, position) VALUES (?, ?, ?)`,
			productID, text, i); err != nil {
			return 0, fmt.Errorf("insert feature: %w", err)
		}
	}

	for slug, qty := range rec.Stock {
		branchID, err := upsertBranch(ctx, tx, slug)
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO branch_stock (product_id, branch_id, quantity, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(product_id, branch_id) DO UPDATE SET
				quantity = excluded.quantity,
				updated_at = excluded.updated_at`,
			productID, branchID, qty, now,
		); err != nil {
			return 0, fmt.Errorf("upsert stock: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	return productID, nil
}

// DeleteProduct removes a product and its related rows. Used when the
// supplier drops an item from the feed.
func (s *Store) DeleteProduct(ctx context.Context, supplierID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM products WHERE supplier_id = ?`, supplierID)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// upsertName inserts a named row if missing and returns its id.
func upsertName(ctx context.Context, tx *sql.Tx, insert, lookup, name string) (int64, error) {
	if _, err := tx.ExecContext(ctx, insert, name); err != nil {
		return 0, err
	}
	var id int64
	if err := tx.QueryRowContext(ctx, lookup, name).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// upsertBranch inserts a branch by slug if missing (name defaults to
// the slug; operators rename branches in the dashboard).
func upsertBranch(ctx context.Context, tx *sql.Tx, slug string) (int64, error) {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO branches (name, slug) VALUES (?, ?) ON CONFLICT(slug) DO NOTHING`,
		slug, slug); err != nil {
		return 0, fmt.Errorf("upsert branch: %w", err)
	}
	var id int64
	if err := tx.QueryRowContext(ctx,
		`SELECT id FROM branches WHERE slug = ?`, slug).Scan(&id); err != nil {
		return 0, fmt.Errorf("resolve branch: %w", err)
	}
	return id, nil
}
