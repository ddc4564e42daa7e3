package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// branchQtyExpr selects the stock quantity at the named branch, 0 when
// the product has no row there.
const branchQtyExpr = `COALESCE((
	SELECT bs.quantity FROM branch_stock bs
	JOIN branches br ON br.id = bs.branch_id
	WHERE bs.product_id = p.id AND br.slug = ?
), 0)`

// totalQtyExpr sums stock across all branches.
const totalQtyExpr = `COALESCE((
	SELECT SUM(bs.quantity) FROM branch_stock bs
	WHERE bs.product_id = p.id
), 0)`

// FindProducts returns up to limit visible products matching the query
// tokens that have positive stock at branchSlug, ordered by title (the
// catalog's default ordering).
//
// Matching is any-token: a product qualifies when at least one token
// appears as a case-insensitive substring of its title, model,
// description, or brand name. Products with no price row still match;
// the missing tiers surface as the "N/A" sentinel downstream.
func (s *Store) FindProducts(ctx context.Context, tokens []string, branchSlug string, limit int) ([]SearchHit, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	// Placeholder order follows the query text: branch slug in the
	// selected stock column, branch slug in the stock gate, then the
	// four-per-token match conditions, then the limit.
	var conds []string
	args := []any{branchSlug, branchSlug}
	for _, tok := range tokens {
		conds = append(conds, `(instr(lower(p.title), ?) > 0
			OR instr(lower(p.model), ?) > 0
			OR instr(lower(p.description), ?) > 0
			OR instr(lower(COALESCE(b.name, '')), ?) > 0)`)
		lt := strings.ToLower(tok)
		args = append(args, lt, lt, lt, lt)
	}

	query := fmt.Sprintf(`
		SELECT p.id, p.supplier_id, p.title, p.model, p.description,
			COALESCE(b.name, ''),
			pr.normal, pr.special, pr.discount, COALESCE(pr.margin, 20.0),
			%s,
			%s,
			COALESCE((
				SELECT c.name FROM categories c
				JOIN product_categories pc ON pc.category_id = c.id
				WHERE pc.product_id = p.id
				ORDER BY c.level, c.name LIMIT 1
			), '')
		FROM products p
		LEFT JOIN brands b ON b.id = p.brand_id
		LEFT JOIN prices pr ON pr.product_id = p.id
		WHERE p.visible = TRUE
			AND EXISTS (
				SELECT 1 FROM branch_stock bs
				JOIN branches br ON br.id = bs.branch_id
				WHERE bs.product_id = p.id AND br.slug = ? AND bs.quantity > 0
			)
			AND (%s)
		ORDER BY p.title
		LIMIT ?`,
		branchQtyExpr, totalQtyExpr, strings.Join(conds, " OR "))

	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var h SearchHit
		if err := rows.Scan(
			&h.ID, &h.SupplierID, &h.Title, &h.Model, &h.Description,
			&h.Brand,
			&h.Price.Normal, &h.Price.Special, &h.Price.Discount, &h.Price.Margin,
			&h.BranchQty, &h.TotalQty, &h.Category,
		); err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// GetProduct returns the full record for an internal product id,
// including all features, all categories, the price row, and stock at
// branchSlug. Returns ErrNotFound when the id no longer resolves (a
// product can be deleted by sync between a search and a detail view).
func (s *Store) GetProduct(ctx context.Context, id int64, branchSlug string) (*ProductDetail, error) {
	query := fmt.Sprintf(`
		SELECT p.id, p.supplier_id, p.title, p.model, p.description,
			p.warranty, p.main_image,
			COALESCE(b.name, ''),
			%s,
			%s
		FROM products p
		LEFT JOIN brands b ON b.id = p.brand_id
		WHERE p.id = ?`, branchQtyExpr, totalQtyExpr)

	var d ProductDetail
	err := s.db.QueryRowContext(ctx, query, branchSlug, id).Scan(
		&d.ID, &d.SupplierID, &d.Title, &d.Model, &d.Description,
		&d.Warranty, &d.MainImage, &d.Brand, &d.BranchQty, &d.TotalQty,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product %d: %w", id, err)
	}

	// Price row is optional; absence is not an error.
	var p Price
	err = s.db.QueryRowContext(ctx,
		`SELECT normal, special, discount, list_price, margin FROM prices WHERE product_id = ?`, id,
	).Scan(&p.Normal, &p.Special, &p.Discount, &p.List, &p.Margin)
	switch {
	case err == nil:
		d.Price = &p
	case errors.Is(err, sql.ErrNoRows):
		// no price yet
	default:
		return nil, fmt.Errorf("get price for %d: %w", id, err)
	}

	d.Categories, err = s.productStrings(ctx,
		`SELECT c.name FROM categories c
		 JOIN product_categories pc ON pc.category_id = c.id
		 WHERE pc.product_id = ? ORDER BY c.level, c.name`, id)
	if err != nil {
		return nil, err
	}

	d.Features, err = s.productStrings(ctx,
		`SELECT text FROM features WHERE product_id = ? ORDER BY position, id`, id)
	if err != nil {
		return nil, err
	}

	return &d, nil
}

// productStrings runs a single-column string query for a product.
func (s *Store) productStrings(ctx context.Context, query string, id int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("product strings: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan string: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// CountProducts returns the number of products in the catalog.
func (s *Store) CountProducts(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return n, nil
}
