package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// SelectPrice applies the tier fallback: discount, then special, then
// normal. A tier only counts when present and non-zero — the supplier
// feeds zeros for "no price", so zero falls through like NULL does.
// The second return is false when no tier applies.
func SelectPrice(p *Price) (float64, bool) {
	if p == nil {
		return 0, false
	}
	for _, tier := range []sql.NullFloat64{p.Discount, p.Special, p.Normal} {
		if tier.Valid && tier.Float64 != 0 {
			return tier.Float64, true
		}
	}
	return 0, false
}

// FormatPrice renders the selected tier for display, or the "N/A"
// sentinel when no tier applies.
func FormatPrice(p *Price) string {
	v, ok := SelectPrice(p)
	if !ok {
		return "N/A"
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// MXNPrice converts a product's discount-tier USD price to MXN using
// the latest exchange rate, the product margin, and the configured tax
// rate. Returns 0 when the product has no discount price or no rate
// has been loaded yet.
func (s *Store) MXNPrice(ctx context.Context, p *Price, iva float64) (float64, error) {
	if p == nil || !p.Discount.Valid || p.Discount.Float64 == 0 {
		return 0, nil
	}

	rate, err := s.LatestExchangeRate(ctx)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	base := p.Discount.Float64 * rate
	base *= 1 + p.Margin/100
	base *= 1 + iva
	// Round to centavos.
	return float64(int64(base*100+0.5)) / 100, nil
}

// LatestExchangeRate returns the most recently recorded USD→MXN rate.
func (s *Store) LatestExchangeRate(ctx context.Context) (float64, error) {
	var rate float64
	err := s.db.QueryRowContext(ctx,
		`SELECT rate FROM exchange_rates ORDER BY created_at DESC, id DESC LIMIT 1`,
	).Scan(&rate)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("latest exchange rate: %w", err)
	}
	return rate, nil
}

// SetExchangeRate records a new USD→MXN rate.
func (s *Store) SetExchangeRate(ctx context.Context, rate float64, updatedBy, updateType string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exchange_rates (rate, updated_by, update_type) VALUES (?, ?, ?)`,
		rate, updatedBy, updateType,
	)
	if err != nil {
		return fmt.Errorf("set exchange rate: %w", err)
	}
	return nil
}
