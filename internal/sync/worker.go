package sync

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/tiendamx/asistente-catalogo/internal/store"
	"github.com/tiendamx/asistente-catalogo/internal/supplier"
)

// SupplierAPI is the slice of the supplier client the worker needs.
type SupplierAPI interface {
	GetProduct(ctx context.Context, supplierID string) (*supplier.Product, error)
	SearchProducts(ctx context.Context, query string) ([]supplier.Product, error)
	ExchangeRate(ctx context.Context) (float64, error)
}

// Worker pulls products from the supplier and mirrors them into the
// local catalog, reporting progress through the tracker.
type Worker struct {
	supplier SupplierAPI
	store    *store.Store
	tracker  *Tracker
	logger   *slog.Logger
}

func NewWorker(sup SupplierAPI, st *store.Store, tracker *Tracker, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		supplier: sup,
		store:    st,
		tracker:  tracker,
		logger:   logger.With("component", "sync"),
	}
}

// ErrAlreadyRunning is returned by Start when the user has a sync in
// flight.
var ErrAlreadyRunning = fmt.Errorf("sync already running")

// Start launches a sync run in the background. Progress is polled via
// the tracker; only one run per user may be active.
func (w *Worker) Start(ctx context.Context, userID string, supplierIDs []string) error {
	if !w.tracker.Begin(userID, len(supplierIDs)) {
		return ErrAlreadyRunning
	}
	go func() {
		err := w.run(ctx, userID, supplierIDs)
		w.tracker.Finish(userID, err)
	}()
	return nil
}

// queryLimit caps how many search matches a query sync will import.
const queryLimit = 20

// ResolveQuery searches the supplier catalog by free text and returns
// the supplier ids of the matches, so a run can import search results
// instead of an explicit id list. Search responses carry no inventory;
// the per-id fetch during the run fills that in.
func (w *Worker) ResolveQuery(ctx context.Context, query string) ([]string, error) {
	found, err := w.supplier.SearchProducts(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("supplier search %q: %w", query, err)
	}
	if len(found) > queryLimit {
		found = found[:queryLimit]
	}
	ids := make([]string, len(found))
	for i, p := range found {
		ids[i] = p.SupplierID
	}
	return ids, nil
}

// Run performs a sync synchronously. Used by the CLI sync command.
func (w *Worker) Run(ctx context.Context, userID string, supplierIDs []string) error {
	if !w.tracker.Begin(userID, len(supplierIDs)) {
		return ErrAlreadyRunning
	}
	err := w.run(ctx, userID, supplierIDs)
	w.tracker.Finish(userID, err)
	return err
}

func (w *Worker) run(ctx context.Context, userID string, supplierIDs []string) error {
	w.logger.Info("sync started", "user", userID, "products", len(supplierIDs))

	if rate, err := w.supplier.ExchangeRate(ctx); err != nil {
		w.logger.Warn("exchange rate refresh failed", "error", err)
	} else if err := w.store.SetExchangeRate(ctx, rate, userID, "sync"); err != nil {
		w.logger.Warn("exchange rate save failed", "error", err)
	}

	for _, id := range supplierIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.syncOne(ctx, id); err != nil {
			w.logger.Warn("product sync failed", "supplier_id", id, "error", err)
			w.tracker.Step(userID, false, err.Error())
			continue
		}
		w.tracker.Step(userID, true, "")
	}

	w.logger.Info("sync finished", "user", userID)
	return nil
}

func (w *Worker) syncOne(ctx context.Context, supplierID string) error {
	p, err := w.supplier.GetProduct(ctx, supplierID)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", supplierID, err)
	}
	_, err = w.store.ImportProduct(ctx, toRecord(p))
	if err != nil {
		return fmt.Errorf("import %s: %w", supplierID, err)
	}
	return nil
}

// defaultMargin applies to newly imported products. Per-product
// overrides are an admin edit, not a sync concern.
const defaultMargin = 20.0

// toRecord maps a supplier product onto the catalog import shape. A
// zero price from the wire is kept as NULL so the fallback chain skips
// it instead of selling at zero.
func toRecord(p *supplier.Product) store.ProductRecord {
	return store.ProductRecord{
		SupplierID:  p.SupplierID,
		Model:       p.Model,
		Title:       p.Title,
		Description: p.Description,
		Warranty:    p.Warranty,
		MainImage:   p.MainImage,
		Brand:       p.Brand,
		Categories:  p.Categories,
		Features:    p.Features,
		Price: &store.Price{
			Normal:   nullable(p.PriceNormal),
			Special:  nullable(p.PriceSpec),
			Discount: nullable(p.PriceDisc),
			List:     nullable(p.PriceList),
			Margin:   defaultMargin,
		},
		Stock: p.BranchStock,
	}
}

func nullable(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: v != 0}
}
