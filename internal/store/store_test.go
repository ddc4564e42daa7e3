package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "modernc.org/sqlite"
)

// testStore opens an in-memory catalog using the pure-Go driver.
func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	// :memory: is per-connection; keep the pool at one.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s, err := New(db, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func f(v float64) sql.NullFloat64 { return sql.NullFloat64{Float64: v, Valid: true} }

func seedCatalog(t *testing.T, s *Store) map[string]int64 {
	t.Helper()
	ctx := context.Background()
	ids := make(map[string]int64)

	recs := []ProductRecord{
		{
			SupplierID:  "SY-1001",
			Model:       "RB951",
			Title:       "Router MikroTik hEX",
			Description: "<p>Router de 5 puertos gigabit</p>",
			Brand:       "MikroTik",
			Categories:  []string{"Redes", "Routers"},
			Features:    []string{"5 puertos", "PoE pasivo"},
			Price:       &Price{Normal: f(1200), Discount: f(999.50), Margin: 20},
			Stock:       map[string]int{"san_luis_potosi": 4, "cdmx": 2},
		},
		{
			SupplierID: "SY-1002",
			Model:      "CCR2004",
			Title:      "Router MikroTik Cloud Core",
			Brand:      "MikroTik",
			Categories: []string{"Redes"},
			Price:      &Price{Normal: f(9800), Margin: 20},
			Stock:      map[string]int{"san_luis_potosi": 1},
		},
		{
			SupplierID: "SY-1003",
			Title:      "Router TP-Link Archer",
			Brand:      "TP-Link",
			// no price row at all
			Stock: map[string]int{"san_luis_potosi": 7},
		},
		{
			SupplierID: "SY-1004",
			Title:      "Router Ubiquiti EdgeRouter",
			Brand:      "Ubiquiti",
			Price:      &Price{Normal: f(2400), Margin: 20},
			// stock only elsewhere: invisible to the reference branch
			Stock: map[string]int{"cdmx": 9},
		},
		{
			SupplierID: "SY-2001",
			Title:      "Cámara Hikvision Domo",
			Brand:      "Hikvision",
			Categories: []string{"Videovigilancia"},
			Price:      &Price{Normal: f(800), Special: f(650), Margin: 20},
			Stock:      map[string]int{"san_luis_potosi": 3},
		},
	}
	for _, rec := range recs {
		id, err := s.ImportProduct(ctx, rec)
		if err != nil {
			t.Fatalf("ImportProduct(%s): %v", rec.SupplierID, err)
		}
		ids[rec.SupplierID] = id
	}
	return ids
}

func TestFindProductsTokenMatchAndStockGate(t *testing.T) {
	s := testStore(t)
	seedCatalog(t, s)
	ctx := context.Background()

	hits, err := s.FindProducts(ctx, []string{"router"}, "san_luis_potosi", 5)
	if err != nil {
		t.Fatalf("FindProducts: %v", err)
	}

	// SY-1004 has no stock at the reference branch and must be hidden.
	if len(hits) != 3 {
		t.Fatalf("got %d hits, want 3: %+v", len(hits), hits)
	}
	for _, h := range hits {
		if h.SupplierID == "SY-1004" {
			t.Error("product without reference-branch stock should be filtered out")
		}
		if h.BranchQty <= 0 {
			t.Errorf("%s: BranchQty = %d, want > 0", h.SupplierID, h.BranchQty)
		}
	}
}

func TestFindProductsBranchBinding(t *testing.T) {
	s := testStore(t)
	seedCatalog(t, s)
	ctx := context.Background()

	// The same token set against a different branch must flip both the
	// visible set and the reported quantities: only SY-1001 and SY-1004
	// hold stock at cdmx.
	hits, err := s.FindProducts(ctx, []string{"router"}, "cdmx", 5)
	if err != nil {
		t.Fatalf("FindProducts: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2: %+v", len(hits), hits)
	}
	want := map[string]int{"SY-1001": 2, "SY-1004": 9}
	for _, h := range hits {
		if q, ok := want[h.SupplierID]; !ok {
			t.Errorf("unexpected hit %s", h.SupplierID)
		} else if h.BranchQty != q {
			t.Errorf("%s: BranchQty = %d, want %d", h.SupplierID, h.BranchQty, q)
		}
	}
}

func TestFindProductsAnyTokenSemantics(t *testing.T) {
	s := testStore(t)
	seedCatalog(t, s)
	ctx := context.Background()

	// "hikvision" only matches the camera, "router" the routers; any-token
	// matching means the union comes back.
	hits, err := s.FindProducts(ctx, []string{"hikvision", "archer"}, "san_luis_potosi", 5)
	if err != nil {
		t.Fatalf("FindProducts: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2 (union of tokens)", len(hits))
	}
}

func TestFindProductsBrandMatch(t *testing.T) {
	s := testStore(t)
	seedCatalog(t, s)

	hits, err := s.FindProducts(context.Background(), []string{"tp-link"}, "san_luis_potosi", 5)
	if err != nil {
		t.Fatalf("FindProducts: %v", err)
	}
	if len(hits) != 1 || hits[0].SupplierID != "SY-1003" {
		t.Fatalf("brand token match failed: %+v", hits)
	}
}

func TestFindProductsLimit(t *testing.T) {
	s := testStore(t)
	seedCatalog(t, s)

	hits, err := s.FindProducts(context.Background(), []string{"router"}, "san_luis_potosi", 2)
	if err != nil {
		t.Fatalf("FindProducts: %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("got %d hits, want limit 2", len(hits))
	}
}

func TestFindProductsOrderedByTitle(t *testing.T) {
	s := testStore(t)
	seedCatalog(t, s)

	hits, err := s.FindProducts(context.Background(), []string{"mikrotik"}, "san_luis_potosi", 5)
	if err != nil {
		t.Fatalf("FindProducts: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].Title > hits[1].Title {
		t.Errorf("hits not ordered by title: %q before %q", hits[0].Title, hits[1].Title)
	}
}

func TestFindProductsNoTokens(t *testing.T) {
	s := testStore(t)
	hits, err := s.FindProducts(context.Background(), nil, "san_luis_potosi", 5)
	if err != nil {
		t.Fatalf("FindProducts: %v", err)
	}
	if hits != nil {
		t.Errorf("FindProducts with no tokens = %v, want nil", hits)
	}
}

func TestFindProductsMissingPriceIsNotFatal(t *testing.T) {
	s := testStore(t)
	seedCatalog(t, s)

	hits, err := s.FindProducts(context.Background(), []string{"archer"}, "san_luis_potosi", 5)
	if err != nil {
		t.Fatalf("FindProducts: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
	if got := FormatPrice(&hits[0].Price); got != "N/A" {
		t.Errorf("FormatPrice for priceless product = %q, want N/A", got)
	}
}

func TestGetProduct(t *testing.T) {
	s := testStore(t)
	ids := seedCatalog(t, s)
	ctx := context.Background()

	d, err := s.GetProduct(ctx, ids["SY-1001"], "san_luis_potosi")
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if d.Title != "Router MikroTik hEX" || d.Brand != "MikroTik" {
		t.Errorf("unexpected detail: %+v", d)
	}
	if len(d.Features) != 2 || d.Features[0] != "5 puertos" {
		t.Errorf("Features = %v, want ordered pair", d.Features)
	}
	if len(d.Categories) != 2 {
		t.Errorf("Categories = %v, want 2", d.Categories)
	}
	if d.BranchQty != 4 || d.TotalQty != 6 {
		t.Errorf("BranchQty/TotalQty = %d/%d, want 4/6", d.BranchQty, d.TotalQty)
	}
	if v, ok := SelectPrice(d.Price); !ok || v != 999.50 {
		t.Errorf("SelectPrice = (%v, %v), want discount tier 999.50", v, ok)
	}
}

func TestGetProductNotFound(t *testing.T) {
	s := testStore(t)
	_, err := s.GetProduct(context.Background(), 424242, "san_luis_potosi")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetProduct on missing id = %v, want ErrNotFound", err)
	}
}

func TestSelectPriceFallback(t *testing.T) {
	tests := []struct {
		name  string
		price *Price
		want  float64
		ok    bool
	}{
		{"discount wins", &Price{Normal: f(100), Special: f(90), Discount: f(80)}, 80, true},
		{"special next", &Price{Normal: f(100), Special: f(90)}, 90, true},
		{"normal last", &Price{Normal: f(100)}, 100, true},
		{"zero falls through", &Price{Normal: f(100), Discount: f(0)}, 100, true},
		{"all missing", &Price{}, 0, false},
		{"nil price", nil, 0, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := SelectPrice(tc.price)
			if got != tc.want || ok != tc.ok {
				t.Errorf("SelectPrice = (%v, %v), want (%v, %v)", got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestImportProductIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	rec := ProductRecord{
		SupplierID: "SY-9",
		Title:      "Antena Sectorial",
		Features:   []string{"a", "b"},
		Stock:      map[string]int{"san_luis_potosi": 1},
	}
	id1, err := s.ImportProduct(ctx, rec)
	if err != nil {
		t.Fatalf("first import: %v", err)
	}

	rec.Title = "Antena Sectorial 120°"
	rec.Features = []string{"c"}
	id2, err := s.ImportProduct(ctx, rec)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if id1 != id2 {
		t.Errorf("re-import created a new product: %d vs %d", id1, id2)
	}

	d, err := s.GetProduct(ctx, id1, "san_luis_potosi")
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if d.Title != "Antena Sectorial 120°" {
		t.Errorf("Title = %q, want updated title", d.Title)
	}
	if len(d.Features) != 1 || d.Features[0] != "c" {
		t.Errorf("Features = %v, want replaced [c]", d.Features)
	}
}

func TestExchangeRateAndMXNPrice(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if _, err := s.LatestExchangeRate(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("LatestExchangeRate on empty table = %v, want ErrNotFound", err)
	}

	if err := s.SetExchangeRate(ctx, 17.50, "test", "manual"); err != nil {
		t.Fatalf("SetExchangeRate: %v", err)
	}
	rate, err := s.LatestExchangeRate(ctx)
	if err != nil || rate != 17.50 {
		t.Fatalf("LatestExchangeRate = (%v, %v), want 17.50", rate, err)
	}

	// 10 USD * 17.50 * 1.20 margin * 1.16 IVA = 243.60
	p := &Price{Discount: f(10), Margin: 20}
	mxn, err := s.MXNPrice(ctx, p, 0.16)
	if err != nil {
		t.Fatalf("MXNPrice: %v", err)
	}
	if mxn != 243.60 {
		t.Errorf("MXNPrice = %v, want 243.60", mxn)
	}

	// No discount tier → 0, not an error.
	mxn, err = s.MXNPrice(ctx, &Price{Normal: f(10)}, 0.16)
	if err != nil || mxn != 0 {
		t.Errorf("MXNPrice without discount = (%v, %v), want (0, nil)", mxn, err)
	}
}

func TestDeleteProduct(t *testing.T) {
	s := testStore(t)
	ids := seedCatalog(t, s)
	ctx := context.Background()

	if err := s.DeleteProduct(ctx, "SY-1001"); err != nil {
		t.Fatalf("DeleteProduct: %v", err)
	}
	if _, err := s.GetProduct(ctx, ids["SY-1001"], "san_luis_potosi"); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted product still resolves: %v", err)
	}
	if err := s.DeleteProduct(ctx, "SY-1001"); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete = %v, want ErrNotFound", err)
	}
}
