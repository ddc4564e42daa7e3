package store

import "database/sql"

// Price holds the three supplier price tiers for a product. Tiers are
// nullable: the supplier omits special and discount prices for most
// items, and a product freshly created by sync may have no price row
// at all.
type Price struct {
	Normal   sql.NullFloat64
	Special  sql.NullFloat64
	Discount sql.NullFloat64
	List     sql.NullFloat64
	Margin   float64
}

// SearchHit is one row of a catalog search: the product plus the
// denormalized fields the assistant shows (price tiers, stock at the
// reference branch, total stock, first category).
type SearchHit struct {
	ID          int64  // internal id — what the session cache stores
	SupplierID  string // external/display id
	Title       string
	Model       string
	Description string
	Brand       string // "" when the product has no brand
	Category    string // first category, "" when none
	Price       Price
	BranchQty   int
	TotalQty    int
}

// ProductDetail is the full product record used by the detail tool and
// the catalog API.
type ProductDetail struct {
	ID          int64
	SupplierID  string
	Title       string
	Model       string
	Description string
	Warranty    string
	MainImage   string
	Brand       string
	Price       *Price // nil when the product has no price row
	Categories  []string
	Features    []string
	BranchQty   int
	TotalQty    int
}
