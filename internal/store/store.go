// Package store provides an interface for product storage operations.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog entry as persisted in the store.
// Version starts at 0 and is incremented by every successful update.
type Product struct {
	ID          int64
	Name        string
	Description string
	Price       decimal.Decimal
	Quantity    int32
	SKU         string
	Weight      decimal.Decimal
	Dimensions  string
	Version     int32
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProductData holds the client-writable fields of a product.
type ProductData struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Quantity    int32
	SKU         string
	Weight      decimal.Decimal
	Dimensions  string
}

// ListParams describes pagination and ordering for collection scans.
// SortBy and Direction must already be validated against the whitelists.
type ListParams struct {
	Offset    int32
	Limit     int32
	SortBy    string
	Direction string
}

// Criteria is an AND-combination of optional search predicates.
// A nil field is a wildcard.
type Criteria struct {
	Name        *string
	MinPrice    *decimal.Decimal
	MaxPrice    *decimal.Decimal
	MinQuantity *int32
	MaxQuantity *int32
}

// ProductStore is an interface for product storage operations.
// It abstracts the underlying data store, allowing for different implementations (e.g., in-memory, database).
type ProductStore interface {
	// Insert adds a new product and returns the stored record with id, version
	// and timestamps populated. Returns ErrDuplicateSKU if another record
	// already carries the same SKU.
	Insert(ctx context.Context, data ProductData) (*Product, error)

	// FindByID retrieves a single product by its unique identifier.
	// Returns ErrProductNotFound if no product exists with the given ID.
	FindByID(ctx context.Context, id int64) (*Product, error)

	// FindBySKU retrieves a single product by its SKU.
	// Returns ErrProductNotFound if no product exists with the given SKU.
	FindBySKU(ctx context.Context, sku string) (*Product, error)

	// ExistsBySKU reports whether a product with the given SKU exists.
	ExistsBySKU(ctx context.Context, sku string) (bool, error)

	// List returns one page of products plus the total number of records.
	List(ctx context.Context, params ListParams) ([]Product, int64, error)

	// UpdateWithVersion writes data to the product identified by id only if its
	// current version equals expectedVersion. On success the returned record
	// carries version+1 and a refreshed updated_at. Returns ErrProductNotFound
	// if the row is absent, ErrVersionConflict if it exists with a different
	// version, and ErrDuplicateSKU if the new SKU collides with another row.
	UpdateWithVersion(ctx context.Context, id int64, data ProductData, expectedVersion int32) (*Product, error)

	// DeleteByID removes a product by its ID.
	// Returns ErrProductNotFound if no product exists with the given ID.
	DeleteByID(ctx context.Context, id int64) error

	// FindByNameContaining returns products whose name contains the given
	// substring (case-insensitive), plus the total number of matches.
	FindByNameContaining(ctx context.Context, name string, offset, limit int32) ([]Product, int64, error)

	// FindByPriceBetween returns products with min <= price <= max.
	FindByPriceBetween(ctx context.Context, min, max decimal.Decimal, offset, limit int32) ([]Product, int64, error)

	// FindByQuantityBetween returns products with min <= quantity <= max.
	FindByQuantityBetween(ctx context.Context, min, max int32, offset, limit int32) ([]Product, int64, error)

	// FindLowStock returns all products with quantity below the threshold.
	FindLowStock(ctx context.Context, threshold int32) ([]Product, error)

	// FindByCriteria returns products matching all present predicates.
	FindByCriteria(ctx context.Context, criteria Criteria, offset, limit int32) ([]Product, int64, error)
}
