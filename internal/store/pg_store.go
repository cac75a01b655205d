package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	perrors "github.com/Dimi2435/product-inventory-api/internal/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

const productColumns = "id, name, description, price, quantity, sku, weight, dimensions, version, created_at, updated_at"

// PgStore implements ProductStore using PostgreSQL as the data store.
type PgStore struct {
	db *pgxpool.Pool
}

// NewPgStore creates a new instance of ProductStore using a PostgreSQL connection pool.
func NewPgStore(dbp *pgxpool.Pool) *PgStore {
	return &PgStore{db: dbp}
}

// Insert adds a new product to the system.
// Returns ErrDuplicateSKU if another record already carries the same SKU.
func (p *PgStore) Insert(ctx context.Context, data ProductData) (*Product, error) {
	row := p.db.QueryRow(ctx, `
		INSERT INTO products (name, description, price, quantity, sku, weight, dimensions)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+productColumns,
		data.Name, data.Description, data.Price, data.Quantity, data.SKU, data.Weight, data.Dimensions,
	)
	product, err := scanProduct(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, perrors.ErrDuplicateSKU
		}
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	return product, nil
}

// FindByID retrieves a product by its unique identifier.
// Returns ErrProductNotFound if no product exists with the given ID.
func (p *PgStore) FindByID(ctx context.Context, id int64) (*Product, error) {
	row := p.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, perrors.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}
	return product, nil
}

// FindBySKU retrieves a product by its SKU.
// Returns ErrProductNotFound if no product exists with the given SKU.
func (p *PgStore) FindBySKU(ctx context.Context, sku string) (*Product, error) {
	row := p.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE sku = $1`, sku)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, perrors.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by SKU: %w", err)
	}
	return product, nil
}

// ExistsBySKU reports whether a product with the given SKU exists.
func (p *PgStore) ExistsBySKU(ctx context.Context, sku string) (bool, error) {
	var exists bool
	err := p.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM products WHERE sku = $1)`, sku).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check product existence by SKU: %w", err)
	}
	return exists, nil
}

// sortColumns whitelists the sortable fields. Interpolating the mapped column
// into the query is safe because only whitelisted values pass through.
var sortColumns = map[string]string{
	"name":  "name",
	"sku":   "sku",
	"price": "price",
}

// List retrieves one page of products plus the total record count.
func (p *PgStore) List(ctx context.Context, params ListParams) ([]Product, int64, error) {
	column, ok := sortColumns[strings.ToLower(params.SortBy)]
	if !ok {
		column = "name"
	}
	direction := "ASC"
	if strings.EqualFold(params.Direction, "desc") {
		direction = "DESC"
	}

	var total int64
	if err := p.db.QueryRow(ctx, `SELECT count(*) FROM products`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	// id is a tiebreaker so pages are stable for equal sort keys
	query := fmt.Sprintf(`SELECT %s FROM products ORDER BY %s %s, id ASC OFFSET $1 LIMIT $2`,
		productColumns, column, direction)
	rows, err := p.db.Query(ctx, query, params.Offset, params.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	products, err := collectProducts(rows)
	if err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// UpdateWithVersion modifies an existing product only if its stored version
// equals expectedVersion, incrementing the version and refreshing updated_at.
// The conditional UPDATE and the follow-up existence check run in one
// transaction so "row absent" and "row present but wrong version" can be told
// apart without a race.
func (p *PgStore) UpdateWithVersion(ctx context.Context, id int64, data ProductData, expectedVersion int32) (*Product, error) {
	var updated *Product

	txErr := p.withTransaction(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE products
			SET name = $1, description = $2, price = $3, quantity = $4, sku = $5,
			    weight = $6, dimensions = $7, version = version + 1, updated_at = now()
			WHERE id = $8 AND version = $9
			RETURNING `+productColumns,
			data.Name, data.Description, data.Price, data.Quantity, data.SKU,
			data.Weight, data.Dimensions, id, expectedVersion,
		)
		product, err := scanProduct(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				// Check if the product exists, or it's an optimistic lock error.
				var exists bool
				if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)`, id).Scan(&exists); err != nil {
					return fmt.Errorf("failed to check product existence: %w", err)
				}
				if !exists {
					return perrors.ErrProductNotFound
				}
				return perrors.ErrVersionConflict
			}
			if isUniqueViolation(err) {
				return perrors.ErrDuplicateSKU
			}
			return fmt.Errorf("failed to update product: %w", err)
		}
		updated = product
		return nil
	})

	if txErr != nil {
		return nil, txErr
	}
	return updated, nil
}

// DeleteByID removes a product by its unique identifier.
// Returns ErrProductNotFound if no product exists with the given ID.
func (p *PgStore) DeleteByID(ctx context.Context, id int64) error {
	tag, err := p.db.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product by ID: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return perrors.ErrProductNotFound
	}
	return nil
}

// FindByNameContaining returns products whose name contains the given substring, case-insensitive.
func (p *PgStore) FindByNameContaining(ctx context.Context, name string, offset, limit int32) ([]Product, int64, error) {
	var total int64
	err := p.db.QueryRow(ctx, `SELECT count(*) FROM products WHERE name ILIKE '%' || $1 || '%'`, name).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count products by name: %w", err)
	}
	rows, err := p.db.Query(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE name ILIKE '%' || $1 || '%'
		ORDER BY name ASC, id ASC OFFSET $2 LIMIT $3`, name, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find products by name: %w", err)
	}
	products, err := collectProducts(rows)
	if err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// FindByPriceBetween returns products priced within [min, max].
func (p *PgStore) FindByPriceBetween(ctx context.Context, min, max decimal.Decimal, offset, limit int32) ([]Product, int64, error) {
	var total int64
	err := p.db.QueryRow(ctx, `SELECT count(*) FROM products WHERE price BETWEEN $1 AND $2`, min, max).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count products by price range: %w", err)
	}
	rows, err := p.db.Query(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE price BETWEEN $1 AND $2
		ORDER BY price ASC, id ASC OFFSET $3 LIMIT $4`, min, max, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find products by price range: %w", err)
	}
	products, err := collectProducts(rows)
	if err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// FindByQuantityBetween returns products stocked within [min, max].
func (p *PgStore) FindByQuantityBetween(ctx context.Context, min, max int32, offset, limit int32) ([]Product, int64, error) {
	var total int64
	err := p.db.QueryRow(ctx, `SELECT count(*) FROM products WHERE quantity BETWEEN $1 AND $2`, min, max).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count products by quantity range: %w", err)
	}
	rows, err := p.db.Query(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE quantity BETWEEN $1 AND $2
		ORDER BY quantity ASC, id ASC OFFSET $3 LIMIT $4`, min, max, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find products by quantity range: %w", err)
	}
	products, err := collectProducts(rows)
	if err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// FindLowStock returns all products with quantity below the threshold.
func (p *PgStore) FindLowStock(ctx context.Context, threshold int32) ([]Product, error) {
	rows, err := p.db.Query(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE quantity < $1
		ORDER BY quantity ASC, id ASC`, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to find low stock products: %w", err)
	}
	return collectProducts(rows)
}

// FindByCriteria returns products matching the AND of all present predicates.
// Absent predicates are wildcards.
func (p *PgStore) FindByCriteria(ctx context.Context, criteria Criteria, offset, limit int32) ([]Product, int64, error) {
	var where strings.Builder
	var args []any

	addPredicate := func(clause string, value any) {
		args = append(args, value)
		if where.Len() == 0 {
			where.WriteString(" WHERE ")
		} else {
			where.WriteString(" AND ")
		}
		where.WriteString(fmt.Sprintf(clause, len(args)))
	}

	if criteria.Name != nil {
		addPredicate("name ILIKE '%%' || $%d || '%%'", *criteria.Name)
	}
	if criteria.MinPrice != nil {
		addPredicate("price >= $%d", *criteria.MinPrice)
	}
	if criteria.MaxPrice != nil {
		addPredicate("price <= $%d", *criteria.MaxPrice)
	}
	if criteria.MinQuantity != nil {
		addPredicate("quantity >= $%d", *criteria.MinQuantity)
	}
	if criteria.MaxQuantity != nil {
		addPredicate("quantity <= $%d", *criteria.MaxQuantity)
	}

	var total int64
	countQuery := `SELECT count(*) FROM products` + where.String()
	if err := p.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count products by criteria: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM products%s ORDER BY name ASC, id ASC OFFSET $%d LIMIT $%d`,
		productColumns, where.String(), len(args)+1, len(args)+2)
	args = append(args, offset, limit)
	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find products by criteria: %w", err)
	}
	products, err := collectProducts(rows)
	if err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// withTransaction runs fn inside a transaction, rolling back on error.
func (p *PgStore) withTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("failed to rollback transaction: %w", rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Quantity, &p.SKU,
		&p.Weight, &p.Dimensions, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func collectProducts(rows pgx.Rows) ([]Product, error) {
	defer rows.Close()
	products := make([]Product, 0)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product row: %w", err)
		}
		products = append(products, *product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read product rows: %w", err)
	}
	return products, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
