// Package service provides the implementation of product-related business logic.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	perrors "github.com/Dimi2435/product-inventory-api/internal/errors"
	"github.com/Dimi2435/product-inventory-api/internal/store"
	"github.com/shopspring/decimal"
)

// Sort parameter whitelists.
var validSortFields = []string{"name", "sku", "price"}
var validDirections = []string{"asc", "desc"}

// ProductService defines the methods for managing products.
// It abstracts the underlying business logic and data access.
type ProductService interface {
	// Create adds a new product to the catalog.
	// Returns a conflict error if the SKU is already taken.
	Create(ctx context.Context, product ProductCreateDto) (*ProductDto, error)

	// FindByID retrieves a single product by its unique identifier.
	FindByID(ctx context.Context, id int64) (*ProductDto, error)

	// FindAll returns one page of products ordered by the given sort field.
	FindAll(ctx context.Context, page, size int32, sortBy, direction string) (*ProductPageDto, error)

	// Update modifies an existing product using optimistic locking: the write
	// succeeds only if the stored version still equals expectedVersion.
	Update(ctx context.Context, id int64, product ProductCreateDto, expectedVersion int32) (*ProductDto, error)

	// DeleteByID removes a product by its ID.
	DeleteByID(ctx context.Context, id int64) error

	// SearchByName returns products whose name contains the given substring, case-insensitive.
	SearchByName(ctx context.Context, name string, page, size int32) (*ProductPageDto, error)

	// FindByPriceRange returns products priced within [min, max].
	FindByPriceRange(ctx context.Context, min, max decimal.Decimal, page, size int32) (*ProductPageDto, error)

	// FindByQuantityRange returns products stocked within [min, max].
	FindByQuantityRange(ctx context.Context, min, max int32, page, size int32) (*ProductPageDto, error)

	// FindLowStock returns all products with quantity below the threshold.
	FindLowStock(ctx context.Context, threshold int32) ([]ProductDto, error)

	// SearchByCriteria returns products matching the AND of all present predicates.
	SearchByCriteria(ctx context.Context, criteria SearchCriteriaDto, page, size int32) (*ProductPageDto, error)

	// FindBySKU retrieves a single product by its SKU.
	FindBySKU(ctx context.Context, sku string) (*ProductDto, error)

	// ExistsBySKU reports whether a product with the given SKU exists.
	ExistsBySKU(ctx context.Context, sku string) (bool, error)
}

// Service implements ProductService and provides methods to manage products.
type Service struct {
	repository store.ProductStore
}

// NewService creates a new instance of ProductService with the provided repository.
func NewService(repo store.ProductStore) *Service {
	return &Service{
		repository: repo,
	}
}

// ProductCreateDto represents the data transfer object for creating or updating a product.
// Quantity and Weight are pointers so that a legitimate zero survives the required rule.
type ProductCreateDto struct {
	Name        string           `json:"name"        validate:"required,min=2,max=100"`
	Description string           `json:"description" validate:"omitempty,max=500"`
	Price       decimal.Decimal  `json:"price"       validate:"required,gt=0"`
	Quantity    *int32           `json:"quantity"    validate:"required,gte=0"`
	SKU         string           `json:"sku"         validate:"required,sku"`
	Weight      *decimal.Decimal `json:"weight"      validate:"required,gte=0"`
	Dimensions  string           `json:"dimensions"  validate:"required"`
}

// ProductDto represents the data transfer object for a stored product.
// Version is read-only and used for optimistic concurrency control.
type ProductDto struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int32           `json:"quantity"`
	SKU         string          `json:"sku"`
	Weight      decimal.Decimal `json:"weight"`
	Dimensions  string          `json:"dimensions"`
	Version     int32           `json:"version"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// ProductPageDto is the pagination envelope for list responses.
type ProductPageDto struct {
	Items        []ProductDto `json:"items"`
	CurrentPage  int32        `json:"currentPage"`
	TotalPages   int32        `json:"totalPages"`
	TotalItems   int64        `json:"totalItems"`
	ItemsPerPage int32        `json:"itemsPerPage"`
}

// SearchCriteriaDto is an AND-combination of optional search predicates.
type SearchCriteriaDto struct {
	Name        *string
	MinPrice    *decimal.Decimal
	MaxPrice    *decimal.Decimal
	MinQuantity *int32
	MaxQuantity *int32
}

// Create creates a new product and returns it as a ProductDto.
// The SKU existence pre-check is advisory; the unique index is authoritative,
// so a losing race still maps to the same conflict error.
func (s *Service) Create(ctx context.Context, product ProductCreateDto) (*ProductDto, error) {
	if err := validateProductData(product); err != nil {
		return nil, err
	}

	exists, err := s.repository.ExistsBySKU(ctx, product.SKU)
	if err != nil {
		return nil, fmt.Errorf("failed to check SKU existence: %w", err)
	}
	if exists {
		return nil, perrors.NewConflict(fmt.Sprintf("A product with SKU %s already exists.", product.SKU))
	}

	created, err := s.repository.Insert(ctx, toStoreData(product))
	if err != nil {
		if errors.Is(err, perrors.ErrDuplicateSKU) {
			return nil, perrors.NewConflict(fmt.Sprintf("A product with SKU %s already exists.", product.SKU))
		}
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	return toDto(created), nil
}

// FindByID retrieves a product by its ID and returns it as a ProductDto.
func (s *Service) FindByID(ctx context.Context, id int64) (*ProductDto, error) {
	if err := validateProductID(id); err != nil {
		return nil, err
	}
	product, err := s.repository.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, perrors.ErrProductNotFound) {
			return nil, perrors.NewNotFound(fmt.Sprintf("Product not found with id: %d", id))
		}
		return nil, fmt.Errorf("failed to fetch product by ID %d: %w", id, err)
	}
	return toDto(product), nil
}

// FindAll retrieves one page of products and returns it wrapped in the pagination envelope.
func (s *Service) FindAll(ctx context.Context, page, size int32, sortBy, direction string) (*ProductPageDto, error) {
	if err := validatePaging(page, size); err != nil {
		return nil, err
	}
	if err := validateSort(sortBy, direction); err != nil {
		return nil, err
	}

	products, total, err := s.repository.List(ctx, store.ListParams{
		Offset:    page * size,
		Limit:     size,
		SortBy:    strings.ToLower(sortBy),
		Direction: strings.ToLower(direction),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch products: %w", err)
	}
	return toPage(products, page, size, total), nil
}

// Update modifies an existing product's details and returns the updated record.
// The version pre-check produces a clean error for a stale caller even when no
// concurrent write happened; the store's conditional update closes the race.
func (s *Service) Update(ctx context.Context, id int64, product ProductCreateDto, expectedVersion int32) (*ProductDto, error) {
	if err := validateProductID(id); err != nil {
		return nil, err
	}
	if err := validateProductData(product); err != nil {
		return nil, err
	}

	existing, err := s.repository.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, perrors.ErrProductNotFound) {
			return nil, perrors.NewNotFound(fmt.Sprintf("Product not found with id: %d", id))
		}
		return nil, fmt.Errorf("failed to fetch product by ID %d: %w", id, err)
	}
	if existing.Version != expectedVersion {
		return nil, perrors.NewOptimisticLock("Product data has been updated by another user.")
	}

	updated, err := s.repository.UpdateWithVersion(ctx, id, toStoreData(product), expectedVersion)
	if err != nil {
		switch {
		case errors.Is(err, perrors.ErrProductNotFound):
			return nil, perrors.NewNotFound(fmt.Sprintf("Product not found with id: %d", id))
		case errors.Is(err, perrors.ErrVersionConflict):
			return nil, perrors.NewOptimisticLock("Product data has been updated by another user.")
		case errors.Is(err, perrors.ErrDuplicateSKU):
			return nil, perrors.NewConflict(fmt.Sprintf("A product with SKU %s already exists.", product.SKU))
		}
		return nil, fmt.Errorf("failed to update product with ID %d: %w", id, err)
	}
	return toDto(updated), nil
}

// DeleteByID deletes a product by its ID.
func (s *Service) DeleteByID(ctx context.Context, id int64) error {
	if err := validateProductID(id); err != nil {
		return err
	}
	if err := s.repository.DeleteByID(ctx, id); err != nil {
		if errors.Is(err, perrors.ErrProductNotFound) {
			return perrors.NewNotFound(fmt.Sprintf("Product not found with id: %d", id))
		}
		return fmt.Errorf("failed to delete product with ID %d: %w", id, err)
	}
	return nil
}

// SearchByName returns products whose name contains the given substring.
func (s *Service) SearchByName(ctx context.Context, name string, page, size int32) (*ProductPageDto, error) {
	if err := validatePaging(page, size); err != nil {
		return nil, err
	}
	products, total, err := s.repository.FindByNameContaining(ctx, name, page*size, size)
	if err != nil {
		return nil, fmt.Errorf("failed to search products by name: %w", err)
	}
	return toPage(products, page, size, total), nil
}

// FindByPriceRange returns products priced within [min, max].
func (s *Service) FindByPriceRange(ctx context.Context, min, max decimal.Decimal, page, size int32) (*ProductPageDto, error) {
	if err := validatePaging(page, size); err != nil {
		return nil, err
	}
	products, total, err := s.repository.FindByPriceBetween(ctx, min, max, page*size, size)
	if err != nil {
		return nil, fmt.Errorf("failed to search products by price range: %w", err)
	}
	return toPage(products, page, size, total), nil
}

// FindByQuantityRange returns products stocked within [min, max].
func (s *Service) FindByQuantityRange(ctx context.Context, min, max int32, page, size int32) (*ProductPageDto, error) {
	if err := validatePaging(page, size); err != nil {
		return nil, err
	}
	products, total, err := s.repository.FindByQuantityBetween(ctx, min, max, page*size, size)
	if err != nil {
		return nil, fmt.Errorf("failed to search products by quantity range: %w", err)
	}
	return toPage(products, page, size, total), nil
}

// FindLowStock returns all products with quantity below the threshold.
func (s *Service) FindLowStock(ctx context.Context, threshold int32) ([]ProductDto, error) {
	products, err := s.repository.FindLowStock(ctx, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to find low stock products: %w", err)
	}
	return toDtos(products), nil
}

// SearchByCriteria returns products matching the AND of all present predicates.
func (s *Service) SearchByCriteria(ctx context.Context, criteria SearchCriteriaDto, page, size int32) (*ProductPageDto, error) {
	if err := validatePaging(page, size); err != nil {
		return nil, err
	}
	products, total, err := s.repository.FindByCriteria(ctx, store.Criteria{
		Name:        criteria.Name,
		MinPrice:    criteria.MinPrice,
		MaxPrice:    criteria.MaxPrice,
		MinQuantity: criteria.MinQuantity,
		MaxQuantity: criteria.MaxQuantity,
	}, page*size, size)
	if err != nil {
		return nil, fmt.Errorf("failed to search products by criteria: %w", err)
	}
	return toPage(products, page, size, total), nil
}

// FindBySKU retrieves a product by its SKU.
func (s *Service) FindBySKU(ctx context.Context, sku string) (*ProductDto, error) {
	product, err := s.repository.FindBySKU(ctx, sku)
	if err != nil {
		if errors.Is(err, perrors.ErrProductNotFound) {
			return nil, perrors.NewNotFound(fmt.Sprintf("Product not found with SKU: %s", sku))
		}
		return nil, fmt.Errorf("failed to fetch product by SKU %s: %w", sku, err)
	}
	return toDto(product), nil
}

// ExistsBySKU reports whether a product with the given SKU exists.
func (s *Service) ExistsBySKU(ctx context.Context, sku string) (bool, error) {
	exists, err := s.repository.ExistsBySKU(ctx, sku)
	if err != nil {
		return false, fmt.Errorf("failed to check SKU existence: %w", err)
	}
	return exists, nil
}

// validateProductData re-checks semantic rules the schema cannot express.
// The API layer already applies the declarative constraints.
func validateProductData(product ProductCreateDto) error {
	if product.Name == "" {
		return perrors.NewUnprocessableEntity("Product name is required.")
	}
	if !product.Price.IsPositive() {
		return perrors.NewUnprocessableEntity("Product price must be a positive value.")
	}
	if product.Quantity == nil || *product.Quantity < 0 {
		return perrors.NewUnprocessableEntity("Product quantity cannot be negative.")
	}
	if product.Weight == nil || product.Weight.IsNegative() {
		return perrors.NewUnprocessableEntity("Product weight cannot be negative.")
	}
	return nil
}

func validateProductID(id int64) error {
	if id <= 0 {
		return perrors.NewUnprocessableEntity("Product ID must be a positive integer.")
	}
	return nil
}

func validatePaging(page, size int32) error {
	if page < 0 {
		return perrors.NewBadRequest("Page number must be zero or greater.")
	}
	if size <= 0 {
		return perrors.NewBadRequest("Size must be a positive integer.")
	}
	return nil
}

func validateSort(sortBy, direction string) error {
	if !contains(validSortFields, strings.ToLower(sortBy)) {
		return perrors.NewBadRequest(fmt.Sprintf("Sort field is invalid. Valid fields are: [%s]", strings.Join(validSortFields, ", ")))
	}
	if !contains(validDirections, strings.ToLower(direction)) {
		return perrors.NewBadRequest("Sort direction must be 'asc' or 'desc'.")
	}
	return nil
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

// toPage wraps one page of store records in the pagination envelope.
func toPage(products []store.Product, page, size int32, total int64) *ProductPageDto {
	totalPages := int32(0)
	if total > 0 {
		totalPages = int32((total + int64(size) - 1) / int64(size))
	}
	return &ProductPageDto{
		Items:        toDtos(products),
		CurrentPage:  page,
		TotalPages:   totalPages,
		TotalItems:   total,
		ItemsPerPage: size,
	}
}

func toDtos(products []store.Product) []ProductDto {
	productDTOs := make([]ProductDto, len(products))
	for i, item := range products {
		productDTOs[i] = *toDto(&item)
	}
	return productDTOs
}

// toDto converts a store.Product to a ProductDto.
func toDto(product *store.Product) *ProductDto {
	return &ProductDto{
		ID:          product.ID,
		Name:        product.Name,
		Description: product.Description,
		Price:       product.Price,
		Quantity:    product.Quantity,
		SKU:         product.SKU,
		Weight:      product.Weight,
		Dimensions:  product.Dimensions,
		Version:     product.Version,
		CreatedAt:   product.CreatedAt,
		UpdatedAt:   product.UpdatedAt,
	}
}

func toStoreData(product ProductCreateDto) store.ProductData {
	return store.ProductData{
		Name:        product.Name,
		Description: product.Description,
		Price:       product.Price,
		Quantity:    *product.Quantity,
		SKU:         product.SKU,
		Weight:      *product.Weight,
		Dimensions:  product.Dimensions,
	}
}
