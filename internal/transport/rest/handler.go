// Package rest provides HTTP handlers for product-related operations.
package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	perrors "github.com/Dimi2435/product-inventory-api/internal/errors"
	"github.com/Dimi2435/product-inventory-api/internal/service"
	"github.com/Dimi2435/product-inventory-api/pkg/web"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const (
	defaultPage      = 0
	defaultSize      = 10
	defaultSortBy    = "name"
	defaultDirection = "asc"
	defaultThreshold = 10
)

var skuPattern = regexp.MustCompile(`^[A-Z0-9-]+$`)

type Handler struct {
	service  service.ProductService
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler creates a new instance of the product API with the provided service.
func NewHandler(service service.ProductService, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		validate: newValidator(),
		logger:   logger.With("component", "rest"),
	}
}

// newValidator builds a validator that understands decimal fields, the SKU
// format rule, and reports errors under JSON field names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	_ = v.RegisterValidation("sku", func(fl validator.FieldLevel) bool {
		return skuPattern.MatchString(fl.Field().String())
	})
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// RegisterRoutes registers the HTTP routes for the product API.
func (h *Handler) RegisterRoutes(r *chi.Mux) {
	r.Route("/api/v1/products", func(r chi.Router) {
		r.Get("/", h.FindAll)
		r.Post("/", h.Create)
		r.Get("/filter", h.Filter)
		r.Get("/low-stock", h.FindLowStock)
		r.Get("/sku/{sku}", h.FindBySKU)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.FindByID)
			r.Put("/", h.Update)
			r.Delete("/", h.DeleteByID)
		})
	})

	r.Get("/healthz", h.HealthCheck)
}

// Create handles the creation of a new product.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	var productCreateDto service.ProductCreateDto
	if err := json.NewDecoder(r.Body).Decode(&productCreateDto); err != nil {
		mLogger.WarnContext(r.Context(), "Error decoding request body", "error", err)
		respondError(w, r, mLogger, perrors.NewBadRequest("Malformed JSON request"))
		return
	}
	mLogger.DebugContext(r.Context(), "Received request to create product", "SKU", productCreateDto.SKU)
	if fieldErrors, ok := h.validateDto(r, mLogger, productCreateDto); !ok {
		respondValidationErrors(w, r, mLogger, fieldErrors)
		return
	}

	created, err := h.service.Create(r.Context(), productCreateDto)
	if err != nil {
		mLogger.WarnContext(r.Context(), "Error creating product", "SKU", productCreateDto.SKU, "error", err)
		respondServiceError(w, r, mLogger, err)
		return
	}
	mLogger.InfoContext(r.Context(), "Product created successfully", "ID", created.ID, "SKU", created.SKU)
	web.RespondJSON(w, mLogger, http.StatusCreated, created)
}

// FindByID retrieves a product by its ID.
func (h *Handler) FindByID(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, err := web.ParseID(r)
	if err != nil {
		respondError(w, r, mLogger, perrors.NewBadRequest(fmt.Sprintf("Invalid product ID: %s", r.PathValue("id"))))
		return
	}

	mLogger.DebugContext(r.Context(), "Received request to find product by ID", "ID", id)
	found, err := h.service.FindByID(r.Context(), id)
	if err != nil {
		mLogger.WarnContext(r.Context(), "Error retrieving product", "ID", id, "error", err)
		respondServiceError(w, r, mLogger, err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, found)
}

// FindAll retrieves one page of products.
func (h *Handler) FindAll(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	page, err := web.QueryInt(r, "page", defaultPage)
	if err != nil {
		respondError(w, r, mLogger, perrors.NewBadRequest(err.Error()))
		return
	}
	size, err := web.QueryInt(r, "size", defaultSize)
	if err != nil {
		respondError(w, r, mLogger, perrors.NewBadRequest(err.Error()))
		return
	}
	sortBy := web.QueryString(r, "sortBy", defaultSortBy)
	direction := web.QueryString(r, "direction", defaultDirection)

	mLogger.DebugContext(r.Context(), "Received request to find all products",
		"page", page, "size", size, "sortBy", sortBy, "direction", direction)
	list, err := h.service.FindAll(r.Context(), page, size, sortBy, direction)
	if err != nil {
		mLogger.WarnContext(r.Context(), "Error retrieving product list", "error", err)
		respondServiceError(w, r, mLogger, err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, list)
}

// Update modifies an existing product. The caller must supply the version it
// last read via the version query parameter.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, err := web.ParseID(r)
	if err != nil {
		respondError(w, r, mLogger, perrors.NewBadRequest(fmt.Sprintf("Invalid product ID: %s", r.PathValue("id"))))
		return
	}
	version, err := web.QueryRequiredInt(r, "version")
	if err != nil {
		respondError(w, r, mLogger, perrors.NewBadRequest(err.Error()))
		return
	}

	var productCreateDto service.ProductCreateDto
	if err := json.NewDecoder(r.Body).Decode(&productCreateDto); err != nil {
		mLogger.WarnContext(r.Context(), "Error decoding request body", "error", err)
		respondError(w, r, mLogger, perrors.NewBadRequest("Malformed JSON request"))
		return
	}
	mLogger.DebugContext(r.Context(), "Received request to update product", "ID", id, "Version", version)
	if fieldErrors, ok := h.validateDto(r, mLogger, productCreateDto); !ok {
		respondValidationErrors(w, r, mLogger, fieldErrors)
		return
	}

	updated, err := h.service.Update(r.Context(), id, productCreateDto, version)
	if err != nil {
		mLogger.WarnContext(r.Context(), "Error updating product", "ID", id, "error", err)
		respondServiceError(w, r, mLogger, err)
		return
	}
	mLogger.InfoContext(r.Context(), "Product updated successfully", "ID", updated.ID, "Version", updated.Version)
	web.RespondJSON(w, mLogger, http.StatusOK, updated)
}

// DeleteByID deletes a product by its ID.
func (h *Handler) DeleteByID(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, err := web.ParseID(r)
	if err != nil {
		respondError(w, r, mLogger, perrors.NewBadRequest(fmt.Sprintf("Invalid product ID: %s", r.PathValue("id"))))
		return
	}
	mLogger.DebugContext(r.Context(), "Received request to delete product", "ID", id)
	if err := h.service.DeleteByID(r.Context(), id); err != nil {
		mLogger.WarnContext(r.Context(), "Error deleting product", "ID", id, "error", err)
		respondServiceError(w, r, mLogger, err)
		return
	}
	mLogger.InfoContext(r.Context(), "Product deleted successfully", "ID", id)
	w.WriteHeader(http.StatusNoContent)
}

// Filter searches products by any combination of name, price range and
// quantity range. Absent parameters are wildcards.
func (h *Handler) Filter(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	page, err := web.QueryInt(r, "page", defaultPage)
	if err != nil {
		respondError(w, r, mLogger, perrors.NewBadRequest(err.Error()))
		return
	}
	size, err := web.QueryInt(r, "size", defaultSize)
	if err != nil {
		respondError(w, r, mLogger, perrors.NewBadRequest(err.Error()))
		return
	}
	criteria, pErr := parseCriteria(r)
	if pErr != nil {
		respondError(w, r, mLogger, pErr)
		return
	}

	mLogger.DebugContext(r.Context(), "Received request to filter products", "page", page, "size", size)
	list, err := h.search(r, *criteria, page, size)
	if err != nil {
		mLogger.WarnContext(r.Context(), "Error filtering products", "error", err)
		respondServiceError(w, r, mLogger, err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, list)
}

// search routes a criteria set to the narrowest matching service operation.
func (h *Handler) search(r *http.Request, c service.SearchCriteriaDto, page, size int32) (*service.ProductPageDto, error) {
	ctx := r.Context()
	switch {
	case c.Name != nil && c.MinPrice == nil && c.MaxPrice == nil && c.MinQuantity == nil && c.MaxQuantity == nil:
		return h.service.SearchByName(ctx, *c.Name, page, size)
	case c.Name == nil && c.MinPrice != nil && c.MaxPrice != nil && c.MinQuantity == nil && c.MaxQuantity == nil:
		return h.service.FindByPriceRange(ctx, *c.MinPrice, *c.MaxPrice, page, size)
	case c.Name == nil && c.MinPrice == nil && c.MaxPrice == nil && c.MinQuantity != nil && c.MaxQuantity != nil:
		return h.service.FindByQuantityRange(ctx, *c.MinQuantity, *c.MaxQuantity, page, size)
	default:
		return h.service.SearchByCriteria(ctx, c, page, size)
	}
}

// FindLowStock returns all products with quantity below the threshold.
func (h *Handler) FindLowStock(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	threshold, err := web.QueryInt(r, "threshold", defaultThreshold)
	if err != nil {
		respondError(w, r, mLogger, perrors.NewBadRequest(err.Error()))
		return
	}
	mLogger.DebugContext(r.Context(), "Received request to find low stock products", "threshold", threshold)
	list, err := h.service.FindLowStock(r.Context(), threshold)
	if err != nil {
		mLogger.WarnContext(r.Context(), "Error retrieving low stock products", "error", err)
		respondServiceError(w, r, mLogger, err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, list)
}

// FindBySKU retrieves a product by its SKU.
func (h *Handler) FindBySKU(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	sku := r.PathValue("sku")
	mLogger.DebugContext(r.Context(), "Received request to find product by SKU", "SKU", sku)
	found, err := h.service.FindBySKU(r.Context(), sku)
	if err != nil {
		mLogger.WarnContext(r.Context(), "Error retrieving product by SKU", "SKU", sku, "error", err)
		respondServiceError(w, r, mLogger, err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, found)
}

// HealthCheck is a simple health check endpoint.
func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// validateDto runs declarative validation and converts failures into
// per-field messages keyed by JSON field name.
func (h *Handler) validateDto(r *http.Request, mLogger *slog.Logger, dto service.ProductCreateDto) (map[string]string, bool) {
	err := h.validate.Struct(dto)
	if err == nil {
		return nil, true
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		mLogger.WarnContext(r.Context(), "Error validating request body", "error", err)
		return map[string]string{"body": "Invalid request body"}, false
	}
	fieldErrors := make(map[string]string, len(validationErrors))
	for _, fieldErr := range validationErrors {
		fieldErrors[fieldErr.Field()] = fieldMessage(fieldErr)
	}
	mLogger.WarnContext(r.Context(), "Validation errors occurred", "errors", fieldErrors)
	return fieldErrors, false
}

// fieldMessage renders a human-readable message for a single failed rule.
func fieldMessage(fieldErr validator.FieldError) string {
	switch fieldErr.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fieldErr.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fieldErr.Field(), fieldErr.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fieldErr.Field(), fieldErr.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fieldErr.Field(), fieldErr.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", fieldErr.Field(), fieldErr.Param())
	case "sku":
		return "sku must contain only uppercase letters, digits and dashes"
	default:
		return fmt.Sprintf("%s failed on rule: %s", fieldErr.Field(), fieldErr.Tag())
	}
}

// parseCriteria extracts the optional filter predicates from the query string.
func parseCriteria(r *http.Request) (*service.SearchCriteriaDto, *perrors.ProductError) {
	var criteria service.SearchCriteriaDto
	if name := r.URL.Query().Get("name"); name != "" {
		criteria.Name = &name
	}
	var err error
	if criteria.MinPrice, err = web.QueryDecimal(r, "minPrice"); err != nil {
		return nil, perrors.NewBadRequest(err.Error())
	}
	if criteria.MaxPrice, err = web.QueryDecimal(r, "maxPrice"); err != nil {
		return nil, perrors.NewBadRequest(err.Error())
	}
	if criteria.MinQuantity, err = web.QueryIntPtr(r, "minQuantity"); err != nil {
		return nil, perrors.NewBadRequest(err.Error())
	}
	if criteria.MaxQuantity, err = web.QueryIntPtr(r, "maxQuantity"); err != nil {
		return nil, perrors.NewBadRequest(err.Error())
	}
	return &criteria, nil
}

// loggerWithReqID creates a logger with the request ID from the context.
func (h *Handler) loggerWithReqID(r *http.Request) *slog.Logger {
	reqID := middleware.GetReqID(r.Context())
	return h.logger.With("request_id", reqID)
}
