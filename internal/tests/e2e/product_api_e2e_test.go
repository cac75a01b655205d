// Package e2e provides end-to-end tests for the product inventory API.
// The suite leverages `testcontainers-go` to spin up a real PostgreSQL instance in a Docker container,
// ensuring tests run against a production-like environment. It uses `testify/suite` for better structure
// and lifecycle management (`SetupSuite`, `TearDownSuite`, `SetupTest`).
//
// Key features of the test suite:
//   - A PostgreSQL container is started and database migrations are applied before tests run.
//   - The actual application handler is run in an `httptest.Server`.
//   - Table-driven tests cover the full product lifecycle over HTTP.
//   - Each test case is fully isolated by truncating the products table before it runs.
//   - Test coverage includes:
//   - Happy path CRUD operations with the pagination envelope.
//   - Duplicate SKU handling and the stable error codes.
//   - Optimistic locking via the 'version' query parameter, including concurrent writers.
//   - Search endpoints (filter, low-stock, lookup by SKU).
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Dimi2435/product-inventory-api/internal/app"
	"github.com/Dimi2435/product-inventory-api/internal/service"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// skipE2ETests is the environment variable that can be set to skip E2E tests.
const skipE2ETests = "PRODUCT_SVC_SKIP_E2E_TESTS"

// productURL is the base URL for the product API.
const productURL = "/api/v1/products"

// ProductAPIE2ESuite is a test suite for end-to-end tests of the product API.
type ProductAPIE2ESuite struct {
	suite.Suite
	pgContainer *postgres.PostgresContainer // PostgreSQL container for E2E tests
	dbPool      *pgxpool.Pool               // PostgreSQL connection pool for E2E tests
	server      *httptest.Server            // HTTP server for the application
	httpClient  *http.Client                // HTTP client for making requests to the server
	logger      *slog.Logger
	ctx         context.Context
}

// SetupSuite initializes the test suite by setting up the PostgreSQL container, database connection, and application handler.
func (s *ProductAPIE2ESuite) SetupSuite() {
	s.ctx = context.Background()
	var err error
	s.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	dbName := "products"
	dbUser := "user"
	dbPassword := "password"

	// 1. Start a PostgreSQL container with the specified configuration. Wait for the container to be ready.
	s.pgContainer, err = postgres.Run(s.ctx,
		"postgres:17.5-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPassword),
		// Wait for a specific log message indicating the database service is ready.
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Minute),
		),
		// Ensure the container is ready to accept connections on the default PostgreSQL port.
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("5432/tcp"),
		),
	)
	require.NoError(s.T(), err, "Failed to run PostgreSQL container")

	// 2. Get the connection string from the container
	connStr, err := s.pgContainer.ConnectionString(s.ctx, "sslmode=disable")
	require.NoError(s.T(), err, "Failed to get connection string from container")

	// 3. create a new pgxpool instance using the connection string
	s.dbPool, err = pgxpool.New(s.ctx, connStr)
	require.NoError(s.T(), err, "Failed to create pgx pool")

	// 3.1 Ping the database to ensure the connection is established
	for i := range 10 {
		s.logger.Info("Pinging E2E PostgreSQL database", "attempt", i+1)
		err = s.dbPool.Ping(s.ctx)
		if err == nil {
			break
		}
		time.Sleep(time.Second * 2)
	}
	require.NoError(s.T(), err, "Failed to connect to PostgreSQL after retries")

	// 4. Database migration
	wd, _ := os.Getwd()
	migrationsPath := filepath.Join(wd, "..", "..", "..", "migrations")
	sourceURL := "file://" + migrationsPath
	m, err := migrate.New(sourceURL, connStr)
	require.NoError(s.T(), err, "Failed to create migrate instance")
	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		_, _ = m.Close()
		require.NoError(s.T(), err, "Failed to apply migrations")
	}
	s.logger.Info("Migrations applied for E2E tests")

	// 5. Wire the application handler and start the test server
	deps := app.SetupDependencies(s.dbPool, s.logger)
	appHandler := app.SetupHttpHandler(deps)

	s.server = httptest.NewServer(appHandler)
	s.httpClient = s.server.Client()
	s.logger.Info("E2E test server started", "url", s.server.URL)
}

// TearDownSuite cleans up resources after all tests in the suite have run.
func (s *ProductAPIE2ESuite) TearDownSuite() {
	s.logger.Info("Tearing down E2E suite...")
	if s.server != nil {
		s.server.Close()
		s.logger.Info("E2E test server closed.")
	}
	if s.dbPool != nil {
		s.dbPool.Close()
		s.logger.Info("E2E DB pool closed.")
	}
	if s.pgContainer != nil {
		s.logger.Info("Terminating E2E PostgreSQL container...")
		err := s.pgContainer.Terminate(s.ctx)
		if err != nil {
			s.logger.Warn("Failed to terminate E2E PostgreSQL container", "error", err)
		} else {
			s.logger.Info("E2E PostgreSQL container terminated.")
		}
	}
}

// SetupTest prepares the database for each test by truncating the products table.
func (s *ProductAPIE2ESuite) SetupTest() {
	_, err := s.dbPool.Exec(s.ctx, "TRUNCATE TABLE products RESTART IDENTITY CASCADE")
	require.NoError(s.T(), err, "Failed to truncate products table")
}

// TestProductAPIE2E runs the product API end-to-end tests.
func TestProductAPIE2E(t *testing.T) {
	// Skip E2E tests if the environment variable is set
	if os.Getenv(skipE2ETests) == "1" {
		t.Skip("Skipping E2E tests based on " + skipE2ETests + " env var")
	}
	// Run the test suite
	suite.Run(t, new(ProductAPIE2ESuite))
}

// --------------------------------------------------------------------------
// ---------- Payload structures and Helper methods for E2E tests -----------
// --------------------------------------------------------------------------

// createProductPayload is a struct used to represent the payload for creating or updating a product.
type createProductPayload struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Quantity    int32   `json:"quantity"`
	SKU         string  `json:"sku"`
	Weight      float64 `json:"weight"`
	Dimensions  string  `json:"dimensions"`
}

// apiError mirrors the error envelope returned for failed requests.
type apiError struct {
	Timestamp time.Time         `json:"timestamp"`
	Status    int               `json:"status"`
	Error     string            `json:"error"`
	Message   string            `json:"message"`
	ErrorCode string            `json:"errorCode"`
	Path      string            `json:"path"`
	Errors    map[string]string `json:"errors"`
}

// laptopPayload is the canonical payload used across lifecycle tests.
func laptopPayload() createProductPayload {
	return createProductPayload{
		Name:        "Premium Laptop",
		Description: "High-performance laptop with 16GB RAM",
		Price:       999.99,
		Quantity:    10,
		SKU:         "LAP-001",
		Weight:      2.5,
		Dimensions:  "30x20x5",
	}
}

// createProduct is a helper method to create a product and decode the response into a ProductDto.
// Returns the created ProductDto and the HTTP status code.
func (s *ProductAPIE2ESuite) createProduct(payload createProductPayload) (service.ProductDto, int) {
	s.T().Helper()
	return s.doAndDecodeProduct(http.MethodPost, s.server.URL+productURL, payload)
}

// findByID is a helper method to fetch a product by its ID.
func (s *ProductAPIE2ESuite) findByID(id int64) (service.ProductDto, int) {
	s.T().Helper()
	return s.doAndDecodeProduct(http.MethodGet, fmt.Sprintf("%s%s/%d", s.server.URL, productURL, id), nil)
}

// updateProduct is a helper method to update a product with the expected version.
func (s *ProductAPIE2ESuite) updateProduct(id int64, version int32, payload createProductPayload) (service.ProductDto, int) {
	s.T().Helper()
	url := fmt.Sprintf("%s%s/%d?version=%d", s.server.URL, productURL, id, version)
	return s.doAndDecodeProduct(http.MethodPut, url, payload)
}

// deleteByID is a helper method to delete a product by its ID.
func (s *ProductAPIE2ESuite) deleteByID(id int64) int {
	s.T().Helper()
	_, statusCode := s.doRequest(http.MethodDelete, fmt.Sprintf("%s%s/%d", s.server.URL, productURL, id), nil)
	return statusCode
}

// findPage is a helper method to fetch a page of products from the given path.
func (s *ProductAPIE2ESuite) findPage(path string) (service.ProductPageDto, int) {
	s.T().Helper()
	bodyBytes, statusCode := s.doRequest(http.MethodGet, s.server.URL+path, nil)
	var page service.ProductPageDto
	if statusCode == http.StatusOK {
		require.NoError(s.T(), json.Unmarshal(bodyBytes, &page), "Failed to decode page response")
	}
	return page, statusCode
}

// doAndDecodeProduct makes an HTTP request and decodes a successful response into a ProductDto.
func (s *ProductAPIE2ESuite) doAndDecodeProduct(method, url string, payload any) (service.ProductDto, int) {
	s.T().Helper()
	bodyBytes, statusCode := s.doRequest(method, url, payload)

	var product service.ProductDto
	if statusCode == http.StatusOK || statusCode == http.StatusCreated {
		require.NoError(s.T(), json.Unmarshal(bodyBytes, &product), "Failed to decode product response")
	}
	return product, statusCode
}

// decodeAPIError decodes an error envelope from a raw response body.
func (s *ProductAPIE2ESuite) decodeAPIError(bodyBytes []byte) apiError {
	s.T().Helper()
	var apiErr apiError
	require.NoError(s.T(), json.Unmarshal(bodyBytes, &apiErr), "Failed to decode error response")
	return apiErr
}

// doRequest is a helper method to make an HTTP request to the product API.
// Returns the response body as a byte slice and the HTTP status code.
func (s *ProductAPIE2ESuite) doRequest(method, url string, payload any) ([]byte, int) {
	s.T().Helper()
	var body io.Reader
	if payload != nil {
		payloadBytes, err := json.Marshal(payload)
		require.NoError(s.T(), err)
		body = bytes.NewBuffer(payloadBytes)
	}

	req, err := http.NewRequestWithContext(s.ctx, method, url, body)
	require.NoError(s.T(), err, "Failed to create HTTP request")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	require.NoError(s.T(), err, "HTTP request failed")
	defer func() {
		err := resp.Body.Close()
		require.NoError(s.T(), err, "Failed to close response body")
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	require.NoError(s.T(), err, "Failed to read response body")

	return bodyBytes, resp.StatusCode
}

// --------------------------------------------------------------
// ---------------------- E2E test methods ----------------------
// --------------------------------------------------------------

func (s *ProductAPIE2ESuite) TestCreateProduct_E2E() {
	s.T().Run("Create Product - happy path", func(t *testing.T) {
		s.SetupTest()
		// when
		product, statusCode := s.createProduct(laptopPayload())

		// then
		require.Equal(t, http.StatusCreated, statusCode)
		require.Greater(t, product.ID, int64(0))
		require.Equal(t, "Premium Laptop", product.Name)
		require.Equal(t, "LAP-001", product.SKU)
		require.Equal(t, int32(0), product.Version)
		assert.True(t, product.Price.Equal(decimal.NewFromFloat(999.99)))
		require.False(t, product.CreatedAt.IsZero(), "createdAt should be set")
		require.False(t, product.UpdatedAt.IsZero(), "updatedAt should be set")
	})
}

func (s *ProductAPIE2ESuite) TestCreateProduct_DuplicateSKU_E2E() {
	s.T().Run("Create Product - duplicate SKU", func(t *testing.T) {
		s.SetupTest()
		// given
		_, statusCode := s.createProduct(laptopPayload())
		require.Equal(t, http.StatusCreated, statusCode)

		// when
		bodyBytes, statusCode := s.doRequest(http.MethodPost, s.server.URL+productURL, laptopPayload())

		// then
		require.Equal(t, http.StatusConflict, statusCode)
		apiErr := s.decodeAPIError(bodyBytes)
		require.Equal(t, "PRODUCT_CONFLICT", apiErr.ErrorCode)
		require.Contains(t, apiErr.Message, "LAP-001")
		require.Equal(t, productURL, apiErr.Path)
	})
}

func (s *ProductAPIE2ESuite) TestCreateProduct_Validation_E2E() {
	testCases := []struct {
		name   string
		mutate func(*createProductPayload)
		field  string
	}{
		{
			name:   "empty name",
			mutate: func(p *createProductPayload) { p.Name = "" },
			field:  "name",
		},
		{
			name:   "negative price",
			mutate: func(p *createProductPayload) { p.Price = -50 },
			field:  "price",
		},
		{
			name:   "lowercase sku",
			mutate: func(p *createProductPayload) { p.SKU = "lap-001" },
			field:  "sku",
		},
		{
			name:   "negative quantity",
			mutate: func(p *createProductPayload) { p.Quantity = -1 },
			field:  "quantity",
		},
	}

	for _, tc := range testCases {
		s.T().Run("Create Product - "+tc.name, func(t *testing.T) {
			s.SetupTest()
			// given
			payload := laptopPayload()
			tc.mutate(&payload)

			// when
			bodyBytes, statusCode := s.doRequest(http.MethodPost, s.server.URL+productURL, payload)

			// then
			require.Equal(t, http.StatusBadRequest, statusCode)
			apiErr := s.decodeAPIError(bodyBytes)
			require.Equal(t, "PRODUCT_BAD_REQUEST", apiErr.ErrorCode)
			require.Contains(t, apiErr.Errors, tc.field)
		})
	}
}

func (s *ProductAPIE2ESuite) TestFindByID_NotFound_E2E() {
	s.T().Run("Find Product By ID - Not Found", func(t *testing.T) {
		s.SetupTest()
		// when
		bodyBytes, statusCode := s.doRequest(http.MethodGet, s.server.URL+productURL+"/999999", nil)

		// then
		require.Equal(t, http.StatusNotFound, statusCode)
		apiErr := s.decodeAPIError(bodyBytes)
		require.Equal(t, "PRODUCT_NOT_FOUND", apiErr.ErrorCode)
		require.Equal(t, "Product not found with id: 999999", apiErr.Message)
	})
}

func (s *ProductAPIE2ESuite) TestUpdateProduct_E2E() {
	s.T().Run("Update Product - version-checked update then stale retry", func(t *testing.T) {
		s.SetupTest()
		// given
		created, statusCode := s.createProduct(laptopPayload())
		require.Equal(t, http.StatusCreated, statusCode)

		// when: update with the version we just read
		payload := laptopPayload()
		payload.Price = 1099.99
		updated, statusCode := s.updateProduct(created.ID, created.Version, payload)

		// then
		require.Equal(t, http.StatusOK, statusCode)
		require.Equal(t, created.Version+1, updated.Version)
		assert.True(t, updated.Price.Equal(decimal.NewFromFloat(1099.99)))

		// and: replaying the same stale version is rejected
		bodyBytes, statusCode := s.doRequest(http.MethodPut,
			fmt.Sprintf("%s%s/%d?version=%d", s.server.URL, productURL, created.ID, created.Version), payload)
		require.Equal(t, http.StatusConflict, statusCode)
		apiErr := s.decodeAPIError(bodyBytes)
		require.Equal(t, "PRODUCT_OPTIMISTIC_LOCK_ERROR", apiErr.ErrorCode)
		require.Equal(t, "Product data has been updated by another user.", apiErr.Message)
	})
}

func (s *ProductAPIE2ESuite) TestConcurrentUpdate_E2E() {
	s.T().Run("Update Product - only one concurrent writer wins", func(t *testing.T) {
		s.SetupTest()
		// given
		created, statusCode := s.createProduct(laptopPayload())
		require.Equal(t, http.StatusCreated, statusCode)

		// when: two writers race with the same version
		const writers = 2
		codes := make([]int, writers)
		var wg sync.WaitGroup
		for i := range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				payload := laptopPayload()
				payload.Price = 1099.99 + float64(i)
				_, codes[i] = s.updateProduct(created.ID, created.Version, payload)
			}()
		}
		wg.Wait()

		// then: exactly one succeeds, the other observes the conflict
		wins, conflicts := 0, 0
		for _, code := range codes {
			switch code {
			case http.StatusOK:
				wins++
			case http.StatusConflict:
				conflicts++
			}
		}
		require.Equal(t, 1, wins, "exactly one writer should win")
		require.Equal(t, 1, conflicts, "the losing writer should see a conflict")

		// and the record ends at version 1
		fetched, statusCode := s.findByID(created.ID)
		require.Equal(t, http.StatusOK, statusCode)
		require.Equal(t, int32(1), fetched.Version)
	})
}

func (s *ProductAPIE2ESuite) TestDeleteProduct_E2E() {
	s.T().Run("Delete Product - lifecycle", func(t *testing.T) {
		s.SetupTest()
		// given
		created, statusCode := s.createProduct(laptopPayload())
		require.Equal(t, http.StatusCreated, statusCode)

		// when
		statusCode = s.deleteByID(created.ID)

		// then
		require.Equal(t, http.StatusNoContent, statusCode)
		_, statusCode = s.findByID(created.ID)
		require.Equal(t, http.StatusNotFound, statusCode)

		// and deleting again reports not found
		statusCode = s.deleteByID(created.ID)
		require.Equal(t, http.StatusNotFound, statusCode)
	})
}

func (s *ProductAPIE2ESuite) TestFindAll_E2E() {
	s.T().Run("Find All Products - pagination envelope and sorting", func(t *testing.T) {
		s.SetupTest()
		// given
		for i, name := range []string{"Laptop", "Mouse", "Keyboard"} {
			payload := laptopPayload()
			payload.Name = name
			payload.SKU = fmt.Sprintf("SKU-%03d", i)
			payload.Price = float64(100 * (i + 1))
			_, statusCode := s.createProduct(payload)
			require.Equal(t, http.StatusCreated, statusCode)
		}

		// when
		page, statusCode := s.findPage(productURL + "?page=0&size=2&sortBy=name&direction=asc")

		// then
		require.Equal(t, http.StatusOK, statusCode)
		require.Len(t, page.Items, 2)
		require.Equal(t, int64(3), page.TotalItems)
		require.Equal(t, int32(2), page.TotalPages)
		require.Equal(t, int32(0), page.CurrentPage)
		require.Equal(t, int32(2), page.ItemsPerPage)
		require.Equal(t, "Keyboard", page.Items[0].Name)
		require.Equal(t, "Laptop", page.Items[1].Name)
	})
}

func (s *ProductAPIE2ESuite) TestFindAll_InvalidSort_E2E() {
	s.T().Run("Find All Products - invalid sort field", func(t *testing.T) {
		s.SetupTest()
		// when
		bodyBytes, statusCode := s.doRequest(http.MethodGet, s.server.URL+productURL+"?sortBy=color", nil)

		// then
		require.Equal(t, http.StatusBadRequest, statusCode)
		apiErr := s.decodeAPIError(bodyBytes)
		require.Equal(t, "PRODUCT_BAD_REQUEST", apiErr.ErrorCode)
		require.Contains(t, apiErr.Message, "name")
		require.Contains(t, apiErr.Message, "sku")
		require.Contains(t, apiErr.Message, "price")
	})
}

func (s *ProductAPIE2ESuite) TestFilter_E2E() {
	s.T().Run("Filter Products - combined criteria", func(t *testing.T) {
		s.SetupTest()
		// given
		items := []struct {
			name     string
			sku      string
			price    float64
			quantity int32
		}{
			{"Wireless Mouse", "WM-001", 29.99, 100},
			{"Wired Mouse", "M-002", 9.99, 200},
			{"Keyboard", "K-001", 89.99, 50},
		}
		for _, item := range items {
			payload := laptopPayload()
			payload.Name = item.name
			payload.SKU = item.sku
			payload.Price = item.price
			payload.Quantity = item.quantity
			_, statusCode := s.createProduct(payload)
			require.Equal(t, http.StatusCreated, statusCode)
		}

		// when / then: name only
		page, statusCode := s.findPage(productURL + "/filter?name=mouse")
		require.Equal(t, http.StatusOK, statusCode)
		require.Equal(t, int64(2), page.TotalItems)

		// price range only
		page, statusCode = s.findPage(productURL + "/filter?minPrice=20&maxPrice=100")
		require.Equal(t, http.StatusOK, statusCode)
		require.Equal(t, int64(2), page.TotalItems)

		// quantity range only
		page, statusCode = s.findPage(productURL + "/filter?minQuantity=100&maxQuantity=300")
		require.Equal(t, http.StatusOK, statusCode)
		require.Equal(t, int64(2), page.TotalItems)

		// combined predicates narrow the result
		page, statusCode = s.findPage(productURL + "/filter?name=mouse&minPrice=20")
		require.Equal(t, http.StatusOK, statusCode)
		require.Equal(t, int64(1), page.TotalItems)
		require.Equal(t, "Wireless Mouse", page.Items[0].Name)
	})
}

func (s *ProductAPIE2ESuite) TestFindLowStock_E2E() {
	s.T().Run("Find Low Stock Products", func(t *testing.T) {
		s.SetupTest()
		// given
		for i, quantity := range []int32{5, 10, 50} {
			payload := laptopPayload()
			payload.SKU = fmt.Sprintf("LS-%03d", i)
			payload.Quantity = quantity
			_, statusCode := s.createProduct(payload)
			require.Equal(t, http.StatusCreated, statusCode)
		}

		// when
		bodyBytes, statusCode := s.doRequest(http.MethodGet, s.server.URL+productURL+"/low-stock?threshold=10", nil)

		// then: the threshold is exclusive
		require.Equal(t, http.StatusOK, statusCode)
		var list []service.ProductDto
		require.NoError(t, json.Unmarshal(bodyBytes, &list))
		require.Len(t, list, 1)
		require.Equal(t, int32(5), list[0].Quantity)
	})
}

func (s *ProductAPIE2ESuite) TestFindBySKU_E2E() {
	s.T().Run("Find Product By SKU", func(t *testing.T) {
		s.SetupTest()
		// given
		created, statusCode := s.createProduct(laptopPayload())
		require.Equal(t, http.StatusCreated, statusCode)

		// when
		found, statusCode := s.doAndDecodeProduct(http.MethodGet, s.server.URL+productURL+"/sku/LAP-001", nil)

		// then
		require.Equal(t, http.StatusOK, statusCode)
		require.Equal(t, created.ID, found.ID)

		// and an unknown SKU is reported with its own message
		bodyBytes, statusCode := s.doRequest(http.MethodGet, s.server.URL+productURL+"/sku/NO-SUCH-SKU", nil)
		require.Equal(t, http.StatusNotFound, statusCode)
		apiErr := s.decodeAPIError(bodyBytes)
		require.Equal(t, "Product not found with SKU: NO-SUCH-SKU", apiErr.Message)
	})
}
