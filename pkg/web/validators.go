package web

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"
)

// QueryString returns the value of a query parameter, or def when the parameter is absent.
func QueryString(r *http.Request, key, def string) string {
	value := r.URL.Query().Get(key)
	if value == "" {
		return def
	}
	return value
}

// QueryInt returns the integer value of a query parameter, or def when the parameter is absent.
// Returns an error if the value is present but not a valid integer.
func QueryInt(r *http.Request, key string, def int32) (int32, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return def, nil
	}
	intValue, err := strconv.ParseInt(value, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s number: %s", key, value)
	}
	return int32(intValue), nil
}

// QueryRequiredInt returns the integer value of a mandatory query parameter.
// Returns an error if the parameter is absent or not a valid integer.
func QueryRequiredInt(r *http.Request, key string) (int32, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return 0, fmt.Errorf("%s url parameter is required", key)
	}
	intValue, err := strconv.ParseInt(value, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s number: %s", key, value)
	}
	return int32(intValue), nil
}

// QueryIntPtr returns the integer value of an optional query parameter, or nil when absent.
func QueryIntPtr(r *http.Request, key string) (*int32, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return nil, nil
	}
	intValue, err := strconv.ParseInt(value, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s number: %s", key, value)
	}
	v := int32(intValue)
	return &v, nil
}

// QueryDecimal returns the decimal value of an optional query parameter, or nil when absent.
func QueryDecimal(r *http.Request, key string) (*decimal.Decimal, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s number: %s", key, value)
	}
	return &d, nil
}
