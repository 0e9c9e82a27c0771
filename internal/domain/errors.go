package domain

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists indicates a unique constraint was hit.
	ErrAlreadyExists = errors.New("already exists")
	// ErrEmptyCart is returned when checkout has no resolvable items.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrCartNotActive is returned when a converted or abandoned cart is mutated.
	ErrCartNotActive = errors.New("cart is not active")
	// ErrUnresolvableItems is returned under the reject policy when a cart line
	// references a product the catalog no longer knows.
	ErrUnresolvableItems = errors.New("cart contains products that are no longer available")
	// ErrCatalogUnavailable wraps transport or decoding failures of the catalog.
	ErrCatalogUnavailable = errors.New("catalog unavailable")
	// ErrOrderCreationFailed wraps persistence failures while writing an order.
	ErrOrderCreationFailed = errors.New("order creation failed")
	// ErrInvalidToken indicates a missing or mismatched cart session token.
	ErrInvalidToken = errors.New("invalid cart token")
	// ErrForbidden indicates a valid caller without the required role.
	ErrForbidden = errors.New("forbidden")
)

// ValidationError reports malformed input, keyed by field path.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	e.Fields[field] = msg
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
