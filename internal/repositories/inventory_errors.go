package repositories

import (
	"fmt"
	"strings"
)

// InventoryErrorCode identifies the class of an inventory validation failure.
type InventoryErrorCode string

const (
	// InventoryErrorProductNotFound reports product ids absent from the catalog.
	InventoryErrorProductNotFound InventoryErrorCode = "product_not_found"
	// InventoryErrorInsufficientStock reports lines whose requested quantity
	// exceeds the currently available stock.
	InventoryErrorInsufficientStock InventoryErrorCode = "insufficient_stock"
)

// StockShortfall describes one offending order line.
type StockShortfall struct {
	ProductID string
	Requested int
	Available int
}

// InventoryError aggregates every offending line of an inventory check rather
// than failing fast on the first.
type InventoryError struct {
	Code       InventoryErrorCode
	MissingIDs []string
	Shortfalls []StockShortfall
	Op         string
}

// NewProductNotFoundError builds an aggregate missing-product error.
func NewProductNotFoundError(missingIDs []string) *InventoryError {
	return &InventoryError{Code: InventoryErrorProductNotFound, MissingIDs: missingIDs}
}

// NewInsufficientStockError builds an aggregate shortfall error.
func NewInsufficientStockError(shortfalls []StockShortfall) *InventoryError {
	return &InventoryError{Code: InventoryErrorInsufficientStock, Shortfalls: shortfalls}
}

func (e *InventoryError) Error() string {
	if e == nil {
		return ""
	}
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	switch e.Code {
	case InventoryErrorProductNotFound:
		sb.WriteString("products not found: ")
		sb.WriteString(strings.Join(e.MissingIDs, ", "))
	case InventoryErrorInsufficientStock:
		sb.WriteString("insufficient stock:")
		for _, line := range e.Shortfalls {
			fmt.Fprintf(&sb, " %s requested=%d available=%d;", line.ProductID, line.Requested, line.Available)
		}
	default:
		sb.WriteString("inventory error")
	}
	return strings.TrimSuffix(sb.String(), ";")
}
