package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/oesukam/mus-sub000/internal/domain"
	"github.com/oesukam/mus-sub000/internal/repositories"
)

var (
	// ErrInventoryInvalidInput indicates the caller supplied invalid input.
	ErrInventoryInvalidInput = errors.New("inventory service: invalid input")
	// ErrInventoryUnavailable indicates the backing store cannot be reached.
	ErrInventoryUnavailable = errors.New("inventory service: unavailable")
	// ErrProductNotFound indicates the requested product does not exist.
	ErrProductNotFound = errors.New("inventory service: product not found")
)

// InventoryServiceDeps wires the product repository into the inventory service.
type InventoryServiceDeps struct {
	Products repositories.ProductRepository
	Clock    func() time.Time
	Logger   func(context.Context, string, map[string]any)
}

type inventoryService struct {
	products repositories.ProductRepository
	now      func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewInventoryService constructs an InventoryService enforcing dependency validation.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Products == nil {
		return nil, errors.New("inventory service: product repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &inventoryService{
		products: deps.Products,
		now:      func() time.Time { return clock().UTC() },
		logger:   logger,
	}, nil
}

func (s *inventoryService) GetStock(ctx context.Context, productID string) (domain.ProductStock, error) {
	if s == nil || s.products == nil {
		return domain.ProductStock{}, ErrInventoryUnavailable
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.ProductStock{}, fmt.Errorf("%w: product id is required", ErrInventoryInvalidInput)
	}

	stock, err := s.products.GetStock(ctx, productID)
	if err != nil {
		return domain.ProductStock{}, s.mapRepositoryError(err)
	}
	return stock, nil
}

// CheckAvailability validates every requested line against current stock and
// aggregates all failures per category instead of failing fast. It is a
// courtesy pre-check; the order repository re-validates inside its
// transaction.
func (s *inventoryService) CheckAvailability(ctx context.Context, lines []OrderLineInput) error {
	if s == nil || s.products == nil {
		return ErrInventoryUnavailable
	}
	if len(lines) == 0 {
		return fmt.Errorf("%w: at least one line is required", ErrInventoryInvalidInput)
	}

	quantities := make(map[string]int, len(lines))
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		id := strings.TrimSpace(line.ProductID)
		if id == "" {
			return fmt.Errorf("%w: product id is required", ErrInventoryInvalidInput)
		}
		if line.Quantity <= 0 {
			return fmt.Errorf("%w: quantity for %s must be > 0", ErrInventoryInvalidInput, id)
		}
		if _, seen := quantities[id]; !seen {
			ids = append(ids, id)
		}
		quantities[id] += line.Quantity
	}

	stocks, err := s.products.GetStocks(ctx, ids)
	if err != nil {
		return s.mapRepositoryError(err)
	}

	var missing []string
	var shortfalls []repositories.StockShortfall
	for _, id := range ids {
		stock, ok := stocks[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		if stock.Stock < quantities[id] {
			shortfalls = append(shortfalls, repositories.StockShortfall{
				ProductID: id,
				Requested: quantities[id],
				Available: stock.Stock,
			})
		}
	}
	if len(missing) > 0 {
		return repositories.NewProductNotFoundError(missing)
	}
	if len(shortfalls) > 0 {
		return repositories.NewInsufficientStockError(shortfalls)
	}
	return nil
}

func (s *inventoryService) SetStock(ctx context.Context, cmd SetStockCommand) (domain.ProductStock, error) {
	if s == nil || s.products == nil {
		return domain.ProductStock{}, ErrInventoryUnavailable
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return domain.ProductStock{}, fmt.Errorf("%w: product id is required", ErrInventoryInvalidInput)
	}
	if cmd.Stock < 0 {
		return domain.ProductStock{}, fmt.Errorf("%w: stock must be >= 0", ErrInventoryInvalidInput)
	}

	updated, err := s.products.SetStock(ctx, domain.ProductStock{ProductID: productID, Stock: cmd.Stock})
	if err != nil {
		return domain.ProductStock{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "inventory.stock_set", map[string]any{
		"productID": productID,
		"stock":     updated.Stock,
		"inStock":   updated.InStock,
	})
	return updated, nil
}

func (s *inventoryService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrProductNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrInventoryUnavailable, err)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrInventoryUnavailable, err)
}
