package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/oesukam/mus-sub000/internal/domain"
	"github.com/oesukam/mus-sub000/internal/repositories"
)

func TestInventoryServiceCheckAvailabilityAggregatesMissing(t *testing.T) {
	products := &stubProductRepository{
		getStocksFunc: func(ctx context.Context, ids []string) (map[string]domain.ProductStock, error) {
			return map[string]domain.ProductStock{
				"prod-1": {ProductID: "prod-1", Stock: 5, InStock: true},
			}, nil
		},
	}

	service := newTestInventoryService(t, InventoryServiceDeps{Products: products})

	err := service.CheckAvailability(context.Background(), []OrderLineInput{
		{ProductID: "prod-1", Quantity: 1},
		{ProductID: "ghost-1", Quantity: 1},
		{ProductID: "ghost-2", Quantity: 3},
	})

	var invErr *repositories.InventoryError
	if !errors.As(err, &invErr) {
		t.Fatalf("expected inventory error, got %v", err)
	}
	if invErr.Code != repositories.InventoryErrorProductNotFound {
		t.Fatalf("expected product_not_found, got %s", invErr.Code)
	}
	if len(invErr.MissingIDs) != 2 {
		t.Fatalf("expected both ghost ids, got %v", invErr.MissingIDs)
	}
}

func TestInventoryServiceCheckAvailabilityAggregatesShortfalls(t *testing.T) {
	products := &stubProductRepository{
		getStocksFunc: func(ctx context.Context, ids []string) (map[string]domain.ProductStock, error) {
			return map[string]domain.ProductStock{
				"prod-1": {ProductID: "prod-1", Stock: 2, InStock: true},
				"prod-2": {ProductID: "prod-2", Stock: 0, InStock: false},
				"prod-3": {ProductID: "prod-3", Stock: 50, InStock: true},
			}, nil
		},
	}

	service := newTestInventoryService(t, InventoryServiceDeps{Products: products})

	err := service.CheckAvailability(context.Background(), []OrderLineInput{
		{ProductID: "prod-1", Quantity: 5},
		{ProductID: "prod-2", Quantity: 1},
		{ProductID: "prod-3", Quantity: 10},
	})

	var invErr *repositories.InventoryError
	if !errors.As(err, &invErr) {
		t.Fatalf("expected inventory error, got %v", err)
	}
	if invErr.Code != repositories.InventoryErrorInsufficientStock {
		t.Fatalf("expected insufficient_stock, got %s", invErr.Code)
	}
	if len(invErr.Shortfalls) != 2 {
		t.Fatalf("expected 2 shortfalls, got %v", invErr.Shortfalls)
	}
	first := invErr.Shortfalls[0]
	if first.ProductID != "prod-1" || first.Requested != 5 || first.Available != 2 {
		t.Fatalf("unexpected shortfall %+v", first)
	}
}

func TestInventoryServiceCheckAvailabilitySumsDuplicateLines(t *testing.T) {
	products := &stubProductRepository{
		getStocksFunc: func(ctx context.Context, ids []string) (map[string]domain.ProductStock, error) {
			if len(ids) != 1 {
				t.Fatalf("expected duplicate lines collapsed to one id, got %v", ids)
			}
			return map[string]domain.ProductStock{
				"prod-1": {ProductID: "prod-1", Stock: 3, InStock: true},
			}, nil
		},
	}

	service := newTestInventoryService(t, InventoryServiceDeps{Products: products})

	err := service.CheckAvailability(context.Background(), []OrderLineInput{
		{ProductID: "prod-1", Quantity: 2},
		{ProductID: "prod-1", Quantity: 2},
	})

	var invErr *repositories.InventoryError
	if !errors.As(err, &invErr) {
		t.Fatalf("expected shortfall on summed quantity 4 > 3, got %v", err)
	}
	if invErr.Shortfalls[0].Requested != 4 {
		t.Fatalf("expected summed requested 4, got %d", invErr.Shortfalls[0].Requested)
	}
}

func TestInventoryServiceCheckAvailabilityPassesWhenStocked(t *testing.T) {
	products := &stubProductRepository{
		getStocksFunc: func(ctx context.Context, ids []string) (map[string]domain.ProductStock, error) {
			return map[string]domain.ProductStock{
				"prod-1": {ProductID: "prod-1", Stock: 10, InStock: true},
			}, nil
		},
	}

	service := newTestInventoryService(t, InventoryServiceDeps{Products: products})

	if err := service.CheckAvailability(context.Background(), []OrderLineInput{{ProductID: "prod-1", Quantity: 10}}); err != nil {
		t.Fatalf("expected availability check to pass, got %v", err)
	}
}

func TestInventoryServiceSetStockValidation(t *testing.T) {
	service := newTestInventoryService(t, InventoryServiceDeps{Products: &stubProductRepository{}})
	ctx := context.Background()

	if _, err := service.SetStock(ctx, SetStockCommand{ProductID: "", Stock: 5}); !errors.Is(err, ErrInventoryInvalidInput) {
		t.Fatalf("expected invalid input for empty id, got %v", err)
	}
	if _, err := service.SetStock(ctx, SetStockCommand{ProductID: "prod-1", Stock: -1}); !errors.Is(err, ErrInventoryInvalidInput) {
		t.Fatalf("expected invalid input for negative stock, got %v", err)
	}
}

func TestInventoryServiceSetStockReturnsDerivedFlag(t *testing.T) {
	products := &stubProductRepository{
		setStockFunc: func(ctx context.Context, stock domain.ProductStock) (domain.ProductStock, error) {
			stock.InStock = stock.Stock > 0
			return stock, nil
		},
	}

	service := newTestInventoryService(t, InventoryServiceDeps{Products: products})

	updated, err := service.SetStock(context.Background(), SetStockCommand{ProductID: "prod-1", Stock: 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.InStock {
		t.Fatalf("expected inStock false at zero stock")
	}
}

func TestInventoryServiceGetStockMapsNotFound(t *testing.T) {
	products := &stubProductRepository{
		getStockFunc: func(ctx context.Context, productID string) (domain.ProductStock, error) {
			return domain.ProductStock{}, &repositoryErrorStub{notFound: true}
		},
	}

	service := newTestInventoryService(t, InventoryServiceDeps{Products: products})

	if _, err := service.GetStock(context.Background(), "prod-missing"); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected product not found, got %v", err)
	}
}

func newTestInventoryService(t *testing.T, deps InventoryServiceDeps) InventoryService {
	t.Helper()
	service, err := NewInventoryService(deps)
	if err != nil {
		t.Fatalf("unexpected error constructing inventory service: %v", err)
	}
	return service
}
