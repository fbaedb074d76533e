package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/oesukam/mus-sub000/internal/domain"
	"github.com/oesukam/mus-sub000/internal/services"
)

type stubLedgerService struct {
	saleFn    func(context.Context, services.CreateSaleCommand) (domain.Transaction, error)
	expenseFn func(context.Context, services.CreateExpenseCommand) (domain.Transaction, error)
	getFn     func(context.Context, string) (domain.Transaction, error)
	listFn    func(context.Context, services.ListTransactionsQuery) (domain.CursorPage[domain.Transaction], error)
	deleteFn  func(context.Context, string) error
	summaryFn func(context.Context, services.SummaryQuery) (domain.LedgerSummary, error)
}

func (s *stubLedgerService) CreateSale(ctx context.Context, cmd services.CreateSaleCommand) (domain.Transaction, error) {
	if s.saleFn != nil {
		return s.saleFn(ctx, cmd)
	}
	return domain.Transaction{}, errors.New("not implemented")
}

func (s *stubLedgerService) CreateExpense(ctx context.Context, cmd services.CreateExpenseCommand) (domain.Transaction, error) {
	if s.expenseFn != nil {
		return s.expenseFn(ctx, cmd)
	}
	return domain.Transaction{}, errors.New("not implemented")
}

func (s *stubLedgerService) GetTransaction(ctx context.Context, transactionID string) (domain.Transaction, error) {
	if s.getFn != nil {
		return s.getFn(ctx, transactionID)
	}
	return domain.Transaction{}, errors.New("not implemented")
}

func (s *stubLedgerService) ListTransactions(ctx context.Context, query services.ListTransactionsQuery) (domain.CursorPage[domain.Transaction], error) {
	if s.listFn != nil {
		return s.listFn(ctx, query)
	}
	return domain.CursorPage[domain.Transaction]{}, nil
}

func (s *stubLedgerService) DeleteTransaction(ctx context.Context, transactionID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, transactionID)
	}
	return errors.New("not implemented")
}

func (s *stubLedgerService) GetSummary(ctx context.Context, query services.SummaryQuery) (domain.LedgerSummary, error) {
	if s.summaryFn != nil {
		return s.summaryFn(ctx, query)
	}
	return domain.LedgerSummary{}, errors.New("not implemented")
}

func newLedgerRouter(service services.LedgerService) chi.Router {
	r := chi.NewRouter()
	NewLedgerHandlers(nil, service).Routes(r)
	return r
}

func TestLedgerHandlersCreateExpense(t *testing.T) {
	var captured services.CreateExpenseCommand
	service := &stubLedgerService{
		expenseFn: func(ctx context.Context, cmd services.CreateExpenseCommand) (domain.Transaction, error) {
			captured = cmd
			return domain.Transaction{
				ID:                "txn_1",
				TransactionNumber: "EXP-RW2501-0000001",
				Type:              domain.TransactionTypeExpense,
				Amount:            cmd.Amount,
			}, nil
		},
	}

	body := `{
		"expense_category": "logistics",
		"vendor": "Kigali Couriers Ltd",
		"amount": 45000,
		"transaction_date": "2025-01-05T00:00:00Z"
	}`
	req := adminRequest(http.MethodPost, "/transactions/expenses", body)
	rr := httptest.NewRecorder()
	newLedgerRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.ExpenseCategory != "logistics" || captured.Amount != 45000 {
		t.Fatalf("unexpected command %+v", captured)
	}
	if captured.RecordedBy != "admin-1" {
		t.Fatalf("expected recordedBy from identity, got %q", captured.RecordedBy)
	}
	want := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)
	if !captured.TransactionDate.Equal(want) {
		t.Fatalf("expected parsed transaction date, got %v", captured.TransactionDate)
	}
}

func TestLedgerHandlersListTransactionsRejectsUnknownType(t *testing.T) {
	req := adminRequest(http.MethodGet, "/transactions?type=refund", "")
	rr := httptest.NewRecorder()
	newLedgerRouter(&stubLedgerService{}).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestLedgerHandlersGetSummary(t *testing.T) {
	service := &stubLedgerService{
		summaryFn: func(ctx context.Context, query services.SummaryQuery) (domain.LedgerSummary, error) {
			return domain.LedgerSummary{
				TotalSales:    250000,
				TotalExpenses: 90000,
				NetProfit:     160000,
				SalesCount:    14,
				ExpensesCount: 5,
			}, nil
		},
	}

	req := adminRequest(http.MethodGet, "/transactions/summary", "")
	rr := httptest.NewRecorder()
	newLedgerRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp summaryResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.NetProfit != 160000 || resp.SalesCount != 14 || resp.ExpensesCount != 5 {
		t.Fatalf("unexpected summary %+v", resp)
	}
}

func TestLedgerHandlersDeleteTransaction(t *testing.T) {
	var deleted string
	service := &stubLedgerService{
		deleteFn: func(ctx context.Context, transactionID string) error {
			deleted = transactionID
			return nil
		},
	}

	req := adminRequest(http.MethodDelete, "/transactions/txn_1", "")
	rr := httptest.NewRecorder()
	newLedgerRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if deleted != "txn_1" {
		t.Fatalf("expected txn_1 deleted, got %q", deleted)
	}
}

func TestLedgerHandlersDeleteTransactionNotFound(t *testing.T) {
	service := &stubLedgerService{
		deleteFn: func(ctx context.Context, transactionID string) error {
			return services.ErrTransactionNotFound
		},
	}

	req := adminRequest(http.MethodDelete, "/transactions/txn_missing", "")
	rr := httptest.NewRecorder()
	newLedgerRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}
