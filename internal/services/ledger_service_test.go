package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/oesukam/mus-sub000/internal/domain"
	"github.com/oesukam/mus-sub000/internal/repositories"
)

func TestLedgerServiceCreateSaleAppliesDefaults(t *testing.T) {
	now := time.Date(2025, 1, 22, 11, 0, 0, 0, time.UTC)
	var created domain.Transaction

	transactions := &stubTransactionRepository{
		createFunc: func(ctx context.Context, entry domain.Transaction) (domain.Transaction, error) {
			created = entry
			entry.TransactionNumber = "SAL-RW2501-0000003"
			return entry, nil
		},
	}

	service := newTestLedgerService(t, LedgerServiceDeps{
		Transactions: transactions,
		Clock:        func() time.Time { return now },
		IDGenerator:  func() string { return "txn_fixed" },
	})

	entry, err := service.CreateSale(context.Background(), CreateSaleCommand{
		Amount:       8000,
		Subtotal:     8000,
		CustomerName: "Walk-in customer",
		Description:  "Market stall sale",
		RecordedBy:   "admin-2",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if created.ID != "txn_fixed" {
		t.Fatalf("expected generated id, got %q", created.ID)
	}
	if created.Type != domain.TransactionTypeSale {
		t.Fatalf("expected sale, got %s", created.Type)
	}
	if created.Country != "RW" || created.Currency != "RWF" {
		t.Fatalf("expected defaulted country/currency, got %q/%q", created.Country, created.Currency)
	}
	if !created.TransactionDate.Equal(now) {
		t.Fatalf("expected transaction date defaulted to %v, got %v", now, created.TransactionDate)
	}
	if created.OrderID != nil {
		t.Fatalf("direct sale must carry no order back-reference, got %v", created.OrderID)
	}
	if entry.TransactionNumber != "SAL-RW2501-0000003" {
		t.Fatalf("expected allocated number, got %q", entry.TransactionNumber)
	}
}

func TestLedgerServiceCreateSaleRejectsUnknownCurrency(t *testing.T) {
	service := newTestLedgerService(t, LedgerServiceDeps{Transactions: &stubTransactionRepository{}})

	_, err := service.CreateSale(context.Background(), CreateSaleCommand{
		Amount:     5000,
		Currency:   "ZZZ",
		RecordedBy: "admin-2",
	})
	if !errors.Is(err, ErrLedgerInvalidInput) {
		t.Fatalf("expected invalid input for ZZZ currency, got %v", err)
	}
}

func TestLedgerServiceCreateSaleValidation(t *testing.T) {
	service := newTestLedgerService(t, LedgerServiceDeps{Transactions: &stubTransactionRepository{}})
	ctx := context.Background()

	cases := []struct {
		name string
		cmd  CreateSaleCommand
	}{
		{name: "zero amount", cmd: CreateSaleCommand{RecordedBy: "admin-2"}},
		{name: "negative amount", cmd: CreateSaleCommand{Amount: -100, RecordedBy: "admin-2"}},
		{name: "missing recordedBy", cmd: CreateSaleCommand{Amount: 100}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := service.CreateSale(ctx, tc.cmd); !errors.Is(err, ErrLedgerInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestLedgerServiceCreateExpenseRequiresCategory(t *testing.T) {
	service := newTestLedgerService(t, LedgerServiceDeps{Transactions: &stubTransactionRepository{}})

	_, err := service.CreateExpense(context.Background(), CreateExpenseCommand{
		Amount:     3000,
		RecordedBy: "admin-2",
	})
	if !errors.Is(err, ErrLedgerInvalidInput) {
		t.Fatalf("expected invalid input without category, got %v", err)
	}
}

func TestLedgerServiceCreateExpenseCarriesVendorFields(t *testing.T) {
	date := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)
	var created domain.Transaction

	transactions := &stubTransactionRepository{
		createFunc: func(ctx context.Context, entry domain.Transaction) (domain.Transaction, error) {
			created = entry
			return entry, nil
		},
	}

	service := newTestLedgerService(t, LedgerServiceDeps{Transactions: transactions})

	_, err := service.CreateExpense(context.Background(), CreateExpenseCommand{
		ExpenseCategory: "logistics",
		Vendor:          "Kigali Couriers Ltd",
		InvoiceNumber:   "INV-2025-014",
		ReceiptURL:      "https://receipts.example.com/014.pdf",
		Amount:          45000,
		VATAmount:       6864,
		Description:     "January delivery runs",
		TransactionDate: date,
		RecordedBy:      "admin-2",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if created.Type != domain.TransactionTypeExpense {
		t.Fatalf("expected expense, got %s", created.Type)
	}
	if created.Vendor != "Kigali Couriers Ltd" || created.InvoiceNumber != "INV-2025-014" {
		t.Fatalf("expected vendor fields carried, got %q/%q", created.Vendor, created.InvoiceNumber)
	}
	if !created.TransactionDate.Equal(date) {
		t.Fatalf("expected explicit date kept, got %v", created.TransactionDate)
	}
}

func TestLedgerServiceGetSummaryPassesFilter(t *testing.T) {
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 1, 31, 23, 59, 59, 0, time.UTC)

	transactions := &stubTransactionRepository{
		summarizeFunc: func(ctx context.Context, filter repositories.SummaryFilter) (domain.LedgerSummary, error) {
			if filter.Country != "RW" {
				t.Fatalf("expected country filter RW, got %q", filter.Country)
			}
			if filter.From == nil || !filter.From.Equal(from) || filter.To == nil || !filter.To.Equal(to) {
				t.Fatalf("expected date range passed through, got %v..%v", filter.From, filter.To)
			}
			return domain.LedgerSummary{
				TotalSales:    250000,
				TotalExpenses: 90000,
				NetProfit:     160000,
				SalesCount:    14,
				ExpensesCount: 5,
			}, nil
		},
	}

	service := newTestLedgerService(t, LedgerServiceDeps{Transactions: transactions})

	summary, err := service.GetSummary(context.Background(), SummaryQuery{Country: "RW", From: &from, To: &to})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.NetProfit != summary.TotalSales-summary.TotalExpenses {
		t.Fatalf("net profit must equal sales minus expenses, got %+v", summary)
	}
	if summary.SalesCount != 14 || summary.ExpensesCount != 5 {
		t.Fatalf("unexpected counts %+v", summary)
	}
}

func TestLedgerServiceRejectsInvertedDateRange(t *testing.T) {
	from := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(-24 * time.Hour)

	service := newTestLedgerService(t, LedgerServiceDeps{Transactions: &stubTransactionRepository{}})
	ctx := context.Background()

	if _, err := service.GetSummary(ctx, SummaryQuery{From: &from, To: &to}); !errors.Is(err, ErrLedgerInvalidInput) {
		t.Fatalf("expected invalid input for summary range, got %v", err)
	}
	if _, err := service.ListTransactions(ctx, ListTransactionsQuery{From: &from, To: &to}); !errors.Is(err, ErrLedgerInvalidInput) {
		t.Fatalf("expected invalid input for list range, got %v", err)
	}
}

func TestLedgerServiceDeleteTransactionMapsNotFound(t *testing.T) {
	transactions := &stubTransactionRepository{
		deleteFunc: func(ctx context.Context, transactionID string) error {
			return &repositoryErrorStub{notFound: true}
		},
	}

	service := newTestLedgerService(t, LedgerServiceDeps{Transactions: transactions})

	err := service.DeleteTransaction(context.Background(), "txn-missing")
	if !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected transaction not found, got %v", err)
	}
}

func newTestLedgerService(t *testing.T, deps LedgerServiceDeps) LedgerService {
	t.Helper()
	service, err := NewLedgerService(deps)
	if err != nil {
		t.Fatalf("unexpected error constructing ledger service: %v", err)
	}
	return service
}
