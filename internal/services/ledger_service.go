package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/text/currency"

	domain "github.com/oesukam/mus-sub000/internal/domain"
	"github.com/oesukam/mus-sub000/internal/repositories"
)

var (
	// ErrLedgerInvalidInput indicates the caller supplied invalid input.
	ErrLedgerInvalidInput = errors.New("ledger service: invalid input")
	// ErrTransactionNotFound indicates the requested ledger entry does not exist.
	ErrTransactionNotFound = errors.New("ledger service: transaction not found")
	// ErrLedgerUnavailable indicates the backing store cannot be reached.
	ErrLedgerUnavailable = errors.New("ledger service: unavailable")
)

// LedgerServiceDeps wires the ledger collaborators.
type LedgerServiceDeps struct {
	Transactions    repositories.TransactionRepository
	Clock           func() time.Time
	IDGenerator     func() string
	DefaultCountry  string
	DefaultCurrency string
	Logger          func(context.Context, string, map[string]any)
}

type ledgerService struct {
	transactions repositories.TransactionRepository
	now          func() time.Time
	newID        func() string
	country      string
	currency     string
	logger       func(context.Context, string, map[string]any)
}

// NewLedgerService constructs a LedgerService enforcing dependency validation.
func NewLedgerService(deps LedgerServiceDeps) (LedgerService, error) {
	if deps.Transactions == nil {
		return nil, errors.New("ledger service: transaction repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return "txn_" + ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	country := strings.ToUpper(strings.TrimSpace(deps.DefaultCountry))
	if country == "" {
		country = "RW"
	}
	defaultCurrency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if defaultCurrency == "" {
		defaultCurrency = "RWF"
	}
	return &ledgerService{
		transactions: deps.Transactions,
		now:          func() time.Time { return clock().UTC() },
		newID:        idGen,
		country:      country,
		currency:     defaultCurrency,
		logger:       logger,
	}, nil
}

// CreateSale records a direct sale entry with no order back-reference and no
// inventory interaction.
func (s *ledgerService) CreateSale(ctx context.Context, cmd CreateSaleCommand) (domain.Transaction, error) {
	if s == nil || s.transactions == nil {
		return domain.Transaction{}, ErrLedgerUnavailable
	}
	if cmd.Amount <= 0 {
		return domain.Transaction{}, fmt.Errorf("%w: amount must be > 0", ErrLedgerInvalidInput)
	}
	country, cur, err := s.resolveScope(cmd.Country, cmd.Currency)
	if err != nil {
		return domain.Transaction{}, err
	}
	recordedBy := strings.TrimSpace(cmd.RecordedBy)
	if recordedBy == "" {
		return domain.Transaction{}, fmt.Errorf("%w: recordedBy is required", ErrLedgerInvalidInput)
	}

	entry := domain.Transaction{
		ID:               s.newID(),
		Type:             domain.TransactionTypeSale,
		Country:          country,
		Currency:         cur,
		Items:            append([]domain.OrderItem(nil), cmd.Items...),
		CustomerName:     strings.TrimSpace(cmd.CustomerName),
		CustomerEmail:    strings.TrimSpace(cmd.CustomerEmail),
		CustomerPhone:    strings.TrimSpace(cmd.CustomerPhone),
		PaymentMethod:    strings.TrimSpace(cmd.PaymentMethod),
		PaymentReference: strings.TrimSpace(cmd.PaymentReference),
		Amount:           cmd.Amount,
		Subtotal:         cmd.Subtotal,
		VATAmount:        cmd.VATAmount,
		Description:      strings.TrimSpace(cmd.Description),
		TransactionDate:  s.resolveDate(cmd.TransactionDate),
		RecordedBy:       recordedBy,
	}

	created, err := s.transactions.Create(ctx, entry)
	if err != nil {
		return domain.Transaction{}, s.mapLedgerError(err)
	}
	s.logger(ctx, "ledger.sale_created", map[string]any{
		"transactionNumber": created.TransactionNumber,
		"amount":            created.Amount,
	})
	return created, nil
}

// CreateExpense records an outgoing entry carrying vendor fields instead of
// an items snapshot.
func (s *ledgerService) CreateExpense(ctx context.Context, cmd CreateExpenseCommand) (domain.Transaction, error) {
	if s == nil || s.transactions == nil {
		return domain.Transaction{}, ErrLedgerUnavailable
	}
	if cmd.Amount <= 0 {
		return domain.Transaction{}, fmt.Errorf("%w: amount must be > 0", ErrLedgerInvalidInput)
	}
	category := strings.TrimSpace(cmd.ExpenseCategory)
	if category == "" {
		return domain.Transaction{}, fmt.Errorf("%w: expense category is required", ErrLedgerInvalidInput)
	}
	country, cur, err := s.resolveScope(cmd.Country, cmd.Currency)
	if err != nil {
		return domain.Transaction{}, err
	}
	recordedBy := strings.TrimSpace(cmd.RecordedBy)
	if recordedBy == "" {
		return domain.Transaction{}, fmt.Errorf("%w: recordedBy is required", ErrLedgerInvalidInput)
	}

	entry := domain.Transaction{
		ID:              s.newID(),
		Type:            domain.TransactionTypeExpense,
		Country:         country,
		Currency:        cur,
		ExpenseCategory: category,
		Vendor:          strings.TrimSpace(cmd.Vendor),
		InvoiceNumber:   strings.TrimSpace(cmd.InvoiceNumber),
		ReceiptURL:      strings.TrimSpace(cmd.ReceiptURL),
		Amount:          cmd.Amount,
		VATAmount:       cmd.VATAmount,
		Description:     strings.TrimSpace(cmd.Description),
		TransactionDate: s.resolveDate(cmd.TransactionDate),
		RecordedBy:      recordedBy,
	}

	created, err := s.transactions.Create(ctx, entry)
	if err != nil {
		return domain.Transaction{}, s.mapLedgerError(err)
	}
	s.logger(ctx, "ledger.expense_created", map[string]any{
		"transactionNumber": created.TransactionNumber,
		"amount":            created.Amount,
		"category":          category,
	})
	return created, nil
}

func (s *ledgerService) GetTransaction(ctx context.Context, transactionID string) (domain.Transaction, error) {
	if s == nil || s.transactions == nil {
		return domain.Transaction{}, ErrLedgerUnavailable
	}
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return domain.Transaction{}, fmt.Errorf("%w: transaction id is required", ErrLedgerInvalidInput)
	}

	entry, err := s.transactions.FindByID(ctx, transactionID)
	if err != nil {
		return domain.Transaction{}, s.mapLedgerError(err)
	}
	return entry, nil
}

func (s *ledgerService) ListTransactions(ctx context.Context, query ListTransactionsQuery) (domain.CursorPage[domain.Transaction], error) {
	if s == nil || s.transactions == nil {
		return domain.CursorPage[domain.Transaction]{}, ErrLedgerUnavailable
	}
	if query.From != nil && query.To != nil && query.To.Before(*query.From) {
		return domain.CursorPage[domain.Transaction]{}, fmt.Errorf("%w: date range end precedes start", ErrLedgerInvalidInput)
	}

	page, err := s.transactions.List(ctx, repositories.TransactionListFilter{
		Type:    query.Type,
		Country: strings.TrimSpace(query.Country),
		From:    query.From,
		To:      query.To,
		Pagination: domain.Pagination{
			PageSize:  query.PageSize,
			PageToken: query.PageToken,
		},
	})
	if err != nil {
		return domain.CursorPage[domain.Transaction]{}, s.mapLedgerError(err)
	}
	return page, nil
}

// DeleteTransaction is the administrative correction path; ledger entries
// are never updated in place.
func (s *ledgerService) DeleteTransaction(ctx context.Context, transactionID string) error {
	if s == nil || s.transactions == nil {
		return ErrLedgerUnavailable
	}
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return fmt.Errorf("%w: transaction id is required", ErrLedgerInvalidInput)
	}

	if err := s.transactions.Delete(ctx, transactionID); err != nil {
		return s.mapLedgerError(err)
	}
	s.logger(ctx, "ledger.transaction_deleted", map[string]any{
		"transactionID": transactionID,
	})
	return nil
}

func (s *ledgerService) GetSummary(ctx context.Context, query SummaryQuery) (domain.LedgerSummary, error) {
	if s == nil || s.transactions == nil {
		return domain.LedgerSummary{}, ErrLedgerUnavailable
	}
	if query.From != nil && query.To != nil && query.To.Before(*query.From) {
		return domain.LedgerSummary{}, fmt.Errorf("%w: date range end precedes start", ErrLedgerInvalidInput)
	}

	summary, err := s.transactions.Summarize(ctx, repositories.SummaryFilter{
		Country: strings.TrimSpace(query.Country),
		From:    query.From,
		To:      query.To,
	})
	if err != nil {
		return domain.LedgerSummary{}, s.mapLedgerError(err)
	}
	return summary, nil
}

func (s *ledgerService) resolveScope(countryInput, currencyInput string) (string, string, error) {
	country := strings.ToUpper(strings.TrimSpace(countryInput))
	if country == "" {
		country = s.country
	}
	if len(country) != 2 {
		return "", "", fmt.Errorf("%w: country must be a 2-letter code", ErrLedgerInvalidInput)
	}

	cur := strings.ToUpper(strings.TrimSpace(currencyInput))
	if cur == "" {
		cur = s.currency
	}
	if _, err := currency.ParseISO(cur); err != nil {
		return "", "", fmt.Errorf("%w: unknown currency %q", ErrLedgerInvalidInput, cur)
	}
	return country, cur, nil
}

func (s *ledgerService) resolveDate(date time.Time) time.Time {
	if date.IsZero() {
		return s.now()
	}
	return date.UTC()
}

func (s *ledgerService) mapLedgerError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrTransactionNotFound, err)
		case repoErr.IsUnavailable(), repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
}
