package repositories

import (
	"context"
	"time"

	domain "github.com/oesukam/mus-sub000/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	UserID         string
	Country        string
	DeliveryStatus []domain.DeliveryStatus
	Pagination     domain.Pagination
}

// TransactionListFilter narrows ledger listings.
type TransactionListFilter struct {
	Type       *domain.TransactionType
	Country    string
	From       *time.Time
	To         *time.Time
	Pagination domain.Pagination
}

// SummaryFilter scopes the on-read financial aggregation.
type SummaryFilter struct {
	Country string
	From    *time.Time
	To      *time.Time
}

// OrderPaymentMutation describes the transactional mark-as-paid write. Apply
// runs inside the store transaction against the freshly read order: it returns
// the mutated order plus the sale ledger entry to insert alongside it. The
// entry's TransactionNumber is left empty and allocated by the store within
// the same transaction.
type OrderPaymentMutation struct {
	OrderID string
	Apply   func(order domain.Order) (domain.Order, domain.Transaction, error)
}

// OrderRepository persists order aggregates. Create is the atomic checkout
// write: it allocates the order number and decrements product stock in the
// same transaction as the order insert, rolling everything back together.
type OrderRepository interface {
	Create(ctx context.Context, order domain.Order) (domain.Order, error)
	Mutate(ctx context.Context, orderID string, fn func(order *domain.Order) error) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	// SetEmailMessageID records the dispatched confirmation message id. It is
	// a best-effort separate write and only sets the field when still empty.
	SetEmailMessageID(ctx context.Context, orderID string, messageID string) error
}

// TransactionRepository persists append-only ledger entries. There is no
// update operation; correction is an administrative delete.
type TransactionRepository interface {
	Create(ctx context.Context, entry domain.Transaction) (domain.Transaction, error)
	RecordOrderPayment(ctx context.Context, mutation OrderPaymentMutation) (domain.Order, domain.Transaction, error)
	FindByID(ctx context.Context, transactionID string) (domain.Transaction, error)
	List(ctx context.Context, filter TransactionListFilter) (domain.CursorPage[domain.Transaction], error)
	Delete(ctx context.Context, transactionID string) error
	Summarize(ctx context.Context, filter SummaryFilter) (domain.LedgerSummary, error)
}

// ProductRepository exposes the stock slice of the product catalog.
type ProductRepository interface {
	GetStock(ctx context.Context, productID string) (domain.ProductStock, error)
	// GetStocks fetches every requested product in one round trip. Missing ids
	// are simply absent from the result; callers aggregate them.
	GetStocks(ctx context.Context, productIDs []string) (map[string]domain.ProductStock, error)
	SetStock(ctx context.Context, stock domain.ProductStock) (domain.ProductStock, error)
}
