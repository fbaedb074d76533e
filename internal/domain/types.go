package domain

import "time"

// PaymentStatus tracks the financial state of an order, independent of delivery.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusPaid      PaymentStatus = "PAID"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
)

// TransactionType distinguishes ledger entry kinds. The sign of the amount is
// implied by the type; amounts are always stored positive.
type TransactionType string

const (
	TransactionTypeSale    TransactionType = "sale"
	TransactionTypeExpense TransactionType = "expense"
)

// Contact captures the recipient details supplied at checkout.
type Contact struct {
	Name  string
	Email string
	Phone string
}

// Address is the shipping destination snapshot stored on the order.
type Address struct {
	Line1      string
	Line2      string
	City       string
	District   string
	Country    string
	PostalCode string
}

// OrderItem is an immutable line-item snapshot taken at order creation.
// Catalog changes after placement never alter it. Monetary values are minor
// currency units; TaxRate is a percentage.
type OrderItem struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice int64
	TaxRate   float64
	TaxAmount int64
	Total     int64
}

// StatusHistoryEntry records one step of the canonical delivery timeline.
// A nil Timestamp marks a step that has not been reached yet.
type StatusHistoryEntry struct {
	Status    DeliveryStatus
	Timestamp *time.Time
	UpdatedBy *string
	Notes     string
}

// Order is the aggregate owned by the order lifecycle. It is created once at
// checkout and mutated only through delivery-status transitions, payment
// recording, and note annotation.
type Order struct {
	ID          string
	OrderNumber string
	Country     string
	Currency    string
	UserID      *string

	Customer        Contact
	ShippingAddress Address

	Items       []OrderItem
	Subtotal    int64
	TaxAmount   int64
	TotalAmount int64

	DeliveryStatus DeliveryStatus
	PaymentStatus  PaymentStatus

	PaymentMethod    string
	PaidAt           *time.Time
	PaymentReference string
	PaymentNotes     string

	TrackingNumber        string
	Carrier               string
	EstimatedDeliveryDate *time.Time
	ActualDeliveryDate    *time.Time
	DeliveryNotes         string

	StatusHistory []StatusHistoryEntry

	EmailMessageID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transaction is an append-only ledger entry. Sales may carry an order
// back-reference and an items snapshot; expenses carry vendor fields instead.
// No update operation exists; correction is delete-by-id.
type Transaction struct {
	ID                string
	TransactionNumber string
	Type              TransactionType
	OrderID           *string

	Country  string
	Currency string

	Items         []OrderItem
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	UserID        *string

	PaymentMethod    string
	PaymentReference string

	ExpenseCategory string
	Vendor          string
	InvoiceNumber   string
	ReceiptURL      string

	Amount    int64
	Subtotal  int64
	VATAmount int64

	Description     string
	TransactionDate time.Time
	RecordedBy      string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProductStock is the slice of the product catalog the inventory ledger
// depends on: stock levels plus the pricing fields snapshotted onto order
// items at checkout. The wider catalog lives with an external collaborator.
type ProductStock struct {
	ProductID string
	Name      string
	Stock     int
	InStock   bool
	UnitPrice int64
	TaxRate   float64
	UpdatedAt time.Time
}

// LedgerSummary aggregates sale and expense totals over a filtered set of
// transactions. It is computed on read; no materialised aggregate exists.
type LedgerSummary struct {
	TotalSales    int64
	TotalExpenses int64
	NetProfit     int64
	SalesCount    int
	ExpensesCount int
}

// Pagination carries cursor paging inputs for list queries.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage is a single page of results plus the token for the next page.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}
