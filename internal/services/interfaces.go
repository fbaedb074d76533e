package services

import (
	"context"
	"time"

	domain "github.com/oesukam/mus-sub000/internal/domain"
)

// OrderLineInput is one requested line of a checkout or availability check.
type OrderLineInput struct {
	ProductID string
	Quantity  int
}

// CreateOrderCommand carries everything needed to place an order. Pricing is
// never taken from the caller; it is snapshotted from the catalog.
type CreateOrderCommand struct {
	Items           []OrderLineInput
	Customer        domain.Contact
	ShippingAddress domain.Address
	Country         string
	Currency        string
	PaymentMethod   string
	UserID          *string
}

// ListOrdersQuery narrows and paginates order listings.
type ListOrdersQuery struct {
	UserID    string
	Country   string
	Statuses  []domain.DeliveryStatus
	PageSize  int
	PageToken string
}

// TransitionDeliveryStatusCommand moves an order along the delivery state
// machine. Tracking fields are applied together with the transition.
type TransitionDeliveryStatusCommand struct {
	OrderID               string
	Status                domain.DeliveryStatus
	Notes                 string
	TrackingNumber        string
	Carrier               string
	EstimatedDeliveryDate *time.Time
	UpdatedBy             string
}

// AddDeliveryNotesCommand annotates an order without a status change.
type AddDeliveryNotesCommand struct {
	OrderID   string
	Notes     string
	UpdatedBy string
}

// TrackOrderCommand is the public tracking request. At least one of Email or
// Phone is required.
type TrackOrderCommand struct {
	OrderNumber string
	Email       string
	Phone       string
}

// TimelineStep is one step of the canonical four-step delivery timeline.
type TimelineStep struct {
	Status    domain.DeliveryStatus
	Timestamp *time.Time
	Completed bool
	Current   bool
	Notes     string
}

// TrackedOrder pairs an order with its timeline projection.
type TrackedOrder struct {
	Order    domain.Order
	Timeline []TimelineStep
}

// MarkAsPaidCommand records an administrative payment confirmation.
type MarkAsPaidCommand struct {
	OrderID       string
	PaymentMethod string
	Reference     string
	Notes         string
	AdminID       string
}

// PaymentResult is the outcome of MarkAsPaid: the updated order plus the
// sale ledger entry created alongside it.
type PaymentResult struct {
	Order domain.Order
	Entry domain.Transaction
}

// CreateSaleCommand records a direct sale with no order back-reference.
type CreateSaleCommand struct {
	Country          string
	Currency         string
	Items            []domain.OrderItem
	CustomerName     string
	CustomerEmail    string
	CustomerPhone    string
	PaymentMethod    string
	PaymentReference string
	Amount           int64
	Subtotal         int64
	VATAmount        int64
	Description      string
	TransactionDate  time.Time
	RecordedBy       string
}

// CreateExpenseCommand records an outgoing ledger entry.
type CreateExpenseCommand struct {
	Country         string
	Currency        string
	ExpenseCategory string
	Vendor          string
	InvoiceNumber   string
	ReceiptURL      string
	Amount          int64
	VATAmount       int64
	Description     string
	TransactionDate time.Time
	RecordedBy      string
}

// ListTransactionsQuery narrows and paginates ledger listings.
type ListTransactionsQuery struct {
	Type      *domain.TransactionType
	Country   string
	From      *time.Time
	To        *time.Time
	PageSize  int
	PageToken string
}

// SummaryQuery scopes the on-read financial aggregation.
type SummaryQuery struct {
	Country string
	From    *time.Time
	To      *time.Time
}

// SetStockCommand replaces a product's stock level.
type SetStockCommand struct {
	ProductID string
	Stock     int
}

// Mail templates published to the mail topic.
const (
	MailTemplateOrderConfirmation   = "order-confirmation"
	MailTemplateDeliveryStatus      = "delivery-status-update"
	MailTemplatePaymentConfirmation = "payment-confirmation"
)

// OrderMailMessage is the payload handed to the mail worker via Pub/Sub.
type OrderMailMessage struct {
	Template    string            `json:"template"`
	OrderID     string            `json:"orderId"`
	OrderNumber string            `json:"orderNumber"`
	Recipient   string            `json:"recipient"`
	Variables   map[string]string `json:"variables,omitempty"`
}

// MailPublisher hands mail jobs to the broker and returns the broker message id.
type MailPublisher interface {
	PublishOrderMail(ctx context.Context, message OrderMailMessage) (string, error)
}

// OrderService owns the order lifecycle from checkout to delivery.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (domain.Order, error)
	ListOrders(ctx context.Context, query ListOrdersQuery) (domain.CursorPage[domain.Order], error)
	TransitionDeliveryStatus(ctx context.Context, cmd TransitionDeliveryStatusCommand) (domain.Order, error)
	AddDeliveryNotes(ctx context.Context, cmd AddDeliveryNotesCommand) (domain.Order, error)
	TrackOrder(ctx context.Context, cmd TrackOrderCommand) (TrackedOrder, error)
}

// PaymentService records payment confirmations against orders.
type PaymentService interface {
	MarkAsPaid(ctx context.Context, cmd MarkAsPaidCommand) (PaymentResult, error)
}

// LedgerService owns the append-only financial ledger.
type LedgerService interface {
	CreateSale(ctx context.Context, cmd CreateSaleCommand) (domain.Transaction, error)
	CreateExpense(ctx context.Context, cmd CreateExpenseCommand) (domain.Transaction, error)
	GetTransaction(ctx context.Context, transactionID string) (domain.Transaction, error)
	ListTransactions(ctx context.Context, query ListTransactionsQuery) (domain.CursorPage[domain.Transaction], error)
	DeleteTransaction(ctx context.Context, transactionID string) error
	GetSummary(ctx context.Context, query SummaryQuery) (domain.LedgerSummary, error)
}

// InventoryService exposes stock reads and administrative stock updates.
type InventoryService interface {
	GetStock(ctx context.Context, productID string) (domain.ProductStock, error)
	CheckAvailability(ctx context.Context, lines []OrderLineInput) error
	SetStock(ctx context.Context, cmd SetStockCommand) (domain.ProductStock, error)
}
