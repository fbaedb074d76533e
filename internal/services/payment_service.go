package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/oesukam/mus-sub000/internal/domain"
	"github.com/oesukam/mus-sub000/internal/repositories"
)

var (
	// ErrPaymentInvalidInput indicates the caller supplied invalid input.
	ErrPaymentInvalidInput = errors.New("payment service: invalid input")
	// ErrPaymentOrderNotFound indicates the order to pay does not exist.
	ErrPaymentOrderNotFound = errors.New("payment service: order not found")
	// ErrAlreadyPaid indicates the order has already been marked paid. The
	// guard runs inside the store transaction, so two concurrent requests
	// cannot both pass it.
	ErrAlreadyPaid = errors.New("payment service: order already paid")
	// ErrPaymentUnavailable indicates the backing store cannot be reached.
	ErrPaymentUnavailable = errors.New("payment service: unavailable")
)

// PaymentServiceDeps wires the payment recorder collaborators.
type PaymentServiceDeps struct {
	Transactions repositories.TransactionRepository
	Mailer       MailPublisher
	Clock        func() time.Time
	IDGenerator  func() string
	Logger       func(context.Context, string, map[string]any)
}

type paymentService struct {
	transactions repositories.TransactionRepository
	mailer       MailPublisher
	now          func() time.Time
	newID        func() string
	logger       func(context.Context, string, map[string]any)
}

// NewPaymentService constructs a PaymentService enforcing dependency validation.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Transactions == nil {
		return nil, errors.New("payment service: transaction repository is required")
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
	return &paymentService{
		transactions: deps.Transactions,
		mailer:       deps.Mailer,
		now:          func() time.Time { return clock().UTC() },
		newID:        idGen,
		logger:       logger,
	}, nil
}

// MarkAsPaid records the payment and inserts the sale ledger entry in one
// store transaction. The resulting ledger entry is immutable.
func (s *paymentService) MarkAsPaid(ctx context.Context, cmd MarkAsPaidCommand) (PaymentResult, error) {
	if s == nil || s.transactions == nil {
		return PaymentResult{}, ErrPaymentUnavailable
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return PaymentResult{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}
	method := strings.TrimSpace(cmd.PaymentMethod)
	if method == "" {
		return PaymentResult{}, fmt.Errorf("%w: payment method is required", ErrPaymentInvalidInput)
	}
	adminID := strings.TrimSpace(cmd.AdminID)
	if adminID == "" {
		return PaymentResult{}, fmt.Errorf("%w: admin id is required", ErrPaymentInvalidInput)
	}

	now := s.now()
	reference := strings.TrimSpace(cmd.Reference)
	notes := strings.TrimSpace(cmd.Notes)
	entryID := s.newID()

	order, entry, err := s.transactions.RecordOrderPayment(ctx, repositories.OrderPaymentMutation{
		OrderID: orderID,
		Apply: func(order domain.Order) (domain.Order, domain.Transaction, error) {
			if order.PaymentStatus == domain.PaymentStatusPaid {
				return domain.Order{}, domain.Transaction{}, fmt.Errorf("%w: order %s", ErrAlreadyPaid, order.OrderNumber)
			}

			paidAt := now
			order.PaymentStatus = domain.PaymentStatusPaid
			order.PaidAt = &paidAt
			order.PaymentMethod = method
			order.PaymentReference = reference
			order.PaymentNotes = notes

			sale := domain.Transaction{
				ID:               entryID,
				Type:             domain.TransactionTypeSale,
				OrderID:          &order.ID,
				Country:          order.Country,
				Currency:         order.Currency,
				Items:            append([]domain.OrderItem(nil), order.Items...),
				CustomerName:     order.Customer.Name,
				CustomerEmail:    order.Customer.Email,
				CustomerPhone:    order.Customer.Phone,
				UserID:           order.UserID,
				PaymentMethod:    method,
				PaymentReference: reference,
				Amount:           order.TotalAmount,
				Subtotal:         order.Subtotal,
				VATAmount:        order.TaxAmount,
				Description:      fmt.Sprintf("Payment for order %s", order.OrderNumber),
				TransactionDate:  now,
				RecordedBy:       adminID,
			}
			return order, sale, nil
		},
	})
	if err != nil {
		return PaymentResult{}, s.mapPaymentError(err)
	}

	s.logger(ctx, "payment.recorded", map[string]any{
		"orderID":           order.ID,
		"transactionNumber": entry.TransactionNumber,
		"amount":            entry.Amount,
		"recordedBy":        adminID,
	})

	s.dispatchConfirmation(ctx, order)
	return PaymentResult{Order: order, Entry: entry}, nil
}

// dispatchConfirmation runs after the payment transaction has committed;
// failures are logged only and never unwind the recorded payment.
func (s *paymentService) dispatchConfirmation(ctx context.Context, order domain.Order) {
	if s.mailer == nil || order.Customer.Email == "" {
		return
	}
	_, err := s.mailer.PublishOrderMail(ctx, OrderMailMessage{
		Template:    MailTemplatePaymentConfirmation,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Recipient:   order.Customer.Email,
	})
	if err != nil {
		s.logger(ctx, "payment.mail_failed", map[string]any{
			"orderID": order.ID,
			"error":   err.Error(),
		})
	}
}

func (s *paymentService) mapPaymentError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrAlreadyPaid) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrPaymentOrderNotFound, err)
		case repoErr.IsUnavailable(), repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrPaymentUnavailable, err)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrPaymentUnavailable, err)
}
