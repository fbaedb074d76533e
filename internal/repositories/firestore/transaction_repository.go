package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/oesukam/mus-sub000/internal/domain"
	pfirestore "github.com/oesukam/mus-sub000/internal/platform/firestore"
	"github.com/oesukam/mus-sub000/internal/repositories"
)

const transactionsCollection = "transactions"

// TransactionRepository implements repositories.TransactionRepository backed
// by Firestore. Ledger entries are append-only; there is no update path.
type TransactionRepository struct {
	provider     *pfirestore.Provider
	transactions *pfirestore.BaseRepository[transactionDocument]
	orders       *pfirestore.BaseRepository[orderDocument]
	counters     *pfirestore.BaseRepository[counterDocument]
}

// NewTransactionRepository constructs a Firestore-backed ledger repository.
func NewTransactionRepository(provider *pfirestore.Provider) (*TransactionRepository, error) {
	if provider == nil {
		return nil, errors.New("transaction repository requires firestore provider")
	}
	return &TransactionRepository{
		provider:     provider,
		transactions: pfirestore.NewBaseRepository[transactionDocument](provider, transactionsCollection),
		orders:       pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection),
		counters:     pfirestore.NewBaseRepository[counterDocument](provider, countersCollection),
	}, nil
}

// Create inserts a ledger entry, allocating its transaction number in the
// same transaction as the insert.
func (r *TransactionRepository) Create(ctx context.Context, entry domain.Transaction) (domain.Transaction, error) {
	if r == nil || r.provider == nil {
		return domain.Transaction{}, errors.New("transaction repository not initialised")
	}
	if strings.TrimSpace(entry.ID) == "" {
		return domain.Transaction{}, errors.New("transactions: transaction id is required")
	}

	now := entry.CreatedAt.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}
	scope := domain.TransactionNumberScope(entry.Type, entry.Country, now)

	var created domain.Transaction
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		entryRef, err := r.transactions.DocumentRef(ctx, entry.ID)
		if err != nil {
			return err
		}
		counterRef, err := r.counters.DocumentRef(ctx, scope)
		if err != nil {
			return err
		}

		alloc, err := readCounterTx(tx, counterRef)
		if err != nil {
			return err
		}
		if err := alloc.commitTx(tx, now); err != nil {
			return err
		}

		entry.TransactionNumber = domain.FormatSequence(scope, alloc.next)
		entry.CreatedAt = now
		entry.UpdatedAt = now
		if err := tx.Create(entryRef, newTransactionDocument(entry)); err != nil {
			return err
		}
		created = entry
		return nil
	})
	if err != nil {
		return domain.Transaction{}, pfirestore.WrapError("transactions.create", err)
	}
	return created, nil
}

// RecordOrderPayment executes the mark-as-paid workflow: the order read, the
// payment mutation, the sale number allocation, the ledger insert, and the
// order update all commit atomically.
func (r *TransactionRepository) RecordOrderPayment(ctx context.Context, mutation repositories.OrderPaymentMutation) (domain.Order, domain.Transaction, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, domain.Transaction{}, errors.New("transaction repository not initialised")
	}
	orderID := strings.TrimSpace(mutation.OrderID)
	if orderID == "" {
		return domain.Order{}, domain.Transaction{}, errors.New("transactions: order id is required")
	}
	if mutation.Apply == nil {
		return domain.Order{}, domain.Transaction{}, errors.New("transactions: payment mutation is required")
	}

	now := time.Now().UTC()
	var (
		updatedOrder domain.Order
		createdEntry domain.Transaction
	)

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snapshot, err := tx.Get(orderRef)
		if err != nil {
			return err
		}
		var orderDoc orderDocument
		if err := snapshot.DataTo(&orderDoc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}

		order, entry, err := mutation.Apply(orderDoc.toDomain(orderID))
		if err != nil {
			return err
		}
		if strings.TrimSpace(entry.ID) == "" {
			return errors.New("transactions: payment entry id is required")
		}

		scope := domain.TransactionNumberScope(entry.Type, entry.Country, now)
		counterRef, err := r.counters.DocumentRef(ctx, scope)
		if err != nil {
			return err
		}
		alloc, err := readCounterTx(tx, counterRef)
		if err != nil {
			return err
		}
		entryRef, err := r.transactions.DocumentRef(ctx, entry.ID)
		if err != nil {
			return err
		}

		if err := alloc.commitTx(tx, now); err != nil {
			return err
		}

		entry.TransactionNumber = domain.FormatSequence(scope, alloc.next)
		entry.CreatedAt = now
		entry.UpdatedAt = now
		if err := tx.Create(entryRef, newTransactionDocument(entry)); err != nil {
			return err
		}

		order.ID = orderID
		order.UpdatedAt = now
		if err := tx.Set(orderRef, newOrderDocument(order)); err != nil {
			return err
		}

		updatedOrder = order
		createdEntry = entry
		return nil
	})
	if err != nil {
		return domain.Order{}, domain.Transaction{}, pfirestore.WrapError("transactions.recordOrderPayment", err)
	}
	return updatedOrder, createdEntry, nil
}

// FindByID fetches one ledger entry.
func (r *TransactionRepository) FindByID(ctx context.Context, transactionID string) (domain.Transaction, error) {
	if r == nil || r.transactions == nil {
		return domain.Transaction{}, errors.New("transaction repository not initialised")
	}
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return domain.Transaction{}, errors.New("transactions: transaction id is required")
	}

	doc, err := r.transactions.Get(ctx, transactionID)
	if err != nil {
		return domain.Transaction{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns ledger entries newest first, filtered and cursor paginated.
func (r *TransactionRepository) List(ctx context.Context, filter repositories.TransactionListFilter) (domain.CursorPage[domain.Transaction], error) {
	if r == nil || r.transactions == nil {
		return domain.CursorPage[domain.Transaction]{}, errors.New("transaction repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	var token *listPageToken
	if raw := strings.TrimSpace(filter.Pagination.PageToken); raw != "" {
		decoded, err := decodeListPageToken(raw)
		if err != nil {
			return domain.CursorPage[domain.Transaction]{}, err
		}
		token = decoded
	}

	docs, err := r.transactions.Query(ctx, func(query firestore.Query) firestore.Query {
		query = applyLedgerFilters(query, filter.Type, filter.Country, filter.From, filter.To)
		query = query.
			OrderBy("transactionDate", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Desc).
			Limit(pageSize + 1)
		if token != nil {
			query = query.StartAfter(token.CreatedAt, token.ID)
		}
		return query
	})
	if err != nil {
		return domain.CursorPage[domain.Transaction]{}, err
	}

	entries := make([]domain.Transaction, 0, len(docs))
	for _, doc := range docs {
		entries = append(entries, doc.Data.toDomain(doc.ID))
	}

	hasMore := len(entries) > pageSize
	if hasMore {
		entries = entries[:pageSize]
	}
	var nextToken string
	if hasMore && len(entries) > 0 {
		last := entries[len(entries)-1]
		encoded, err := encodeListPageToken(listPageToken{ID: last.ID, CreatedAt: last.TransactionDate})
		if err != nil {
			return domain.CursorPage[domain.Transaction]{}, err
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Transaction]{Items: entries, NextPageToken: nextToken}, nil
}

// Delete removes a ledger entry. Missing entries surface as not-found.
func (r *TransactionRepository) Delete(ctx context.Context, transactionID string) error {
	if r == nil || r.provider == nil {
		return errors.New("transaction repository not initialised")
	}
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return errors.New("transactions: transaction id is required")
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.transactions.DocumentRef(ctx, transactionID)
		if err != nil {
			return err
		}
		if _, err := tx.Get(ref); err != nil {
			return err
		}
		return tx.Delete(ref)
	})
	return pfirestore.WrapError("transactions.delete", err)
}

// Summarize aggregates sale and expense totals over the filtered entries at
// read time. No materialised aggregate is maintained.
func (r *TransactionRepository) Summarize(ctx context.Context, filter repositories.SummaryFilter) (domain.LedgerSummary, error) {
	if r == nil || r.transactions == nil {
		return domain.LedgerSummary{}, errors.New("transaction repository not initialised")
	}

	docs, err := r.transactions.Query(ctx, func(query firestore.Query) firestore.Query {
		return applyLedgerFilters(query, nil, filter.Country, filter.From, filter.To)
	})
	if err != nil {
		return domain.LedgerSummary{}, err
	}

	var summary domain.LedgerSummary
	for _, doc := range docs {
		switch domain.TransactionType(doc.Data.Type) {
		case domain.TransactionTypeSale:
			summary.TotalSales += doc.Data.Amount
			summary.SalesCount++
		case domain.TransactionTypeExpense:
			summary.TotalExpenses += doc.Data.Amount
			summary.ExpensesCount++
		}
	}
	summary.NetProfit = summary.TotalSales - summary.TotalExpenses
	return summary, nil
}

func applyLedgerFilters(query firestore.Query, txType *domain.TransactionType, country string, from, to *time.Time) firestore.Query {
	if txType != nil {
		query = query.Where("type", "==", string(*txType))
	}
	if country = strings.TrimSpace(country); country != "" {
		query = query.Where("country", "==", strings.ToUpper(country))
	}
	if from != nil {
		query = query.Where("transactionDate", ">=", from.UTC())
	}
	if to != nil {
		query = query.Where("transactionDate", "<=", to.UTC())
	}
	return query
}

// Document mapping ----------------------------------------------------------

type transactionDocument struct {
	TransactionNumber string  `firestore:"transactionNumber"`
	Type              string  `firestore:"type"`
	OrderID           *string `firestore:"orderId,omitempty"`

	Country  string `firestore:"country"`
	Currency string `firestore:"currency"`

	Items         []orderItemDocument `firestore:"items,omitempty"`
	CustomerName  string              `firestore:"customerName,omitempty"`
	CustomerEmail string              `firestore:"customerEmail,omitempty"`
	CustomerPhone string              `firestore:"customerPhone,omitempty"`
	UserID        *string             `firestore:"userId,omitempty"`

	PaymentMethod    string `firestore:"paymentMethod,omitempty"`
	PaymentReference string `firestore:"paymentReference,omitempty"`

	ExpenseCategory string `firestore:"expenseCategory,omitempty"`
	Vendor          string `firestore:"vendor,omitempty"`
	InvoiceNumber   string `firestore:"invoiceNumber,omitempty"`
	ReceiptURL      string `firestore:"receiptUrl,omitempty"`

	Amount    int64 `firestore:"amount"`
	Subtotal  int64 `firestore:"subtotal,omitempty"`
	VATAmount int64 `firestore:"vatAmount,omitempty"`

	Description     string    `firestore:"description,omitempty"`
	TransactionDate time.Time `firestore:"transactionDate"`
	RecordedBy      string    `firestore:"recordedBy"`

	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func newTransactionDocument(entry domain.Transaction) transactionDocument {
	return transactionDocument{
		TransactionNumber: entry.TransactionNumber,
		Type:              string(entry.Type),
		OrderID:           entry.OrderID,
		Country:           strings.ToUpper(strings.TrimSpace(entry.Country)),
		Currency:          strings.ToUpper(strings.TrimSpace(entry.Currency)),
		Items:             newOrderItemDocuments(entry.Items),
		CustomerName:      entry.CustomerName,
		CustomerEmail:     entry.CustomerEmail,
		CustomerPhone:     entry.CustomerPhone,
		UserID:            entry.UserID,
		PaymentMethod:     entry.PaymentMethod,
		PaymentReference:  entry.PaymentReference,
		ExpenseCategory:   entry.ExpenseCategory,
		Vendor:            entry.Vendor,
		InvoiceNumber:     entry.InvoiceNumber,
		ReceiptURL:        entry.ReceiptURL,
		Amount:            entry.Amount,
		Subtotal:          entry.Subtotal,
		VATAmount:         entry.VATAmount,
		Description:       entry.Description,
		TransactionDate:   entry.TransactionDate.UTC(),
		RecordedBy:        entry.RecordedBy,
		CreatedAt:         entry.CreatedAt.UTC(),
		UpdatedAt:         entry.UpdatedAt.UTC(),
	}
}

func (d transactionDocument) toDomain(id string) domain.Transaction {
	items := make([]domain.OrderItem, len(d.Items))
	for i, item := range d.Items {
		items[i] = domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			TaxRate:   item.TaxRate,
			TaxAmount: item.TaxAmount,
			Total:     item.Total,
		}
	}
	return domain.Transaction{
		ID:                id,
		TransactionNumber: d.TransactionNumber,
		Type:              domain.TransactionType(d.Type),
		OrderID:           d.OrderID,
		Country:           d.Country,
		Currency:          d.Currency,
		Items:             items,
		CustomerName:      d.CustomerName,
		CustomerEmail:     d.CustomerEmail,
		CustomerPhone:     d.CustomerPhone,
		UserID:            d.UserID,
		PaymentMethod:     d.PaymentMethod,
		PaymentReference:  d.PaymentReference,
		ExpenseCategory:   d.ExpenseCategory,
		Vendor:            d.Vendor,
		InvoiceNumber:     d.InvoiceNumber,
		ReceiptURL:        d.ReceiptURL,
		Amount:            d.Amount,
		Subtotal:          d.Subtotal,
		VATAmount:         d.VATAmount,
		Description:       d.Description,
		TransactionDate:   d.TransactionDate,
		RecordedBy:        d.RecordedBy,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}
