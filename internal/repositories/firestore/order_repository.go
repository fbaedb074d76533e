package firestore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/oesukam/mus-sub000/internal/domain"
	pfirestore "github.com/oesukam/mus-sub000/internal/platform/firestore"
	"github.com/oesukam/mus-sub000/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository implements repositories.OrderRepository backed by Firestore.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
	products *pfirestore.BaseRepository[productDocument]
	counters *pfirestore.BaseRepository[counterDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection),
		products: pfirestore.NewBaseRepository[productDocument](provider, productsCollection),
		counters: pfirestore.NewBaseRepository[counterDocument](provider, countersCollection),
	}, nil
}

// Create runs the atomic checkout write: the order number allocation, the
// stock decrements, and the order insert commit together or not at all.
// Firestore requires every read before the first write, so the whole
// workflow stages its reads first, validates, then applies the writes.
func (r *OrderRepository) Create(ctx context.Context, order domain.Order) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return domain.Order{}, errors.New("orders: order id is required")
	}
	if len(order.Items) == 0 {
		return domain.Order{}, errors.New("orders: at least one item is required")
	}

	now := order.CreatedAt.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}
	scope := domain.OrderNumberScope(order.Country, now)

	var created domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, order.ID)
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

		quantities := make(map[string]int, len(order.Items))
		productIDs := make([]string, 0, len(order.Items))
		for _, item := range order.Items {
			id := strings.TrimSpace(item.ProductID)
			if id == "" {
				return errors.New("orders: item product id is required")
			}
			if item.Quantity <= 0 {
				return fmt.Errorf("orders: quantity for %s must be > 0", id)
			}
			if _, seen := quantities[id]; !seen {
				productIDs = append(productIDs, id)
			}
			quantities[id] += item.Quantity
		}

		refs := make([]*firestore.DocumentRef, len(productIDs))
		for i, id := range productIDs {
			ref, err := r.products.DocumentRef(ctx, id)
			if err != nil {
				return err
			}
			refs[i] = ref
		}
		snapshots, err := tx.GetAll(refs)
		if err != nil {
			return err
		}

		var missing []string
		var shortfalls []repositories.StockShortfall
		stocks := make(map[string]productDocument, len(snapshots))
		for i, snapshot := range snapshots {
			id := productIDs[i]
			if !snapshot.Exists() {
				missing = append(missing, id)
				continue
			}
			var doc productDocument
			if err := snapshot.DataTo(&doc); err != nil {
				return fmt.Errorf("decode product %s: %w", id, err)
			}
			if doc.Stock < quantities[id] {
				shortfalls = append(shortfalls, repositories.StockShortfall{
					ProductID: id,
					Requested: quantities[id],
					Available: doc.Stock,
				})
			}
			stocks[id] = doc
		}
		if len(missing) > 0 {
			return repositories.NewProductNotFoundError(missing)
		}
		if len(shortfalls) > 0 {
			return repositories.NewInsufficientStockError(shortfalls)
		}

		// Read phase complete; apply the writes.
		if err := alloc.commitTx(tx, now); err != nil {
			return err
		}
		for i, id := range productIDs {
			doc := stocks[id]
			doc.Stock -= quantities[id]
			doc.InStock = doc.Stock > 0
			doc.UpdatedAt = now
			if err := tx.Update(refs[i], stockFieldUpdates(doc)); err != nil {
				return err
			}
		}

		order.OrderNumber = domain.FormatSequence(scope, alloc.next)
		order.CreatedAt = now
		order.UpdatedAt = now
		if err := tx.Create(orderRef, newOrderDocument(order)); err != nil {
			return err
		}

		created = order
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.create", err)
	}
	return created, nil
}

// Mutate applies fn to the freshly read order inside a transaction and
// persists the result. fn errors abort the transaction untouched.
func (r *OrderRepository) Mutate(ctx context.Context, orderID string, fn func(order *domain.Order) error) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("orders: order id is required")
	}
	if fn == nil {
		return domain.Order{}, errors.New("orders: mutation function is required")
	}

	now := time.Now().UTC()
	var updated domain.Order

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snapshot, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}

		order := doc.toDomain(orderID)
		if err := fn(&order); err != nil {
			return err
		}
		order.ID = orderID
		order.UpdatedAt = now

		if err := tx.Set(ref, newOrderDocument(order)); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.mutate", err)
	}
	return updated, nil
}

// FindByID fetches one order aggregate.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("orders: order id is required")
	}

	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByNumber resolves an order by its public order number.
func (r *OrderRepository) FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return domain.Order{}, errors.New("orders: order number is required")
	}

	docs, err := r.orders.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("orderNumber", "==", orderNumber).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.NotFoundError("orders.findByNumber", fmt.Errorf("order %s not found", orderNumber))
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

// List returns orders newest first, filtered and cursor paginated.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.orders == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
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
			return domain.CursorPage[domain.Order]{}, err
		}
		token = decoded
	}

	docs, err := r.orders.Query(ctx, func(query firestore.Query) firestore.Query {
		if uid := strings.TrimSpace(filter.UserID); uid != "" {
			query = query.Where("userId", "==", uid)
		}
		if country := strings.TrimSpace(filter.Country); country != "" {
			query = query.Where("country", "==", strings.ToUpper(country))
		}
		if len(filter.DeliveryStatus) > 0 {
			statuses := make([]string, len(filter.DeliveryStatus))
			for i, s := range filter.DeliveryStatus {
				statuses[i] = string(s)
			}
			query = query.Where("deliveryStatus", "in", statuses)
		}
		query = query.
			OrderBy("createdAt", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Desc).
			Limit(pageSize + 1)
		if token != nil {
			query = query.StartAfter(token.CreatedAt, token.ID)
		}
		return query
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.Data.toDomain(doc.ID))
	}

	hasMore := len(orders) > pageSize
	if hasMore {
		orders = orders[:pageSize]
	}
	var nextToken string
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		encoded, err := encodeListPageToken(listPageToken{ID: last.ID, CreatedAt: last.CreatedAt})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Order]{Items: orders, NextPageToken: nextToken}, nil
}

// SetEmailMessageID records the dispatched confirmation message id once. A
// second call with a different id is ignored so the persisted value always
// names the first successful dispatch.
func (r *OrderRepository) SetEmailMessageID(ctx context.Context, orderID string, messageID string) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	messageID = strings.TrimSpace(messageID)
	if orderID == "" || messageID == "" {
		return errors.New("orders: order id and message id are required")
	}

	now := time.Now().UTC()
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snapshot, err := tx.Get(ref)
		if err != nil {
			return err
		}
		existing, err := snapshot.DataAt("emailMessageId")
		if err == nil {
			if current, ok := existing.(string); ok && current != "" {
				return nil
			}
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "emailMessageId", Value: messageID},
			{Path: "updatedAt", Value: now},
		})
	})
	return wrapOrderError("orders.setEmailMessageId", err)
}

// Document mapping ----------------------------------------------------------

type orderDocument struct {
	OrderNumber string  `firestore:"orderNumber"`
	Country     string  `firestore:"country"`
	Currency    string  `firestore:"currency"`
	UserID      *string `firestore:"userId,omitempty"`

	Customer        contactDocument `firestore:"customer"`
	ShippingAddress addressDocument `firestore:"shippingAddress"`

	Items       []orderItemDocument `firestore:"items"`
	Subtotal    int64               `firestore:"subtotal"`
	TaxAmount   int64               `firestore:"taxAmount"`
	TotalAmount int64               `firestore:"totalAmount"`

	DeliveryStatus string `firestore:"deliveryStatus"`
	PaymentStatus  string `firestore:"paymentStatus"`

	PaymentMethod    string     `firestore:"paymentMethod,omitempty"`
	PaidAt           *time.Time `firestore:"paidAt,omitempty"`
	PaymentReference string     `firestore:"paymentReference,omitempty"`
	PaymentNotes     string     `firestore:"paymentNotes,omitempty"`

	TrackingNumber        string     `firestore:"trackingNumber,omitempty"`
	Carrier               string     `firestore:"carrier,omitempty"`
	EstimatedDeliveryDate *time.Time `firestore:"estimatedDeliveryDate,omitempty"`
	ActualDeliveryDate    *time.Time `firestore:"actualDeliveryDate,omitempty"`
	DeliveryNotes         string     `firestore:"deliveryNotes,omitempty"`

	StatusHistory []statusHistoryDocument `firestore:"statusHistory"`

	EmailMessageID string `firestore:"emailMessageId,omitempty"`

	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

type contactDocument struct {
	Name  string `firestore:"name"`
	Email string `firestore:"email"`
	Phone string `firestore:"phone,omitempty"`
}

type addressDocument struct {
	Line1      string `firestore:"line1"`
	Line2      string `firestore:"line2,omitempty"`
	City       string `firestore:"city"`
	District   string `firestore:"district,omitempty"`
	Country    string `firestore:"country"`
	PostalCode string `firestore:"postalCode,omitempty"`
}

type orderItemDocument struct {
	ProductID string  `firestore:"productId"`
	Name      string  `firestore:"name"`
	Quantity  int     `firestore:"quantity"`
	UnitPrice int64   `firestore:"unitPrice"`
	TaxRate   float64 `firestore:"taxRate"`
	TaxAmount int64   `firestore:"taxAmount"`
	Total     int64   `firestore:"total"`
}

type statusHistoryDocument struct {
	Status    string     `firestore:"status"`
	Timestamp *time.Time `firestore:"timestamp"`
	UpdatedBy *string    `firestore:"updatedBy"`
	Notes     string     `firestore:"notes,omitempty"`
}

func newOrderDocument(order domain.Order) orderDocument {
	return orderDocument{
		OrderNumber: order.OrderNumber,
		Country:     strings.ToUpper(strings.TrimSpace(order.Country)),
		Currency:    strings.ToUpper(strings.TrimSpace(order.Currency)),
		UserID:      order.UserID,
		Customer: contactDocument{
			Name:  order.Customer.Name,
			Email: order.Customer.Email,
			Phone: order.Customer.Phone,
		},
		ShippingAddress: addressDocument{
			Line1:      order.ShippingAddress.Line1,
			Line2:      order.ShippingAddress.Line2,
			City:       order.ShippingAddress.City,
			District:   order.ShippingAddress.District,
			Country:    order.ShippingAddress.Country,
			PostalCode: order.ShippingAddress.PostalCode,
		},
		Items:                 newOrderItemDocuments(order.Items),
		Subtotal:              order.Subtotal,
		TaxAmount:             order.TaxAmount,
		TotalAmount:           order.TotalAmount,
		DeliveryStatus:        string(order.DeliveryStatus),
		PaymentStatus:         string(order.PaymentStatus),
		PaymentMethod:         order.PaymentMethod,
		PaidAt:                order.PaidAt,
		PaymentReference:      order.PaymentReference,
		PaymentNotes:          order.PaymentNotes,
		TrackingNumber:        order.TrackingNumber,
		Carrier:               order.Carrier,
		EstimatedDeliveryDate: order.EstimatedDeliveryDate,
		ActualDeliveryDate:    order.ActualDeliveryDate,
		DeliveryNotes:         order.DeliveryNotes,
		StatusHistory:         newStatusHistoryDocuments(order.StatusHistory),
		EmailMessageID:        order.EmailMessageID,
		CreatedAt:             order.CreatedAt.UTC(),
		UpdatedAt:             order.UpdatedAt.UTC(),
	}
}

func newOrderItemDocuments(items []domain.OrderItem) []orderItemDocument {
	docs := make([]orderItemDocument, len(items))
	for i, item := range items {
		docs[i] = orderItemDocument{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			TaxRate:   item.TaxRate,
			TaxAmount: item.TaxAmount,
			Total:     item.Total,
		}
	}
	return docs
}

func newStatusHistoryDocuments(entries []domain.StatusHistoryEntry) []statusHistoryDocument {
	docs := make([]statusHistoryDocument, len(entries))
	for i, entry := range entries {
		docs[i] = statusHistoryDocument{
			Status:    string(entry.Status),
			Timestamp: entry.Timestamp,
			UpdatedBy: entry.UpdatedBy,
			Notes:     entry.Notes,
		}
	}
	return docs
}

func (d orderDocument) toDomain(id string) domain.Order {
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
	history := make([]domain.StatusHistoryEntry, len(d.StatusHistory))
	for i, entry := range d.StatusHistory {
		history[i] = domain.StatusHistoryEntry{
			Status:    domain.DeliveryStatus(entry.Status),
			Timestamp: entry.Timestamp,
			UpdatedBy: entry.UpdatedBy,
			Notes:     entry.Notes,
		}
	}
	return domain.Order{
		ID:          id,
		OrderNumber: d.OrderNumber,
		Country:     d.Country,
		Currency:    d.Currency,
		UserID:      d.UserID,
		Customer: domain.Contact{
			Name:  d.Customer.Name,
			Email: d.Customer.Email,
			Phone: d.Customer.Phone,
		},
		ShippingAddress: domain.Address{
			Line1:      d.ShippingAddress.Line1,
			Line2:      d.ShippingAddress.Line2,
			City:       d.ShippingAddress.City,
			District:   d.ShippingAddress.District,
			Country:    d.ShippingAddress.Country,
			PostalCode: d.ShippingAddress.PostalCode,
		},
		Items:                 items,
		Subtotal:              d.Subtotal,
		TaxAmount:             d.TaxAmount,
		TotalAmount:           d.TotalAmount,
		DeliveryStatus:        domain.DeliveryStatus(d.DeliveryStatus),
		PaymentStatus:         domain.PaymentStatus(d.PaymentStatus),
		PaymentMethod:         d.PaymentMethod,
		PaidAt:                d.PaidAt,
		PaymentReference:      d.PaymentReference,
		PaymentNotes:          d.PaymentNotes,
		TrackingNumber:        d.TrackingNumber,
		Carrier:               d.Carrier,
		EstimatedDeliveryDate: d.EstimatedDeliveryDate,
		ActualDeliveryDate:    d.ActualDeliveryDate,
		DeliveryNotes:         d.DeliveryNotes,
		StatusHistory:         history,
		EmailMessageID:        d.EmailMessageID,
		CreatedAt:             d.CreatedAt,
		UpdatedAt:             d.UpdatedAt,
	}
}

// Page tokens ----------------------------------------------------------------

type listPageToken struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

func encodeListPageToken(token listPageToken) (string, error) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(token); err != nil {
		return "", fmt.Errorf("encode page token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes.TrimSpace(buf.Bytes())), nil
}

func decodeListPageToken(encoded string) (*listPageToken, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode page token: %w", err)
	}
	var token listPageToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("decode page token json: %w", err)
	}
	return &token, nil
}

func wrapOrderError(op string, err error) error {
	if err == nil {
		return nil
	}
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		if invErr.Op == "" {
			invErr.Op = op
		}
		return invErr
	}
	return pfirestore.WrapError(op, err)
}
