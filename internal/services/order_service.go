package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/oesukam/mus-sub000/internal/domain"
	"github.com/oesukam/mus-sub000/internal/repositories"
)

var (
	// ErrOrderInvalidInput indicates the caller supplied invalid input.
	ErrOrderInvalidInput = errors.New("order service: invalid input")
	// ErrOrderNotFound indicates the requested order does not exist.
	ErrOrderNotFound = errors.New("order service: not found")
	// ErrOrderInvalidTransition indicates the delivery-status change is not
	// permitted from the order's current status.
	ErrOrderInvalidTransition = errors.New("order service: invalid delivery transition")
	// ErrOrderUnavailable indicates the backing store cannot be reached.
	ErrOrderUnavailable = errors.New("order service: unavailable")
	// ErrOrderTrackingDenied covers both an unknown order number and an
	// identity mismatch; callers must not be able to tell them apart.
	ErrOrderTrackingDenied = errors.New("order service: order not found or verification failed")
)

const maxNotesLength = 2000

// OrderServiceDeps wires the order service collaborators.
type OrderServiceDeps struct {
	Orders          repositories.OrderRepository
	Products        repositories.ProductRepository
	Inventory       InventoryService
	Mailer          MailPublisher
	Clock           func() time.Time
	IDGenerator     func() string
	DefaultCountry  string
	DefaultCurrency string
	Logger          func(context.Context, string, map[string]any)
}

type orderService struct {
	orders    repositories.OrderRepository
	products  repositories.ProductRepository
	inventory InventoryService
	mailer    MailPublisher
	now       func() time.Time
	newID     func() string
	country   string
	currency  string
	logger    func(context.Context, string, map[string]any)
	sanitize  *bluemonday.Policy
}

// NewOrderService constructs an OrderService enforcing dependency validation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("order service: inventory service is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return "ord_" + ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	country := strings.ToUpper(strings.TrimSpace(deps.DefaultCountry))
	if country == "" {
		country = "RW"
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if currency == "" {
		currency = "RWF"
	}

	return &orderService{
		orders:    deps.Orders,
		products:  deps.Products,
		inventory: deps.Inventory,
		mailer:    deps.Mailer,
		now:       func() time.Time { return clock().UTC() },
		newID:     idGen,
		country:   country,
		currency:  currency,
		logger:    logger,
		sanitize:  bluemonday.StrictPolicy(),
	}, nil
}

// CreateOrder places an order. The catalog pre-check is a courtesy; the
// repository re-validates stock inside the same transaction that allocates
// the order number and inserts the order.
func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error) {
	if s == nil || s.orders == nil {
		return domain.Order{}, ErrOrderUnavailable
	}

	now := s.now()

	order, err := s.buildOrder(cmd, now)
	if err != nil {
		return domain.Order{}, err
	}

	// Fail fast with the aggregated availability errors (every missing
	// product, every shortfall line) before paying for a transaction. The
	// conditional decrement inside the store transaction stays authoritative.
	if err := s.inventory.CheckAvailability(ctx, cmd.Items); err != nil {
		if errors.Is(err, ErrInventoryInvalidInput) {
			return domain.Order{}, fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
		}
		return domain.Order{}, s.mapOrderError(err)
	}

	// Resolve and snapshot catalog data; a product deleted between the
	// availability check and this read still fails with the aggregate error.
	if err := s.priceItems(ctx, &order, cmd.Items); err != nil {
		return domain.Order{}, err
	}

	created, err := s.orders.Create(ctx, order)
	if err != nil {
		return domain.Order{}, s.mapOrderError(err)
	}

	s.logger(ctx, "order.created", map[string]any{
		"orderID":     created.ID,
		"orderNumber": created.OrderNumber,
		"total":       created.TotalAmount,
	})

	s.dispatchMail(ctx, created, MailTemplateOrderConfirmation, true)
	return created, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	if s == nil || s.orders == nil {
		return domain.Order{}, ErrOrderUnavailable
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapOrderError(err)
	}
	return order, nil
}

func (s *orderService) GetOrderByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	if s == nil || s.orders == nil {
		return domain.Order{}, ErrOrderUnavailable
	}
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return domain.Order{}, fmt.Errorf("%w: order number is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByNumber(ctx, orderNumber)
	if err != nil {
		return domain.Order{}, s.mapOrderError(err)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, query ListOrdersQuery) (domain.CursorPage[domain.Order], error) {
	if s == nil || s.orders == nil {
		return domain.CursorPage[domain.Order]{}, ErrOrderUnavailable
	}

	for _, status := range query.Statuses {
		if !status.Valid() {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("%w: unknown delivery status %q", ErrOrderInvalidInput, string(status))
		}
	}

	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		UserID:         strings.TrimSpace(query.UserID),
		Country:        strings.TrimSpace(query.Country),
		DeliveryStatus: query.Statuses,
		Pagination: domain.Pagination{
			PageSize:  query.PageSize,
			PageToken: query.PageToken,
		},
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, s.mapOrderError(err)
	}
	return page, nil
}

// TransitionDeliveryStatus moves the order along the state machine. The
// current-status check runs against the freshly read order inside the store
// transaction, so concurrent transitions cannot both pass the guard.
func (s *orderService) TransitionDeliveryStatus(ctx context.Context, cmd TransitionDeliveryStatusCommand) (domain.Order, error) {
	if s == nil || s.orders == nil {
		return domain.Order{}, ErrOrderUnavailable
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !cmd.Status.Valid() {
		return domain.Order{}, fmt.Errorf("%w: unknown delivery status %q", ErrOrderInvalidInput, string(cmd.Status))
	}

	now := s.now()
	notes := s.cleanText(cmd.Notes, maxNotesLength)
	updatedBy := strings.TrimSpace(cmd.UpdatedBy)

	updated, err := s.orders.Mutate(ctx, orderID, func(order *domain.Order) error {
		if !order.DeliveryStatus.CanTransitionTo(cmd.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrOrderInvalidTransition, order.DeliveryStatus, cmd.Status)
		}

		order.DeliveryStatus = cmd.Status
		if tracking := strings.TrimSpace(cmd.TrackingNumber); tracking != "" {
			order.TrackingNumber = tracking
		}
		if carrier := strings.TrimSpace(cmd.Carrier); carrier != "" {
			order.Carrier = carrier
		}
		if cmd.EstimatedDeliveryDate != nil {
			estimate := cmd.EstimatedDeliveryDate.UTC()
			order.EstimatedDeliveryDate = &estimate
		}
		if cmd.Status == domain.DeliveryStatusDelivered {
			delivered := now
			order.ActualDeliveryDate = &delivered
		}

		recordStatusHistory(order, cmd.Status, now, updatedBy, notes)
		return nil
	})
	if err != nil {
		return domain.Order{}, s.mapOrderError(err)
	}

	s.logger(ctx, "order.status_changed", map[string]any{
		"orderID": updated.ID,
		"status":  string(updated.DeliveryStatus),
	})

	s.dispatchMail(ctx, updated, MailTemplateDeliveryStatus, false)
	return updated, nil
}

func (s *orderService) AddDeliveryNotes(ctx context.Context, cmd AddDeliveryNotesCommand) (domain.Order, error) {
	if s == nil || s.orders == nil {
		return domain.Order{}, ErrOrderUnavailable
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	notes := s.cleanText(cmd.Notes, maxNotesLength)
	if notes == "" {
		return domain.Order{}, fmt.Errorf("%w: notes are required", ErrOrderInvalidInput)
	}

	updated, err := s.orders.Mutate(ctx, orderID, func(order *domain.Order) error {
		order.DeliveryNotes = notes
		return nil
	})
	if err != nil {
		return domain.Order{}, s.mapOrderError(err)
	}
	return updated, nil
}

// TrackOrder is the public, unauthenticated tracking lookup. A wrong order
// number and a wrong email/phone produce the identical error so callers
// cannot probe which order numbers exist.
func (s *orderService) TrackOrder(ctx context.Context, cmd TrackOrderCommand) (TrackedOrder, error) {
	if s == nil || s.orders == nil {
		return TrackedOrder{}, ErrOrderUnavailable
	}
	orderNumber := strings.TrimSpace(cmd.OrderNumber)
	email := strings.TrimSpace(cmd.Email)
	phone := strings.TrimSpace(cmd.Phone)
	if orderNumber == "" {
		return TrackedOrder{}, fmt.Errorf("%w: order number is required", ErrOrderInvalidInput)
	}
	if email == "" && phone == "" {
		return TrackedOrder{}, fmt.Errorf("%w: email or phone is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByNumber(ctx, orderNumber)
	if err != nil {
		if isRepoNotFound(err) {
			return TrackedOrder{}, ErrOrderTrackingDenied
		}
		return TrackedOrder{}, s.mapOrderError(err)
	}

	emailMatches := email != "" && strings.EqualFold(email, order.Customer.Email)
	phoneMatches := phone != "" && phone == order.Customer.Phone
	if !emailMatches && !phoneMatches {
		return TrackedOrder{}, ErrOrderTrackingDenied
	}

	return TrackedOrder{Order: order, Timeline: ProjectTimeline(order)}, nil
}

// ProjectTimeline derives the fixed four-step customer tracking view. Side
// branch statuses are deliberately absent from it.
func ProjectTimeline(order domain.Order) []TimelineStep {
	steps := make([]TimelineStep, 0, len(domain.CanonicalTimeline))
	for _, status := range domain.CanonicalTimeline {
		step := TimelineStep{
			Status:  status,
			Current: status == order.DeliveryStatus,
		}
		for _, entry := range order.StatusHistory {
			if entry.Status == status {
				step.Timestamp = entry.Timestamp
				step.Completed = entry.Timestamp != nil
				step.Notes = entry.Notes
				break
			}
		}
		steps = append(steps, step)
	}
	return steps
}

// --- internals -------------------------------------------------------------

func (s *orderService) buildOrder(cmd CreateOrderCommand, now time.Time) (domain.Order, error) {
	if len(cmd.Items) == 0 {
		return domain.Order{}, fmt.Errorf("%w: at least one item is required", ErrOrderInvalidInput)
	}
	for _, line := range cmd.Items {
		if strings.TrimSpace(line.ProductID) == "" {
			return domain.Order{}, fmt.Errorf("%w: item product id is required", ErrOrderInvalidInput)
		}
		if line.Quantity <= 0 {
			return domain.Order{}, fmt.Errorf("%w: item quantity must be > 0", ErrOrderInvalidInput)
		}
	}

	name := s.cleanText(cmd.Customer.Name, 200)
	email := strings.TrimSpace(cmd.Customer.Email)
	phone := strings.TrimSpace(cmd.Customer.Phone)
	if name == "" {
		return domain.Order{}, fmt.Errorf("%w: customer name is required", ErrOrderInvalidInput)
	}
	if email == "" && phone == "" {
		return domain.Order{}, fmt.Errorf("%w: customer email or phone is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(cmd.ShippingAddress.Line1) == "" || strings.TrimSpace(cmd.ShippingAddress.City) == "" {
		return domain.Order{}, fmt.Errorf("%w: shipping address line1 and city are required", ErrOrderInvalidInput)
	}

	country := strings.ToUpper(strings.TrimSpace(cmd.Country))
	if country == "" {
		country = s.country
	}
	if len(country) != 2 {
		return domain.Order{}, fmt.Errorf("%w: country must be a 2-letter code", ErrOrderInvalidInput)
	}
	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		currency = s.currency
	}

	var userID *string
	if cmd.UserID != nil {
		if uid := strings.TrimSpace(*cmd.UserID); uid != "" {
			userID = &uid
		}
	}

	pending := now
	history := []domain.StatusHistoryEntry{
		{Status: domain.DeliveryStatusPending, Timestamp: &pending, UpdatedBy: userID},
		{Status: domain.DeliveryStatusProcessing},
		{Status: domain.DeliveryStatusShipped},
		{Status: domain.DeliveryStatusDelivered},
	}

	shipping := cmd.ShippingAddress
	shipping.Line1 = s.cleanText(shipping.Line1, 200)
	shipping.Line2 = s.cleanText(shipping.Line2, 200)
	shipping.City = s.cleanText(shipping.City, 100)
	shipping.District = s.cleanText(shipping.District, 100)
	shipping.PostalCode = strings.TrimSpace(shipping.PostalCode)
	if strings.TrimSpace(shipping.Country) == "" {
		shipping.Country = country
	}

	return domain.Order{
		ID:       s.newID(),
		Country:  country,
		Currency: currency,
		UserID:   userID,
		Customer: domain.Contact{
			Name:  name,
			Email: email,
			Phone: phone,
		},
		ShippingAddress: shipping,
		DeliveryStatus:  domain.DeliveryStatusPending,
		PaymentStatus:   domain.PaymentStatusPending,
		PaymentMethod:   strings.TrimSpace(cmd.PaymentMethod),
		StatusHistory:   history,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// priceItems snapshots name, unit price, and tax from the catalog onto the
// order lines and computes the totals.
func (s *orderService) priceItems(ctx context.Context, order *domain.Order, lines []OrderLineInput) error {
	ids := make([]string, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		id := strings.TrimSpace(line.ProductID)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	stocks, err := s.products.GetStocks(ctx, ids)
	if err != nil {
		return s.mapOrderError(err)
	}

	var missing []string
	for _, id := range ids {
		if _, ok := stocks[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return repositories.NewProductNotFoundError(missing)
	}

	items := make([]domain.OrderItem, 0, len(lines))
	var subtotal, taxTotal int64
	for _, line := range lines {
		id := strings.TrimSpace(line.ProductID)
		product := stocks[id]

		lineNet := product.UnitPrice * int64(line.Quantity)
		lineTax := int64(math.Round(float64(lineNet) * product.TaxRate / 100))
		items = append(items, domain.OrderItem{
			ProductID: id,
			Name:      product.Name,
			Quantity:  line.Quantity,
			UnitPrice: product.UnitPrice,
			TaxRate:   product.TaxRate,
			TaxAmount: lineTax,
			Total:     lineNet + lineTax,
		})
		subtotal += lineNet
		taxTotal += lineTax
	}

	order.Items = items
	order.Subtotal = subtotal
	order.TaxAmount = taxTotal
	order.TotalAmount = subtotal + taxTotal
	return nil
}

// recordStatusHistory fills the matching canonical placeholder, or appends an
// entry for side-branch statuses so they remain auditable without disturbing
// the four-step timeline.
func recordStatusHistory(order *domain.Order, status domain.DeliveryStatus, now time.Time, updatedBy, notes string) {
	ts := now
	var actor *string
	if updatedBy != "" {
		actor = &updatedBy
	}

	for i := range order.StatusHistory {
		if order.StatusHistory[i].Status == status {
			order.StatusHistory[i].Timestamp = &ts
			order.StatusHistory[i].UpdatedBy = actor
			if notes != "" {
				order.StatusHistory[i].Notes = notes
			}
			return
		}
	}
	order.StatusHistory = append(order.StatusHistory, domain.StatusHistoryEntry{
		Status:    status,
		Timestamp: &ts,
		UpdatedBy: actor,
		Notes:     notes,
	})
}

// dispatchMail publishes the mail job after the owning transaction has
// committed. Failures are logged, never surfaced. persistID records the
// broker message id onto the order for the confirmation mail only.
func (s *orderService) dispatchMail(ctx context.Context, order domain.Order, template string, persistID bool) {
	if s.mailer == nil || order.Customer.Email == "" {
		return
	}

	messageID, err := s.mailer.PublishOrderMail(ctx, OrderMailMessage{
		Template:    template,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Recipient:   order.Customer.Email,
		Variables: map[string]string{
			"deliveryStatus": string(order.DeliveryStatus),
		},
	})
	if err != nil {
		s.logger(ctx, "order.mail_failed", map[string]any{
			"orderID":  order.ID,
			"template": template,
			"error":    err.Error(),
		})
		return
	}

	if persistID {
		if err := s.orders.SetEmailMessageID(ctx, order.ID, messageID); err != nil {
			s.logger(ctx, "order.mail_id_persist_failed", map[string]any{
				"orderID": order.ID,
				"error":   err.Error(),
			})
		}
	}
}

func (s *orderService) cleanText(value string, limit int) string {
	value = strings.TrimSpace(s.sanitize.Sanitize(value))
	if limit > 0 && len(value) > limit {
		// Back the cut off to a rune boundary so truncation never leaves
		// invalid UTF-8 behind.
		cut := limit
		for cut > 0 && !utf8.RuneStart(value[cut]) {
			cut--
		}
		value = value[:cut]
	}
	return value
}

func (s *orderService) mapOrderError(err error) error {
	if err == nil {
		return nil
	}
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		return invErr
	}
	if errors.Is(err, ErrOrderInvalidTransition) || errors.Is(err, ErrOrderInvalidInput) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsUnavailable(), repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
