package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/oesukam/mus-sub000/internal/domain"
	"github.com/oesukam/mus-sub000/internal/platform/auth"
	"github.com/oesukam/mus-sub000/internal/platform/httpx"
	"github.com/oesukam/mus-sub000/internal/services"
)

const (
	defaultTransactionPageSize = 20
	maxTransactionPageSize     = 100
	maxLedgerBodySize          = 32 * 1024
)

type createSaleRequest struct {
	Country          string             `json:"country"`
	Currency         string             `json:"currency"`
	Items            []orderItemPayload `json:"items"`
	CustomerName     string             `json:"customer_name"`
	CustomerEmail    string             `json:"customer_email"`
	CustomerPhone    string             `json:"customer_phone"`
	PaymentMethod    string             `json:"payment_method"`
	PaymentReference string             `json:"payment_reference"`
	Amount           int64              `json:"amount"`
	Subtotal         int64              `json:"subtotal"`
	VATAmount        int64              `json:"vat_amount"`
	Description      string             `json:"description"`
	TransactionDate  string             `json:"transaction_date"`
}

type createExpenseRequest struct {
	Country         string `json:"country"`
	Currency        string `json:"currency"`
	ExpenseCategory string `json:"expense_category"`
	Vendor          string `json:"vendor"`
	InvoiceNumber   string `json:"invoice_number"`
	ReceiptURL      string `json:"receipt_url"`
	Amount          int64  `json:"amount"`
	VATAmount       int64  `json:"vat_amount"`
	Description     string `json:"description"`
	TransactionDate string `json:"transaction_date"`
}

type transactionResponse struct {
	Transaction transactionPayload `json:"transaction"`
}

type transactionListResponse struct {
	Items         []transactionPayload `json:"items"`
	NextPageToken string               `json:"next_page_token,omitempty"`
}

type transactionPayload struct {
	ID                string             `json:"id"`
	TransactionNumber string             `json:"transaction_number"`
	Type              string             `json:"type"`
	OrderID           string             `json:"order_id,omitempty"`
	Country           string             `json:"country"`
	Currency          string             `json:"currency"`
	Items             []orderItemPayload `json:"items,omitempty"`
	CustomerName      string             `json:"customer_name,omitempty"`
	CustomerEmail     string             `json:"customer_email,omitempty"`
	CustomerPhone     string             `json:"customer_phone,omitempty"`
	PaymentMethod     string             `json:"payment_method,omitempty"`
	PaymentReference  string             `json:"payment_reference,omitempty"`
	ExpenseCategory   string             `json:"expense_category,omitempty"`
	Vendor            string             `json:"vendor,omitempty"`
	InvoiceNumber     string             `json:"invoice_number,omitempty"`
	ReceiptURL        string             `json:"receipt_url,omitempty"`
	Amount            int64              `json:"amount"`
	Subtotal          int64              `json:"subtotal,omitempty"`
	VATAmount         int64              `json:"vat_amount,omitempty"`
	Description       string             `json:"description,omitempty"`
	TransactionDate   string             `json:"transaction_date"`
	RecordedBy        string             `json:"recorded_by"`
	CreatedAt         string             `json:"created_at"`
}

type summaryResponse struct {
	TotalSales    int64 `json:"total_sales"`
	TotalExpenses int64 `json:"total_expenses"`
	NetProfit     int64 `json:"net_profit"`
	SalesCount    int   `json:"sales_count"`
	ExpensesCount int   `json:"expenses_count"`
}

// LedgerHandlers exposes the administrative financial ledger endpoints.
type LedgerHandlers struct {
	authn  *auth.Authenticator
	ledger services.LedgerService
}

// NewLedgerHandlers constructs a new LedgerHandlers instance.
func NewLedgerHandlers(authn *auth.Authenticator, ledger services.LedgerService) *LedgerHandlers {
	return &LedgerHandlers{
		authn:  authn,
		ledger: ledger,
	}
}

// Routes registers the /transactions endpoints.
func (h *LedgerHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin, auth.RoleStaff))
	}
	r.Post("/transactions/sales", h.createSale)
	r.Post("/transactions/expenses", h.createExpense)
	r.Get("/transactions", h.listTransactions)
	r.Get("/transactions/summary", h.getSummary)
	r.Get("/transactions/{transactionID}", h.getTransaction)
	r.Delete("/transactions/{transactionID}", h.deleteTransaction)
}

func (h *LedgerHandlers) createSale(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ledger == nil {
		httpx.WriteError(ctx, w, httpx.NewError("ledger_service_unavailable", "ledger service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxLedgerBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req createSaleRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	cmd := services.CreateSaleCommand{
		Country:          req.Country,
		Currency:         req.Currency,
		CustomerName:     req.CustomerName,
		CustomerEmail:    req.CustomerEmail,
		CustomerPhone:    req.CustomerPhone,
		PaymentMethod:    req.PaymentMethod,
		PaymentReference: req.PaymentReference,
		Amount:           req.Amount,
		Subtotal:         req.Subtotal,
		VATAmount:        req.VATAmount,
		Description:      req.Description,
		RecordedBy:       actorFromContext(r),
	}
	for _, item := range req.Items {
		cmd.Items = append(cmd.Items, domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			TaxRate:   item.TaxRate,
			TaxAmount: item.TaxAmount,
			Total:     item.Total,
		})
	}
	if raw := strings.TrimSpace(req.TransactionDate); raw != "" {
		date, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "transaction_date must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		cmd.TransactionDate = date
	}

	entry, err := h.ledger.CreateSale(ctx, cmd)
	if err != nil {
		writeLedgerError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, transactionResponse{Transaction: buildTransactionPayload(entry)})
}

func (h *LedgerHandlers) createExpense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ledger == nil {
		httpx.WriteError(ctx, w, httpx.NewError("ledger_service_unavailable", "ledger service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxLedgerBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req createExpenseRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	cmd := services.CreateExpenseCommand{
		Country:         req.Country,
		Currency:        req.Currency,
		ExpenseCategory: req.ExpenseCategory,
		Vendor:          req.Vendor,
		InvoiceNumber:   req.InvoiceNumber,
		ReceiptURL:      req.ReceiptURL,
		Amount:          req.Amount,
		VATAmount:       req.VATAmount,
		Description:     req.Description,
		RecordedBy:      actorFromContext(r),
	}
	if raw := strings.TrimSpace(req.TransactionDate); raw != "" {
		date, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "transaction_date must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		cmd.TransactionDate = date
	}

	entry, err := h.ledger.CreateExpense(ctx, cmd)
	if err != nil {
		writeLedgerError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, transactionResponse{Transaction: buildTransactionPayload(entry)})
}

func (h *LedgerHandlers) listTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ledger == nil {
		httpx.WriteError(ctx, w, httpx.NewError("ledger_service_unavailable", "ledger service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()

	listQuery := services.ListTransactionsQuery{
		Country:   strings.TrimSpace(query.Get("country")),
		PageToken: strings.TrimSpace(query.Get("page_token")),
	}
	if raw := strings.TrimSpace(query.Get("type")); raw != "" {
		txType, ok := domain.ParseTransactionType(raw)
		if !ok {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "type must be sale or expense", http.StatusBadRequest))
			return
		}
		listQuery.Type = &txType
	}
	from, to, err := parseDateRange(query.Get("from"), query.Get("to"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	listQuery.From = from
	listQuery.To = to

	pageSize, err := parsePageSize(query.Get("page_size"), defaultTransactionPageSize, maxTransactionPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be an integer", http.StatusBadRequest))
		return
	}
	listQuery.PageSize = pageSize

	page, err := h.ledger.ListTransactions(ctx, listQuery)
	if err != nil {
		writeLedgerError(ctx, w, err)
		return
	}

	items := make([]transactionPayload, 0, len(page.Items))
	for _, entry := range page.Items {
		items = append(items, buildTransactionPayload(entry))
	}
	writeJSONResponse(w, http.StatusOK, transactionListResponse{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *LedgerHandlers) getSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ledger == nil {
		httpx.WriteError(ctx, w, httpx.NewError("ledger_service_unavailable", "ledger service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	from, to, err := parseDateRange(query.Get("from"), query.Get("to"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	summary, err := h.ledger.GetSummary(ctx, services.SummaryQuery{
		Country: strings.TrimSpace(query.Get("country")),
		From:    from,
		To:      to,
	})
	if err != nil {
		writeLedgerError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, summaryResponse{
		TotalSales:    summary.TotalSales,
		TotalExpenses: summary.TotalExpenses,
		NetProfit:     summary.NetProfit,
		SalesCount:    summary.SalesCount,
		ExpensesCount: summary.ExpensesCount,
	})
}

func (h *LedgerHandlers) getTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ledger == nil {
		httpx.WriteError(ctx, w, httpx.NewError("ledger_service_unavailable", "ledger service unavailable", http.StatusServiceUnavailable))
		return
	}

	transactionID := strings.TrimSpace(chi.URLParam(r, "transactionID"))
	entry, err := h.ledger.GetTransaction(ctx, transactionID)
	if err != nil {
		writeLedgerError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, transactionResponse{Transaction: buildTransactionPayload(entry)})
}

func (h *LedgerHandlers) deleteTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ledger == nil {
		httpx.WriteError(ctx, w, httpx.NewError("ledger_service_unavailable", "ledger service unavailable", http.StatusServiceUnavailable))
		return
	}

	transactionID := strings.TrimSpace(chi.URLParam(r, "transactionID"))
	if err := h.ledger.DeleteTransaction(ctx, transactionID); err != nil {
		writeLedgerError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func buildTransactionPayload(entry domain.Transaction) transactionPayload {
	payload := transactionPayload{
		ID:                entry.ID,
		TransactionNumber: entry.TransactionNumber,
		Type:              string(entry.Type),
		Country:           entry.Country,
		Currency:          entry.Currency,
		CustomerName:      entry.CustomerName,
		CustomerEmail:     entry.CustomerEmail,
		CustomerPhone:     entry.CustomerPhone,
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
		TransactionDate:   formatTime(entry.TransactionDate),
		RecordedBy:        entry.RecordedBy,
		CreatedAt:         formatTime(entry.CreatedAt),
	}
	if entry.OrderID != nil {
		payload.OrderID = *entry.OrderID
	}
	for _, item := range entry.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			TaxRate:   item.TaxRate,
			TaxAmount: item.TaxAmount,
			Total:     item.Total,
		})
	}
	return payload
}

func parseDateRange(fromRaw, toRaw string) (*time.Time, *time.Time, error) {
	var from, to *time.Time
	if raw := strings.TrimSpace(fromRaw); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			return nil, nil, errors.New("from must be a valid RFC3339 timestamp")
		}
		from = &ts
	}
	if raw := strings.TrimSpace(toRaw); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			return nil, nil, errors.New("to must be a valid RFC3339 timestamp")
		}
		to = &ts
	}
	return from, to, nil
}

func writeLedgerError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrLedgerInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrTransactionNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("transaction_not_found", "transaction not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("ledger_error", "failed to process ledger request", http.StatusInternalServerError))
	}
}
