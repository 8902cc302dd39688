/*
handlers.go - HTTP API handlers for the bookkeeping engine

PURPOSE:
  Exposes the bill orchestrator and store read paths via REST. Handles
  HTTP request/response, JSON serialization, and delegates all ledger
  logic to the book package.

ENDPOINTS:
  Accounts:
    GET    /api/accounts               List accounts with balances
    POST   /api/accounts               Create account with opening balance
    GET    /api/accounts/{id}          Account details
    GET    /api/accounts/{id}/records  Balance record chain

  Bills:
    GET    /api/bills                  List bills for a book and date range
    POST   /api/bills                  Insert one bill
    POST   /api/bills/import           Bulk import
    GET    /api/bills/{id}             Bill with tags and shares

  Books and categories:
    GET/POST /api/books
    GET/POST /api/categories

  Keypad:
    POST   /api/keypad/evaluate        Evaluate a keystroke sequence

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, missing history, malformed amounts
  - 404: Unknown account, book, or bill
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tallybook/bookkeeper/book"
	"github.com/tallybook/bookkeeper/keypad"
	"github.com/tallybook/bookkeeper/ledger"
	"github.com/tallybook/bookkeeper/money"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Book *book.Book
}

// NewHandler creates a new handler over the orchestrator.
func NewHandler(b *book.Book) *Handler {
	return &Handler{Book: b}
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// ListAccounts returns all accounts with their cached balances.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Book.Store().ListAccounts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list accounts", err)
		return
	}

	dtos := make([]AccountDTO, len(accounts))
	for i, a := range accounts {
		dtos[i] = toAccountDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAccount creates an account and its opening balance record.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Account name is required", nil)
		return
	}
	initial := money.Zero()
	if req.Initial != "" {
		var err error
		initial, err = money.Parse(req.Initial)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid initial balance", err)
			return
		}
	}

	account, err := h.Book.CreateAccount(r.Context(), req.Name, req.Icon, initial)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create account", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(account))
}

// GetAccount returns a single account.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	account, err := h.Book.Store().GetAccount(r.Context(), ledger.AccountID(id))
	if err != nil {
		writeDomainError(w, "Failed to get account", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(account))
}

// SetDefaultAccount makes the account the default target for new bills.
func (h *Handler) SetDefaultAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.Book.SetDefaultAccount(r.Context(), ledger.AccountID(id)); err != nil {
		writeDomainError(w, "Failed to set default account", err)
		return
	}

	account, err := h.Book.Store().GetAccount(r.Context(), ledger.AccountID(id))
	if err != nil {
		writeDomainError(w, "Failed to get account", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(account))
}

// GetAccountRecords returns an account's balance chain.
func (h *Handler) GetAccountRecords(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	records, err := h.Book.Store().AccountRecords(r.Context(), ledger.AccountID(id))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get records", err)
		return
	}

	dtos := make([]RecordDTO, len(records))
	for i, rec := range records {
		dtos[i] = toRecordDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// BILL HANDLERS
// =============================================================================

// InsertBill applies one bill.
func (h *Handler) InsertBill(w http.ResponseWriter, r *http.Request) {
	var req BillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in, err := toBillInput(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid bill", err)
		return
	}

	result, err := h.Book.InsertBill(r.Context(), in)
	if err != nil {
		writeDomainError(w, "Failed to insert bill", err)
		return
	}

	writeJSON(w, http.StatusCreated, InsertBillResponse{
		BillID:          int64(result.BillID),
		AccountBalance:  result.AccountBalance.String(),
		ShiftedRecords:  result.ShiftedRecords,
		PartialFailures: toPartialFailureDTOs(result.PartialFailures),
	})
}

// ImportBills applies a batch of bills.
func (h *Handler) ImportBills(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	inputs := make([]book.BillInput, 0, len(req.Bills))
	for _, br := range req.Bills {
		in, err := toBillInput(br)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid bill", err)
			return
		}
		inputs = append(inputs, in)
	}

	result, err := h.Book.ImportBills(r.Context(), inputs)
	if err != nil {
		writeDomainError(w, "Failed to import bills", err)
		return
	}

	resp := ImportResponse{
		Bills:   result.Bills,
		Records: result.Records,
		Repairs: make([]AccountRepairDTO, len(result.Repairs)),
	}
	for i, repair := range result.Repairs {
		resp.Repairs[i] = AccountRepairDTO{
			AccountID:      int64(repair.AccountID),
			NetDelta:       repair.NetDelta.String(),
			RecordsPatched: repair.RecordsPatched,
			Balance:        repair.Balance.String(),
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}

// ListBills returns bills for a book within a date range.
// Query params: book (default 1), from, to (RFC3339, default last 30 days).
func (h *Handler) ListBills(w http.ResponseWriter, r *http.Request) {
	bookID := int64(1)
	if s := r.URL.Query().Get("book"); s != "" {
		var err error
		bookID, err = strconv.ParseInt(s, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid book id", err)
			return
		}
	}

	to := time.Now()
	from := to.AddDate(0, 0, -30)
	if s := r.URL.Query().Get("from"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from date", err)
			return
		}
		from = t
	}
	if s := r.URL.Query().Get("to"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to date", err)
			return
		}
		to = t
	}

	bills, err := h.Book.Store().ListBills(r.Context(), ledger.BookID(bookID), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list bills", err)
		return
	}

	dtos := make([]BillDTO, len(bills))
	for i, b := range bills {
		dtos[i] = toBillDTO(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AmendBillRemark updates a bill's remark, the only field that stays
// mutable after commit.
func (h *Handler) AmendBillRemark(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req AmendRemarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.Book.AmendBillRemark(r.Context(), ledger.BillID(id), req.Remark); err != nil {
		writeDomainError(w, "Failed to amend bill remark", err)
		return
	}

	bill, err := h.Book.Store().GetBill(r.Context(), ledger.BillID(id))
	if err != nil {
		writeDomainError(w, "Failed to get bill", err)
		return
	}
	writeJSON(w, http.StatusOK, toBillDTO(bill))
}

// GetBill returns one bill with its tags and shares.
func (h *Handler) GetBill(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx := r.Context()

	bill, err := h.Book.Store().GetBill(ctx, ledger.BillID(id))
	if err != nil {
		writeDomainError(w, "Failed to get bill", err)
		return
	}
	tags, err := h.Book.Store().BillTags(ctx, bill.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get bill tags", err)
		return
	}
	shares, err := h.Book.Store().BillShares(ctx, bill.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get bill shares", err)
		return
	}

	type shareDTO struct {
		AccountID int64      `json:"account_id"`
		Name      string     `json:"name,omitempty"`
		Amount    string     `json:"amount"`
		Settled   bool       `json:"settled"`
		SettledAt *time.Time `json:"settled_at,omitempty"`
	}
	resp := struct {
		BillDTO
		Tags   []string   `json:"tags,omitempty"`
		Shares []shareDTO `json:"shares,omitempty"`
	}{BillDTO: toBillDTO(bill), Tags: tags}
	for _, s := range shares {
		resp.Shares = append(resp.Shares, shareDTO{
			AccountID: int64(s.AccountID),
			Name:      s.Name,
			Amount:    s.Amount.String(),
			Settled:   s.Settled,
			SettledAt: s.SettledAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// BOOK AND CATEGORY HANDLERS
// =============================================================================

func (h *Handler) ListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.Book.Store().ListBooks(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list books", err)
		return
	}

	dtos := make([]BookDTO, len(books))
	for i, b := range books {
		dtos[i] = BookDTO{ID: int64(b.ID), Name: b.Name}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateBook(w http.ResponseWriter, r *http.Request) {
	var req CreateBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Book name is required", nil)
		return
	}

	created, err := h.Book.CreateBook(r.Context(), req.Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create book", err)
		return
	}
	writeJSON(w, http.StatusCreated, BookDTO{ID: int64(created.ID), Name: created.Name})
}

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.Book.Store().ListCategories(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list categories", err)
		return
	}

	dtos := make([]CategoryDTO, len(categories))
	for i, c := range categories {
		dtos[i] = CategoryDTO{
			ID:   int64(c.ID),
			Name: c.Name,
			Icon: c.Icon,
			Type: c.Type.String(),
			Sort: c.Sort,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CreateCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	billType, ok := parseBillType(req.Type)
	if !ok {
		writeError(w, http.StatusBadRequest, "Category type must be expense or income", nil)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Category name is required", nil)
		return
	}

	created, err := h.Book.CreateCategory(r.Context(), ledger.Category{
		Name: req.Name,
		Icon: req.Icon,
		Type: billType,
		Sort: req.Sort,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create category", err)
		return
	}
	writeJSON(w, http.StatusCreated, CategoryDTO{
		ID:   int64(created.ID),
		Name: created.Name,
		Icon: created.Icon,
		Type: created.Type.String(),
		Sort: created.Sort,
	})
}

func (h *Handler) ListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.Book.Store().ListTags(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list tags", err)
		return
	}

	dtos := make([]TagDTO, len(tags))
	for i, t := range tags {
		dtos[i] = TagDTO{ID: int64(t.ID), Name: t.Name}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateTag(w http.ResponseWriter, r *http.Request) {
	var req CreateTagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Tag name is required", nil)
		return
	}

	created, err := h.Book.CreateTag(r.Context(), req.Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create tag", err)
		return
	}
	writeJSON(w, http.StatusCreated, TagDTO{ID: int64(created.ID), Name: created.Name})
}

// =============================================================================
// KEYPAD HANDLER
// =============================================================================

// EvaluateKeypad runs a keystroke sequence through the keypad state
// machine and returns the resulting expression and total. Clients use
// this to validate amount entry server-side.
func (h *Handler) EvaluateKeypad(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	k := keypad.New()
	for _, key := range req.Keys {
		k.Press(key)
	}
	writeJSON(w, http.StatusOK, EvaluateResponse{
		Expression: k.Expression(),
		Total:      k.Total().String(),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid id", err)
		return 0, false
	}
	return id, true
}

// writeDomainError maps ledger errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
