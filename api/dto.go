/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract. Money crosses
  the wire as decimal strings ("12.34"), never as floats.

SEE ALSO:
  - handlers.go: Converts between DTOs and domain types
*/
package api

import (
	"time"

	"github.com/tallybook/bookkeeper/book"
	"github.com/tallybook/bookkeeper/ledger"
	"github.com/tallybook/bookkeeper/money"
)

// =============================================================================
// REQUESTS
// =============================================================================

type CreateAccountRequest struct {
	Name    string `json:"name"`
	Icon    string `json:"icon,omitempty"`
	Initial string `json:"initial"`
}

type CreateBookRequest struct {
	Name string `json:"name"`
}

type CreateCategoryRequest struct {
	Name string `json:"name"`
	Icon string `json:"icon,omitempty"`
	Type string `json:"type"`
	Sort int    `json:"sort,omitempty"`
}

type CreateTagRequest struct {
	Name string `json:"name"`
}

type ShareRequest struct {
	AccountID int64      `json:"account_id"`
	Name      string     `json:"name,omitempty"`
	Amount    string     `json:"amount"`
	Settled   bool       `json:"settled"`
	SettledAt *time.Time `json:"settled_at,omitempty"`
}

type BillRequest struct {
	UID        string         `json:"uid,omitempty"`
	Type       string         `json:"type"`
	Price      string         `json:"price"`
	Promotion  string         `json:"promotion,omitempty"`
	Date       time.Time      `json:"date"`
	AccountID  int64          `json:"account_id"`
	CategoryID int64          `json:"category_id,omitempty"`
	BookID     int64          `json:"book_id"`
	Remark     string         `json:"remark,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
	Shares     []ShareRequest `json:"shares,omitempty"`
}

type ImportRequest struct {
	Bills []BillRequest `json:"bills"`
}

type AmendRemarkRequest struct {
	Remark string `json:"remark"`
}

type EvaluateRequest struct {
	Keys []string `json:"keys"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type AccountDTO struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Icon    string `json:"icon,omitempty"`
	Money   string `json:"money"`
	Default bool   `json:"default,omitempty"`
}

type BookDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type TagDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type CategoryDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon,omitempty"`
	Type string `json:"type"`
	Sort int    `json:"sort"`
}

type BillDTO struct {
	ID         int64      `json:"id"`
	UID        string     `json:"uid"`
	Type       string     `json:"type"`
	Price      string     `json:"price"`
	Promotion  string     `json:"promotion"`
	Effective  string     `json:"effective"`
	Date       time.Time  `json:"date"`
	AccountID  int64      `json:"account_id"`
	CategoryID int64      `json:"category_id,omitempty"`
	BookID     int64      `json:"book_id"`
	Remark     string     `json:"remark,omitempty"`
	ModifiedAt *time.Time `json:"modified_at,omitempty"`
}

type RecordDTO struct {
	ID            int64     `json:"id"`
	BillID        int64     `json:"bill_id,omitempty"`
	ShareID       int64     `json:"share_id,omitempty"`
	Date          time.Time `json:"date"`
	BalanceBefore string    `json:"balance_before"`
	BalanceAfter  string    `json:"balance_after"`
	IsInit        bool      `json:"is_init,omitempty"`
}

type PartialFailureDTO struct {
	Kind      string `json:"kind"`
	Tag       string `json:"tag,omitempty"`
	AccountID int64  `json:"account_id,omitempty"`
	Error     string `json:"error"`
}

type InsertBillResponse struct {
	BillID          int64               `json:"bill_id"`
	AccountBalance  string              `json:"account_balance"`
	ShiftedRecords  int64               `json:"shifted_records"`
	PartialFailures []PartialFailureDTO `json:"partial_failures,omitempty"`
}

type AccountRepairDTO struct {
	AccountID      int64  `json:"account_id"`
	NetDelta       string `json:"net_delta"`
	RecordsPatched int    `json:"records_patched"`
	Balance        string `json:"balance"`
}

type ImportResponse struct {
	Bills   int                `json:"bills"`
	Records int                `json:"records"`
	Repairs []AccountRepairDTO `json:"repairs"`
}

type EvaluateResponse struct {
	Expression string `json:"expression"`
	Total      string `json:"total"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toAccountDTO(a ledger.Account) AccountDTO {
	return AccountDTO{
		ID:      int64(a.ID),
		Name:    a.Name,
		Icon:    a.Icon,
		Money:   a.Money.String(),
		Default: a.IsDefault,
	}
}

func toBillDTO(b ledger.Bill) BillDTO {
	return BillDTO{
		ID:         int64(b.ID),
		UID:        b.UID,
		Type:       b.Type.String(),
		Price:      b.Price.String(),
		Promotion:  b.Promotion.String(),
		Effective:  b.EffectiveAmount().String(),
		Date:       b.Date,
		AccountID:  int64(b.AccountID),
		CategoryID: int64(b.CategoryID),
		BookID:     int64(b.BookID),
		Remark:     b.Remark,
		ModifiedAt: b.ModifiedAt,
	}
}

func toRecordDTO(r ledger.Record) RecordDTO {
	return RecordDTO{
		ID:            int64(r.ID),
		BillID:        int64(r.BillID),
		ShareID:       int64(r.ShareID),
		Date:          r.Date,
		BalanceBefore: r.BalanceBefore.String(),
		BalanceAfter:  r.BalanceAfter.String(),
		IsInit:        r.IsInit,
	}
}

func toPartialFailureDTOs(failures []book.PartialFailure) []PartialFailureDTO {
	dtos := make([]PartialFailureDTO, len(failures))
	for i, f := range failures {
		dtos[i] = PartialFailureDTO{
			Kind:      f.Kind,
			Tag:       f.Tag,
			AccountID: int64(f.AccountID),
			Error:     f.Err.Error(),
		}
	}
	return dtos
}

func parseBillType(s string) (ledger.BillType, bool) {
	switch s {
	case "expense":
		return ledger.Expense, true
	case "income":
		return ledger.Income, true
	default:
		return 0, false
	}
}

func parseAmountField(s string) (money.Amount, error) {
	if s == "" {
		return money.Zero(), nil
	}
	return money.Parse(s)
}

func toBillInput(req BillRequest) (book.BillInput, error) {
	billType, ok := parseBillType(req.Type)
	if !ok {
		return book.BillInput{}, &ledger.ValidationError{Field: "type", Reason: "must be expense or income"}
	}
	price, err := parseAmountField(req.Price)
	if err != nil {
		return book.BillInput{}, &ledger.ValidationError{Field: "price", Reason: err.Error()}
	}
	promotion, err := parseAmountField(req.Promotion)
	if err != nil {
		return book.BillInput{}, &ledger.ValidationError{Field: "promotion", Reason: err.Error()}
	}

	in := book.BillInput{
		Bill: ledger.Bill{
			UID:        req.UID,
			Type:       billType,
			Price:      price,
			Promotion:  promotion,
			Date:       req.Date,
			AccountID:  ledger.AccountID(req.AccountID),
			CategoryID: ledger.CategoryID(req.CategoryID),
			BookID:     ledger.BookID(req.BookID),
			Remark:     req.Remark,
		},
		Tags: req.Tags,
	}
	for _, s := range req.Shares {
		amount, err := parseAmountField(s.Amount)
		if err != nil {
			return book.BillInput{}, &ledger.ValidationError{Field: "shares", Reason: err.Error()}
		}
		in.Shares = append(in.Shares, ledger.Share{
			AccountID: ledger.AccountID(s.AccountID),
			Name:      s.Name,
			Amount:    amount,
			Settled:   s.Settled,
			SettledAt: s.SettledAt,
		})
	}
	return in, nil
}
