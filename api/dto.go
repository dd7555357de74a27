/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Responses render amounts as strings with exactly two decimals ("1500.00")
  so clients never round through float64. Requests accept either a JSON
  string or a JSON number; both are parsed exactly by decimal.Decimal.

DATES:
  Calendar days travel as "YYYY-MM-DD". Timestamps (created_at, closed_at,
  audit entries) are RFC 3339.

VALIDATION:
  Validation is done by the ledger Service, not in DTOs. DTOs are pure data
  carriers; the only parsing done here is for dates.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/types.go: Domain model
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/general-ledger/ledger"
)

// =============================================================================
// ACCOUNTS
// =============================================================================

type AccountDTO struct {
	ID       string `json:"id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Nature   string `json:"nature"`
	Active   bool   `json:"active"`
	ParentID string `json:"parent_id,omitempty"`
}

// SaveAccountRequest creates or updates an account. Active defaults to true.
type SaveAccountRequest struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Nature   string `json:"nature"`
	Active   *bool  `json:"active,omitempty"`
	ParentID string `json:"parent_id,omitempty"`
}

type BalanceDTO struct {
	Account AccountDTO `json:"account"`
	Debit   string     `json:"debit"`
	Credit  string     `json:"credit"`
	Balance string     `json:"balance"`
}

// =============================================================================
// FISCAL PERIODS
// =============================================================================

type PeriodDTO struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Start     string     `json:"start"`
	End       string     `json:"end"`
	Closed    bool       `json:"closed"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	ClosedBy  string     `json:"closed_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type PeriodRequest struct {
	Name  string `json:"name"`
	Start string `json:"start"`
	End   string `json:"end"`
}

type CarryForwardRequest struct {
	DestinationPeriodID string `json:"destination_period_id"`
}

type CarryForwardDTO struct {
	Closing   *TransactionDTO `json:"closing"`
	Opening   *TransactionDTO `json:"opening"`
	NetResult string          `json:"net_result"`
}

type BalanceComparisonDTO struct {
	Account  AccountDTO `json:"account"`
	Previous string     `json:"previous"`
	Current  string     `json:"current"`
	Total    string     `json:"total"`
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

type LineDTO struct {
	ID            string `json:"id"`
	TransactionID string `json:"transaction_id"`
	AccountID     string `json:"account_id"`
	Debit         string `json:"debit"`
	Credit        string `json:"credit"`
	Description   string `json:"description,omitempty"`
}

type TransactionDTO struct {
	ID              string    `json:"id"`
	Reference       string    `json:"reference"`
	Description     string    `json:"description"`
	Date            string    `json:"date"`
	Type            string    `json:"type"`
	SystemGenerated bool      `json:"system_generated"`
	PeriodID        string    `json:"period_id"`
	AuthorID        string    `json:"author_id"`
	Version         int64     `json:"version"`
	CreatedAt       time.Time `json:"created_at"`
	Details         []LineDTO `json:"details"`
	TotalDebit      string    `json:"total_debit"`
	TotalCredit     string    `json:"total_credit"`
}

// LineRequest is one proposed detail line. ID is only meaningful when
// replacing details, where it keeps an existing line's identity.
type LineRequest struct {
	ID          string          `json:"id,omitempty"`
	AccountID   string          `json:"account_id"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description,omitempty"`
}

// CreateTransactionRequest is the body of POST /api/transactions. The author
// is taken from the X-User-ID header.
type CreateTransactionRequest struct {
	Description string        `json:"description"`
	Date        string        `json:"date"`
	Type        string        `json:"type"`
	PeriodID    string        `json:"period_id"`
	Lines       []LineRequest `json:"lines"`
}

type DetailsRequest struct {
	Lines []LineRequest `json:"lines"`
}

type DeleteDetailsRequest struct {
	DetailIDs []string `json:"detail_ids"`
}

// =============================================================================
// REPORTS
// =============================================================================

type PostingDTO struct {
	LineDTO
	Reference              string `json:"reference"`
	Date                   string `json:"date"`
	Type                   string `json:"type"`
	SystemGenerated        bool   `json:"system_generated"`
	PeriodID               string `json:"period_id"`
	TransactionDescription string `json:"transaction_description"`
}

type JournalDTO struct {
	Lines       []PostingDTO `json:"lines"`
	TotalDebit  string       `json:"total_debit"`
	TotalCredit string       `json:"total_credit"`
}

type LedgerLineDTO struct {
	PostingDTO
	RunningBalance string `json:"running_balance"`
}

type AccountLedgerDTO struct {
	Account     AccountDTO      `json:"account"`
	Lines       []LedgerLineDTO `json:"lines"`
	TotalDebit  string          `json:"total_debit"`
	TotalCredit string          `json:"total_credit"`
	Balance     string          `json:"balance"`
}

type TrialBalanceDTO struct {
	Rows        []BalanceDTO `json:"rows"`
	TotalDebit  string       `json:"total_debit"`
	TotalCredit string       `json:"total_credit"`
	Balanced    bool         `json:"balanced"`
}

type BalanceSheetDTO struct {
	AsOf             string       `json:"as_of"`
	Since            string       `json:"since,omitempty"`
	Assets           []BalanceDTO `json:"assets"`
	Liabilities      []BalanceDTO `json:"liabilities"`
	Equity           []BalanceDTO `json:"equity"`
	TotalAssets      string       `json:"total_assets"`
	TotalLiabilities string       `json:"total_liabilities"`
	TotalEquity      string       `json:"total_equity"`
	CurrentResult    string       `json:"current_result"`
	Balanced         bool         `json:"balanced"`
}

type IncomeStatementDTO struct {
	Income       []BalanceDTO `json:"income"`
	Expenses     []BalanceDTO `json:"expenses"`
	TotalIncome  string       `json:"total_income"`
	TotalExpense string       `json:"total_expense"`
	NetResult    string       `json:"net_result"`
}

// =============================================================================
// AUDIT / SCENARIOS / ERRORS
// =============================================================================

type AuditEntryDTO struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	ActorID    string    `json:"actor_id"`
	Action     string    `json:"action"`
	EntityKind string    `json:"entity_kind"`
	EntityID   string    `json:"entity_id"`
}

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the body of every non-2xx response. Fields and totals are
// only set for validation failures.
type ErrorResponse struct {
	Error       string            `json:"error"`
	Details     string            `json:"details,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
	TotalDebit  string            `json:"total_debit,omitempty"`
	TotalCredit string            `json:"total_credit,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func money(m ledger.Money) string { return m.StringFixed(ledger.MoneyPlaces) }

func day(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(ledger.DateLayout)
}

func toAccountDTO(a ledger.Account) AccountDTO {
	return AccountDTO{
		ID:       string(a.ID),
		Code:     a.Code,
		Name:     a.Name,
		Nature:   string(a.Nature),
		Active:   a.Active,
		ParentID: string(a.ParentID),
	}
}

func toBalanceDTO(b ledger.AccountBalance) BalanceDTO {
	return BalanceDTO{
		Account: toAccountDTO(b.Account),
		Debit:   money(b.Debit),
		Credit:  money(b.Credit),
		Balance: money(b.Balance),
	}
}

func toBalanceDTOs(bs []ledger.AccountBalance) []BalanceDTO {
	out := make([]BalanceDTO, len(bs))
	for i, b := range bs {
		out[i] = toBalanceDTO(b)
	}
	return out
}

func toPeriodDTO(p ledger.FiscalPeriod) PeriodDTO {
	return PeriodDTO{
		ID:        string(p.ID),
		Name:      p.Name,
		Start:     day(p.Start),
		End:       day(p.End),
		Closed:    p.Closed,
		ClosedAt:  p.ClosedAt,
		ClosedBy:  string(p.ClosedBy),
		CreatedAt: p.CreatedAt,
	}
}

func toLineDTO(l ledger.DetailLine) LineDTO {
	return LineDTO{
		ID:            string(l.ID),
		TransactionID: string(l.TransactionID),
		AccountID:     string(l.AccountID),
		Debit:         money(l.Debit),
		Credit:        money(l.Credit),
		Description:   l.Description,
	}
}

func toTransactionDTO(tx *ledger.Transaction) *TransactionDTO {
	if tx == nil {
		return nil
	}
	debit, credit := tx.Totals()
	dto := &TransactionDTO{
		ID:              string(tx.ID),
		Reference:       tx.Reference,
		Description:     tx.Description,
		Date:            day(tx.Date),
		Type:            string(tx.Type),
		SystemGenerated: tx.SystemGenerated,
		PeriodID:        string(tx.PeriodID),
		AuthorID:        string(tx.AuthorID),
		Version:         tx.Version,
		CreatedAt:       tx.CreatedAt,
		Details:         make([]LineDTO, len(tx.Details)),
		TotalDebit:      money(debit),
		TotalCredit:     money(credit),
	}
	for i, l := range tx.Details {
		dto.Details[i] = toLineDTO(l)
	}
	return dto
}

func toPostingDTO(p ledger.Posting) PostingDTO {
	return PostingDTO{
		LineDTO:                toLineDTO(p.DetailLine),
		Reference:              p.Reference,
		Date:                   day(p.Date),
		Type:                   string(p.Type),
		SystemGenerated:        p.SystemGenerated,
		PeriodID:               string(p.PeriodID),
		TransactionDescription: p.TransactionDescription,
	}
}

func toLineDrafts(lines []LineRequest) []ledger.LineDraft {
	out := make([]ledger.LineDraft, len(lines))
	for i, l := range lines {
		out[i] = ledger.LineDraft{
			ID:          ledger.DetailID(l.ID),
			AccountID:   ledger.AccountID(l.AccountID),
			Debit:       l.Debit,
			Credit:      l.Credit,
			Description: l.Description,
		}
	}
	return out
}

func toAuditEntryDTO(e ledger.AuditEntry) AuditEntryDTO {
	return AuditEntryDTO{
		ID:         e.ID,
		Timestamp:  e.Timestamp,
		ActorID:    string(e.ActorID),
		Action:     string(e.Action),
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
	}
}
