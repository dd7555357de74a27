/*
handlers.go - HTTP API handlers for the general ledger

PURPOSE:
  Exposes the Ledger Core API over REST. Handles HTTP request/response and
  JSON serialization, and delegates every decision to ledger.Service.

ENDPOINTS:
  Accounts:
    GET    /api/accounts                    List the chart of accounts
    POST   /api/accounts                    Create account
    PUT    /api/accounts/{id}               Update account
    GET    /api/accounts/{id}/balance       Balance (?period_id, from, to, rollup)

  Fiscal periods:
    GET    /api/periods                     List periods
    POST   /api/periods                     Create period
    GET    /api/periods/{id}                Get period
    PUT    /api/periods/{id}                Update open period
    DELETE /api/periods/{id}                Delete empty open period
    POST   /api/periods/{id}/close          Close period
    POST   /api/periods/{id}/carry-forward  Carry balances to another period
    GET    /api/periods/{id}/balances       Compare with ?previous=<period>

  Transactions:
    POST   /api/transactions                Create transaction
    GET    /api/transactions/{id}           Get transaction with details
    DELETE /api/transactions/{id}           Delete transaction
    POST   /api/transactions/{id}/details   Add detail lines
    PUT    /api/transactions/{id}/details   Replace the detail set
    DELETE /api/transactions/{id}/details   Delete detail lines

  Reports:
    GET    /api/reports/journal             ?period_id | from&to
    GET    /api/reports/general-ledger      ?account_id&period_id&from&to
    GET    /api/reports/trial-balance       ?period_id&from&to
    GET    /api/reports/balance-sheet       ?as_of
    GET    /api/reports/income-statement    ?period_id | from&to

  Audit:
    GET    /api/audit                       ?actor_id&entity_kind&entity_id&action&limit

ACTOR:
  Mutating endpoints read the acting user from the X-User-ID header. The
  ledger rejects writes without one.

ERROR HANDLING:
  Errors are returned as JSON with the status derived from the ledger error
  category:
  - 400: Validation (body carries fields and, for unbalanced entries, totals)
  - 404: Referenced entity not found
  - 409: Conflict (closed period, duplicate, concurrent modification)
  - 429: Write rate limit exceeded (server.go)
  - 500: Internal errors (details are logged, not returned)

SECURITY NOTE:
  No authentication. X-User-ID is trusted as given; put the server behind an
  authenticating proxy in production.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - scenarios.go: Demo data loaders
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/warp/general-ledger/ledger"
)

// UserHeader carries the acting user's ID.
const UserHeader = "X-User-ID"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger *ledger.Service

	// Track the last loaded demo scenario
	mu              sync.RWMutex
	currentScenario string
}

// NewHandler creates a new handler backed by the given ledger service.
func NewHandler(svc *ledger.Service) *Handler {
	return &Handler{Ledger: svc}
}

func actor(r *http.Request) ledger.UserID {
	return ledger.UserID(strings.TrimSpace(r.Header.Get(UserHeader)))
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// ListAccounts returns the chart of accounts ordered by code.
// GET /api/accounts
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Ledger.ListAccounts(r.Context())
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	dtos := make([]AccountDTO, len(accounts))
	for i, a := range accounts {
		dtos[i] = toAccountDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAccount adds an account to the directory.
// POST /api/accounts
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	h.saveAccount(w, r, "", http.StatusCreated)
}

// UpdateAccount replaces an account's fields.
// PUT /api/accounts/{id}
func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	h.saveAccount(w, r, ledger.AccountID(chi.URLParam(r, "id")), http.StatusOK)
}

func (h *Handler) saveAccount(w http.ResponseWriter, r *http.Request, id ledger.AccountID, status int) {
	var req SaveAccountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	a, err := h.Ledger.SaveAccount(r.Context(), ledger.Account{
		ID:       id,
		Code:     req.Code,
		Name:     req.Name,
		Nature:   ledger.Nature(req.Nature),
		Active:   active,
		ParentID: ledger.AccountID(req.ParentID),
	}, actor(r))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, status, toAccountDTO(*a))
}

// GetAccountBalance returns one account's balance, optionally rolled up over
// its descendants.
// GET /api/accounts/{id}/balance?period_id=&from=&to=&rollup=true
func (h *Handler) GetAccountBalance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rng, err := parseRange(q.Get("from"), q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range", err)
		return
	}
	rollup, _ := strconv.ParseBool(q.Get("rollup"))

	b, err := h.Ledger.AccountBalance(r.Context(), ledger.AccountID(chi.URLParam(r, "id")), ledger.BalanceFilter{
		PeriodID: ledger.PeriodID(q.Get("period_id")),
		Range:    rng,
	}, rollup)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(b))
}

// =============================================================================
// FISCAL PERIOD HANDLERS
// =============================================================================

// ListPeriods returns every fiscal period ordered by start date.
// GET /api/periods
func (h *Handler) ListPeriods(w http.ResponseWriter, r *http.Request) {
	periods, err := h.Ledger.ListPeriods(r.Context())
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	dtos := make([]PeriodDTO, len(periods))
	for i, p := range periods {
		dtos[i] = toPeriodDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePeriod opens a new fiscal period.
// POST /api/periods
func (h *Handler) CreatePeriod(w http.ResponseWriter, r *http.Request) {
	draft, ok := decodePeriod(w, r)
	if !ok {
		return
	}
	p, err := h.Ledger.CreatePeriod(r.Context(), draft, actor(r))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPeriodDTO(*p))
}

// GetPeriod returns one fiscal period.
// GET /api/periods/{id}
func (h *Handler) GetPeriod(w http.ResponseWriter, r *http.Request) {
	p, err := h.Ledger.GetPeriod(r.Context(), ledger.PeriodID(chi.URLParam(r, "id")))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTO(*p))
}

// UpdatePeriod renames or re-dates an open period.
// PUT /api/periods/{id}
func (h *Handler) UpdatePeriod(w http.ResponseWriter, r *http.Request) {
	draft, ok := decodePeriod(w, r)
	if !ok {
		return
	}
	p, err := h.Ledger.UpdatePeriod(r.Context(), ledger.PeriodID(chi.URLParam(r, "id")), draft, actor(r))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTO(*p))
}

// DeletePeriod removes an open period without transactions.
// DELETE /api/periods/{id}
func (h *Handler) DeletePeriod(w http.ResponseWriter, r *http.Request) {
	if err := h.Ledger.DeletePeriod(r.Context(), ledger.PeriodID(chi.URLParam(r, "id")), actor(r)); err != nil {
		writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClosePeriod freezes a period against further user writes.
// POST /api/periods/{id}/close
func (h *Handler) ClosePeriod(w http.ResponseWriter, r *http.Request) {
	p, err := h.Ledger.ClosePeriod(r.Context(), ledger.PeriodID(chi.URLParam(r, "id")), actor(r))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTO(*p))
}

// CarryForward generates the closing and opening entries.
// POST /api/periods/{id}/carry-forward
func (h *Handler) CarryForward(w http.ResponseWriter, r *http.Request) {
	var req CarryForwardRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.Ledger.CarryForward(r.Context(),
		ledger.PeriodID(chi.URLParam(r, "id")),
		ledger.PeriodID(req.DestinationPeriodID),
		actor(r))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, CarryForwardDTO{
		Closing:   toTransactionDTO(res.Closing),
		Opening:   toTransactionDTO(res.Opening),
		NetResult: money(res.NetResult),
	})
}

// CompareBalances lists per-account balances of this period and a previous one.
// GET /api/periods/{id}/balances?previous=<period_id>
func (h *Handler) CompareBalances(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Ledger.CompareBalances(r.Context(),
		ledger.PeriodID(r.URL.Query().Get("previous")),
		ledger.PeriodID(chi.URLParam(r, "id")))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	dtos := make([]BalanceComparisonDTO, len(rows))
	for i, c := range rows {
		dtos[i] = BalanceComparisonDTO{
			Account:  toAccountDTO(c.Account),
			Previous: money(c.Previous),
			Current:  money(c.Current),
			Total:    money(c.Total),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

// CreateTransaction validates and records a balanced transaction.
// POST /api/transactions
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req CreateTransactionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	draft := ledger.TransactionDraft{
		Description: req.Description,
		Type:        ledger.TransactionType(req.Type),
		PeriodID:    ledger.PeriodID(req.PeriodID),
		AuthorID:    actor(r),
		Lines:       toLineDrafts(req.Lines),
	}
	if req.Date != "" {
		d, err := ledger.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
			return
		}
		draft.Date = d
	}

	tx, err := h.Ledger.CreateTransaction(r.Context(), draft)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// GetTransaction returns a transaction with its detail lines.
// GET /api/transactions/{id}
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.Ledger.GetTransaction(r.Context(), ledger.TransactionID(chi.URLParam(r, "id")))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(tx))
}

// DeleteTransaction removes a transaction and all its lines.
// DELETE /api/transactions/{id}
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := h.Ledger.DeleteTransaction(r.Context(), ledger.TransactionID(chi.URLParam(r, "id")), actor(r)); err != nil {
		writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddDetails appends lines; the resulting set must balance.
// POST /api/transactions/{id}/details
func (h *Handler) AddDetails(w http.ResponseWriter, r *http.Request) {
	var req DetailsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	tx, err := h.Ledger.AddDetails(r.Context(), ledger.TransactionID(chi.URLParam(r, "id")), actor(r), toLineDrafts(req.Lines))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(tx))
}

// ReplaceDetails swaps the entire detail set.
// PUT /api/transactions/{id}/details
func (h *Handler) ReplaceDetails(w http.ResponseWriter, r *http.Request) {
	var req DetailsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	tx, err := h.Ledger.ReplaceDetails(r.Context(), ledger.TransactionID(chi.URLParam(r, "id")), actor(r), toLineDrafts(req.Lines))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(tx))
}

// DeleteDetails removes lines; what remains must balance.
// DELETE /api/transactions/{id}/details
func (h *Handler) DeleteDetails(w http.ResponseWriter, r *http.Request) {
	var req DeleteDetailsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ids := make([]ledger.DetailID, len(req.DetailIDs))
	for i, id := range req.DetailIDs {
		ids[i] = ledger.DetailID(id)
	}
	tx, err := h.Ledger.DeleteDetails(r.Context(), ledger.TransactionID(chi.URLParam(r, "id")), actor(r), ids)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(tx))
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// Journal lists detail lines chronologically.
// GET /api/reports/journal
func (h *Handler) Journal(w http.ResponseWriter, r *http.Request) {
	f, ok := reportFilter(w, r)
	if !ok {
		return
	}
	j, err := h.Ledger.Journal(r.Context(), f)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	dto := JournalDTO{
		Lines:       make([]PostingDTO, len(j.Lines)),
		TotalDebit:  money(j.TotalDebit),
		TotalCredit: money(j.TotalCredit),
	}
	for i, p := range j.Lines {
		dto.Lines[i] = toPostingDTO(p)
	}
	writeJSON(w, http.StatusOK, dto)
}

// GeneralLedger groups lines per account with running balances.
// GET /api/reports/general-ledger
func (h *Handler) GeneralLedger(w http.ResponseWriter, r *http.Request) {
	f, ok := reportFilter(w, r)
	if !ok {
		return
	}
	ledgers, err := h.Ledger.GeneralLedger(r.Context(), f)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	dtos := make([]AccountLedgerDTO, len(ledgers))
	for i, l := range ledgers {
		d := AccountLedgerDTO{
			Account:     toAccountDTO(l.Account),
			Lines:       make([]LedgerLineDTO, len(l.Lines)),
			TotalDebit:  money(l.TotalDebit),
			TotalCredit: money(l.TotalCredit),
			Balance:     money(l.Balance),
		}
		for j, line := range l.Lines {
			d.Lines[j] = LedgerLineDTO{PostingDTO: toPostingDTO(line.Posting), RunningBalance: money(line.RunningBalance)}
		}
		dtos[i] = d
	}
	writeJSON(w, http.StatusOK, dtos)
}

// TrialBalance sums debits and credits per account.
// GET /api/reports/trial-balance
func (h *Handler) TrialBalance(w http.ResponseWriter, r *http.Request) {
	f, ok := reportFilter(w, r)
	if !ok {
		return
	}
	tb, err := h.Ledger.TrialBalance(r.Context(), f)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TrialBalanceDTO{
		Rows:        toBalanceDTOs(tb.Rows),
		TotalDebit:  money(tb.TotalDebit),
		TotalCredit: money(tb.TotalCredit),
		Balanced:    tb.Balanced,
	})
}

// BalanceSheet snapshots balance-sheet accounts as of a date.
// GET /api/reports/balance-sheet?as_of=YYYY-MM-DD
func (h *Handler) BalanceSheet(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("as_of")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "as_of is required", nil)
		return
	}
	asOf, err := ledger.ParseDate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of format (use YYYY-MM-DD)", err)
		return
	}
	bs, err := h.Ledger.BalanceSheet(r.Context(), asOf)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceSheetDTO{
		AsOf:             day(bs.AsOf),
		Since:            day(bs.Since),
		Assets:           toBalanceDTOs(bs.Assets),
		Liabilities:      toBalanceDTOs(bs.Liabilities),
		Equity:           toBalanceDTOs(bs.Equity),
		TotalAssets:      money(bs.TotalAssets),
		TotalLiabilities: money(bs.TotalLiabilities),
		TotalEquity:      money(bs.TotalEquity),
		CurrentResult:    money(bs.CurrentResult),
		Balanced:         bs.Balanced,
	})
}

// IncomeStatement reports income and expenses over a span.
// GET /api/reports/income-statement
func (h *Handler) IncomeStatement(w http.ResponseWriter, r *http.Request) {
	f, ok := reportFilter(w, r)
	if !ok {
		return
	}
	is, err := h.Ledger.IncomeStatement(r.Context(), f)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, IncomeStatementDTO{
		Income:       toBalanceDTOs(is.Income),
		Expenses:     toBalanceDTOs(is.Expenses),
		TotalIncome:  money(is.TotalIncome),
		TotalExpense: money(is.TotalExpense),
		NetResult:    money(is.NetResult),
	})
}

// =============================================================================
// AUDIT HANDLERS
// =============================================================================

// ListAudit queries the audit log, newest first.
// GET /api/audit
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := ledger.AuditFilter{
		ActorID:    ledger.UserID(q.Get("actor_id")),
		EntityKind: q.Get("entity_kind"),
		EntityID:   q.Get("entity_id"),
		Limit:      100,
	}
	for _, a := range q["action"] {
		f.Actions = append(f.Actions, ledger.AuditAction(a))
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		f.Limit = n
	}

	entries, err := h.Ledger.AuditTrail(r.Context(), f)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toAuditEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

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

// writeLedgerError maps a ledger error category to an HTTP status.
func writeLedgerError(w http.ResponseWriter, err error) {
	var verr *ledger.ValidationError
	switch {
	case errors.As(err, &verr):
		resp := ErrorResponse{Error: verr.Message, Fields: verr.Fields}
		if verr.TotalDebit != nil {
			resp.TotalDebit = money(*verr.TotalDebit)
		}
		if verr.TotalCredit != nil {
			resp.TotalCredit = money(*verr.TotalCredit)
		}
		writeJSON(w, http.StatusBadRequest, resp)
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	case ledger.IsConflict(err):
		writeError(w, http.StatusConflict, err.Error(), nil)
	case ledger.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	default:
		log.Printf("[API] internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal error", nil)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func decodePeriod(w http.ResponseWriter, r *http.Request) (ledger.PeriodDraft, bool) {
	var req PeriodRequest
	if !decodeBody(w, r, &req) {
		return ledger.PeriodDraft{}, false
	}
	rng, err := parseRange(req.Start, req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return ledger.PeriodDraft{}, false
	}
	return ledger.PeriodDraft{Name: req.Name, Start: rng.From, End: rng.To}, true
}

// parseRange parses optional from/to days. Empty strings leave a side open.
func parseRange(from, to string) (ledger.DateRange, error) {
	var rng ledger.DateRange
	if from != "" {
		d, err := ledger.ParseDate(from)
		if err != nil {
			return rng, fmt.Errorf("from: %w", err)
		}
		rng.From = d
	}
	if to != "" {
		d, err := ledger.ParseDate(to)
		if err != nil {
			return rng, fmt.Errorf("to: %w", err)
		}
		rng.To = d
	}
	return rng, nil
}

func reportFilter(w http.ResponseWriter, r *http.Request) (ledger.ReportFilter, bool) {
	q := r.URL.Query()
	rng, err := parseRange(q.Get("from"), q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range", err)
		return ledger.ReportFilter{}, false
	}
	f := ledger.ReportFilter{PeriodID: ledger.PeriodID(q.Get("period_id")), Range: rng}
	for _, id := range q["account_id"] {
		f.AccountIDs = append(f.AccountIDs, ledger.AccountID(id))
	}
	return f, true
}
