/*
scenarios.go - Demo data loaders for testing and demonstrations

PURPOSE:
  Populates the ledger with a small chart of accounts, fiscal periods and
  transactions so the API and reports can be explored without manual setup.

AVAILABLE SCENARIOS:
  chart-of-accounts:  Demo chart plus an open period for the current year
  first-year:         Chart, a closed previous year with sample entries and
                      its balances carried forward into the current year

HOW SCENARIOS WORK:
  1. Upsert the demo chart (accounts matched by code, so reloading is safe)
  2. Create the periods that do not exist yet (matched by name)
  3. Post sample transactions, close and carry forward (first-year only)

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "first-year"}

USAGE VIA CLI:
  server seed --scenario=first-year

NOTE:
  first-year posts transactions and closes a period; load it into an empty
  database. The carry-forward needs ledger.retained_earnings_code set to
  DemoRetainedEarningsCode.

SEE ALSO:
  - handlers.go: HTTP helpers
  - cmd/server/main.go: seed command
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/warp/general-ledger/ledger"
)

// DemoRetainedEarningsCode is the retained-earnings account of the demo chart.
const DemoRetainedEarningsCode = "3.2"

// DemoActor authors scenario data.
const DemoActor ledger.UserID = "demo"

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	ScenarioDTO
	load func(ctx context.Context, svc *ledger.Service, actor ledger.UserID, year int) error
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "chart-of-accounts",
			Name:        "Chart of Accounts",
			Description: "Demo chart of accounts with an open period for the current year",
		},
		load: loadChartScenario,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "first-year",
			Name:        "First Year Closed",
			Description: "Previous year with sample entries, closed and carried forward into the current year",
		},
		load: loadFirstYearScenario,
	},
}

// Scenarios lists the available demo scenarios.
func Scenarios() []ScenarioDTO {
	out := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		out[i] = s.ScenarioDTO
	}
	return out
}

// LoadScenario runs a scenario by ID against svc. Year is the "current" fiscal year.
func LoadScenario(ctx context.Context, svc *ledger.Service, id string, actor ledger.UserID, year int) error {
	for _, s := range scenarios {
		if s.ID == id {
			return s.load(ctx, svc, actor, year)
		}
	}
	return fmt.Errorf("unknown scenario: %s", id)
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Scenarios())
}

// GetCurrentScenario returns the last loaded scenario, if any.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	current := h.scenario()
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s.ScenarioDTO)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario loads a demo scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeBody(w, r, &req) {
		return
	}
	known := false
	for _, s := range scenarios {
		known = known || s.ID == req.ScenarioID
	}
	if !known {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	who := actor(r)
	if who == "" {
		who = DemoActor
	}
	if err := LoadScenario(r.Context(), h.Ledger, req.ScenarioID, who, time.Now().Year()); err != nil {
		writeLedgerError(w, err)
		return
	}
	h.setScenario(req.ScenarioID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario_id": req.ScenarioID})
}

func (h *Handler) scenario() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.currentScenario
}

func (h *Handler) setScenario(id string) {
	h.mu.Lock()
	h.currentScenario = id
	h.mu.Unlock()
}

// =============================================================================
// LOADERS
// =============================================================================

type demoAccount struct {
	code, name string
	nature     ledger.Nature
	parent     string
}

// Parents precede children.
var demoChart = []demoAccount{
	{"1", "Assets", ledger.NatureAsset, ""},
	{"1.1", "Cash", ledger.NatureAsset, "1"},
	{"1.2", "Bank", ledger.NatureAsset, "1"},
	{"2", "Liabilities", ledger.NatureLiability, ""},
	{"2.1", "Accounts payable", ledger.NatureLiability, "2"},
	{"3", "Equity", ledger.NatureEquity, ""},
	{"3.1", "Capital", ledger.NatureEquity, "3"},
	{DemoRetainedEarningsCode, "Retained earnings", ledger.NatureEquity, "3"},
	{"4", "Income", ledger.NatureIncome, ""},
	{"4.1", "Sales", ledger.NatureIncome, "4"},
	{"5", "Expenses", ledger.NatureExpense, ""},
	{"5.1", "General expenses", ledger.NatureExpense, "5"},
	{"9.1", "Guarantees received", ledger.NatureMemorandum, ""},
	{"9.2", "Guarantees contra", ledger.NatureMemorandum, ""},
}

// seedChart upserts the demo chart and returns account IDs by code.
func seedChart(ctx context.Context, svc *ledger.Service, actor ledger.UserID) (map[string]ledger.AccountID, error) {
	existing, err := svc.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]ledger.AccountID, len(demoChart))
	for _, a := range existing {
		ids[a.Code] = a.ID
	}

	for _, d := range demoChart {
		if _, ok := ids[d.code]; ok {
			continue
		}
		a, err := svc.SaveAccount(ctx, ledger.Account{
			Code:     d.code,
			Name:     d.name,
			Nature:   d.nature,
			Active:   true,
			ParentID: ids[d.parent],
		}, actor)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", d.code, err)
		}
		ids[d.code] = a.ID
	}
	return ids, nil
}

// ensureYear returns the calendar-year period named FY<year>, creating it
// when missing.
func ensureYear(ctx context.Context, svc *ledger.Service, actor ledger.UserID, year int) (*ledger.FiscalPeriod, error) {
	name := "FY" + strconv.Itoa(year)
	periods, err := svc.ListPeriods(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range periods {
		if p.Name == name {
			p := p
			return &p, nil
		}
	}
	return svc.CreatePeriod(ctx, ledger.PeriodDraft{
		Name:  name,
		Start: ledger.NewDate(year, time.January, 1),
		End:   ledger.NewDate(year, time.December, 31),
	}, actor)
}

func loadChartScenario(ctx context.Context, svc *ledger.Service, actor ledger.UserID, year int) error {
	if _, err := seedChart(ctx, svc, actor); err != nil {
		return err
	}
	_, err := ensureYear(ctx, svc, actor, year)
	return err
}

func loadFirstYearScenario(ctx context.Context, svc *ledger.Service, actor ledger.UserID, year int) error {
	ids, err := seedChart(ctx, svc, actor)
	if err != nil {
		return err
	}
	prev, err := ensureYear(ctx, svc, actor, year-1)
	if err != nil {
		return err
	}
	cur, err := ensureYear(ctx, svc, actor, year)
	if err != nil {
		return err
	}

	amt := ledger.MustParseMoney
	entries := []ledger.TransactionDraft{
		{
			Description: "Owner capital contribution",
			Date:        ledger.NewDate(year-1, time.January, 2),
			Type:        ledger.TxReceipt,
			Lines: []ledger.LineDraft{
				ledger.Debit(ids["1.2"], amt("10000.00"), "deposit"),
				ledger.Credit(ids["3.1"], amt("10000.00"), "capital"),
			},
		},
		{
			Description: "Cash sale",
			Date:        ledger.NewDate(year-1, time.March, 15),
			Type:        ledger.TxReceipt,
			Lines: []ledger.LineDraft{
				ledger.Debit(ids["1.1"], amt("2500.00"), ""),
				ledger.Credit(ids["4.1"], amt("2500.00"), ""),
			},
		},
		{
			Description: "Office rent",
			Date:        ledger.NewDate(year-1, time.April, 30),
			Type:        ledger.TxDisbursement,
			Lines: []ledger.LineDraft{
				ledger.Debit(ids["5.1"], amt("800.00"), "rent"),
				ledger.Credit(ids["1.2"], amt("800.00"), ""),
			},
		},
		{
			Description: "Supplies on credit",
			Date:        ledger.NewDate(year-1, time.June, 1),
			Type:        ledger.TxDisbursement,
			Lines: []ledger.LineDraft{
				ledger.Debit(ids["5.1"], amt("400.00"), "supplies"),
				ledger.Credit(ids["2.1"], amt("400.00"), ""),
			},
		},
		{
			Description: "Cash deposited at the bank",
			Date:        ledger.NewDate(year-1, time.July, 1),
			Type:        ledger.TxTransfer,
			Lines: []ledger.LineDraft{
				ledger.Debit(ids["1.2"], amt("1000.00"), ""),
				ledger.Credit(ids["1.1"], amt("1000.00"), ""),
			},
		},
		{
			Description: "Bank guarantee received",
			Date:        ledger.NewDate(year-1, time.September, 1),
			Type:        ledger.TxTransfer,
			Lines: []ledger.LineDraft{
				ledger.Debit(ids["9.1"], amt("5000.00"), ""),
				ledger.Credit(ids["9.2"], amt("5000.00"), ""),
			},
		},
	}
	for _, e := range entries {
		e.PeriodID = prev.ID
		e.AuthorID = actor
		if _, err := svc.CreateTransaction(ctx, e); err != nil {
			return fmt.Errorf("%s: %w", e.Description, err)
		}
	}

	if _, err := svc.ClosePeriod(ctx, prev.ID, actor); err != nil {
		return err
	}
	_, err = svc.CarryForward(ctx, prev.ID, cur.ID, actor)
	return err
}
