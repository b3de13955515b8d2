/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built ledgers that populate the store with realistic data
  for demos. Each scenario creates accounts and entries for the request's
  owner, dated relative to today so projections always have a future.

AVAILABLE SCENARIOS:
  salary-and-rent:    Checking account with salary, rent and a gym plan
  card-invoice:       Credit card with an installment purchase due now
  loan-anticipation:  Installment loan with one installment paid early
  negative-risk:      Spending that drives the projection below zero

HOW SCENARIOS WORK:
 1. Create accounts through the ledger service
 2. Create entries and series
 3. Optionally settle entries or installments

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "card-invoice"}

NOTE:
  Scenarios add to the owner's ledger, they do not reset it. Load them for
  a fresh owner (X-Owner-ID) to get a clean demo.

SEE ALSO:
  - handlers.go: Handler
  - ledger/service.go: Operations used by the loaders
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/warp/cashflow-engine/engine"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "salary-and-rent",
		Name:        "Salary and Rent",
		Description: "Checking account with a monthly salary, rent and a 12-month gym plan",
	},
	{
		ID:          "card-invoice",
		Name:        "Card Invoice",
		Description: "Credit card with purchases in the open cycle and an installment due on the closed invoice",
	},
	{
		ID:          "loan-anticipation",
		Name:        "Loan Anticipation",
		Description: "12-installment loan with the first installment paid 20 days early",
	},
	{
		ID:          "negative-risk",
		Name:        "Negative Risk",
		Description: "Recurring spending above income; the projection goes negative",
	},
}

type scenarioLoader func(h *Handler, ctx context.Context, owner engine.OwnerID, today engine.Date) error

var scenarioLoaders = map[string]scenarioLoader{
	"salary-and-rent":   (*Handler).loadSalaryAndRentScenario,
	"card-invoice":      (*Handler).loadCardInvoiceScenario,
	"loan-anticipation": (*Handler).loadLoanAnticipationScenario,
	"negative-risk":     (*Handler).loadNegativeRiskScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the last loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario loads a predefined scenario for the request's owner.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q does not exist", req.ScenarioID))
		return
	}

	owner := h.owner(r)
	if err := load(h, r.Context(), owner, h.Service.Today()); err != nil {
		h.fail(w, "Failed to load scenario", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	h.logger.WithFields(logrus.Fields{"scenario": req.ScenarioID, "owner": owner}).Info("scenario loaded")
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "loaded",
		"scenario": req.ScenarioID,
		"owner":    string(owner),
	})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadSalaryAndRentScenario(ctx context.Context, owner engine.OwnerID, today engine.Date) error {
	checking, err := h.Service.SaveAccount(ctx, engine.Account{
		OwnerID:        owner,
		Name:           "Checking",
		Kind:           engine.AccountChecking,
		OpeningBalance: decimal.NewFromInt(2500),
	})
	if err != nil {
		return err
	}

	monthStart := engine.StartOfMonth(today.Year(), today.Month())
	drafts := []engine.Draft{
		{
			Description: "Salary",
			Direction:   engine.Inflow,
			Amount:      decimal.NewFromInt(4200),
			FirstDate:   monthStart.AddDays(4),
			Channel:     engine.ChannelInstant,
			Recurrence:  engine.RecurrenceFixed,
			Count:       1,
		},
		{
			Description: "Rent",
			Direction:   engine.Outflow,
			Amount:      decimal.NewFromInt(1800),
			FirstDate:   monthStart.AddDays(9),
			Channel:     engine.ChannelDebit,
			Recurrence:  engine.RecurrenceFixed,
			Count:       1,
		},
		{
			Description: "Gym membership",
			Direction:   engine.Outflow,
			Amount:      decimal.RequireFromString("89.90"),
			FirstDate:   monthStart.AddDays(14),
			Channel:     engine.ChannelDebit,
			Recurrence:  engine.RecurrenceMonthly,
			Count:       12,
		},
		{
			Description: "Electricity",
			Direction:   engine.Outflow,
			Amount:      decimal.RequireFromString("145.30"),
			FirstDate:   today,
			Channel:     engine.ChannelDebit,
			Recurrence:  engine.RecurrenceNone,
			Count:       1,
		},
	}
	return h.createDrafts(ctx, owner, checking.ID, drafts)
}

func (h *Handler) loadCardInvoiceScenario(ctx context.Context, owner engine.OwnerID, today engine.Date) error {
	checking, err := h.Service.SaveAccount(ctx, engine.Account{
		OwnerID:        owner,
		Name:           "Checking",
		Kind:           engine.AccountChecking,
		OpeningBalance: decimal.NewFromInt(3000),
	})
	if err != nil {
		return err
	}
	card, err := h.Service.SaveAccount(ctx, engine.Account{
		OwnerID:     owner,
		Name:        "Visa",
		Kind:        engine.AccountCreditCard,
		CreditLimit: decimal.NewFromInt(5000),
		ClosingDay:  3,
		DueDay:      10,
	})
	if err != nil {
		return err
	}

	// The second installment lands in the last closed cycle and is still
	// pending, so the closed invoice has something to pay.
	closed, err := engine.LastClosedCycle(card.ClosingDay, today)
	if err != nil {
		return err
	}
	firstInstallment := closed.Start.AddDays(1).AddMonths(-1)

	drafts := []engine.Draft{
		{
			Description: "Laptop 1/3",
			Direction:   engine.Outflow,
			Amount:      decimal.NewFromInt(600),
			FirstDate:   firstInstallment,
			Channel:     engine.ChannelOther,
			Recurrence:  engine.RecurrenceMonthly,
			Count:       3,
		},
		{
			Description: "Groceries",
			Direction:   engine.Outflow,
			Amount:      decimal.RequireFromString("212.45"),
			FirstDate:   today,
			Channel:     engine.ChannelCreditCard,
			Recurrence:  engine.RecurrenceNone,
			Count:       1,
		},
		{
			Description: "Streaming",
			Direction:   engine.Outflow,
			Amount:      decimal.RequireFromString("39.90"),
			FirstDate:   today,
			Channel:     engine.ChannelCreditCard,
			Recurrence:  engine.RecurrenceFixed,
			Count:       1,
		},
	}
	if err := h.createDrafts(ctx, owner, card.ID, drafts); err != nil {
		return err
	}
	return h.createDrafts(ctx, owner, checking.ID, []engine.Draft{{
		Description: "Salary",
		Direction:   engine.Inflow,
		Amount:      decimal.NewFromInt(3500),
		FirstDate:   engine.StartOfMonth(today.Year(), today.Month()).AddDays(4),
		Channel:     engine.ChannelInstant,
		Recurrence:  engine.RecurrenceFixed,
		Count:       1,
	}})
}

func (h *Handler) loadLoanAnticipationScenario(ctx context.Context, owner engine.OwnerID, today engine.Date) error {
	view, err := h.Service.CreateLoan(ctx, engine.LoanPlan{
		OwnerID:          owner,
		Name:             "Car loan",
		Principal:        decimal.NewFromInt(10000),
		InstallmentValue: decimal.NewFromInt(1000),
		InstallmentCount: 12,
		DailyRate:        decimal.RequireFromString("0.002"),
		FirstInstallment: today.AddDays(20),
	})
	if err != nil {
		return err
	}
	_, err = h.Service.SettleInstallment(ctx, owner, view.Plan.ID, 1, today, nil)
	return err
}

func (h *Handler) loadNegativeRiskScenario(ctx context.Context, owner engine.OwnerID, today engine.Date) error {
	checking, err := h.Service.SaveAccount(ctx, engine.Account{
		OwnerID:        owner,
		Name:           "Checking",
		Kind:           engine.AccountChecking,
		OpeningBalance: decimal.NewFromInt(1500),
	})
	if err != nil {
		return err
	}
	monthStart := engine.StartOfMonth(today.Year(), today.Month())
	return h.createDrafts(ctx, owner, checking.ID, []engine.Draft{
		{
			Description: "Salary",
			Direction:   engine.Inflow,
			Amount:      decimal.NewFromInt(2000),
			FirstDate:   monthStart.AddDays(4),
			Channel:     engine.ChannelInstant,
			Recurrence:  engine.RecurrenceFixed,
			Count:       1,
		},
		{
			Description: "Rent",
			Direction:   engine.Outflow,
			Amount:      decimal.NewFromInt(1900),
			FirstDate:   monthStart.AddDays(9),
			Channel:     engine.ChannelDebit,
			Recurrence:  engine.RecurrenceFixed,
			Count:       1,
		},
		{
			Description: "Car payment",
			Direction:   engine.Outflow,
			Amount:      decimal.NewFromInt(650),
			FirstDate:   monthStart.AddDays(19),
			Channel:     engine.ChannelDebit,
			Recurrence:  engine.RecurrenceFixed,
			Count:       1,
		},
	})
}

func (h *Handler) createDrafts(ctx context.Context, owner engine.OwnerID, account engine.AccountID, drafts []engine.Draft) error {
	for _, d := range drafts {
		d.OwnerID = owner
		d.AccountID = account
		if _, err := h.Service.CreateEntries(ctx, d); err != nil {
			return fmt.Errorf("creating %q: %w", d.Description, err)
		}
	}
	return nil
}
