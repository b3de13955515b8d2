/*
projection.go - Current balance and forward cash-flow projection

PURPOSE:
  Answers "what do I have now" and "what will my balance be in N months".

CURRENT BALANCE:
  For every non-credit-card account:
    openingBalance + settled inflows - settled outflows
  Credit cards never contribute directly. Transfer legs between two
  non-card accounts cancel out and are skipped; a leg whose counterpart
  sits on a credit card (an invoice payment) is counted, which is how card
  spending reaches the balance.

MONTH 0 (current calendar month):
  Pending, non-transfer entries whose EFFECTIVE date falls in the month.
  Unsettled card entries are attributed to the close of their billing
  cycle (see effective.go), not their purchase date.

MONTHS 1..N:
  Every recurring template contributes its flat amount once per month,
  whatever its cadence. A weekly template is NOT multiplied by weeks per
  month. With BoundSeries set, a template only contributes from the month
  of its first date, and a finite series stops after its last
  occurrence's month.

  Months is capped at MaxProjectionMonths.

RUNNING BALANCE AND RISK:
  balance[0] = current + net[0]; balance[i] = balance[i-1] + net[i]
  AtRisk when min(balance[0..N]) < 0.

Projection is a pure function of its input: same input, same output.
*/
package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ProjectionInput holds everything a projection reads.
type ProjectionInput struct {
	Accounts []Account
	Entries  []Entry

	// Templates overrides template discovery. When nil, the heads of the
	// recurring series found in Entries are used.
	Templates []Entry

	AsOf   Date
	Months int

	// BoundSeries limits each template to the months between its first
	// date and its series' last occurrence.
	BoundSeries bool
}

// MaxProjectionMonths is the largest horizon Project accepts.
const MaxProjectionMonths = 1200

// ProjectedMonth is one row of the projection.
type ProjectedMonth struct {
	Index   int             `json:"index"`
	Period  Period          `json:"period"`
	Inflow  decimal.Decimal `json:"inflow"`
	Outflow decimal.Decimal `json:"outflow"`
	Net     decimal.Decimal `json:"net"`
	Balance decimal.Decimal `json:"balance"`
}

// Projection is the result of Project.
type Projection struct {
	AsOf           Date             `json:"as_of"`
	CurrentBalance decimal.Decimal  `json:"current_balance"`
	Months         []ProjectedMonth `json:"months"`
	AtRisk         bool             `json:"at_risk"`
	MinBalance     decimal.Decimal  `json:"min_balance"`
	MinMonth       int              `json:"min_month"`
}

// Balances returns balance[0..N].
func (p *Projection) Balances() []decimal.Decimal {
	out := make([]decimal.Decimal, len(p.Months))
	for i, m := range p.Months {
		out[i] = m.Balance
	}
	return out
}

// settledValue is what a settled entry actually moved.
func settledValue(e Entry) decimal.Decimal {
	if e.SettledAmount.IsPositive() {
		return e.SettledAmount
	}
	return e.Amount
}

// AccountBalances returns the settled balance of every non-card account,
// transfer legs included.
func AccountBalances(accounts []Account, entries []Entry) map[AccountID]decimal.Decimal {
	out := make(map[AccountID]decimal.Decimal)
	for _, a := range accounts {
		if a.IsCreditCard() {
			continue
		}
		out[a.ID] = a.OpeningBalance
	}
	for _, e := range entries {
		bal, ok := out[e.AccountID]
		if !ok || !e.IsSettled() {
			continue
		}
		v := settledValue(e)
		if e.Direction == Outflow {
			v = v.Neg()
		}
		out[e.AccountID] = bal.Add(v)
	}
	return out
}

// CurrentBalance returns the aggregate settled balance across non-card
// accounts.
func CurrentBalance(accounts []Account, entries []Entry) decimal.Decimal {
	kinds := make(map[AccountID]AccountKind, len(accounts))
	total := decimal.Zero
	for _, a := range accounts {
		kinds[a.ID] = a.Kind
		if !a.IsCreditCard() {
			total = total.Add(a.OpeningBalance)
		}
	}

	legs := make(map[TransferPairID][]Entry)
	for _, e := range entries {
		if e.TransferPairID != "" {
			legs[e.TransferPairID] = append(legs[e.TransferPairID], e)
		}
	}
	counterpartIsCard := func(e Entry) bool {
		for _, other := range legs[e.TransferPairID] {
			if other.ID != e.ID && kinds[other.AccountID] == AccountCreditCard {
				return true
			}
		}
		return false
	}

	for _, e := range entries {
		kind, ok := kinds[e.AccountID]
		if !ok || kind == AccountCreditCard || !e.IsSettled() {
			continue
		}
		if e.IsTransfer() && !counterpartIsCard(e) {
			continue
		}
		v := settledValue(e)
		if e.Direction == Outflow {
			v = v.Neg()
		}
		total = total.Add(v)
	}
	return total
}

// Templates returns the recurring series heads among entries.
func Templates(entries []Entry) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.IsTemplate() {
			out = append(out, e)
		}
	}
	return out
}

// withinSeries reports whether month lies between template t's first date
// and its series' last occurrence.
func withinSeries(t Entry, month Period) bool {
	if t.PostedOn.After(month.End) {
		return false
	}
	if t.Series == nil || t.Series.Total <= 0 {
		return true
	}
	last := AddCycles(t.PostedOn, t.Recurrence, t.Series.Total-1)
	return !last.Before(month.Start)
}

// Project computes the current balance and the month-by-month projection.
func Project(in ProjectionInput) (*Projection, error) {
	if in.Months < 0 {
		return nil, &ValidationError{Field: "months", Reason: "must not be negative"}
	}
	if in.Months > MaxProjectionMonths {
		return nil, &ValidationError{Field: "months", Reason: fmt.Sprintf("must not exceed %d", MaxProjectionMonths)}
	}
	if in.AsOf.IsZero() {
		return nil, &ValidationError{Field: "as_of", Reason: "required"}
	}

	templates := in.Templates
	if templates == nil {
		templates = Templates(in.Entries)
	}
	var replay []Entry
	for _, t := range templates {
		if !t.Recurrence.Known() {
			return nil, &InconsistencyError{
				Code:    CodeUnknownRecurrence,
				Message: "template " + string(t.ID) + " has recurrence " + string(t.Recurrence),
			}
		}
		if t.Recurrence.Recurring() && !t.IsTransfer() {
			replay = append(replay, t)
		}
	}

	current := CurrentBalance(in.Accounts, in.Entries)
	attr := NewAttributors(in.Accounts)

	p := &Projection{
		AsOf:           in.AsOf,
		CurrentBalance: current,
		Months:         make([]ProjectedMonth, 0, in.Months+1),
	}

	month := MonthPeriod(in.AsOf)
	row := ProjectedMonth{Index: 0, Period: month, Inflow: decimal.Zero, Outflow: decimal.Zero}
	for _, e := range in.Entries {
		if e.IsSettled() || e.IsTransfer() {
			continue
		}
		if !month.Contains(attr.EffectiveDate(e)) {
			continue
		}
		if e.Direction == Inflow {
			row.Inflow = row.Inflow.Add(e.Amount)
		} else {
			row.Outflow = row.Outflow.Add(e.Amount)
		}
	}
	row.Net = row.Inflow.Sub(row.Outflow)
	row.Balance = current.Add(row.Net)
	p.Months = append(p.Months, row)

	for i := 1; i <= in.Months; i++ {
		month = month.NextMonth()
		row := ProjectedMonth{Index: i, Period: month, Inflow: decimal.Zero, Outflow: decimal.Zero}
		for _, t := range replay {
			if in.BoundSeries && !withinSeries(t, month) {
				continue
			}
			if t.Direction == Inflow {
				row.Inflow = row.Inflow.Add(t.Amount)
			} else {
				row.Outflow = row.Outflow.Add(t.Amount)
			}
		}
		row.Net = row.Inflow.Sub(row.Outflow)
		row.Balance = p.Months[i-1].Balance.Add(row.Net)
		p.Months = append(p.Months, row)
	}

	p.MinBalance = p.Months[0].Balance
	for _, m := range p.Months[1:] {
		if m.Balance.LessThan(p.MinBalance) {
			p.MinBalance = m.Balance
			p.MinMonth = m.Index
		}
	}
	p.AtRisk = p.MinBalance.IsNegative()
	return p, nil
}
