/*
billing.go - Credit-card billing cycle resolution

PURPOSE:
  Maps a card's closing day onto concrete invoice periods and due dates,
  and aggregates a card's entries into what the user sees on the invoice.

CYCLES (closingDay c, reference date r):
  Open cycle:   closes this month when r.day > c, otherwise last month.
                End = c clamped in the closing month; Start = day after
                the clamped closing day of the month before.
  Last closed:  the cycle immediately before the open one.
  Due date:     if dueDay <= c the due date falls in the month after the
                closing month, otherwise in the closing month; clamped.

  Closing days are clamped to the month length and never roll over into
  the next month, so a closing day of 31 in February ends on the 28th/29th
  and the next cycle starts on March 1st.

EXAMPLE:
  closingDay 10, ref 2024-06-12, dueDay 20
    open cycle   [2024-05-11, 2024-06-10], due 2024-06-20
    last closed  [2024-04-11, 2024-05-10]

AGGREGATES (per credit account):
  openInvoiceTotal   = sum of outflows posted inside the open cycle
  closedInvoiceTotal = sum of unsettled outflows inside the last closed
                       cycle (the "pay now" amount)
  totalOutstanding   = sum of every unsettled outflow on the account
  available          = limit - max(0, totalOutstanding)
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// cycleClosingIn returns the cycle that closes in year/month.
func cycleClosingIn(closingDay, year int, month time.Month) Period {
	end := ClampedDate(year, month, closingDay)
	prevClose := ClampedDate(year, month-1, closingDay)
	return Period{Start: prevClose.AddDays(1), End: end}
}

// closingMonthOffset is 0 when the reference date is past this month's
// closing day, -1 otherwise.
func closingMonthOffset(closingDay int, ref Date) int {
	if ref.Day() > closingDay {
		return 0
	}
	return -1
}

// CurrentOpenCycle returns the invoice cycle the reference date resolves to.
func CurrentOpenCycle(closingDay int, ref Date) (Period, error) {
	if err := ValidateDayOfMonth("closing_day", closingDay); err != nil {
		return Period{}, err
	}
	off := closingMonthOffset(closingDay, ref)
	return cycleClosingIn(closingDay, ref.Year(), ref.Month()+time.Month(off)), nil
}

// LastClosedCycle returns the cycle immediately before CurrentOpenCycle.
func LastClosedCycle(closingDay int, ref Date) (Period, error) {
	if err := ValidateDayOfMonth("closing_day", closingDay); err != nil {
		return Period{}, err
	}
	off := closingMonthOffset(closingDay, ref) - 1
	return cycleClosingIn(closingDay, ref.Year(), ref.Month()+time.Month(off)), nil
}

// DueDate returns the payment date for the invoice that closes on closingDate.
func DueDate(closingDate Date, closingDay, dueDay int) (Date, error) {
	if err := ValidateDayOfMonth("closing_day", closingDay); err != nil {
		return Date{}, err
	}
	if err := ValidateDayOfMonth("due_day", dueDay); err != nil {
		return Date{}, err
	}
	month := closingDate.Month()
	if dueDay <= closingDay {
		month++
	}
	return ClampedDate(closingDate.Year(), month, dueDay), nil
}

// InCycle reports whether txDate falls inside the inclusive cycle.
func InCycle(txDate Date, cycle Period) bool {
	return cycle.Contains(txDate)
}

// ClosingDateFor returns the closing date of the cycle a purchase made on
// date belongs to: this month's clamped closing day if the purchase is on or
// before it, next month's otherwise.
func ClosingDateFor(closingDay int, date Date) Date {
	thisClose := ClampedDate(date.Year(), date.Month(), closingDay)
	if date.BeforeOrEqual(thisClose) {
		return thisClose
	}
	return ClampedDate(date.Year(), date.Month()+1, closingDay)
}

// =============================================================================
// CARD STATEMENT
// =============================================================================

// CardStatement is the invoice view of one credit account.
type CardStatement struct {
	AccountID          AccountID       `json:"account_id"`
	Reference          Date            `json:"reference"`
	OpenCycle          Period          `json:"open_cycle"`
	OpenDue            Date            `json:"open_due"`
	ClosedCycle        Period          `json:"closed_cycle"`
	ClosedDue          Date            `json:"closed_due"`
	OpenInvoiceTotal   decimal.Decimal `json:"open_invoice_total"`
	ClosedInvoiceTotal decimal.Decimal `json:"closed_invoice_total"`
	TotalOutstanding   decimal.Decimal `json:"total_outstanding"`
	Limit              decimal.Decimal `json:"limit"`
	Available          decimal.Decimal `json:"available"`

	// ClosedUnsettled lists the entries making up ClosedInvoiceTotal.
	ClosedUnsettled []EntryID `json:"closed_unsettled"`
}

// ResolveCardStatement aggregates the entries of a credit account as of ref.
// Entries belonging to other accounts are ignored.
func ResolveCardStatement(acct Account, entries []Entry, ref Date) (CardStatement, error) {
	if !acct.IsCreditCard() {
		return CardStatement{}, &InconsistencyError{Code: CodeNotCreditCard, Message: "account " + string(acct.ID) + " is not a credit card"}
	}
	open, err := CurrentOpenCycle(acct.ClosingDay, ref)
	if err != nil {
		return CardStatement{}, err
	}
	closed, err := LastClosedCycle(acct.ClosingDay, ref)
	if err != nil {
		return CardStatement{}, err
	}
	openDue, err := DueDate(open.End, acct.ClosingDay, acct.DueDay)
	if err != nil {
		return CardStatement{}, err
	}
	closedDue, err := DueDate(closed.End, acct.ClosingDay, acct.DueDay)
	if err != nil {
		return CardStatement{}, err
	}

	st := CardStatement{
		AccountID:          acct.ID,
		Reference:          ref,
		OpenCycle:          open,
		OpenDue:            openDue,
		ClosedCycle:        closed,
		ClosedDue:          closedDue,
		OpenInvoiceTotal:   decimal.Zero,
		ClosedInvoiceTotal: decimal.Zero,
		TotalOutstanding:   decimal.Zero,
		Limit:              acct.CreditLimit,
		ClosedUnsettled:    []EntryID{},
	}

	for _, e := range entries {
		if e.AccountID != acct.ID || e.Direction != Outflow {
			continue
		}
		if InCycle(e.PostedOn, open) {
			st.OpenInvoiceTotal = st.OpenInvoiceTotal.Add(e.Amount)
		}
		if e.IsSettled() {
			continue
		}
		if InCycle(e.PostedOn, closed) {
			st.ClosedInvoiceTotal = st.ClosedInvoiceTotal.Add(e.Amount)
			st.ClosedUnsettled = append(st.ClosedUnsettled, e.ID)
		}
		st.TotalOutstanding = st.TotalOutstanding.Add(e.Amount)
	}

	used := st.TotalOutstanding
	if used.IsNegative() {
		used = decimal.Zero
	}
	st.Available = acct.CreditLimit.Sub(used)
	return st, nil
}
