/*
Package engine provides the financial scheduling and projection core.

PURPOSE:
  Pure, deterministic computations over ledger data already in memory:
  early-payment discounts, recurring/installment expansion, credit-card
  billing cycles and the forward cash-flow projection. No I/O, no logging,
  no shared mutable state; callers may re-run any computation freely.

KEY CONCEPTS IN THIS FILE (types.go):
  - Account: checking/savings/wallet/investment or credit card
  - Entry: one ledger line, optionally part of a series or a transfer pair
  - Series: explicit series identity, distinct from row identity
  - LoanPlan / LoanInstallment: fixed-rate installment loan

DESIGN PRINCIPLES:
  1. Precision: money is decimal.Decimal, rounded to cents only at the edges
  2. Type Safety: distinct ID types for accounts, entries, series and plans
  3. Fail closed: malformed input is rejected before any computation

SEE ALSO:
  - anticipation.go: discounted settlement of one installment
  - occurrence.go: series expansion
  - billing.go: credit-card cycles
  - projection.go: current balance and N-month projection
*/
package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY
// =============================================================================

// RoundCents rounds a monetary value to two decimal places, half away from
// zero (half-up for the non-negative values the engine reports).
func RoundCents(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

// MustParseDecimal parses s or returns zero.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type OwnerID string
type AccountID string
type EntryID string
type SeriesID string
type CategoryID string
type LoanPlanID string
type TransferPairID string

// NewEntryID and friends mint random identities.
func NewEntryID() EntryID               { return EntryID(uuid.NewString()) }
func NewSeriesID() SeriesID             { return SeriesID(uuid.NewString()) }
func NewAccountID() AccountID           { return AccountID(uuid.NewString()) }
func NewLoanPlanID() LoanPlanID         { return LoanPlanID(uuid.NewString()) }
func NewTransferPairID() TransferPairID { return TransferPairID(uuid.NewString()) }

// =============================================================================
// ACCOUNT
// =============================================================================

type AccountKind string

const (
	AccountChecking   AccountKind = "checking"
	AccountSavings    AccountKind = "savings"
	AccountWallet     AccountKind = "wallet"
	AccountInvestment AccountKind = "investment"
	AccountCreditCard AccountKind = "credit_card"
)

func (k AccountKind) Valid() bool {
	switch k {
	case AccountChecking, AccountSavings, AccountWallet, AccountInvestment, AccountCreditCard:
		return true
	}
	return false
}

type Account struct {
	ID             AccountID       `json:"id"`
	OwnerID        OwnerID         `json:"owner_id"`
	Name           string          `json:"name"`
	Kind           AccountKind     `json:"kind"`
	OpeningBalance decimal.Decimal `json:"opening_balance"` // zero for credit cards

	// Credit-card only. Days are 1..31 and clamped against the target month.
	CreditLimit decimal.Decimal `json:"credit_limit"`
	ClosingDay  int             `json:"closing_day,omitempty"`
	DueDay      int             `json:"due_day,omitempty"`
}

func (a Account) IsCreditCard() bool { return a.Kind == AccountCreditCard }

// Validate checks the account definition.
func (a Account) Validate() error {
	if a.ID == "" {
		return &ValidationError{Field: "id", Reason: "required"}
	}
	if !a.Kind.Valid() {
		return &ValidationError{Field: "kind", Reason: "unknown account kind " + string(a.Kind)}
	}
	if !a.IsCreditCard() {
		return nil
	}
	if err := ValidateDayOfMonth("closing_day", a.ClosingDay); err != nil {
		return err
	}
	if err := ValidateDayOfMonth("due_day", a.DueDay); err != nil {
		return err
	}
	if a.CreditLimit.IsNegative() {
		return &ValidationError{Field: "credit_limit", Reason: "must not be negative"}
	}
	return nil
}

// ValidateDayOfMonth rejects days outside [1,31].
func ValidateDayOfMonth(field string, day int) error {
	if day < 1 || day > 31 {
		return &ValidationError{Field: field, Reason: "day of month must be in [1,31]"}
	}
	return nil
}

// =============================================================================
// ENTRY - One ledger line
// =============================================================================

type Direction string

const (
	Inflow  Direction = "inflow"
	Outflow Direction = "outflow"
)

func (d Direction) Valid() bool { return d == Inflow || d == Outflow }

// Channel is how the money moved.
type Channel string

const (
	ChannelInstant    Channel = "instant"
	ChannelDebit      Channel = "debit"
	ChannelCreditCard Channel = "credit_card"
	ChannelCash       Channel = "cash"
	ChannelOther      Channel = "other"

	// ChannelTransfer marks one leg of a paired transfer.
	ChannelTransfer Channel = "transfer"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelInstant, ChannelDebit, ChannelCreditCard, ChannelCash, ChannelOther, ChannelTransfer:
		return true
	}
	return false
}

type SettlementState string

const (
	Settled SettlementState = "settled"
	Pending SettlementState = "pending"
)

// Series links an occurrence to its series. Total is 0 for unlimited
// (fixed) templates.
type Series struct {
	ID           SeriesID `json:"id"`
	FirstEntryID EntryID  `json:"first_entry_id"`
	Index        int      `json:"index"` // 1-based
	Total        int      `json:"total"`
}

type Entry struct {
	ID          EntryID         `json:"id"`
	OwnerID     OwnerID         `json:"owner_id"`
	AccountID   AccountID       `json:"account_id"`
	CategoryID  CategoryID      `json:"category_id,omitempty"`
	Description string          `json:"description,omitempty"`
	Direction   Direction       `json:"direction"`
	Amount      decimal.Decimal `json:"amount"` // always positive
	PostedOn    Date            `json:"posted_on"`
	Channel     Channel         `json:"channel"`

	State         SettlementState `json:"state"`
	SettledOn     Date            `json:"settled_on,omitempty"`
	SettledAmount decimal.Decimal `json:"settled_amount"`

	Recurrence RecurrenceKind `json:"recurrence"`
	Series     *Series        `json:"series,omitempty"`

	TransferPairID TransferPairID `json:"transfer_pair_id,omitempty"`
	ExternalID     string         `json:"external_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

func (e Entry) IsSettled() bool  { return e.State == Settled }
func (e Entry) IsTransfer() bool { return e.Channel == ChannelTransfer || e.TransferPairID != "" }

// Signed returns the amount with outflows negative.
func (e Entry) Signed() decimal.Decimal {
	if e.Direction == Outflow {
		return e.Amount.Neg()
	}
	return e.Amount
}

// Settle marks the entry executed on date. A zero amount settles at face.
func (e *Entry) Settle(on Date, amount decimal.Decimal) {
	e.State = Settled
	e.SettledOn = on
	if amount.IsZero() {
		amount = e.Amount
	}
	e.SettledAmount = amount
}

// IsTemplate reports whether the entry stands for a repeating amount in
// projection: it recurs, is not a transfer, and is the head of its series.
func (e Entry) IsTemplate() bool {
	if !e.Recurrence.Recurring() || e.IsTransfer() {
		return false
	}
	return e.Series == nil || e.Series.Index <= 1
}

// =============================================================================
// LOAN
// =============================================================================

// LoanPlan is a fixed-rate installment loan. Its installments are created
// together and only ever replaced as a whole.
type LoanPlan struct {
	ID               LoanPlanID      `json:"id"`
	OwnerID          OwnerID         `json:"owner_id"`
	Name             string          `json:"name"`
	Principal        decimal.Decimal `json:"principal"`
	InstallmentValue decimal.Decimal `json:"installment_value"`
	InstallmentCount int             `json:"installment_count"`
	DailyRate        decimal.Decimal `json:"daily_rate"`
	FirstInstallment Date            `json:"first_installment"`
	CreatedAt        time.Time       `json:"created_at"`
}

// MonthlyRate is the flat 30-day equivalent of the daily rate.
func (p LoanPlan) MonthlyRate() decimal.Decimal {
	return p.DailyRate.Mul(decimal.NewFromInt(DaysPerMonth))
}

type LoanInstallment struct {
	PlanID   LoanPlanID      `json:"plan_id"`
	Sequence int             `json:"sequence"` // 1-based
	DueDate  Date            `json:"due_date"`
	Face     decimal.Decimal `json:"face"`

	// Set once paid.
	Paid            bool            `json:"paid"`
	PaidOn          Date            `json:"paid_on,omitempty"`
	PaidAmount      decimal.Decimal `json:"paid_amount"`
	Anticipated     bool            `json:"anticipated"`
	DaysAnticipated int             `json:"days_anticipated"`
	Interest        decimal.Decimal `json:"interest"`
	Amortization    decimal.Decimal `json:"amortization"`
	Savings         decimal.Decimal `json:"savings"`     // face - paid, clamped at 0
	SavingsRaw      decimal.Decimal `json:"savings_raw"` // face - paid, may be negative
}

// Reset clears every payment field, leaving the installment unpaid.
func (li *LoanInstallment) Reset() {
	*li = LoanInstallment{
		PlanID:   li.PlanID,
		Sequence: li.Sequence,
		DueDate:  li.DueDate,
		Face:     li.Face,
	}
}
