/*
anticipation.go - Discounted settlement of one installment

PURPOSE:
  Computes what an installment-like entry costs when settled on a given
  date, using the bank simple-discount formula for early payment and a
  flat 30-day interest estimate for the interest/amortization split.

FORMULAS:
  daysEarly = dueDate - settlementDate

  Early (daysEarly > 0):
    presentValue = face / (1 + rate * daysEarly)
    savings      = face - presentValue
    interest     = max(0, face * rate * (30 - daysEarly))
    amortization = max(0, presentValue - interest)

  On time / late (daysEarly <= 0):
    presentValue = face, savings = 0
    interest     = face * rate * 30
    amortization = face - interest

  Every monetary output is rounded to cents once, from the full-precision
  value. A zero or negative rate yields zero interest and zero savings.

EXAMPLE:
  face 1000.00, due 2024-03-15, paid 2024-03-05, rate 0.0006
  -> daysEarly 10, presentValue 994.04, savings 5.96,
     interest 12.00, amortization 982.04
*/
package engine

import "github.com/shopspring/decimal"

// DaysPerMonth is the flat month length used by the interest estimate.
const DaysPerMonth = 30

// AnticipationInput is one settlement to price.
type AnticipationInput struct {
	FaceValue      decimal.Decimal
	DueDate        Date
	SettlementDate Date
	DailyRate      decimal.Decimal // in [0,1); negative is treated as zero
}

// Anticipation is the priced settlement.
type Anticipation struct {
	PresentValue decimal.Decimal `json:"present_value"`
	Savings      decimal.Decimal `json:"savings"`
	SavingsRaw   decimal.Decimal `json:"savings_raw"`
	Interest     decimal.Decimal `json:"interest"`
	Amortization decimal.Decimal `json:"amortization"`
	DaysEarly    int             `json:"days_early"`
	IsEarly      bool            `json:"is_early"`
	IsLate       bool            `json:"is_late"`
}

func (in AnticipationInput) validate() error {
	if !in.FaceValue.IsPositive() {
		return &ValidationError{Field: "face_value", Reason: "must be positive"}
	}
	if in.DueDate.IsZero() {
		return &ValidationError{Field: "due_date", Reason: "required"}
	}
	if in.SettlementDate.IsZero() {
		return &ValidationError{Field: "settlement_date", Reason: "required"}
	}
	if in.DailyRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return &ValidationError{Field: "daily_rate", Reason: "must be below 1"}
	}
	return nil
}

// Anticipate prices a settlement. It only fails on malformed input.
func Anticipate(in AnticipationInput) (Anticipation, error) {
	if err := in.validate(); err != nil {
		return Anticipation{}, err
	}

	rate := in.DailyRate
	if rate.IsNegative() {
		rate = decimal.Zero
	}
	face := in.FaceValue
	daysEarly := DaysBetween(in.SettlementDate, in.DueDate)
	month := decimal.NewFromInt(DaysPerMonth)

	result := Anticipation{DaysEarly: daysEarly}

	if daysEarly <= 0 {
		interest := face.Mul(rate).Mul(month)
		result.PresentValue = RoundCents(face)
		result.Savings = decimal.Zero
		result.SavingsRaw = decimal.Zero
		result.Interest = RoundCents(interest)
		result.Amortization = RoundCents(face.Sub(interest))
		result.IsLate = daysEarly < 0
		return result, nil
	}

	days := decimal.NewFromInt(int64(daysEarly))
	presentValue := face.Div(decimal.NewFromInt(1).Add(rate.Mul(days)))
	savings := face.Sub(presentValue)

	interest := face.Mul(rate).Mul(month.Sub(days))
	if interest.IsNegative() {
		interest = decimal.Zero
	}
	amortization := presentValue.Sub(interest)
	if amortization.IsNegative() {
		amortization = decimal.Zero
	}

	result.PresentValue = RoundCents(presentValue)
	result.Savings = RoundCents(savings)
	result.SavingsRaw = result.Savings
	result.Interest = RoundCents(interest)
	result.Amortization = RoundCents(amortization)
	result.IsEarly = true
	return result, nil
}

// WithSettledAmount replaces the computed present value with the amount the
// user actually paid. Savings is reported clamped at zero; SavingsRaw keeps
// the signed difference so an overpayment stays visible.
func (a Anticipation) WithSettledAmount(face, settled decimal.Decimal) Anticipation {
	raw := face.Sub(settled)
	a.PresentValue = RoundCents(settled)
	a.SavingsRaw = RoundCents(raw)
	if raw.IsNegative() {
		a.Savings = decimal.Zero
	} else {
		a.Savings = RoundCents(raw)
	}
	return a
}
