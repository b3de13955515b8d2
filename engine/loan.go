package engine

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// LOAN PLAN - Installment generation, settlement and recalculation
// =============================================================================

// Validate rejects plans that cannot produce installments.
func (p LoanPlan) Validate() error {
	if p.ID == "" {
		return &ValidationError{Field: "id", Reason: "required"}
	}
	if !p.Principal.IsPositive() {
		return &ValidationError{Field: "principal", Reason: "must be positive"}
	}
	if !p.InstallmentValue.IsPositive() {
		return &ValidationError{Field: "installment_value", Reason: "must be positive"}
	}
	if p.InstallmentCount < 1 {
		return &ValidationError{Field: "installment_count", Reason: "must be at least 1"}
	}
	if p.FirstInstallment.IsZero() {
		return &ValidationError{Field: "first_installment", Reason: "required"}
	}
	if p.DailyRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return &ValidationError{Field: "daily_rate", Reason: "must be below 1"}
	}
	return nil
}

// GenerateInstallments expands a plan into its monthly installments. Loans
// are never auto-settled: every installment starts unpaid.
func GenerateInstallments(p LoanPlan) ([]LoanInstallment, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	out := make([]LoanInstallment, p.InstallmentCount)
	for i := range out {
		out[i] = LoanInstallment{
			PlanID:   p.ID,
			Sequence: i + 1,
			DueDate:  AddCycles(p.FirstInstallment, RecurrenceMonthly, i),
			Face:     p.InstallmentValue,
		}
	}
	return out, nil
}

// SettleInstallment prices the payment of one installment on paidOn and
// records the result on a copy. A non-nil override is the amount actually
// paid and replaces the computed present value.
func SettleInstallment(p LoanPlan, inst LoanInstallment, paidOn Date, override *decimal.Decimal) (LoanInstallment, error) {
	if inst.Paid {
		return inst, &InconsistencyError{Code: CodeAlreadySettled, Message: "installment already paid; recalculate the plan first"}
	}
	if override != nil && !override.IsPositive() {
		return inst, &ValidationError{Field: "paid_amount", Reason: "must be positive"}
	}

	a, err := Anticipate(AnticipationInput{
		FaceValue:      inst.Face,
		DueDate:        inst.DueDate,
		SettlementDate: paidOn,
		DailyRate:      p.DailyRate,
	})
	if err != nil {
		return inst, err
	}
	if override != nil {
		a = a.WithSettledAmount(inst.Face, *override)
	}

	inst.Paid = true
	inst.PaidOn = paidOn
	inst.PaidAmount = a.PresentValue
	inst.Anticipated = a.IsEarly
	inst.DaysAnticipated = 0
	if a.IsEarly {
		inst.DaysAnticipated = a.DaysEarly
	}
	inst.Interest = a.Interest
	inst.Amortization = a.Amortization
	inst.Savings = a.Savings
	inst.SavingsRaw = a.SavingsRaw
	return inst, nil
}

// ResetInstallments clears every payment, used when the plan's rates change
// and the user asks for a full recalculation.
func ResetInstallments(insts []LoanInstallment) []LoanInstallment {
	out := make([]LoanInstallment, len(insts))
	for i, inst := range insts {
		inst.Reset()
		out[i] = inst
	}
	return out
}

// LoanSummary aggregates a plan's installments for reporting.
type LoanSummary struct {
	PlanID          LoanPlanID      `json:"plan_id"`
	Installments    int             `json:"installments"`
	PaidCount       int             `json:"paid_count"`
	AnticipatedPaid int             `json:"anticipated_paid"`
	TotalFace       decimal.Decimal `json:"total_face"`
	TotalPaid       decimal.Decimal `json:"total_paid"`
	TotalSavings    decimal.Decimal `json:"total_savings"`
	TotalInterest   decimal.Decimal `json:"total_interest"`
	TotalAmortized  decimal.Decimal `json:"total_amortized"`
	RemainingFace   decimal.Decimal `json:"remaining_face"`
	NextDue         *Date           `json:"next_due,omitempty"`
}

// Summarize totals the installments of one plan.
func Summarize(planID LoanPlanID, insts []LoanInstallment) LoanSummary {
	s := LoanSummary{
		PlanID:         planID,
		Installments:   len(insts),
		TotalFace:      decimal.Zero,
		TotalPaid:      decimal.Zero,
		TotalSavings:   decimal.Zero,
		TotalInterest:  decimal.Zero,
		TotalAmortized: decimal.Zero,
		RemainingFace:  decimal.Zero,
	}
	for _, inst := range insts {
		s.TotalFace = s.TotalFace.Add(inst.Face)
		if !inst.Paid {
			s.RemainingFace = s.RemainingFace.Add(inst.Face)
			if s.NextDue == nil || inst.DueDate.Before(*s.NextDue) {
				due := inst.DueDate
				s.NextDue = &due
			}
			continue
		}
		s.PaidCount++
		if inst.Anticipated {
			s.AnticipatedPaid++
		}
		s.TotalPaid = s.TotalPaid.Add(inst.PaidAmount)
		s.TotalSavings = s.TotalSavings.Add(inst.Savings)
		s.TotalInterest = s.TotalInterest.Add(inst.Interest)
		s.TotalAmortized = s.TotalAmortized.Add(inst.Amortization)
	}
	return s
}
