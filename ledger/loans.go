package ledger

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/warp/cashflow-engine/engine"
)

// =============================================================================
// LOANS - Plan lifecycle
// =============================================================================

// LoanView is a plan with its installments and their totals.
type LoanView struct {
	Plan         engine.LoanPlan          `json:"plan"`
	Installments []engine.LoanInstallment `json:"installments"`
	Summary      engine.LoanSummary       `json:"summary"`
}

func newLoanView(p engine.LoanPlan, insts []engine.LoanInstallment) *LoanView {
	return &LoanView{Plan: p, Installments: insts, Summary: engine.Summarize(p.ID, insts)}
}

// CreateLoan stores a new plan with all of its installments unpaid.
func (s *Service) CreateLoan(ctx context.Context, p engine.LoanPlan) (*LoanView, error) {
	if p.ID == "" {
		p.ID = s.newPlanID()
	}
	if p.OwnerID == "" {
		return nil, &engine.ValidationError{Field: "owner_id", Reason: "required"}
	}
	p.CreatedAt = s.now().UTC()

	insts, err := engine.GenerateInstallments(p)
	if err != nil {
		return nil, err
	}
	if err := s.store.ReplaceLoan(ctx, p, insts); err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"owner": p.OwnerID, "plan": p.ID, "installments": len(insts)}).Info("loan created")
	return newLoanView(p, insts), nil
}

// ReplaceLoan edits a plan. Its installments are deleted and regenerated as
// a whole, so any recorded payment is discarded.
func (s *Service) ReplaceLoan(ctx context.Context, p engine.LoanPlan) (*LoanView, error) {
	var view *LoanView
	err := s.store.WithTx(ctx, func(tx engine.Store) error {
		cur, _, err := ownedLoan(ctx, tx, p.OwnerID, p.ID)
		if err != nil {
			return err
		}
		p.OwnerID = cur.OwnerID
		p.CreatedAt = cur.CreatedAt

		insts, err := engine.GenerateInstallments(p)
		if err != nil {
			return err
		}
		if err := tx.ReplaceLoan(ctx, p, insts); err != nil {
			return err
		}
		view = newLoanView(p, insts)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"owner": p.OwnerID, "plan": p.ID}).Info("loan replaced")
	return view, nil
}

func ownedLoan(ctx context.Context, st engine.Store, owner engine.OwnerID, id engine.LoanPlanID) (engine.LoanPlan, []engine.LoanInstallment, error) {
	p, insts, err := st.Loan(ctx, id)
	if err != nil {
		return engine.LoanPlan{}, nil, err
	}
	if owner != "" && p.OwnerID != owner {
		return engine.LoanPlan{}, nil, engine.ErrLoanNotFound
	}
	return p, insts, nil
}

func (s *Service) Loan(ctx context.Context, owner engine.OwnerID, id engine.LoanPlanID) (*LoanView, error) {
	p, insts, err := ownedLoan(ctx, s.store, owner, id)
	if err != nil {
		return nil, err
	}
	return newLoanView(p, insts), nil
}

func (s *Service) Loans(ctx context.Context, owner engine.OwnerID) ([]engine.LoanPlan, error) {
	return s.store.Loans(ctx, owner)
}

// SettleInstallment records the payment of one installment on paidOn,
// priced by the anticipation calculator. A non-nil paid amount overrides
// the computed present value.
func (s *Service) SettleInstallment(ctx context.Context, owner engine.OwnerID, id engine.LoanPlanID, seq int, paidOn engine.Date, paid *decimal.Decimal) (engine.LoanInstallment, error) {
	var out engine.LoanInstallment
	err := s.store.WithTx(ctx, func(tx engine.Store) error {
		p, insts, err := ownedLoan(ctx, tx, owner, id)
		if err != nil {
			return err
		}
		var inst *engine.LoanInstallment
		for i := range insts {
			if insts[i].Sequence == seq {
				inst = &insts[i]
				break
			}
		}
		if inst == nil {
			return engine.ErrInstallmentNotFound
		}

		settled, err := engine.SettleInstallment(p, *inst, paidOn, paid)
		if err != nil {
			return err
		}
		if err := tx.UpdateInstallment(ctx, settled); err != nil {
			return err
		}
		out = settled
		return nil
	})
	if err != nil {
		return engine.LoanInstallment{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"plan": id, "sequence": seq, "paid_amount": out.PaidAmount.StringFixed(2),
		"savings": out.Savings.StringFixed(2), "anticipated": out.Anticipated,
	}).Info("installment settled")
	return out, nil
}

// RecalculateLoan resets every installment to unpaid, optionally switching
// the plan to a new daily rate first.
func (s *Service) RecalculateLoan(ctx context.Context, owner engine.OwnerID, id engine.LoanPlanID, dailyRate *decimal.Decimal) (*LoanView, error) {
	var view *LoanView
	err := s.store.WithTx(ctx, func(tx engine.Store) error {
		p, insts, err := ownedLoan(ctx, tx, owner, id)
		if err != nil {
			return err
		}
		if dailyRate != nil {
			p.DailyRate = *dailyRate
		}
		if err := p.Validate(); err != nil {
			return err
		}
		reset := engine.ResetInstallments(insts)
		if err := tx.ReplaceLoan(ctx, p, reset); err != nil {
			return err
		}
		view = newLoanView(p, reset)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"plan": id, "daily_rate": view.Plan.DailyRate.String()}).Info("loan recalculated")
	return view, nil
}
