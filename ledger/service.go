/*
Package ledger is the application service around the engine.

PURPOSE:
  The engine computes and the store persists; the service sequences reads,
  engine calls and writes so that every user operation is one atomic unit
  and logs what it did.

OPERATIONS:
  Accounts:    SaveAccount, Accounts, CardStatement, Balances
  Entries:     CreateEntries, Entries, SettleEntry, DeleteSeries
  Transfers:   Transfer, PayInvoice
  Loans:       CreateLoan, ReplaceLoan, Loan, Loans, SettleInstallment,
               RecalculateLoan (loans.go)
  Import:      ImportStatement (import.go)
  Projection:  Project

ATOMICITY:
  Series, transfer pairs, invoice payments and loan replacements are
  written inside store.WithTx; a failure leaves nothing behind.

SEE ALSO:
  - engine/: the computations
  - engine/store.go: collaborator interfaces
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/warp/cashflow-engine/categorize"
	"github.com/warp/cashflow-engine/engine"
	"github.com/warp/cashflow-engine/importer"
)

// Service coordinates the engine with a transactional store.
type Service struct {
	store     engine.TxStore
	gen       *engine.OccurrenceGenerator
	suggester *categorize.Suggester
	importers *importer.Registry
	logger    logrus.FieldLogger
	now       func() time.Time
	newPairID func() engine.TransferPairID
	newPlanID func() engine.LoanPlanID
}

// Option configures a Service.
type Option func(*Service)

// WithSuggester attaches category suggestions to new and imported entries.
func WithSuggester(s *categorize.Suggester) Option {
	return func(svc *Service) { svc.suggester = s }
}

// WithImporters replaces the statement parser registry.
func WithImporters(r *importer.Registry) Option {
	return func(svc *Service) { svc.importers = r }
}

// WithGenerator replaces the occurrence generator (deterministic IDs in tests).
func WithGenerator(g *engine.OccurrenceGenerator) Option {
	return func(svc *Service) { svc.gen = g }
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(svc *Service) { svc.now = now }
}

func New(store engine.TxStore, logger logrus.FieldLogger, opts ...Option) *Service {
	svc := &Service{
		store:     store,
		gen:       engine.NewOccurrenceGenerator(),
		importers: importer.DefaultRegistry(),
		logger:    logger,
		now:       time.Now,
		newPairID: engine.NewTransferPairID,
		newPlanID: engine.NewLoanPlanID,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Today is the service clock's calendar date.
func (s *Service) Today() engine.Date { return engine.DateOf(s.now()) }

// Suggester returns the configured category suggester, or nil.
func (s *Service) Suggester() *categorize.Suggester { return s.suggester }

// Importers returns the statement parser registry.
func (s *Service) Importers() *importer.Registry { return s.importers }

// =============================================================================
// ACCOUNTS
// =============================================================================

// SaveAccount creates or updates an account. A missing ID is generated.
func (s *Service) SaveAccount(ctx context.Context, a engine.Account) (engine.Account, error) {
	if a.ID == "" {
		a.ID = engine.NewAccountID()
	}
	if a.OwnerID == "" {
		return engine.Account{}, &engine.ValidationError{Field: "owner_id", Reason: "required"}
	}
	if err := a.Validate(); err != nil {
		return engine.Account{}, err
	}
	if a.IsCreditCard() {
		a.OpeningBalance = decimal.Zero
	}
	if err := s.store.SaveAccount(ctx, a); err != nil {
		return engine.Account{}, err
	}
	s.logger.WithFields(logrus.Fields{"owner": a.OwnerID, "account": a.ID, "kind": a.Kind}).Info("account saved")
	return a, nil
}

func (s *Service) Accounts(ctx context.Context, owner engine.OwnerID) ([]engine.Account, error) {
	return s.store.Accounts(ctx, owner)
}

// ownedAccount loads an account and hides it from other owners.
func ownedAccount(ctx context.Context, st engine.Store, owner engine.OwnerID, id engine.AccountID) (engine.Account, error) {
	a, err := st.Account(ctx, id)
	if err != nil {
		return engine.Account{}, err
	}
	if owner != "" && a.OwnerID != owner {
		return engine.Account{}, engine.ErrAccountNotFound
	}
	return a, nil
}

// CardStatement resolves the invoice view of a credit account as of ref.
func (s *Service) CardStatement(ctx context.Context, owner engine.OwnerID, cardID engine.AccountID, ref engine.Date) (engine.CardStatement, error) {
	card, err := ownedAccount(ctx, s.store, owner, cardID)
	if err != nil {
		return engine.CardStatement{}, err
	}
	entries, err := s.store.Entries(ctx, engine.EntryFilter{AccountID: cardID})
	if err != nil {
		return engine.CardStatement{}, err
	}
	return engine.ResolveCardStatement(card, entries, ref)
}

// Balances is the settled position of an owner.
type Balances struct {
	Accounts map[engine.AccountID]decimal.Decimal `json:"accounts"`
	Total    decimal.Decimal                      `json:"total"`
}

func (s *Service) Balances(ctx context.Context, owner engine.OwnerID) (Balances, error) {
	accounts, entries, err := s.snapshot(ctx, owner)
	if err != nil {
		return Balances{}, err
	}
	return Balances{
		Accounts: engine.AccountBalances(accounts, entries),
		Total:    engine.CurrentBalance(accounts, entries),
	}, nil
}

func (s *Service) snapshot(ctx context.Context, owner engine.OwnerID) ([]engine.Account, []engine.Entry, error) {
	accounts, err := s.store.Accounts(ctx, owner)
	if err != nil {
		return nil, nil, err
	}
	entries, err := s.store.Entries(ctx, engine.EntryFilter{OwnerID: owner})
	if err != nil {
		return nil, nil, err
	}
	return accounts, entries, nil
}

// =============================================================================
// ENTRIES
// =============================================================================

// CreateEntries expands the draft and writes the whole series atomically.
func (s *Service) CreateEntries(ctx context.Context, d engine.Draft) ([]engine.Entry, error) {
	acct, err := ownedAccount(ctx, s.store, d.OwnerID, d.AccountID)
	if err != nil {
		return nil, err
	}
	d.OwnerID = acct.OwnerID
	if d.CategoryID == "" {
		d.CategoryID = s.suggest(ctx, d.OwnerID, d.Description)
	}

	entries, err := s.gen.Generate(d)
	if err != nil {
		return nil, err
	}
	if err := s.store.AppendEntries(ctx, entries); err != nil {
		return nil, err
	}

	log := s.logger.WithFields(logrus.Fields{"owner": d.OwnerID, "account": d.AccountID, "count": len(entries)})
	if head := entries[0]; head.Series != nil {
		log = log.WithField("series", head.Series.ID)
	}
	log.Info("entries created")
	return entries, nil
}

func (s *Service) suggest(ctx context.Context, owner engine.OwnerID, description string) engine.CategoryID {
	if s.suggester == nil || description == "" {
		return ""
	}
	id, ok, err := s.suggester.Suggest(ctx, owner, description)
	if err != nil {
		s.logger.WithError(err).WithField("owner", owner).Warn("category suggestion failed")
		return ""
	}
	if !ok {
		return ""
	}
	return id
}

func (s *Service) Entries(ctx context.Context, filter engine.EntryFilter) ([]engine.Entry, error) {
	return s.store.Entries(ctx, filter)
}

// SettleEntry confirms that an entry's money moved on the given date. A zero
// amount settles at the posted amount. Settling before the account's
// earliest posting is rejected.
func (s *Service) SettleEntry(ctx context.Context, owner engine.OwnerID, id engine.EntryID, on engine.Date, amount decimal.Decimal) (engine.Entry, error) {
	if on.IsZero() {
		return engine.Entry{}, &engine.ValidationError{Field: "settled_on", Reason: "required"}
	}
	if amount.IsNegative() {
		return engine.Entry{}, &engine.ValidationError{Field: "settled_amount", Reason: "must not be negative"}
	}

	var settled engine.Entry
	err := s.store.WithTx(ctx, func(tx engine.Store) error {
		e, err := tx.Entry(ctx, id)
		if err != nil {
			return err
		}
		if owner != "" && e.OwnerID != owner {
			return engine.ErrEntryNotFound
		}
		if e.IsSettled() {
			return &engine.InconsistencyError{Code: engine.CodeAlreadySettled, Message: "entry " + string(id) + " is already settled"}
		}

		activity, err := tx.Entries(ctx, engine.EntryFilter{AccountID: e.AccountID})
		if err != nil {
			return err
		}
		if len(activity) > 0 && on.Before(activity[0].PostedOn) {
			return &engine.InconsistencyError{
				Code:    engine.CodeSettlementBeforeActivity,
				Message: "settlement " + on.String() + " precedes the account's first activity on " + activity[0].PostedOn.String(),
			}
		}

		e.Settle(on, amount)
		if err := tx.UpdateSettlement(ctx, e); err != nil {
			return err
		}
		settled = e
		return nil
	})
	if err != nil {
		return engine.Entry{}, err
	}

	s.logger.WithFields(logrus.Fields{"entry": id, "account": settled.AccountID, "settled_on": on.String()}).Info("entry settled")
	return settled, nil
}

// DeleteSeries removes a series, or only the occurrences on or after from.
func (s *Service) DeleteSeries(ctx context.Context, id engine.SeriesID, from engine.Date) (int, error) {
	n, err := s.store.DeleteSeries(ctx, id, from)
	if err != nil {
		return 0, err
	}
	s.logger.WithFields(logrus.Fields{"series": id, "from": from.String(), "deleted": n}).Info("series deleted")
	return n, nil
}

// =============================================================================
// TRANSFERS
// =============================================================================

// TransferRequest moves money between two accounts of one owner.
type TransferRequest struct {
	OwnerID     engine.OwnerID
	From        engine.AccountID
	To          engine.AccountID
	Amount      decimal.Decimal
	Date        engine.Date
	Description string
}

func (r TransferRequest) validate() error {
	if r.From == "" || r.To == "" {
		return &engine.ValidationError{Field: "account_id", Reason: "both accounts are required"}
	}
	if r.From == r.To {
		return &engine.ValidationError{Field: "to", Reason: "must differ from the source account"}
	}
	if !r.Amount.IsPositive() {
		return &engine.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if r.Date.IsZero() {
		return &engine.ValidationError{Field: "date", Reason: "required"}
	}
	return nil
}

// Transfer writes the two legs of a transfer atomically.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) ([]engine.Entry, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	var legs []engine.Entry
	err := s.store.WithTx(ctx, func(tx engine.Store) error {
		var err error
		legs, err = s.writeTransfer(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"owner": req.OwnerID, "from": req.From, "to": req.To,
		"amount": req.Amount.StringFixed(2), "pair": legs[0].TransferPairID,
	}).Info("transfer recorded")
	return legs, nil
}

func (s *Service) writeTransfer(ctx context.Context, tx engine.Store, req TransferRequest) ([]engine.Entry, error) {
	from, err := ownedAccount(ctx, tx, req.OwnerID, req.From)
	if err != nil {
		return nil, err
	}
	to, err := ownedAccount(ctx, tx, req.OwnerID, req.To)
	if err != nil {
		return nil, err
	}
	if from.OwnerID != to.OwnerID {
		return nil, &engine.InconsistencyError{Code: engine.CodeOwnerMismatch, Message: "accounts belong to different owners"}
	}

	pair := s.newPairID()
	now := s.now().UTC()
	leg := func(acct engine.AccountID, dir engine.Direction) engine.Entry {
		e := engine.Entry{
			ID:             s.gen.NewEntryID(),
			OwnerID:        from.OwnerID,
			AccountID:      acct,
			Description:    req.Description,
			Direction:      dir,
			Amount:         req.Amount,
			PostedOn:       req.Date,
			Channel:        engine.ChannelTransfer,
			Recurrence:     engine.RecurrenceNone,
			TransferPairID: pair,
			CreatedAt:      now,
		}
		e.Settle(req.Date, decimal.Zero)
		return e
	}
	legs := []engine.Entry{leg(from.ID, engine.Outflow), leg(to.ID, engine.Inflow)}
	if err := tx.AppendEntries(ctx, legs); err != nil {
		return nil, err
	}
	return legs, nil
}

// InvoicePayment is the outcome of PayInvoice.
type InvoicePayment struct {
	Statement engine.CardStatement `json:"statement"`
	Transfer  []engine.Entry       `json:"transfer"`
	Settled   []engine.EntryID     `json:"settled"`
}

// PayInvoice pays the card's last closed invoice from another account: one
// transfer pair for closedInvoiceTotal plus settlement of every entry that
// made it up, in a single transaction.
func (s *Service) PayInvoice(ctx context.Context, owner engine.OwnerID, cardID, fromID engine.AccountID, on engine.Date) (*InvoicePayment, error) {
	if on.IsZero() {
		return nil, &engine.ValidationError{Field: "date", Reason: "required"}
	}

	var out InvoicePayment
	err := s.store.WithTx(ctx, func(tx engine.Store) error {
		card, err := ownedAccount(ctx, tx, owner, cardID)
		if err != nil {
			return err
		}
		from, err := ownedAccount(ctx, tx, owner, fromID)
		if err != nil {
			return err
		}
		if from.IsCreditCard() {
			return &engine.ValidationError{Field: "from_account_id", Reason: "an invoice cannot be paid with a credit card"}
		}

		entries, err := tx.Entries(ctx, engine.EntryFilter{AccountID: cardID})
		if err != nil {
			return err
		}
		st, err := engine.ResolveCardStatement(card, entries, on)
		if err != nil {
			return err
		}
		if !st.ClosedInvoiceTotal.IsPositive() {
			return &engine.InconsistencyError{Code: engine.CodeNothingDue, Message: "no unsettled charges in the last closed cycle"}
		}

		legs, err := s.writeTransfer(ctx, tx, TransferRequest{
			OwnerID:     card.OwnerID,
			From:        from.ID,
			To:          card.ID,
			Amount:      st.ClosedInvoiceTotal,
			Date:        on,
			Description: "Invoice " + st.ClosedCycle.End.String(),
		})
		if err != nil {
			return err
		}

		byID := make(map[engine.EntryID]engine.Entry, len(entries))
		for _, e := range entries {
			byID[e.ID] = e
		}
		for _, id := range st.ClosedUnsettled {
			e := byID[id]
			e.Settle(on, decimal.Zero)
			if err := tx.UpdateSettlement(ctx, e); err != nil {
				return err
			}
		}

		out = InvoicePayment{Statement: st, Transfer: legs, Settled: st.ClosedUnsettled}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"owner": owner, "account": cardID, "from": fromID,
		"amount": out.Statement.ClosedInvoiceTotal.StringFixed(2), "settled": len(out.Settled),
	}).Info("invoice paid")
	return &out, nil
}

// =============================================================================
// PROJECTION
// =============================================================================

// Project computes the owner's current balance and months-ahead projection.
// A zero asOf means today.
func (s *Service) Project(ctx context.Context, owner engine.OwnerID, asOf engine.Date, months int) (*engine.Projection, error) {
	if asOf.IsZero() {
		asOf = s.Today()
	}
	accounts, entries, err := s.snapshot(ctx, owner)
	if err != nil {
		return nil, err
	}
	p, err := engine.Project(engine.ProjectionInput{
		Accounts: accounts,
		Entries:  entries,
		AsOf:     asOf,
		Months:   months,
	})
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"owner": owner, "months": months, "at_risk": p.AtRisk, "min_balance": p.MinBalance.StringFixed(2),
	}).Debug("projection computed")
	return p, nil
}
