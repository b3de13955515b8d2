/*
store.go - Interfaces to the persistence collaborators

PURPOSE:
  The engine computes; stores persist. These interfaces are what the
  ledger service needs from a store. Implementations:
  - engine/store/memory.go: in-memory, for tests and development
  - store/sqlstore: SQLite or PostgreSQL

ATOMIC BATCHES:
  AppendEntries writes a whole series (or a transfer pair) or nothing. A
  projection read must never observe a partially written series.

SINGLE-ROW SETTLEMENT:
  UpdateSettlement and UpdateInstallment touch exactly one row and fail
  with the matching not-found error otherwise.

LOAN REPLACEMENT:
  A plan and its installments are only ever written together: ReplaceLoan
  deletes any previous installments of the plan and inserts the new set.
*/
package engine

import (
	"context"
	"time"
)

// EntryFilter narrows an entry query. Zero fields do not filter.
type EntryFilter struct {
	OwnerID   OwnerID
	AccountID AccountID
	From      Date
	To        Date
}

// Match applies the filter to one entry.
func (f EntryFilter) Match(e Entry) bool {
	if f.OwnerID != "" && e.OwnerID != f.OwnerID {
		return false
	}
	if f.AccountID != "" && e.AccountID != f.AccountID {
		return false
	}
	if !f.From.IsZero() && e.PostedOn.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.PostedOn.After(f.To) {
		return false
	}
	return true
}

// EntryStore persists ledger lines.
type EntryStore interface {
	// AppendEntries persists entries atomically. Returns
	// ErrDuplicateExternalID if an entry's ExternalID already exists on its
	// account.
	AppendEntries(ctx context.Context, entries []Entry) error

	// Entries returns matching entries ordered by posting date.
	Entries(ctx context.Context, filter EntryFilter) ([]Entry, error)

	// Entry returns one entry or ErrEntryNotFound.
	Entry(ctx context.Context, id EntryID) (Entry, error)

	// UpdateSettlement writes the settlement fields of one entry.
	UpdateSettlement(ctx context.Context, e Entry) error

	// DeleteSeries removes the series' occurrences posted on or after from
	// (all of them when from is zero) and returns how many were removed.
	DeleteSeries(ctx context.Context, id SeriesID, from Date) (int, error)

	// ExternalIDExists reports whether an imported line is already recorded.
	ExternalIDExists(ctx context.Context, accountID AccountID, externalID string) (bool, error)
}

// AccountDirectory reads and writes account definitions.
type AccountDirectory interface {
	SaveAccount(ctx context.Context, a Account) error
	Account(ctx context.Context, id AccountID) (Account, error)
	Accounts(ctx context.Context, owner OwnerID) ([]Account, error)
}

// LoanStore persists loan plans with their installments.
type LoanStore interface {
	ReplaceLoan(ctx context.Context, plan LoanPlan, installments []LoanInstallment) error
	Loan(ctx context.Context, id LoanPlanID) (LoanPlan, []LoanInstallment, error)
	Loans(ctx context.Context, owner OwnerID) ([]LoanPlan, error)
	UpdateInstallment(ctx context.Context, inst LoanInstallment) error
}

// KeywordMapping is one learned association between a description keyword
// and a category.
type KeywordMapping struct {
	OwnerID    OwnerID    `json:"owner_id"`
	Keyword    string     `json:"keyword"`
	CategoryID CategoryID `json:"category_id"`
	LearnedAt  time.Time  `json:"learned_at"`
}

// MappingStore persists the category suggester's keyword mappings. Saving a
// keyword that already exists for the owner replaces it.
type MappingStore interface {
	SaveMappings(ctx context.Context, mappings []KeywordMapping) error
	Mappings(ctx context.Context, owner OwnerID, keywords []string) ([]KeywordMapping, error)
}

// Store is every persistence capability the ledger service uses.
type Store interface {
	EntryStore
	AccountDirectory
	LoanStore
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
