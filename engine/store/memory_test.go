package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/cashflow-engine/engine"
	"github.com/warp/cashflow-engine/engine/store"
)

func monthlySeries(t *testing.T, count int) []engine.Entry {
	t.Helper()
	entries, err := engine.NewOccurrenceGenerator().Generate(engine.Draft{
		OwnerID:    "alice",
		AccountID:  "checking",
		Direction:  engine.Outflow,
		Amount:     engine.MustParseDecimal("120"),
		FirstDate:  engine.NewDate(2024, time.January, 10),
		Channel:    engine.ChannelDebit,
		Recurrence: engine.RecurrenceMonthly,
		Count:      count,
	})
	require.NoError(t, err)
	return entries
}

func TestMemory_AppendAndQueryInPostingOrder(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	entries := monthlySeries(t, 3)
	require.NoError(t, m.AppendEntries(ctx, []engine.Entry{entries[2], entries[0], entries[1]}))

	got, err := m.Entries(ctx, engine.EntryFilter{OwnerID: "alice"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := range got {
		assert.Equal(t, entries[i].ID, got[i].ID)
	}

	got, err = m.Entries(ctx, engine.EntryFilter{
		OwnerID: "alice",
		From:    engine.NewDate(2024, time.February, 1),
		To:      engine.NewDate(2024, time.February, 29),
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, entries[1].ID, got[0].ID)

	got, err = m.Entries(ctx, engine.EntryFilter{OwnerID: "bob"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemory_DuplicateExternalIDRejectsWholeBatch(t *testing.T) {
	// GIVEN: An imported line already recorded
	// WHEN: A batch containing it again is appended
	// THEN: Nothing from the batch is written

	ctx := context.Background()
	m := store.NewMemory()

	first := monthlySeries(t, 1)
	first[0].ExternalID = "fitid-1"
	require.NoError(t, m.AppendEntries(ctx, first))

	batch := monthlySeries(t, 2)
	batch[1].ExternalID = "fitid-1"
	err := m.AppendEntries(ctx, batch)
	assert.True(t, errors.Is(err, engine.ErrDuplicateExternalID))

	_, err = m.Entry(ctx, batch[0].ID)
	assert.True(t, errors.Is(err, engine.ErrEntryNotFound))

	exists, err := m.ExternalIDExists(ctx, "checking", "fitid-1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = m.ExternalIDExists(ctx, "savings", "fitid-1")
	require.NoError(t, err)
	assert.False(t, exists, "external ids are scoped per account")
}

func TestMemory_DeleteSeriesFromDate(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	entries := monthlySeries(t, 4)
	require.NoError(t, m.AppendEntries(ctx, entries))
	seriesID := entries[0].Series.ID

	n, err := m.DeleteSeries(ctx, seriesID, engine.NewDate(2024, time.March, 1))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := m.Entries(ctx, engine.EntryFilter{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, entries[0].ID, got[0].ID)
	assert.Equal(t, entries[1].ID, got[1].ID)

	n, err = m.DeleteSeries(ctx, seriesID, engine.Date{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = m.DeleteSeries(ctx, seriesID, engine.Date{})
	assert.True(t, errors.Is(err, engine.ErrSeriesNotFound))
}

func TestMemory_UpdateSettlement(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	entries := monthlySeries(t, 2)
	require.NoError(t, m.AppendEntries(ctx, entries))

	pending := entries[1]
	pending.Description = "ignored"
	pending.Settle(engine.NewDate(2024, time.February, 12), engine.MustParseDecimal("118.50"))
	require.NoError(t, m.UpdateSettlement(ctx, pending))

	got, err := m.Entry(ctx, pending.ID)
	require.NoError(t, err)
	assert.True(t, got.IsSettled())
	assert.Equal(t, "118.5", got.SettledAmount.String())
	assert.Empty(t, got.Description, "only settlement fields are written")

	err = m.UpdateSettlement(ctx, engine.Entry{ID: "missing"})
	assert.True(t, errors.Is(err, engine.ErrEntryNotFound))
}

func TestMemory_AccountsByOwner(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	require.NoError(t, m.SaveAccount(ctx, engine.Account{ID: "b", OwnerID: "alice", Kind: engine.AccountChecking}))
	require.NoError(t, m.SaveAccount(ctx, engine.Account{ID: "a", OwnerID: "alice", Kind: engine.AccountSavings}))
	require.NoError(t, m.SaveAccount(ctx, engine.Account{ID: "c", OwnerID: "bob", Kind: engine.AccountChecking}))

	accts, err := m.Accounts(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, accts, 2)
	assert.Equal(t, engine.AccountID("a"), accts[0].ID)

	_, err = m.Account(ctx, "zzz")
	assert.True(t, errors.Is(err, engine.ErrAccountNotFound))
}

func TestMemory_LoansReplaceAndUpdate(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	plan := engine.LoanPlan{
		ID:               "car",
		OwnerID:          "alice",
		Principal:        engine.MustParseDecimal("2000"),
		InstallmentValue: engine.MustParseDecimal("1000"),
		InstallmentCount: 2,
		FirstInstallment: engine.NewDate(2024, time.March, 5),
	}
	insts, err := engine.GenerateInstallments(plan)
	require.NoError(t, err)
	require.NoError(t, m.ReplaceLoan(ctx, plan, insts))

	insts[1].Paid = true
	require.NoError(t, m.UpdateInstallment(ctx, insts[1]))

	_, got, err := m.Loan(ctx, "car")
	require.NoError(t, err)
	assert.False(t, got[0].Paid)
	assert.True(t, got[1].Paid)

	err = m.UpdateInstallment(ctx, engine.LoanInstallment{PlanID: "car", Sequence: 9})
	assert.True(t, errors.Is(err, engine.ErrInstallmentNotFound))
	err = m.UpdateInstallment(ctx, engine.LoanInstallment{PlanID: "boat", Sequence: 1})
	assert.True(t, errors.Is(err, engine.ErrLoanNotFound))

	plans, err := m.Loans(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, plans, 1)
}

func TestMemory_Mappings(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	require.NoError(t, m.SaveMappings(ctx, []engine.KeywordMapping{
		{OwnerID: "alice", Keyword: "uber", CategoryID: "transport"},
		{OwnerID: "alice", Keyword: "ifood", CategoryID: "food"},
	}))
	require.NoError(t, m.SaveMappings(ctx, []engine.KeywordMapping{
		{OwnerID: "alice", Keyword: "uber", CategoryID: "travel"},
	}))

	got, err := m.Mappings(ctx, "alice", []string{"uber", "taxi"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, engine.CategoryID("travel"), got[0].CategoryID)

	got, err = m.Mappings(ctx, "bob", []string{"uber"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

// =============================================================================
// TRANSACTION TESTS
// =============================================================================

func TestTxMemory_RollbackOnError(t *testing.T) {
	// GIVEN: A transaction that writes then fails
	// THEN: None of its writes are visible

	ctx := context.Background()
	tm := store.NewTxMemory()
	entries := monthlySeries(t, 2)

	boom := errors.New("boom")
	err := tm.WithTx(ctx, func(tx engine.Store) error {
		if err := tx.SaveAccount(ctx, engine.Account{ID: "checking", OwnerID: "alice", Kind: engine.AccountChecking}); err != nil {
			return err
		}
		if err := tx.AppendEntries(ctx, entries); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := tm.Entries(ctx, engine.EntryFilter{})
	require.NoError(t, err)
	assert.Empty(t, got)
	_, err = tm.Account(ctx, "checking")
	assert.True(t, errors.Is(err, engine.ErrAccountNotFound))

	// The series index is rolled back too.
	_, err = tm.DeleteSeries(ctx, entries[0].Series.ID, engine.Date{})
	assert.True(t, errors.Is(err, engine.ErrSeriesNotFound))
}

func TestTxMemory_CommitOnSuccess(t *testing.T) {
	ctx := context.Background()
	tm := store.NewTxMemory()
	entries := monthlySeries(t, 2)

	err := tm.WithTx(ctx, func(tx engine.Store) error {
		return tx.AppendEntries(ctx, entries)
	})
	require.NoError(t, err)

	got, err := tm.Entries(ctx, engine.EntryFilter{OwnerID: "alice"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
