package engine_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/cashflow-engine/engine"
)

// =============================================================================
// OCCURRENCE GENERATION TESTS
// =============================================================================

func draft(channel engine.Channel, kind engine.RecurrenceKind, count int, first engine.Date) engine.Draft {
	return engine.Draft{
		OwnerID:     "alice",
		AccountID:   "checking",
		Description: "Gym",
		Direction:   engine.Outflow,
		Amount:      dec("89.90"),
		FirstDate:   first,
		Channel:     channel,
		Recurrence:  kind,
		Count:       count,
	}
}

func TestGenerate_MonthlyFromMonthEndClampsEachOccurrence(t *testing.T) {
	// GIVEN: 5 monthly occurrences starting 2024-01-31
	// WHEN: Generating the series
	// THEN: Each date is clamped from the first date, never chained

	entries, err := sequentialGenerator().Generate(draft(engine.ChannelDebit, engine.RecurrenceMonthly, 5, date(2024, time.January, 31)))
	require.NoError(t, err)
	require.Len(t, entries, 5)

	want := []engine.Date{
		date(2024, time.January, 31),
		date(2024, time.February, 29),
		date(2024, time.March, 31),
		date(2024, time.April, 30),
		date(2024, time.May, 31),
	}
	for i, e := range entries {
		assert.Equal(t, want[i], e.PostedOn, "occurrence %d", i+1)
		require.NotNil(t, e.Series)
		assert.Equal(t, engine.SeriesID("s1"), e.Series.ID)
		assert.Equal(t, engine.EntryID("e1"), e.Series.FirstEntryID)
		assert.Equal(t, i+1, e.Series.Index)
		assert.Equal(t, 5, e.Series.Total)
		assertMoney(t, "89.90", e.Amount)
	}
}

func TestGenerate_SettlementDependsOnChannel(t *testing.T) {
	first := date(2024, time.March, 10)

	t.Run("cash settles only the first occurrence", func(t *testing.T) {
		entries, err := sequentialGenerator().Generate(draft(engine.ChannelCash, engine.RecurrenceMonthly, 3, first))
		require.NoError(t, err)
		require.Len(t, entries, 3)

		assert.True(t, entries[0].IsSettled())
		assert.Equal(t, first, entries[0].SettledOn)
		assertMoney(t, "89.90", entries[0].SettledAmount)
		assert.False(t, entries[1].IsSettled())
		assert.False(t, entries[2].IsSettled())
		assert.True(t, entries[2].SettledOn.IsZero())
	})

	t.Run("credit card settles every occurrence", func(t *testing.T) {
		entries, err := sequentialGenerator().Generate(draft(engine.ChannelCreditCard, engine.RecurrenceMonthly, 3, first))
		require.NoError(t, err)
		require.Len(t, entries, 3)

		for i, e := range entries {
			assert.True(t, e.IsSettled(), "occurrence %d", i+1)
			assert.Equal(t, e.PostedOn, e.SettledOn)
		}
	})
}

func TestGenerate_NonRecurringIgnoresCount(t *testing.T) {
	entries, err := sequentialGenerator().Generate(draft(engine.ChannelDebit, engine.RecurrenceNone, 3, date(2024, time.May, 5)))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	assert.Equal(t, engine.RecurrenceNone, entries[0].Recurrence)
	assert.Nil(t, entries[0].Series)
	assert.True(t, entries[0].IsSettled())
}

func TestGenerate_EmptyRecurrenceMeansNone(t *testing.T) {
	entries, err := sequentialGenerator().Generate(draft(engine.ChannelDebit, "", 1, date(2024, time.May, 5)))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, engine.RecurrenceNone, entries[0].Recurrence)
}

func TestGenerate_SingleMonthlyOccurrenceIsPlainEntry(t *testing.T) {
	entries, err := sequentialGenerator().Generate(draft(engine.ChannelDebit, engine.RecurrenceMonthly, 1, date(2024, time.May, 5)))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	assert.Equal(t, engine.RecurrenceNone, entries[0].Recurrence)
	assert.Nil(t, entries[0].Series)
}

func TestGenerate_FixedIsSingleUnlimitedTemplate(t *testing.T) {
	// GIVEN: A fixed recurrence
	// THEN: One settled entry heads an unlimited series

	entries, err := sequentialGenerator().Generate(draft(engine.ChannelDebit, engine.RecurrenceFixed, 1, date(2024, time.May, 5)))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, engine.RecurrenceFixed, e.Recurrence)
	require.NotNil(t, e.Series)
	assert.Equal(t, 1, e.Series.Index)
	assert.Equal(t, 0, e.Series.Total)
	assert.Equal(t, e.ID, e.Series.FirstEntryID)
	assert.True(t, e.IsSettled())
	assert.True(t, e.IsTemplate())
}

func TestGenerate_WeeklyDates(t *testing.T) {
	entries, err := sequentialGenerator().Generate(draft(engine.ChannelInstant, engine.RecurrenceWeekly, 3, date(2024, time.February, 22)))
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, date(2024, time.February, 22), entries[0].PostedOn)
	assert.Equal(t, date(2024, time.February, 29), entries[1].PostedOn)
	assert.Equal(t, date(2024, time.March, 7), entries[2].PostedOn)
}

func TestGenerate_StampsIdentityAndClock(t *testing.T) {
	d := draft(engine.ChannelDebit, engine.RecurrenceMonthly, 2, date(2024, time.May, 5))
	d.CategoryID = "fitness"
	d.ExternalID = "bank-42"

	entries, err := sequentialGenerator().Generate(d)
	require.NoError(t, err)

	for _, e := range entries {
		assert.Equal(t, engine.OwnerID("alice"), e.OwnerID)
		assert.Equal(t, engine.AccountID("checking"), e.AccountID)
		assert.Equal(t, engine.CategoryID("fitness"), e.CategoryID)
		assert.Equal(t, "bank-42", e.ExternalID)
		assert.Equal(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), e.CreatedAt)
	}
	assert.Equal(t, engine.EntryID("e1"), entries[0].ID)
	assert.Equal(t, engine.EntryID("e2"), entries[1].ID)
}

func TestGenerate_RejectsInvalidDrafts(t *testing.T) {
	tests := []struct {
		name  string
		mod   func(d *engine.Draft)
		field string
	}{
		{"zero count", func(d *engine.Draft) { d.Count = 0 }, "count"},
		{"missing date", func(d *engine.Draft) { d.FirstDate = engine.Date{} }, "first_date"},
		{"zero amount", func(d *engine.Draft) { d.Amount = dec("0") }, "amount"},
		{"missing account", func(d *engine.Draft) { d.AccountID = "" }, "account_id"},
		{"bad direction", func(d *engine.Draft) { d.Direction = "sideways" }, "direction"},
		{"bad channel", func(d *engine.Draft) { d.Channel = "pigeon" }, "channel"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := draft(engine.ChannelDebit, engine.RecurrenceMonthly, 3, date(2024, time.May, 5))
			tt.mod(&d)

			entries, err := sequentialGenerator().Generate(d)
			assert.Nil(t, entries)

			var verr *engine.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestGenerate_UnknownRecurrenceIsInconsistent(t *testing.T) {
	entries, err := sequentialGenerator().Generate(draft(engine.ChannelDebit, "fortnightly", 3, date(2024, time.May, 5)))

	assert.Nil(t, entries)
	assert.True(t, errors.Is(err, engine.ErrInconsistent))
	var ierr *engine.InconsistencyError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, engine.CodeUnknownRecurrence, ierr.Code)
}
