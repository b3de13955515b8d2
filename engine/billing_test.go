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
// BILLING CYCLE TESTS
// =============================================================================

func period(start, end engine.Date) engine.Period {
	return engine.Period{Start: start, End: end}
}

func TestCurrentOpenCycle_DecemberReferenceStaysInDecember(t *testing.T) {
	// GIVEN: Closing day 28, reference 2024-12-30
	// WHEN: Resolving the open cycle
	// THEN: It closes on 2024-12-28, not shifted into January

	open, err := engine.CurrentOpenCycle(28, date(2024, time.December, 30))
	require.NoError(t, err)
	assert.Equal(t, period(date(2024, time.November, 29), date(2024, time.December, 28)), open)
}

func TestCycles_ClosingDayTenReferenceJune12(t *testing.T) {
	ref := date(2024, time.June, 12)

	open, err := engine.CurrentOpenCycle(10, ref)
	require.NoError(t, err)
	assert.Equal(t, period(date(2024, time.May, 11), date(2024, time.June, 10)), open)

	closed, err := engine.LastClosedCycle(10, ref)
	require.NoError(t, err)
	assert.Equal(t, period(date(2024, time.April, 11), date(2024, time.May, 10)), closed)

	due, err := engine.DueDate(open.End, 10, 20)
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.June, 20), due, "due day after closing day stays in the closing month")
}

func TestCycles_ReferenceOnClosingDayBelongsToPreviousMonth(t *testing.T) {
	open, err := engine.CurrentOpenCycle(10, date(2024, time.June, 10))
	require.NoError(t, err)
	assert.Equal(t, period(date(2024, time.April, 11), date(2024, time.May, 10)), open)
}

func TestCycles_JanuaryReferenceRollsBackToDecember(t *testing.T) {
	ref := date(2025, time.January, 5)

	open, err := engine.CurrentOpenCycle(10, ref)
	require.NoError(t, err)
	assert.Equal(t, period(date(2024, time.November, 11), date(2024, time.December, 10)), open)

	closed, err := engine.LastClosedCycle(10, ref)
	require.NoError(t, err)
	assert.Equal(t, period(date(2024, time.October, 11), date(2024, time.November, 10)), closed)
}

func TestCycles_ClosingDayClampedInShortMonths(t *testing.T) {
	// GIVEN: Closing day 31
	// THEN: February closes on the 29th and March starts on the 1st

	open, err := engine.CurrentOpenCycle(31, date(2024, time.March, 15))
	require.NoError(t, err)
	assert.Equal(t, period(date(2024, time.February, 1), date(2024, time.February, 29)), open)

	closed, err := engine.LastClosedCycle(31, date(2024, time.April, 15))
	require.NoError(t, err)
	assert.Equal(t, period(date(2024, time.March, 1), date(2024, time.March, 31)), closed)
}

func TestDueDate_DecemberClosingDueInJanuary(t *testing.T) {
	due, err := engine.DueDate(date(2024, time.December, 10), 10, 5)
	require.NoError(t, err)
	assert.Equal(t, date(2025, time.January, 5), due)
}

func TestDueDate_ClampedToMonthLength(t *testing.T) {
	due, err := engine.DueDate(date(2024, time.January, 31), 31, 30)
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.February, 29), due)
}

func TestCycles_RejectOutOfRangeDays(t *testing.T) {
	ref := date(2024, time.June, 12)

	_, err := engine.CurrentOpenCycle(0, ref)
	assert.True(t, errors.Is(err, engine.ErrValidation))

	_, err = engine.LastClosedCycle(32, ref)
	assert.True(t, errors.Is(err, engine.ErrValidation))

	_, err = engine.DueDate(ref, 10, 0)
	var verr *engine.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "due_day", verr.Field)
}

func TestInCycle_BoundsInclusive(t *testing.T) {
	c := period(date(2024, time.May, 11), date(2024, time.June, 10))

	assert.True(t, engine.InCycle(date(2024, time.May, 11), c))
	assert.True(t, engine.InCycle(date(2024, time.June, 10), c))
	assert.False(t, engine.InCycle(date(2024, time.May, 10), c))
	assert.False(t, engine.InCycle(date(2024, time.June, 11), c))
}

func TestClosingDateFor(t *testing.T) {
	assert.Equal(t, date(2024, time.June, 10), engine.ClosingDateFor(10, date(2024, time.June, 10)))
	assert.Equal(t, date(2024, time.July, 10), engine.ClosingDateFor(10, date(2024, time.June, 11)))
	assert.Equal(t, date(2024, time.February, 29), engine.ClosingDateFor(31, date(2024, time.February, 15)))
	assert.Equal(t, date(2025, time.January, 10), engine.ClosingDateFor(10, date(2024, time.December, 20)))
}

// =============================================================================
// CARD STATEMENT TESTS
// =============================================================================

func TestResolveCardStatement_Aggregates(t *testing.T) {
	// GIVEN: A card closing on the 10th, due on the 20th, limit 5000
	//   open cycle   [2024-05-11, 2024-06-10]
	//   closed cycle [2024-04-11, 2024-05-10]
	// WHEN: Resolving the statement on 2024-06-12
	// THEN: Open counts every outflow in the open cycle, closed only unsettled ones

	visa := card("visa", 10, 20, "5000")
	entries := []engine.Entry{
		entry("open-settled", "visa", engine.Outflow, "100", date(2024, time.May, 20), true),
		entry("open-pending", "visa", engine.Outflow, "200", date(2024, time.June, 1), false),
		entry("closed-pending", "visa", engine.Outflow, "300", date(2024, time.April, 15), false),
		entry("closed-settled", "visa", engine.Outflow, "50", date(2024, time.April, 20), true),
		entry("refund", "visa", engine.Inflow, "75", date(2024, time.May, 25), false),
		entry("other-account", "checking", engine.Outflow, "999", date(2024, time.May, 25), false),
		entry("next-cycle", "visa", engine.Outflow, "40", date(2024, time.June, 11), false),
	}

	st, err := engine.ResolveCardStatement(visa, entries, date(2024, time.June, 12))
	require.NoError(t, err)

	assert.Equal(t, period(date(2024, time.May, 11), date(2024, time.June, 10)), st.OpenCycle)
	assert.Equal(t, period(date(2024, time.April, 11), date(2024, time.May, 10)), st.ClosedCycle)
	assert.Equal(t, date(2024, time.June, 20), st.OpenDue)
	assert.Equal(t, date(2024, time.May, 20), st.ClosedDue)

	assertMoney(t, "300.00", st.OpenInvoiceTotal)
	assertMoney(t, "300.00", st.ClosedInvoiceTotal)
	assertMoney(t, "540.00", st.TotalOutstanding)
	assertMoney(t, "5000.00", st.Limit)
	assertMoney(t, "4460.00", st.Available)
	assert.Equal(t, []engine.EntryID{"closed-pending"}, st.ClosedUnsettled)
}

func TestResolveCardStatement_EmptyCardHasFullLimit(t *testing.T) {
	st, err := engine.ResolveCardStatement(card("visa", 5, 15, "1200"), nil, date(2024, time.June, 12))
	require.NoError(t, err)

	assertMoney(t, "0.00", st.OpenInvoiceTotal)
	assertMoney(t, "0.00", st.ClosedInvoiceTotal)
	assertMoney(t, "1200.00", st.Available)
	assert.Empty(t, st.ClosedUnsettled)
}

func TestResolveCardStatement_RejectsNonCardAccount(t *testing.T) {
	_, err := engine.ResolveCardStatement(checking("checking", "10"), nil, date(2024, time.June, 12))

	var ierr *engine.InconsistencyError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, engine.CodeNotCreditCard, ierr.Code)
}
