package engine_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/cashflow-engine/engine"
)

// =============================================================================
// PROJECTION TESTS
// =============================================================================

var asOf = date(2024, time.June, 12)

func project(t *testing.T, in engine.ProjectionInput) *engine.Projection {
	t.Helper()
	p, err := engine.Project(in)
	require.NoError(t, err)
	return p
}

func assertBalances(t *testing.T, p *engine.Projection, want ...string) {
	t.Helper()
	got := make([]string, 0, len(p.Months))
	for _, b := range p.Balances() {
		got = append(got, b.StringFixed(2))
	}
	assert.Equal(t, want, got)
}

func TestProject_PendingThisMonthThenTemplates(t *testing.T) {
	// GIVEN: Current balance 2000.00
	//   AND: Two pending outflows this month totaling 300.00
	//   AND: Monthly templates +500.00 and -1200.00
	// WHEN: Projecting 2 months
	// THEN: 1700, 1000, 300 with no risk

	p := project(t, engine.ProjectionInput{
		Accounts: []engine.Account{checking("checking", "2000")},
		Entries: []engine.Entry{
			entry("water", "checking", engine.Outflow, "100", date(2024, time.June, 20), false),
			entry("power", "checking", engine.Outflow, "200", date(2024, time.June, 25), false),
		},
		Templates: []engine.Entry{
			template("salary", "checking", engine.Inflow, "500", date(2024, time.June, 5)),
			template("rent", "checking", engine.Outflow, "1200", date(2024, time.June, 1)),
		},
		AsOf:   asOf,
		Months: 2,
	})

	assertMoney(t, "2000.00", p.CurrentBalance)
	assertBalances(t, p, "1700.00", "1000.00", "300.00")
	assert.False(t, p.AtRisk)
	assertMoney(t, "300.00", p.MinBalance)
	assert.Equal(t, 2, p.MinMonth)

	assertMoney(t, "0.00", p.Months[0].Inflow)
	assertMoney(t, "300.00", p.Months[0].Outflow)
	assertMoney(t, "500.00", p.Months[1].Inflow)
	assertMoney(t, "1200.00", p.Months[1].Outflow)
	assertMoney(t, "-700.00", p.Months[1].Net)
	assert.Equal(t, engine.Period{Start: date(2024, time.July, 1), End: date(2024, time.July, 31)}, p.Months[1].Period)
}

func TestProject_DiscoversTemplatesFromEntries(t *testing.T) {
	// GIVEN: A settled fixed salary template already counted in the balance
	// THEN: It is replayed in later months without counting twice this month

	p := project(t, engine.ProjectionInput{
		Accounts: []engine.Account{checking("checking", "1000")},
		Entries: []engine.Entry{
			template("salary", "checking", engine.Inflow, "500", date(2024, time.June, 5)),
			entry("dentist", "checking", engine.Outflow, "200", date(2024, time.June, 20), false),
		},
		AsOf:   asOf,
		Months: 2,
	})

	assertMoney(t, "1500.00", p.CurrentBalance)
	assertBalances(t, p, "1300.00", "1800.00", "2300.00")
}

func TestProject_IsDeterministic(t *testing.T) {
	in := engine.ProjectionInput{
		Accounts: []engine.Account{checking("checking", "800"), card("visa", 10, 20, "3000")},
		Entries: []engine.Entry{
			template("salary", "checking", engine.Inflow, "2500", date(2024, time.January, 5)),
			template("rent", "checking", engine.Outflow, "1400", date(2024, time.January, 10)),
			entry("groceries", "visa", engine.Outflow, "320", date(2024, time.June, 3), false),
			entry("refund", "checking", engine.Inflow, "45", date(2024, time.June, 28), false),
		},
		AsOf:   asOf,
		Months: 12,
	}

	first := project(t, in)
	second := project(t, in)
	assert.Equal(t, first, second)

	for i := 1; i < len(first.Months); i++ {
		diff := first.Months[i].Balance.Sub(first.Months[i-1].Balance)
		assert.True(t, diff.Equal(first.Months[i].Net), "month %d: diff %s net %s", i, diff, first.Months[i].Net)
	}
}

func TestProject_EmptyLedgerIsFlat(t *testing.T) {
	p := project(t, engine.ProjectionInput{AsOf: asOf, Months: 3})

	require.Len(t, p.Months, 4)
	assertBalances(t, p, "0.00", "0.00", "0.00", "0.00")
	assert.False(t, p.AtRisk)
}

func TestProject_ZeroMonthsIsCurrentMonthOnly(t *testing.T) {
	p := project(t, engine.ProjectionInput{
		Accounts: []engine.Account{checking("checking", "100")},
		AsOf:     asOf,
		Months:   0,
	})

	require.Len(t, p.Months, 1)
	assert.Equal(t, engine.Period{Start: date(2024, time.June, 1), End: date(2024, time.June, 30)}, p.Months[0].Period)
}

func TestProject_CardEntriesUseCycleClose(t *testing.T) {
	// GIVEN: A card closing on the 10th
	//   AND: An unsettled purchase on 2024-05-25 (invoice closes 2024-06-10)
	//   AND: An unsettled purchase on 2024-06-15 (invoice closes 2024-07-10)
	// WHEN: Projecting June
	// THEN: Only the May purchase counts this month

	p := project(t, engine.ProjectionInput{
		Accounts: []engine.Account{checking("checking", "1000"), card("visa", 10, 20, "5000")},
		Entries: []engine.Entry{
			entry("may", "visa", engine.Outflow, "150", date(2024, time.May, 25), false),
			entry("june", "visa", engine.Outflow, "90", date(2024, time.June, 15), false),
		},
		AsOf: asOf,
	})

	assertMoney(t, "1000.00", p.CurrentBalance, "card spending never reaches the balance directly")
	assertMoney(t, "150.00", p.Months[0].Outflow)
	assertBalances(t, p, "850.00")
}

func TestProject_TransfersCountOnlyTowardCards(t *testing.T) {
	// GIVEN: 300 moved from checking to savings
	//   AND: 200 paid from checking to the card invoice
	// THEN: The internal move cancels out; the invoice payment leaves the balance

	legs := func(pair, from, to, amount string, on engine.Date) []engine.Entry {
		out := entry(pair+"-out", from, engine.Outflow, amount, on, true)
		in := entry(pair+"-in", to, engine.Inflow, amount, on, true)
		for _, e := range []*engine.Entry{&out, &in} {
			e.Channel = engine.ChannelTransfer
			e.TransferPairID = engine.TransferPairID(pair)
		}
		return []engine.Entry{out, in}
	}

	savings := checking("savings", "400")
	savings.Kind = engine.AccountSavings
	accounts := []engine.Account{checking("checking", "1000"), savings, card("visa", 10, 20, "5000")}

	var entries []engine.Entry
	entries = append(entries, legs("t1", "checking", "savings", "300", date(2024, time.June, 2))...)
	entries = append(entries, legs("t2", "checking", "visa", "200", date(2024, time.June, 3))...)

	assertMoney(t, "1200.00", engine.CurrentBalance(accounts, entries))

	balances := engine.AccountBalances(accounts, entries)
	assert.Len(t, balances, 2)
	assertMoney(t, "500.00", balances["checking"])
	assertMoney(t, "700.00", balances["savings"])

	p := project(t, engine.ProjectionInput{Accounts: accounts, Entries: entries, AsOf: asOf})
	assertBalances(t, p, "1200.00")
}

func TestProject_SettledAmountOverridesFace(t *testing.T) {
	e := entry("bill", "checking", engine.Outflow, "100", date(2024, time.June, 2), false)
	e.Settle(date(2024, time.June, 2), dec("95"))

	p := project(t, engine.ProjectionInput{
		Accounts: []engine.Account{checking("checking", "1000")},
		Entries:  []engine.Entry{e},
		AsOf:     asOf,
	})

	assertMoney(t, "905.00", p.CurrentBalance)
}

func TestProject_FlagsNegativeRisk(t *testing.T) {
	p := project(t, engine.ProjectionInput{
		Accounts:  []engine.Account{checking("checking", "500")},
		Templates: []engine.Entry{template("loan", "checking", engine.Outflow, "500", date(2024, time.June, 1))},
		AsOf:      asOf,
		Months:    2,
	})

	assertBalances(t, p, "500.00", "0.00", "-500.00")
	assert.True(t, p.AtRisk)
	assertMoney(t, "-500.00", p.MinBalance)
	assert.Equal(t, 2, p.MinMonth)
}

func shortSeriesAndLateFixed() []engine.Entry {
	series := template("gym", "checking", engine.Outflow, "100", date(2024, time.June, 5))
	series.Recurrence = engine.RecurrenceMonthly
	series.Series.Total = 3
	return []engine.Entry{
		series,
		template("allowance", "checking", engine.Inflow, "50", date(2024, time.September, 1)),
	}
}

func TestProject_TemplatesRepeatEveryMonth(t *testing.T) {
	// GIVEN: 3 monthly occurrences of 100 starting 2024-06-05
	//   AND: A fixed 50 inflow starting 2024-09-01
	// WHEN: Projecting 6 months from 2024-06-20
	// THEN: Both templates contribute in every month 1..6

	p := project(t, engine.ProjectionInput{
		Accounts:  []engine.Account{checking("checking", "1000")},
		Templates: shortSeriesAndLateFixed(),
		AsOf:      date(2024, time.June, 20),
		Months:    6,
	})

	for _, m := range p.Months[1:] {
		assertMoney(t, "100.00", m.Outflow)
		assertMoney(t, "50.00", m.Inflow)
	}
	assertBalances(t, p, "1000.00", "950.00", "900.00", "850.00", "800.00", "750.00", "700.00")
}

func TestProject_BoundSeriesStartsAndStops(t *testing.T) {
	// GIVEN: The same templates with BoundSeries set
	// THEN: The series contributes July and August only;
	//       the fixed template starts in September

	p := project(t, engine.ProjectionInput{
		Accounts:    []engine.Account{checking("checking", "1000")},
		Templates:   shortSeriesAndLateFixed(),
		AsOf:        date(2024, time.June, 20),
		Months:      6,
		BoundSeries: true,
	})

	assertBalances(t, p, "1000.00", "900.00", "800.00", "850.00", "900.00", "950.00", "1000.00")
}

func TestProject_WeeklyTemplateCountsOncePerMonth(t *testing.T) {
	weekly := template("coffee", "checking", engine.Outflow, "20", date(2024, time.June, 3))
	weekly.Recurrence = engine.RecurrenceWeekly

	p := project(t, engine.ProjectionInput{
		Accounts:  []engine.Account{checking("checking", "100")},
		Templates: []engine.Entry{weekly},
		AsOf:      asOf,
		Months:    2,
	})

	assertBalances(t, p, "100.00", "80.00", "60.00")
}

func TestProject_LaterSeriesOccurrencesAreNotTemplates(t *testing.T) {
	// GIVEN: A 3x monthly series materialized as entries
	// THEN: Only the head is replayed; pending later occurrences count
	//       in month 0 only when they fall inside it

	entries, err := sequentialGenerator().Generate(engine.Draft{
		OwnerID:    "alice",
		AccountID:  "checking",
		Direction:  engine.Outflow,
		Amount:     dec("50"),
		FirstDate:  date(2024, time.May, 20),
		Channel:    engine.ChannelDebit,
		Recurrence: engine.RecurrenceMonthly,
		Count:      3,
	})
	require.NoError(t, err)

	assert.Len(t, engine.Templates(entries), 1)

	p := project(t, engine.ProjectionInput{
		Accounts: []engine.Account{checking("checking", "1000")},
		Entries:  entries,
		AsOf:     asOf,
		Months:   2,
	})

	// May settled (950); June pending (900); the head repeats in July
	// and August.
	assertBalances(t, p, "900.00", "850.00", "800.00")
}

func TestProject_RejectsBadInput(t *testing.T) {
	t.Run("negative months", func(t *testing.T) {
		_, err := engine.Project(engine.ProjectionInput{AsOf: asOf, Months: -1})
		var verr *engine.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "months", verr.Field)
	})

	t.Run("months beyond the cap", func(t *testing.T) {
		for _, months := range []int{engine.MaxProjectionMonths + 1, math.MaxInt} {
			_, err := engine.Project(engine.ProjectionInput{AsOf: asOf, Months: months})
			var verr *engine.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, "months", verr.Field)
		}
	})

	t.Run("months at the cap", func(t *testing.T) {
		p := project(t, engine.ProjectionInput{AsOf: asOf, Months: engine.MaxProjectionMonths})
		assert.Len(t, p.Months, engine.MaxProjectionMonths+1)
	})

	t.Run("missing as-of", func(t *testing.T) {
		_, err := engine.Project(engine.ProjectionInput{Months: 1})
		var verr *engine.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "as_of", verr.Field)
	})

	t.Run("unknown template recurrence", func(t *testing.T) {
		bad := template("odd", "checking", engine.Outflow, "10", date(2024, time.June, 1))
		bad.Recurrence = "fortnightly"

		_, err := engine.Project(engine.ProjectionInput{Templates: []engine.Entry{bad}, AsOf: asOf, Months: 1})
		var ierr *engine.InconsistencyError
		require.ErrorAs(t, err, &ierr)
		assert.Equal(t, engine.CodeUnknownRecurrence, ierr.Code)
	})
}

// =============================================================================
// EFFECTIVE DATE TESTS
// =============================================================================

func TestAttributorFor(t *testing.T) {
	visa := engine.AttributorFor(card("visa", 10, 20, "1000"))
	debit := engine.AttributorFor(checking("checking", "0"))

	pending := entry("p", "visa", engine.Outflow, "10", date(2024, time.June, 11), false)
	settled := entry("s", "visa", engine.Outflow, "10", date(2024, time.June, 11), false)
	settled.Settle(date(2024, time.June, 14), dec("0"))

	assert.Equal(t, date(2024, time.July, 10), visa.EffectiveDate(pending))
	assert.Equal(t, date(2024, time.June, 14), visa.EffectiveDate(settled))
	assert.Equal(t, date(2024, time.June, 11), debit.EffectiveDate(pending))

	attrs := engine.NewAttributors([]engine.Account{card("visa", 10, 20, "1000")})
	orphan := entry("o", "nowhere", engine.Outflow, "10", date(2024, time.June, 11), false)
	assert.Equal(t, date(2024, time.June, 11), attrs.EffectiveDate(orphan))
}
