package engine_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/warp/cashflow-engine/engine"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func date(y int, m time.Month, d int) engine.Date {
	return engine.NewDate(y, m, d)
}

func dec(s string) decimal.Decimal {
	return engine.MustParseDecimal(s)
}

// assertMoney compares a decimal against its 2-decimal rendering.
func assertMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.Equal(t, want, got.StringFixed(2), msgAndArgs...)
}

// sequentialGenerator returns a generator with predictable IDs and clock.
func sequentialGenerator() *engine.OccurrenceGenerator {
	var entries, series int
	return &engine.OccurrenceGenerator{
		NewEntryID: func() engine.EntryID {
			entries++
			return engine.EntryID(fmt.Sprintf("e%d", entries))
		},
		NewSeriesID: func() engine.SeriesID {
			series++
			return engine.SeriesID(fmt.Sprintf("s%d", series))
		},
		Now: func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func checking(id string, opening string) engine.Account {
	return engine.Account{
		ID:             engine.AccountID(id),
		OwnerID:        "alice",
		Name:           id,
		Kind:           engine.AccountChecking,
		OpeningBalance: dec(opening),
	}
}

func card(id string, closingDay, dueDay int, limit string) engine.Account {
	return engine.Account{
		ID:          engine.AccountID(id),
		OwnerID:     "alice",
		Name:        id,
		Kind:        engine.AccountCreditCard,
		CreditLimit: dec(limit),
		ClosingDay:  closingDay,
		DueDay:      dueDay,
	}
}

// entry builds a single entry; settled entries settle on their posting date.
func entry(id, account string, dir engine.Direction, amount string, posted engine.Date, settled bool) engine.Entry {
	e := engine.Entry{
		ID:         engine.EntryID(id),
		OwnerID:    "alice",
		AccountID:  engine.AccountID(account),
		Direction:  dir,
		Amount:     dec(amount),
		PostedOn:   posted,
		Channel:    engine.ChannelDebit,
		State:      engine.Pending,
		Recurrence: engine.RecurrenceNone,
	}
	if settled {
		e.Settle(posted, decimal.Zero)
	}
	return e
}

func template(id, account string, dir engine.Direction, amount string, first engine.Date) engine.Entry {
	e := entry(id, account, dir, amount, first, true)
	e.Recurrence = engine.RecurrenceFixed
	e.Series = &engine.Series{ID: engine.SeriesID("s-" + id), FirstEntryID: e.ID, Index: 1, Total: 0}
	return e
}
