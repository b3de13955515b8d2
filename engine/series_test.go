package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/cashflow-engine/engine"
)

func indexedSeries(t *testing.T) (*engine.SeriesIndex, []engine.Entry) {
	t.Helper()
	entries, err := sequentialGenerator().Generate(draft(engine.ChannelDebit, engine.RecurrenceMonthly, 4, date(2024, time.January, 15)))
	require.NoError(t, err)

	si := engine.NewSeriesIndex()
	// Out of order on purpose: the index sorts by occurrence number.
	si.Add(entries[2], entries[0], entries[3], entries[1])
	return si, entries
}

func TestSeriesIndex_OccurrencesInOrder(t *testing.T) {
	si, _ := indexedSeries(t)

	assert.True(t, si.Has("s1"))
	assert.False(t, si.Has("missing"))
	assert.Equal(t, []engine.EntryID{"e1", "e2", "e3", "e4"}, si.Occurrences("s1"))
}

func TestSeriesIndex_FromDateSelectsTail(t *testing.T) {
	si, _ := indexedSeries(t)

	assert.Equal(t, []engine.EntryID{"e3", "e4"}, si.From("s1", date(2024, time.March, 1)))
	assert.Equal(t, []engine.EntryID{"e3", "e4"}, si.From("s1", date(2024, time.March, 15)))
	assert.Empty(t, si.From("s1", date(2024, time.May, 1)))
	assert.Empty(t, si.From("missing", date(2024, time.May, 1)))
}

func TestSeriesIndex_RemoveAndClone(t *testing.T) {
	si, _ := indexedSeries(t)
	snapshot := si.Clone()

	si.Remove("s1", []engine.EntryID{"e3", "e4"})
	assert.Equal(t, []engine.EntryID{"e1", "e2"}, si.Occurrences("s1"))
	assert.Equal(t, []engine.EntryID{"e1", "e2", "e3", "e4"}, snapshot.Occurrences("s1"), "clone is independent")

	si.Remove("s1", []engine.EntryID{"e1", "e2"})
	assert.False(t, si.Has("s1"))
}

func TestSeriesIndex_IgnoresEntriesWithoutSeries(t *testing.T) {
	si := engine.NewSeriesIndex()
	si.Add(entry("single", "checking", engine.Outflow, "10", date(2024, time.January, 1), false))

	assert.Empty(t, si.Occurrences(""))
}
