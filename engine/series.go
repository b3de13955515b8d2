package engine

import "sort"

// =============================================================================
// SERIES INDEX - SeriesID -> ordered occurrences
// =============================================================================

// SeriesIndex maps a series to its occurrences ordered by index, so "this
// occurrence and all later ones" is a slice range instead of a walk along
// first-entry references. Not safe for concurrent use; stores guard it.
type SeriesIndex struct {
	series map[SeriesID][]seriesSlot
}

type seriesSlot struct {
	index    int
	postedOn Date
	entryID  EntryID
}

func NewSeriesIndex() *SeriesIndex {
	return &SeriesIndex{series: make(map[SeriesID][]seriesSlot)}
}

// Add indexes every entry that carries a series link.
func (si *SeriesIndex) Add(entries ...Entry) {
	touched := make(map[SeriesID]bool)
	for _, e := range entries {
		if e.Series == nil {
			continue
		}
		si.series[e.Series.ID] = append(si.series[e.Series.ID], seriesSlot{
			index:    e.Series.Index,
			postedOn: e.PostedOn,
			entryID:  e.ID,
		})
		touched[e.Series.ID] = true
	}
	for id := range touched {
		slots := si.series[id]
		sort.SliceStable(slots, func(i, j int) bool { return slots[i].index < slots[j].index })
	}
}

// Occurrences returns the series' entry IDs in index order.
func (si *SeriesIndex) Occurrences(id SeriesID) []EntryID {
	return si.From(id, Date{})
}

// From returns the IDs of occurrences posted on or after from. A zero from
// selects the whole series.
func (si *SeriesIndex) From(id SeriesID, from Date) []EntryID {
	slots := si.series[id]
	start := sort.Search(len(slots), func(i int) bool {
		return from.IsZero() || slots[i].postedOn.AfterOrEqual(from)
	})
	out := make([]EntryID, 0, len(slots)-start)
	for _, s := range slots[start:] {
		out = append(out, s.entryID)
	}
	return out
}

// Has reports whether the series is indexed.
func (si *SeriesIndex) Has(id SeriesID) bool {
	return len(si.series[id]) > 0
}

// Remove drops the given entries from a series.
func (si *SeriesIndex) Remove(id SeriesID, entryIDs []EntryID) {
	drop := make(map[EntryID]bool, len(entryIDs))
	for _, e := range entryIDs {
		drop[e] = true
	}
	kept := si.series[id][:0]
	for _, s := range si.series[id] {
		if !drop[s.entryID] {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		delete(si.series, id)
		return
	}
	si.series[id] = kept
}

// Clone returns an independent copy, used for transactional snapshots.
func (si *SeriesIndex) Clone() *SeriesIndex {
	out := NewSeriesIndex()
	for id, slots := range si.series {
		out.series[id] = append([]seriesSlot(nil), slots...)
	}
	return out
}
