/*
occurrence.go - Expansion of one entry definition into its series

RULES:
  - Recurrence none, or count 1: a single settled entry.
  - Recurrence fixed: a single entry that acts as an unlimited template;
    projection repeats it, nothing else is materialized.
  - Weekly/monthly/yearly with count k > 1: k entries at
    AddCycles(firstDate, kind, i) for i = 0..k-1, all linked to one Series.

SETTLEMENT DEFAULTS:
  Credit-card purchases are authorized immediately, so every occurrence is
  settled. Any other channel settles only occurrence 1; later occurrences
  are pending until the user confirms the money moved.

ATOMICITY:
  Generate either returns the full series or an error; it never returns a
  partial slice. Writing the slice atomically is the store's job
  (see Store.AppendEntries).
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// Draft is an entry definition before expansion.
type Draft struct {
	OwnerID     OwnerID
	AccountID   AccountID
	CategoryID  CategoryID
	Description string
	Direction   Direction
	Amount      decimal.Decimal
	FirstDate   Date
	Channel     Channel
	Recurrence  RecurrenceKind
	Count       int
	ExternalID  string
}

// Validate rejects drafts the generator cannot expand.
func (d Draft) Validate() error {
	if d.AccountID == "" {
		return &ValidationError{Field: "account_id", Reason: "required"}
	}
	if !d.Direction.Valid() {
		return &ValidationError{Field: "direction", Reason: "must be inflow or outflow"}
	}
	if !d.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if d.FirstDate.IsZero() {
		return &ValidationError{Field: "first_date", Reason: "required"}
	}
	if !d.Channel.Valid() {
		return &ValidationError{Field: "channel", Reason: "unknown channel " + string(d.Channel)}
	}
	if d.Recurrence != "" && !d.Recurrence.Known() {
		return &InconsistencyError{Code: CodeUnknownRecurrence, Message: "recurrence " + string(d.Recurrence) + " has no cycle"}
	}
	if d.Count < 1 {
		return &ValidationError{Field: "count", Reason: "must be at least 1"}
	}
	return nil
}

// OccurrenceGenerator expands drafts. The ID functions default to random
// UUIDs; tests inject deterministic ones.
type OccurrenceGenerator struct {
	NewEntryID  func() EntryID
	NewSeriesID func() SeriesID
	Now         func() time.Time
}

func NewOccurrenceGenerator() *OccurrenceGenerator {
	return &OccurrenceGenerator{
		NewEntryID:  NewEntryID,
		NewSeriesID: NewSeriesID,
		Now:         time.Now,
	}
}

// Generate expands the draft into chronological occurrences.
func (g *OccurrenceGenerator) Generate(d Draft) ([]Entry, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	kind := d.Recurrence
	if kind == "" {
		kind = RecurrenceNone
	}
	now := g.Now().UTC()

	base := Entry{
		OwnerID:     d.OwnerID,
		AccountID:   d.AccountID,
		CategoryID:  d.CategoryID,
		Description: d.Description,
		Direction:   d.Direction,
		Amount:      d.Amount,
		Channel:     d.Channel,
		Recurrence:  kind,
		ExternalID:  d.ExternalID,
		CreatedAt:   now,
	}

	switch {
	case kind == RecurrenceFixed:
		e := base
		e.ID = g.NewEntryID()
		e.PostedOn = d.FirstDate
		e.Series = &Series{ID: g.NewSeriesID(), FirstEntryID: e.ID, Index: 1, Total: 0}
		e.Settle(d.FirstDate, decimal.Zero)
		return []Entry{e}, nil

	case kind == RecurrenceNone || d.Count == 1:
		e := base
		e.ID = g.NewEntryID()
		e.PostedOn = d.FirstDate
		e.Recurrence = RecurrenceNone
		e.Settle(d.FirstDate, decimal.Zero)
		return []Entry{e}, nil
	}

	seriesID := g.NewSeriesID()
	entries := make([]Entry, d.Count)
	for i := range entries {
		e := base
		e.ID = g.NewEntryID()
		e.PostedOn = AddCycles(d.FirstDate, kind, i)
		e.Series = &Series{ID: seriesID, Index: i + 1, Total: d.Count}
		if i == 0 || d.Channel == ChannelCreditCard {
			e.Settle(e.PostedOn, decimal.Zero)
		} else {
			e.State = Pending
		}
		entries[i] = e
	}
	for i := range entries {
		entries[i].Series.FirstEntryID = entries[0].ID
	}
	return entries, nil
}
