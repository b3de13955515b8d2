package ledger

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/warp/cashflow-engine/engine"
)

// =============================================================================
// STATEMENT IMPORT
// =============================================================================

// ImportRequest names the statement to import and where its lines go.
type ImportRequest struct {
	OwnerID   engine.OwnerID
	AccountID engine.AccountID
	Format    string
	Channel   engine.Channel // defaults to debit
	Statement io.Reader
}

// ImportResult reports what an import wrote.
type ImportResult struct {
	Parsed   int            `json:"parsed"`
	Skipped  int            `json:"skipped"`
	Imported []engine.Entry `json:"imported"`
}

// ImportStatement turns the statement's lines into single settled entries on
// the account. Lines already imported (same external id on the account) and
// zero-amount lines are skipped. Everything else is written atomically.
func (s *Service) ImportStatement(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	candidates, err := s.importers.Parse(req.Format, req.Statement)
	if err != nil {
		if engine.IsClientError(err) {
			return nil, err
		}
		return nil, &engine.ValidationError{Field: "statement", Reason: err.Error()}
	}
	channel := req.Channel
	if channel == "" {
		channel = engine.ChannelDebit
	}

	// Suggestions read the mapping store, so they are resolved before the
	// transaction holds the ledger.
	categories := make(map[string]engine.CategoryID)
	for _, c := range candidates {
		if _, ok := categories[c.Description]; !ok {
			categories[c.Description] = s.suggest(ctx, req.OwnerID, c.Description)
		}
	}

	res := &ImportResult{Parsed: len(candidates), Imported: []engine.Entry{}}
	err = s.store.WithTx(ctx, func(tx engine.Store) error {
		acct, err := ownedAccount(ctx, tx, req.OwnerID, req.AccountID)
		if err != nil {
			return err
		}

		seen := make(map[string]bool, len(candidates))
		var batch []engine.Entry
		for _, c := range candidates {
			if c.Amount.IsZero() || seen[c.ExternalID] {
				res.Skipped++
				continue
			}
			seen[c.ExternalID] = true

			exists, err := tx.ExternalIDExists(ctx, acct.ID, c.ExternalID)
			if err != nil {
				return err
			}
			if exists {
				res.Skipped++
				continue
			}

			entries, err := s.gen.Generate(engine.Draft{
				OwnerID:     acct.OwnerID,
				AccountID:   acct.ID,
				CategoryID:  categories[c.Description],
				Description: c.Description,
				Direction:   c.Direction(),
				Amount:      c.Amount.Abs(),
				FirstDate:   c.Date,
				Channel:     channel,
				Recurrence:  engine.RecurrenceNone,
				Count:       1,
				ExternalID:  c.ExternalID,
			})
			if err != nil {
				return err
			}
			batch = append(batch, entries...)
		}

		if len(batch) == 0 {
			return nil
		}
		if err := tx.AppendEntries(ctx, batch); err != nil {
			return err
		}
		res.Imported = batch
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"owner": req.OwnerID, "account": req.AccountID, "format": req.Format,
		"parsed": res.Parsed, "imported": len(res.Imported), "skipped": res.Skipped,
	}).Info("statement imported")
	return res, nil
}
