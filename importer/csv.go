package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/warp/cashflow-engine/engine"
)

// CSVParser parses generic CSV exports with a header row naming at least
// the date, description and amount columns. An optional id column supplies
// the bank's own line identifier.
type CSVParser struct{}

var csvDateLayouts = []string{"2006-01-02", "02/01/2006", "2006/01/02"}

var csvHeaderAliases = map[string]string{
	"date":        "date",
	"data":        "date",
	"posted":      "date",
	"description": "description",
	"descricao":   "description",
	"memo":        "description",
	"amount":      "amount",
	"valor":       "amount",
	"value":       "amount",
	"id":          "id",
	"fitid":       "id",
	"reference":   "id",
}

// Format returns the parser name.
func (p *CSVParser) Format() string { return "csv" }

// Parse reads the CSV and returns candidates.
func (p *CSVParser) Parse(r io.Reader) ([]Candidate, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV: %w", err)
	}
	if len(records) <= 1 {
		return nil, nil
	}

	cols := make(map[string]int)
	for i, h := range records[0] {
		if name, ok := csvHeaderAliases[strings.ToLower(strings.TrimSpace(h))]; ok {
			cols[name] = i
		}
	}
	for _, required := range []string{"date", "description", "amount"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("reading CSV: missing %s column", required)
		}
	}

	var out []Candidate
	refs := make(refCounter)
	for i, rec := range records[1:] {
		c, err := parseCSVRow(rec, cols, refs)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func parseCSVRow(rec []string, cols map[string]int, refs refCounter) (Candidate, error) {
	raw := strings.TrimSpace(rec[cols["date"]])
	var t time.Time
	var err error
	for _, layout := range csvDateLayouts {
		if t, err = time.Parse(layout, raw); err == nil {
			break
		}
	}
	if err != nil {
		return Candidate{}, fmt.Errorf("parsing date %q: %w", raw, err)
	}

	amount, err := parseAmount(rec[cols["amount"]])
	if err != nil {
		return Candidate{}, fmt.Errorf("parsing amount %q: %w", rec[cols["amount"]], err)
	}

	desc := strings.TrimSpace(rec[cols["description"]])
	var id string
	if i, ok := cols["id"]; ok {
		id = strings.TrimSpace(rec[i])
	}
	if id == "" {
		id = refs.next(makeRef("csv", t, desc, amount))
	}

	return Candidate{
		Date:        engine.DateOf(t),
		Amount:      amount,
		Description: desc,
		ExternalID:  id,
	}, nil
}
