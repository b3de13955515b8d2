// Package importer turns bank statement files into candidate entries.
package importer

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/cashflow-engine/engine"
)

// Candidate is one statement line. Amount is sign-encoded: negative for
// money leaving the account.
type Candidate struct {
	Date        engine.Date     `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	ExternalID  string          `json:"external_id"`
}

// Direction derives the entry direction from the amount's sign.
func (c Candidate) Direction() engine.Direction {
	if c.Amount.IsNegative() {
		return engine.Outflow
	}
	return engine.Inflow
}

// Parser converts a statement file into candidates.
type Parser interface {
	Parse(r io.Reader) ([]Candidate, error)
	Format() string
}

// Registry holds named parsers.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry creates an empty parser registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser)}
}

// Register adds a parser. Panics on duplicate format.
func (r *Registry) Register(p Parser) {
	key := strings.ToLower(p.Format())
	if _, ok := r.parsers[key]; ok {
		panic("duplicate parser format: " + key)
	}
	r.parsers[key] = p
}

// Get returns the parser for format, or nil.
func (r *Registry) Get(format string) Parser {
	return r.parsers[strings.ToLower(format)]
}

// Formats lists the registered formats.
func (r *Registry) Formats() []string {
	out := make([]string, 0, len(r.parsers))
	for k := range r.parsers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Parse looks up format and runs its parser.
func (r *Registry) Parse(format string, rd io.Reader) ([]Candidate, error) {
	p := r.Get(format)
	if p == nil {
		return nil, &engine.ValidationError{Field: "format", Reason: fmt.Sprintf("unsupported statement format %q", format)}
	}
	return p.Parse(rd)
}

// DefaultRegistry returns a registry with all built-in parsers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&OFXParser{})
	r.Register(&CSVParser{})
	return r
}

// parseAmount accepts both "1234.56" and "1234,56".
func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	return decimal.NewFromString(s)
}

// makeRef builds a stable external id for lines the bank did not number,
// like csv_20240105_SUPERMARKE_-45.90.
func makeRef(prefix string, date time.Time, desc string, amount decimal.Decimal) string {
	compact := strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, strings.ToUpper(desc))
	if len(compact) > 10 {
		compact = compact[:10]
	}
	return fmt.Sprintf("%s_%s_%s_%s", prefix, date.Format("20060102"), compact, amount.StringFixed(2))
}

// refCounter numbers repeated generated refs within one statement, so two
// identical lines stay distinct and re-importing the file yields the same
// ids: ref, ref_2, ref_3...
type refCounter map[string]int

func (rc refCounter) next(ref string) string {
	rc[ref]++
	if n := rc[ref]; n > 1 {
		return fmt.Sprintf("%s_%d", ref, n)
	}
	return ref
}
