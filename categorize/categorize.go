/*
Package categorize suggests a category for a free-text entry description.

PURPOSE:
  When the user confirms a category for an entry, the description's keywords
  are remembered. A later description sharing keywords gets that category
  proposed. Suggestions are advisory: nothing in the engine requires one.

MATCHING:
  - Descriptions are lowercased and split on anything that is not a letter
    or digit. Tokens shorter than 3 runes, pure numbers and stopwords are
    dropped.
  - Each keyword maps to at most one category per owner; learning it again
    replaces the mapping.
  - Suggest picks the category with the most keyword hits. Ties go to the
    category learned most recently.

SEE ALSO:
  - engine/store.go: MappingStore
*/
package categorize

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/warp/cashflow-engine/engine"
)

// Suggester learns and proposes categories for an owner.
type Suggester struct {
	store engine.MappingStore
	now   func() time.Time
}

func New(store engine.MappingStore) *Suggester {
	return &Suggester{store: store, now: time.Now}
}

// WithClock replaces the clock used to stamp learned mappings.
func (s *Suggester) WithClock(now func() time.Time) *Suggester {
	s.now = now
	return s
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "from": true, "with": true,
	"pagamento": true, "compra": true, "para": true, "com": true,
	"payment": true, "purchase": true, "card": true,
}

// Keywords extracts the matching keywords of a description, in order of
// first appearance.
func Keywords(description string) []string {
	fields := strings.FieldsFunc(strings.ToLower(description), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		if len([]rune(f)) < 3 || stopwords[f] || isNumber(f) || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

func isNumber(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// Learn associates every keyword of description with category.
func (s *Suggester) Learn(ctx context.Context, owner engine.OwnerID, description string, category engine.CategoryID) error {
	if category == "" {
		return &engine.ValidationError{Field: "category_id", Reason: "required"}
	}
	keywords := Keywords(description)
	if len(keywords) == 0 {
		return &engine.ValidationError{Field: "description", Reason: "has no usable keywords"}
	}

	now := s.now().UTC()
	mappings := make([]engine.KeywordMapping, len(keywords))
	for i, kw := range keywords {
		mappings[i] = engine.KeywordMapping{OwnerID: owner, Keyword: kw, CategoryID: category, LearnedAt: now}
	}
	return s.store.SaveMappings(ctx, mappings)
}

// Suggest returns the best category for description, if any keyword is known.
func (s *Suggester) Suggest(ctx context.Context, owner engine.OwnerID, description string) (engine.CategoryID, bool, error) {
	keywords := Keywords(description)
	if len(keywords) == 0 {
		return "", false, nil
	}
	mappings, err := s.store.Mappings(ctx, owner, keywords)
	if err != nil {
		return "", false, err
	}

	type score struct {
		hits   int
		latest time.Time
	}
	scores := make(map[engine.CategoryID]*score)
	for _, m := range mappings {
		sc, ok := scores[m.CategoryID]
		if !ok {
			sc = &score{}
			scores[m.CategoryID] = sc
		}
		sc.hits++
		if m.LearnedAt.After(sc.latest) {
			sc.latest = m.LearnedAt
		}
	}

	var best engine.CategoryID
	var bestScore *score
	for id, sc := range scores {
		switch {
		case bestScore == nil,
			sc.hits > bestScore.hits,
			sc.hits == bestScore.hits && sc.latest.After(bestScore.latest),
			sc.hits == bestScore.hits && sc.latest.Equal(bestScore.latest) && id < best:
			best, bestScore = id, sc
		}
	}
	return best, bestScore != nil, nil
}
