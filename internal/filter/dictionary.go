package filter

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// TermStore persists dictionary terms. AddTerm must be idempotent.
type TermStore interface {
	AddTerm(ctx context.Context, term string) error
	ListTerms(ctx context.Context) ([]string, error)
}

// DefaultTerms seeds every dictionary at startup.
var DefaultTerms = []string{
	"lồn", "buồi", "cặc", "địt", "đụ", "đéo", "đĩ", "dcm", "đmm", "clgt",
	"fuck", "shit", "bitch", "cunt", "asshole", "motherfucker",
}

// Normalize canonicalizes a term for lookup: trimmed, NFC composed and case folded.
func Normalize(term string) string {
	term = strings.TrimSpace(term)
	if term == "" {
		return ""
	}
	return cases.Fold().String(norm.NFC.String(term))
}

// Tokens splits text on whitespace and normalizes each token, dropping
// punctuation that wraps it.
func Tokens(text string) []string {
	fields := strings.Fields(text)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		if t := Normalize(f); t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// NormalizeTerm canonicalizes a dictionary entry. Phrases become their
// tokens joined by single spaces so they can be matched against Tokens.
func NormalizeTerm(term string) string {
	return strings.Join(Tokens(term), " ")
}

// Dictionary is the shared set of disallowed terms. It only grows: terms are
// added by operators and by the classification stage, never removed.
type Dictionary struct {
	mu       sync.RWMutex
	terms    map[string]struct{}
	maxWords int       // longest phrase, in tokens
	store    TermStore // optional
}

// NewDictionary builds a dictionary from seed terms plus everything already
// persisted in store. store may be nil for an in-memory dictionary.
func NewDictionary(ctx context.Context, store TermStore, seed ...string) (*Dictionary, error) {
	d := &Dictionary{
		terms: make(map[string]struct{}, len(seed)),
		store: store,
	}
	for _, term := range seed {
		if t := NormalizeTerm(term); t != "" {
			d.insert(t)
		}
	}
	if err := d.Reload(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// Reload merges terms persisted by this or another process. Existing terms
// are kept.
func (d *Dictionary) Reload(ctx context.Context) error {
	if d.store == nil {
		return nil
	}
	stored, err := d.store.ListTerms(ctx)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, term := range stored {
		if t := NormalizeTerm(term); t != "" {
			d.insert(t)
		}
	}
	return nil
}

// insert adds a normalized term. The caller holds the write lock.
func (d *Dictionary) insert(t string) {
	d.terms[t] = struct{}{}
	if n := strings.Count(t, " ") + 1; n > d.maxWords {
		d.maxWords = n
	}
}

// Contains reports whether term is in the dictionary.
func (d *Dictionary) Contains(term string) bool {
	t := NormalizeTerm(term)
	if t == "" {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.terms[t]
	return ok
}

// Match returns the first dictionary term found in text. Single words match
// a token; phrases match a run of consecutive tokens.
func (d *Dictionary) Match(text string) (string, bool) {
	tokens := Tokens(text)

	d.mu.RLock()
	defer d.mu.RUnlock()
	for n := 1; n <= d.maxWords && n <= len(tokens); n++ {
		for i := 0; i+n <= len(tokens); i++ {
			candidate := strings.Join(tokens[i:i+n], " ")
			if _, ok := d.terms[candidate]; ok {
				return candidate, true
			}
		}
	}
	return "", false
}

// Add inserts term and persists it. added is false when the term was already
// present or blank. A persistence failure is returned but the term stays in
// memory for the life of the process.
func (d *Dictionary) Add(ctx context.Context, term string) (added bool, err error) {
	t := NormalizeTerm(term)
	if t == "" {
		return false, nil
	}

	d.mu.Lock()
	if _, ok := d.terms[t]; ok {
		d.mu.Unlock()
		return false, nil
	}
	d.insert(t)
	d.mu.Unlock()

	if d.store != nil {
		if err := d.store.AddTerm(ctx, t); err != nil {
			log.Warn().Err(err).Str("term", t).Msg("failed to persist dictionary term")
			return true, err
		}
	}
	return true, nil
}

// Terms returns the terms in sorted order.
func (d *Dictionary) Terms() []string {
	d.mu.RLock()
	terms := make([]string, 0, len(d.terms))
	for t := range d.terms {
		terms = append(terms, t)
	}
	d.mu.RUnlock()

	sort.Strings(terms)
	return terms
}

// Count returns the number of terms.
func (d *Dictionary) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.terms)
}
