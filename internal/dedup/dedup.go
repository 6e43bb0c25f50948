// Package dedup flags imported statement rows that look like transactions
// already in the ledger.
package dedup

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"cloud.google.com/go/civil"
	"github.com/agnivade/levenshtein"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// DefaultWindowDays is how far apart two dates may be for a fuzzy match.
	DefaultWindowDays = 3
	// DefaultThreshold is the minimum store-name similarity for a fuzzy match.
	DefaultThreshold = 0.8
)

var nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeStore folds a store name for comparison: accents removed,
// lowercased, punctuation and spacing collapsed.
func NormalizeStore(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Trim(nonAlnumRe.ReplaceAllString(strings.ToLower(folded), " "), " ")
}

// Fingerprint is a stable hash of the fields that identify a transaction
// across imports.
func Fingerprint(date civil.Date, typ domain.TransactionType, amount decimal.Decimal, store string) string {
	joined := strings.Join([]string{
		date.String(),
		string(typ),
		amount.StringFixed(2),
		NormalizeStore(store),
	}, "|")
	sum := sha256.Sum256([]byte(joined))
	return fmt.Sprintf("%x", sum[:])
}

// Similarity is 1 minus the normalised levenshtein distance of two store
// names, in [0, 1].
func Similarity(a, b string) float64 {
	a, b = NormalizeStore(a), NormalizeStore(b)
	longest := max(len(a), len(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

type entry struct {
	id    string
	date  civil.Date
	typ   domain.TransactionType
	store string
}

// Detector indexes existing transactions for duplicate lookups.
type Detector struct {
	exact      map[string]string
	byAmount   map[string][]entry
	windowDays int
	threshold  float64
}

// NewDetector indexes existing with the default window and threshold.
func NewDetector(existing []domain.Transaction) *Detector {
	d := &Detector{
		exact:      make(map[string]string, len(existing)),
		byAmount:   make(map[string][]entry),
		windowDays: DefaultWindowDays,
		threshold:  DefaultThreshold,
	}
	for _, tx := range existing {
		d.exact[Fingerprint(tx.TransactionDate, tx.Type, tx.Amount, tx.Store)] = tx.ID
		k := tx.Amount.StringFixed(2)
		d.byAmount[k] = append(d.byAmount[k], entry{id: tx.ID, date: tx.TransactionDate, typ: tx.Type, store: tx.Store})
	}
	return d
}

// Match returns the id of an existing transaction that the row duplicates:
// the same fingerprint, or the same amount and direction within the date
// window with a similar store name.
func (d *Detector) Match(date civil.Date, typ domain.TransactionType, amount decimal.Decimal, store string) (string, bool) {
	if id, ok := d.exact[Fingerprint(date, typ, amount, store)]; ok {
		return id, true
	}
	for _, e := range d.byAmount[amount.StringFixed(2)] {
		if e.typ != typ {
			continue
		}
		gap := date.DaysSince(e.date)
		if gap < 0 {
			gap = -gap
		}
		if gap > d.windowDays {
			continue
		}
		if Similarity(store, e.store) >= d.threshold {
			return e.id, true
		}
	}
	return "", false
}
