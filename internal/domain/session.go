package domain

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// UploadType records how the transactions of a session were entered.
type UploadType string

const (
	UploadManual UploadType = "manual"
	UploadBulk   UploadType = "bulk"
)

// ParseUploadType validates an upload type string.
func ParseUploadType(s string) (UploadType, error) {
	switch UploadType(s) {
	case UploadManual, UploadBulk:
		return UploadType(s), nil
	}
	return "", NewValidationError(fmt.Sprintf("invalid upload type %q (must be manual or bulk)", s))
}

// UploadSession is the provenance record for a group of committed
// transactions. TransactionCount equals the number of transactions that
// reference the session.
type UploadSession struct {
	ID                 string      `json:"id"`
	UserID             string      `json:"user_id"`
	UploadType         UploadType  `json:"upload_type"`
	TransactionCount   int         `json:"transaction_count"`
	MinTransactionDate *civil.Date `json:"min_transaction_date,omitempty"`
	MaxTransactionDate *civil.Date `json:"max_transaction_date,omitempty"`
	UploadDate         time.Time   `json:"upload_date"`
}

// SessionPatch carries a partial update. Nil fields are left unchanged.
type SessionPatch struct {
	TransactionCount   *int        `json:"transaction_count,omitempty"`
	MinTransactionDate *civil.Date `json:"min_transaction_date,omitempty"`
	MaxTransactionDate *civil.Date `json:"max_transaction_date,omitempty"`
	// ClearRange unsets both dates; used when a recomputation finds no rows.
	ClearRange bool `json:"clear_range,omitempty"`
}

// Apply returns a copy of s with the patch applied.
func (p SessionPatch) Apply(s UploadSession) (UploadSession, error) {
	if p.TransactionCount != nil {
		if *p.TransactionCount < 0 {
			return UploadSession{}, NewValidationError("transaction count must not be negative")
		}
		s.TransactionCount = *p.TransactionCount
	}
	if p.ClearRange {
		s.MinTransactionDate = nil
		s.MaxTransactionDate = nil
	}
	if p.MinTransactionDate != nil {
		d := *p.MinTransactionDate
		s.MinTransactionDate = &d
	}
	if p.MaxTransactionDate != nil {
		d := *p.MaxTransactionDate
		s.MaxTransactionDate = &d
	}
	return s, nil
}

// Widen extends the session range to include [lo, hi] and adds n to the
// count. It never shrinks the range.
func (s UploadSession) Widen(n int, lo, hi civil.Date) UploadSession {
	s.TransactionCount += n
	if s.MinTransactionDate == nil || lo.Before(*s.MinTransactionDate) {
		s.MinTransactionDate = &lo
	}
	if s.MaxTransactionDate == nil || hi.After(*s.MaxTransactionDate) {
		s.MaxTransactionDate = &hi
	}
	return s
}

// Matches reports whether the stored count and range agree with the given
// recomputed values.
func (s UploadSession) Matches(count int, lo, hi *civil.Date) bool {
	return s.TransactionCount == count && sameDate(s.MinTransactionDate, lo) && sameDate(s.MaxTransactionDate, hi)
}

func sameDate(a, b *civil.Date) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
