package bigquery

import (
	"math/big"
	"strconv"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/shopspring/decimal"
)

// numericScale is the fractional precision of a BigQuery NUMERIC.
const numericScale = 9

type AccountDefinitionRow struct {
	AccountID string    `bigquery:"account_id"` // REQUIRED
	UserID    string    `bigquery:"user_id"`    // REQUIRED
	Name      string    `bigquery:"name"`       // REQUIRED
	Category  string    `bigquery:"category"`   // REQUIRED
	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}

type AccountRecordRow struct {
	RecordID   string     `bigquery:"record_id"`   // REQUIRED
	AccountID  string     `bigquery:"account_id"`  // REQUIRED
	UserID     string     `bigquery:"user_id"`     // REQUIRED
	Balance    *big.Rat   `bigquery:"balance"`     // REQUIRED NUMERIC
	RecordDate civil.Date `bigquery:"record_date"` // REQUIRED
	CreatedTS  time.Time  `bigquery:"created_ts"`  // REQUIRED
}

type UploadSessionRow struct {
	SessionID          string            `bigquery:"session_id"`           // REQUIRED
	UserID             string            `bigquery:"user_id"`              // REQUIRED
	UploadType         string            `bigquery:"upload_type"`          // REQUIRED
	TransactionCount   int64             `bigquery:"transaction_count"`    // REQUIRED
	MinTransactionDate bigquery.NullDate `bigquery:"min_transaction_date"` // NULLABLE
	MaxTransactionDate bigquery.NullDate `bigquery:"max_transaction_date"` // NULLABLE
	UploadTS           time.Time         `bigquery:"upload_ts"`            // REQUIRED
}

type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED
	UserID        string `bigquery:"user_id"`        // REQUIRED

	Type     string   `bigquery:"type"`     // REQUIRED
	Category string   `bigquery:"category"` // REQUIRED
	Store    string   `bigquery:"store"`    // REQUIRED
	Amount   *big.Rat `bigquery:"amount"`   // REQUIRED NUMERIC

	Description bigquery.NullString `bigquery:"description"` // NULLABLE
	Tag         bigquery.NullString `bigquery:"tag"`         // NULLABLE

	TransactionDate civil.Date          `bigquery:"transaction_date"`  // REQUIRED
	IsBulkUpload    bool                `bigquery:"is_bulk_upload"`    // REQUIRED
	UploadSessionID bigquery.NullString `bigquery:"upload_session_id"` // NULLABLE

	CreatedTS time.Time              `bigquery:"created_ts"` // REQUIRED
	UpdatedTS bigquery.NullTimestamp `bigquery:"updated_ts"` // NULLABLE
}

func fromRat(r *big.Rat) decimal.Decimal {
	if r == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigRat(r, numericScale)
}

func nullDatePtr(d bigquery.NullDate) *civil.Date {
	if !d.Valid {
		return nil
	}
	v := d.Date
	return &v
}

// dateParam renders an optional date as a string parameter; the queries
// cast it back with SAFE_CAST(NULLIF(@p, '') AS DATE).
func dateParam(d *civil.Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func (r AccountDefinitionRow) toDomain() domain.AccountDefinition {
	return domain.AccountDefinition{
		ID:        r.AccountID,
		UserID:    r.UserID,
		Name:      r.Name,
		Category:  domain.AccountCategory(r.Category),
		CreatedAt: r.CreatedTS,
	}
}

func (r AccountRecordRow) toDomain() domain.AccountRecord {
	return domain.AccountRecord{
		ID:         r.RecordID,
		AccountID:  r.AccountID,
		UserID:     r.UserID,
		Balance:    fromRat(r.Balance),
		RecordDate: r.RecordDate,
		CreatedAt:  r.CreatedTS,
	}
}

func (r UploadSessionRow) toDomain() domain.UploadSession {
	return domain.UploadSession{
		ID:                 r.SessionID,
		UserID:             r.UserID,
		UploadType:         domain.UploadType(r.UploadType),
		TransactionCount:   int(r.TransactionCount),
		MinTransactionDate: nullDatePtr(r.MinTransactionDate),
		MaxTransactionDate: nullDatePtr(r.MaxTransactionDate),
		UploadDate:         r.UploadTS,
	}
}

func (r TransactionRow) toDomain() domain.Transaction {
	t := domain.Transaction{
		ID:              r.TransactionID,
		UserID:          r.UserID,
		Type:            domain.TransactionType(r.Type),
		Category:        r.Category,
		Store:           r.Store,
		Amount:          fromRat(r.Amount),
		Description:     r.Description.StringVal,
		Tag:             r.Tag.StringVal,
		TransactionDate: r.TransactionDate,
		IsBulkUpload:    r.IsBulkUpload,
		UploadSessionID: r.UploadSessionID.StringVal,
		CreatedAt:       r.CreatedTS,
		UpdatedAt:       r.CreatedTS,
	}
	if r.UpdatedTS.Valid {
		t.UpdatedAt = r.UpdatedTS.Timestamp
	}
	return t
}

// transactionParams returns the named parameters for row i of an insert
// script. Names are suffixed with i so one script can carry many rows.
func transactionParams(i int, t *domain.Transaction, created time.Time) []bigquery.QueryParameter {
	p := func(name string) string { return name + "_" + strconv.Itoa(i) }
	return []bigquery.QueryParameter{
		{Name: p("transaction_id"), Value: t.ID},
		{Name: p("user_id"), Value: t.UserID},
		{Name: p("type"), Value: string(t.Type)},
		{Name: p("category"), Value: t.Category},
		{Name: p("store"), Value: t.Store},
		{Name: p("amount"), Value: t.Amount.Rat()},
		{Name: p("description"), Value: t.Description},
		{Name: p("tag"), Value: t.Tag},
		{Name: p("transaction_date"), Value: t.TransactionDate},
		{Name: p("is_bulk_upload"), Value: t.IsBulkUpload},
		{Name: p("upload_session_id"), Value: t.UploadSessionID},
		{Name: p("created_ts"), Value: created},
	}
}
