package parsers

import (
	"bytes"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/aclindsa/ofxgo"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// looksLikeOFX checks the leading bytes for OFX v1 (SGML) or v2 (XML)
// markers.
func looksLikeOFX(content []byte) bool {
	head := content
	if len(head) > 512 {
		head = head[:512]
	}
	upper := strings.ToUpper(string(head))
	return strings.Contains(upper, "OFXHEADER") ||
		strings.Contains(upper, "<?OFX") ||
		strings.Contains(upper, "<OFX>")
}

// parseOFX reads bank and credit card statements. Investment statements are
// not supported.
func parseOFX(content []byte, log zerolog.Logger) ([]rawRow, int, error) {
	resp, err := ofxgo.ParseResponse(bytes.NewReader(content))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse OFX file (%d bytes): %w", len(content), err)
	}

	var lists []*ofxgo.TransactionList
	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok && stmt.BankTranList != nil {
			lists = append(lists, stmt.BankTranList)
		}
	}
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok && stmt.BankTranList != nil {
			lists = append(lists, stmt.BankTranList)
		}
	}
	if len(lists) == 0 {
		return nil, 0, fmt.Errorf("no bank or credit card statement found in OFX file")
	}

	var out []rawRow
	skipped := 0
	for _, list := range lists {
		for _, txn := range list.Transactions {
			r, err := ofxRow(txn)
			if err != nil {
				log.Warn().Err(err).Msg("Skipping OFX transaction")
				skipped++
				continue
			}
			out = append(out, r)
		}
	}
	return out, skipped, nil
}

func ofxRow(txn ofxgo.Transaction) (rawRow, error) {
	id := txn.FiTID.String()

	// Posted date, falling back to the user date.
	date := txn.DtPosted.Time
	if date.IsZero() {
		date = txn.DtUser.Time
	}
	if date.IsZero() {
		return rawRow{}, fmt.Errorf("transaction %s missing both posted date and user date", id)
	}

	desc := strings.TrimSpace(txn.Name.String())
	if desc == "" {
		desc = strings.TrimSpace(txn.Memo.String())
	}
	if desc == "" {
		return rawRow{}, fmt.Errorf("transaction %s missing both name and memo fields", id)
	}

	return rawRow{
		date:         civil.DateOf(date),
		description:  desc,
		originalType: txn.TrnType.String(),
		amount:       decimal.NewFromBigRat(&txn.TrnAmt.Rat, 2),
		externalID:   id,
		bank:         BankOFX,
	}, nil
}
