package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/filter"
	"github.com/dvloznov/finance-ledger/internal/ledger"
	"github.com/shopspring/decimal"
)

func runAccounts(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("accounts", flag.ContinueOnError)
	asOf := fs.String("as-of", "", "balances as of YYYY-MM-DD (default today)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	date, err := dateOrToday(*asOf)
	if err != nil {
		return err
	}

	defs, recs, err := loadAccounts(ctx, e)
	if err != nil {
		return err
	}
	if len(defs) == 0 {
		e.out.Info("No accounts yet. Add one with 'cli add-account'.")
		return nil
	}

	rows := make([][]string, 0, len(defs))
	for _, b := range ledger.LatestBalances(defs, recs, date) {
		recorded := "never"
		if b.Record != nil {
			recorded = b.Record.RecordDate.String()
		}
		rows = append(rows, []string{b.Account.Name, string(b.Account.Category), e.out.Money(b.Balance), recorded, b.Account.ID})
	}
	e.out.Header("Accounts as of " + date.String())
	e.out.Table([]string{"NAME", "CATEGORY", "BALANCE", "RECORDED", "ID"}, rows)
	return nil
}

func runAddAccount(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("add-account", flag.ContinueOnError)
	name := fs.String("name", "", "account name")
	category := fs.String("category", "", "liquid, investment or debt")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cat, err := domain.ParseAccountCategory(*category)
	if err != nil {
		return err
	}

	def := &domain.AccountDefinition{UserID: e.userID, Name: *name, Category: cat}
	if err := e.app.Store.CreateAccountDefinition(ctx, def); err != nil {
		return err
	}
	e.out.Success("Added %s account %q (%s)", cat, def.Name, def.ID)
	return nil
}

func runRecord(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("record", flag.ContinueOnError)
	date := fs.String("date", "", "record date YYYY-MM-DD (default today)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	d, err := dateOrToday(*date)
	if err != nil {
		return err
	}

	defs, err := e.app.Store.ListAccountDefinitions(ctx, e.userID)
	if err != nil {
		return err
	}
	entries, err := parseBalanceArgs(fs.Args(), defs)
	if err != nil {
		return err
	}

	recs, err := e.app.Store.BulkCreateAccountRecords(ctx, e.userID, d, entries)
	if err != nil {
		return err
	}
	e.out.Success("Recorded %d balance(s) for %s", len(recs), d)
	return nil
}

// parseBalanceArgs turns NAME=BALANCE arguments into entries. NAME may be
// an account name (case-insensitive) or id.
func parseBalanceArgs(args []string, defs []domain.AccountDefinition) ([]domain.BalanceEntry, error) {
	if len(args) == 0 {
		return nil, domain.NewValidationError("give at least one NAME=BALANCE")
	}
	entries := make([]domain.BalanceEntry, 0, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, domain.NewValidationError(fmt.Sprintf("%q is not NAME=BALANCE", arg))
		}
		balance, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, domain.NewValidationError(fmt.Sprintf("invalid balance %q for %s", value, key))
		}

		id := ""
		for _, d := range defs {
			if d.ID == key || strings.EqualFold(d.Name, strings.TrimSpace(key)) {
				id = d.ID
				break
			}
		}
		if id == "" {
			return nil, domain.NewNotFoundError("account", key)
		}
		entries = append(entries, domain.BalanceEntry{AccountID: id, Balance: balance})
	}
	return entries, nil
}

func runAnalytics(ctx context.Context, e *env, args []string) error {
	defs, recs, err := loadAccounts(ctx, e)
	if err != nil {
		return err
	}
	a := ledger.BuildAnalytics(defs, recs)
	if len(a.NetWorthHistory) == 0 {
		e.out.Info("No balances recorded yet.")
		return nil
	}

	e.out.Header("Net worth")
	e.out.Table([]string{"", "VALUE", "PERCENT"}, [][]string{
		{"Current", e.out.Money(a.CurrentNetWorth), ""},
		{"Month over month", e.out.Delta(a.MonthOverMonthChange), a.MonthOverMonthPercent.String() + "%"},
		{"Year over year", e.out.Delta(a.YearOverYearChange), a.YearOverYearPercent.String() + "%"},
		{"All time", e.out.Delta(a.AllTimeChange), ""},
	})

	snaps := ledger.Snapshots(defs, recs)
	changes := ledger.AdjacentChanges(snaps)
	rows := make([][]string, len(snaps))
	for i, s := range snaps {
		rows[i] = []string{
			s.Date.String(),
			e.out.Money(s.Liquid),
			e.out.Money(s.Investment),
			e.out.Money(s.Debt),
			e.out.Money(s.NetWorth),
			e.out.Delta(changes[i].Absolute),
		}
	}
	e.out.Header("History")
	e.out.Table([]string{"DATE", "LIQUID", "INVESTMENT", "DEBT", "NET WORTH", "CHANGE"}, rows)
	return nil
}

func runTransactions(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("transactions", flag.ContinueOnError)
	q := url.Values{}
	for _, key := range []string{"type", "category", "store", "tag", "q", "from", "to", "min_amount", "max_amount"} {
		key := key
		fs.Func(key, "filter by "+key, func(v string) error {
			q.Set(key, v)
			return nil
		})
	}
	limit := fs.Int("limit", 50, "maximum rows to print (0 for all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	criteria, err := filter.ParseCriteria(q)
	if err != nil {
		return err
	}

	all, err := e.app.Store.ListTransactions(ctx, e.userID)
	if err != nil {
		return err
	}
	txs := filter.Apply(all, criteria)

	shown := txs
	if *limit > 0 && len(shown) > *limit {
		shown = shown[:*limit]
	}
	rows := make([][]string, len(shown))
	for i, t := range shown {
		amount := e.out.Money(t.Amount)
		if t.Type == domain.Expense {
			amount = "-" + amount
		}
		rows[i] = []string{t.TransactionDate.String(), string(t.Type), t.Category, t.Store, amount, t.Tag}
	}
	e.out.Table([]string{"DATE", "TYPE", "CATEGORY", "STORE", "AMOUNT", "TAG"}, rows)

	s := filter.Summarize(txs)
	e.out.Info("%d transaction(s), income %s, expense %s, net %s",
		s.Count, e.out.Money(s.TotalIncome), e.out.Money(s.TotalExpense), e.out.Delta(s.Net))
	if len(shown) < len(txs) {
		e.out.Info("Showing %d of %d; use -limit 0 for all.", len(shown), len(txs))
	}
	return nil
}

func runAddTransaction(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("add-transaction", flag.ContinueOnError)
	typ := fs.String("type", "expense", "income or expense")
	category := fs.String("category", "", "category")
	store := fs.String("store", "", "store or payer")
	amount := fs.String("amount", "", "amount, positive")
	date := fs.String("date", "", "transaction date YYYY-MM-DD (default today)")
	description := fs.String("description", "", "description")
	tag := fs.String("tag", "", "tag")
	session := fs.String("session", "", "manual session to add to (default a new one)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	t, err := domain.ParseTransactionType(*typ)
	if err != nil {
		return err
	}
	amt, err := decimal.NewFromString(*amount)
	if err != nil {
		return domain.NewValidationError(fmt.Sprintf("invalid amount %q", *amount))
	}
	d, err := dateOrToday(*date)
	if err != nil {
		return err
	}

	tx := &domain.Transaction{
		Type:            t,
		Category:        e.app.Rules.NormalizeCategory(*category),
		Store:           *store,
		Amount:          amt,
		Description:     *description,
		Tag:             *tag,
		TransactionDate: d,
	}
	if tx.Tag == "" {
		if tags := e.app.Rules.SuggestTags(tx.Category, tx.Store); len(tags) > 0 {
			e.out.Info("Suggested tags: %s", strings.Join(tags, ", "))
		}
	}
	created, sess, err := e.app.Ledger.AddManual(ctx, e.userID, *session, tx)
	if err != nil {
		return err
	}
	e.out.Success("Added %s %s at %s on %s (session %s, %d transaction(s))",
		created.Type, e.out.Money(created.Amount), created.Store, created.TransactionDate, sess.ID, sess.TransactionCount)
	return nil
}

func runSessions(ctx context.Context, e *env, args []string) error {
	list, err := e.app.Ledger.List(ctx, e.userID)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		e.out.Info("No upload sessions.")
		return nil
	}
	rows := make([][]string, len(list))
	for i, s := range list {
		rows[i] = []string{
			s.UploadDate.Local().Format(time.DateTime),
			string(s.UploadType),
			strconv.Itoa(s.TransactionCount),
			dateRange(s),
			s.ID,
		}
	}
	e.out.Table([]string{"UPLOADED", "TYPE", "COUNT", "RANGE", "ID"}, rows)
	return nil
}

func dateRange(s domain.UploadSession) string {
	if s.MinTransactionDate == nil || s.MaxTransactionDate == nil {
		return "-"
	}
	if *s.MinTransactionDate == *s.MaxTransactionDate {
		return s.MinTransactionDate.String()
	}
	return s.MinTransactionDate.String() + " .. " + s.MaxTransactionDate.String()
}

func runDeleteSession(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("delete-session", flag.ContinueOnError)
	id := fs.String("id", "", "session id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return domain.NewValidationError("-id is required")
	}
	sess, err := e.app.Store.GetUploadSession(ctx, *id)
	if err == nil && sess.UserID != e.userID {
		err = domain.NewNotFoundError("upload session", *id)
	}
	if err != nil {
		return err
	}
	if err := e.app.Ledger.Delete(ctx, *id); err != nil {
		if domain.IsKind(err, domain.KindCascade) {
			e.out.Warning("Delete did not finish; run 'cli sessions' to see what is left.")
		}
		return err
	}
	e.out.Success("Deleted session %s and its %d transaction(s)", *id, sess.TransactionCount)
	return nil
}

func runRepairSessions(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("repair-sessions", flag.ContinueOnError)
	id := fs.String("id", "", "repair only this session")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *id != "" {
		res, err := e.app.Ledger.Repair(ctx, *id)
		if err != nil {
			return err
		}
		e.out.Success("Session %s: %s", res.SessionID, res.Action)
		return nil
	}

	results, err := e.app.Ledger.RepairAll(ctx, e.userID)
	for _, r := range results {
		e.out.Info("Session %s: %s", r.SessionID, r.Action)
	}
	if err != nil {
		return err
	}
	e.out.Success("Checked %d session(s)", len(results))
	return nil
}

func loadAccounts(ctx context.Context, e *env) ([]domain.AccountDefinition, []domain.AccountRecord, error) {
	defs, err := e.app.Store.ListAccountDefinitions(ctx, e.userID)
	if err != nil {
		return nil, nil, err
	}
	recs, err := e.app.Store.ListAccountRecords(ctx, e.userID)
	if err != nil {
		return nil, nil, err
	}
	return defs, recs, nil
}

func dateOrToday(s string) (civil.Date, error) {
	if s == "" {
		return civil.DateOf(time.Now()), nil
	}
	d, err := civil.ParseDate(s)
	if err != nil {
		return civil.Date{}, domain.NewValidationError(fmt.Sprintf("invalid date %q, want YYYY-MM-DD", s))
	}
	return d, nil
}

var errAborted = errors.New("aborted")
