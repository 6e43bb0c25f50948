package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/gcsuploader"
	"github.com/dvloznov/finance-ledger/internal/reconcile"
	"github.com/dvloznov/finance-ledger/internal/ui"
)

func runImport(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	source := fs.String("file", "", "statement path or gs://bucket/object URI")
	bank := fs.String("bank", "auto", "auto, sofi, capital_one or ofx")
	interactive := fs.Bool("interactive", false, "review rows one by one before committing")
	yes := fs.Bool("yes", false, "commit without asking")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *source == "" && fs.NArg() > 0 {
		*source = fs.Arg(0)
	}
	if *source == "" {
		return domain.NewValidationError("-file is required")
	}

	filename, content, err := readStatement(ctx, e, *source)
	if err != nil {
		return err
	}

	wf := e.app.Imports.Start(e.userID)
	defer func() { _ = e.app.Imports.Discard(e.userID, wf.ID()) }()

	if _, err := wf.Upload(ctx, filename, content, *bank); err != nil {
		return err
	}
	v := wf.View()
	e.out.Header(fmt.Sprintf("%s (%s)", v.Filename, v.BankType))
	printCandidates(e.out, v)
	if v.Skipped > 0 {
		e.out.Warning("%d row(s) could not be read and were skipped", v.Skipped)
	}

	in := bufio.NewScanner(e.in)
	if *interactive {
		if err := reviewOneByOne(wf, in, e.out); err != nil {
			return err
		}
		v = wf.View()
	}

	if !*yes {
		e.out.Prompt(fmt.Sprintf("Commit %d of %d transaction(s)? [y/N] ", v.SelectedCount, len(v.Candidates)))
		if !in.Scan() || !strings.EqualFold(strings.TrimSpace(in.Text()), "y") {
			e.out.Info("Nothing committed.")
			return nil
		}
	}

	done, err := wf.Commit(ctx)
	if err != nil {
		var derr *domain.Error
		if errors.As(err, &derr) && derr.Kind == domain.KindPartialCommit {
			e.out.Warning("Session %s was left incomplete; run 'cli repair-sessions -id %s'", derr.SessionID, derr.SessionID)
		}
		return err
	}
	e.out.Success("Committed %d transaction(s) in session %s", done.Committed, done.SessionID)
	if done.FailedSessionID != "" {
		e.out.Warning("Session %s totals are out of date; a repair is queued, or run 'cli repair-sessions -id %s'", done.FailedSessionID, done.FailedSessionID)
	}
	return nil
}

// readStatement loads a statement from disk or from Cloud Storage.
func readStatement(ctx context.Context, e *env, source string) (string, []byte, error) {
	if strings.HasPrefix(source, "gs://") {
		content, err := e.app.Storage.FetchFromGCS(ctx, source)
		if err != nil {
			return "", nil, err
		}
		return gcsuploader.ExtractFilenameFromGCSURI(source), content, nil
	}
	content, err := os.ReadFile(source)
	if err != nil {
		return "", nil, fmt.Errorf("reading %s: %w", source, err)
	}
	return filepath.Base(source), content, nil
}

func printCandidates(out *ui.Printer, v reconcile.View) {
	rows := make([][]string, len(v.Candidates))
	for i, c := range v.Candidates {
		mark := " "
		if c.Selected {
			mark = "x"
		}
		note := c.Tag
		if c.DuplicateOf != "" {
			note = "possible duplicate"
		}
		rows[i] = []string{
			fmt.Sprintf("[%s] %d", mark, i+1),
			c.Date.String(),
			string(c.Type),
			c.Category,
			c.Store,
			out.Money(c.Amount),
			note,
		}
	}
	out.Table([]string{"#", "DATE", "TYPE", "CATEGORY", "STORE", "AMOUNT", "NOTE"}, rows)
}

// reviewOneByOne walks the candidates in upload order reading one command
// per line until every row is decided or the user goes back to the list.
func reviewOneByOne(wf *reconcile.Workflow, in *bufio.Scanner, out *ui.Printer) error {
	if _, err := wf.StartOneByOne(); err != nil {
		return err
	}
	total := len(wf.View().Candidates)

	for wf.State() == reconcile.StateOneByOne {
		c, err := wf.Current()
		if err != nil {
			return err
		}
		v := wf.View()
		out.Info("(%d/%d) %s  %s  %s  %s  %s", v.CurrentIndex+1, total, c.Date, c.Store, out.Money(c.Amount), c.Category, c.Tag)
		if c.DuplicateOf != "" {
			out.Warning("Looks like transaction %s already in the ledger", c.DuplicateOf)
		}
		out.Prompt("[s]ave  s[k]ip  [c]ategory  [t]ag  [b]ack  [q]uit: ")
		if !in.Scan() {
			return errAborted
		}

		switch strings.ToLower(strings.TrimSpace(in.Text())) {
		case "", "s":
			_, err = wf.Save()
		case "k":
			_, err = wf.Skip()
		case "c":
			out.Prompt("Category: ")
			if in.Scan() {
				category := strings.TrimSpace(in.Text())
				_, err = wf.Edit(c.ID, reconcile.Edit{Category: &category})
			}
		case "t":
			out.Prompt("Tag: ")
			if in.Scan() {
				tag := strings.TrimSpace(in.Text())
				_, err = wf.Edit(c.ID, reconcile.Edit{Tag: &tag})
			}
		case "b":
			_, err = wf.Back()
		case "q":
			return errAborted
		default:
			out.Warning("Unknown choice %q", in.Text())
		}
		if err != nil {
			out.Error(err)
		}
	}
	return nil
}
