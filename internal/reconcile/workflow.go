package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/finance-ledger/internal/dedup"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/parsers"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Deps are the collaborators of a workflow. Parser and Committer are
// required; the rest may be nil.
type Deps struct {
	Parser       Parser
	Committer    Committer
	Transactions TransactionLister
	Archiver     Archiver
	Tagger       Tagger
	Log          zerolog.Logger
}

// View is a read-only snapshot of a workflow.
type View struct {
	ID              string           `json:"id"`
	UserID          string           `json:"user_id"`
	State           State            `json:"state"`
	Filename        string           `json:"filename,omitempty"`
	BankType        parsers.BankType `json:"bank_type,omitempty"`
	ArchiveURI      string           `json:"archive_uri,omitempty"`
	Skipped         int              `json:"skipped_rows"`
	Candidates      []Candidate      `json:"candidates"`
	SelectedCount   int              `json:"selected_count"`
	ReviewedCount   int              `json:"reviewed_count"`
	CurrentIndex    int              `json:"current_index"`
	Committed       int              `json:"committed,omitempty"`
	SessionID       string           `json:"session_id,omitempty"`
	FailedSessionID string           `json:"failed_session_id,omitempty"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Workflow is one import of one statement. Methods are safe for concurrent
// use but a workflow is meant to have a single driver.
type Workflow struct {
	mu   sync.Mutex
	deps Deps
	log  zerolog.Logger

	id     string
	userID string
	state  State

	filename   string
	bankType   parsers.BankType
	archiveURI string
	skipped    int

	candidates    *arena
	currentIndex  int
	reviewedCount int

	committed       int
	sessionID       string
	failedSessionID string
	updatedAt       time.Time
}

// New starts a workflow in the Upload state.
func New(userID string, deps Deps) *Workflow {
	id := uuid.New().String()
	return &Workflow{
		deps:       deps,
		log:        deps.Log.With().Str("import_id", id).Str("user_id", userID).Logger(),
		id:         id,
		userID:     userID,
		state:      StateUpload,
		candidates: newArena(),
		updatedAt:  time.Now().UTC(),
	}
}

// ID returns the import id.
func (w *Workflow) ID() string { return w.id }

// UserID returns the owning user.
func (w *Workflow) UserID() string { return w.userID }

// State returns the current state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Workflow) require(states ...State) error {
	for _, s := range states {
		if w.state == s {
			return nil
		}
	}
	return domain.NewInvalidStateError(fmt.Sprintf("not allowed while the import is in %s", w.state))
}

func (w *Workflow) touch() { w.updatedAt = time.Now().UTC() }

// Upload parses content and moves to Review. A parse error leaves the
// workflow in Upload so the user can retry with another file or hint.
func (w *Workflow) Upload(ctx context.Context, filename string, content []byte, hint string) (State, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.require(StateUpload); err != nil {
		return w.state, err
	}

	res, err := w.deps.Parser.ParseCandidates(ctx, content, hint)
	if err != nil {
		w.log.Warn().Err(err).Str("filename", filename).Msg("Statement parse failed")
		return w.state, err
	}
	if len(res.Transactions) == 0 {
		return w.state, domain.NewParseError(fmt.Errorf("no transactions found in %s", displayName(filename)))
	}

	if w.deps.Archiver != nil {
		uri, err := w.deps.Archiver.ArchiveStatement(ctx, w.userID, w.id, filename, content)
		if err != nil {
			w.log.Warn().Err(err).Msg("Failed to archive statement")
		} else {
			w.archiveURI = uri
		}
	}

	detector := w.duplicateDetector(ctx)
	cands := newArena()
	for _, row := range res.Transactions {
		c := &Candidate{
			Date:              row.Date,
			Type:              row.Type,
			Category:          row.SuggestedCategory,
			Store:             row.Store,
			Amount:            row.Amount,
			Description:       row.Description,
			SuggestedCategory: row.SuggestedCategory,
			OriginalType:      row.OriginalType,
			Selected:          true,
		}
		if w.deps.Tagger != nil {
			if tags := w.deps.Tagger.AutomaticTags(c.Store, c.Category, c.Amount, c.Description); len(tags) > 0 {
				c.Tag = tags[0]
			}
		}
		if detector != nil {
			if id, ok := detector.Match(c.Date, c.Type, c.Amount, c.Store); ok {
				c.DuplicateOf = id
			}
		}
		cands.add(c)
	}

	w.candidates = cands
	w.filename = filename
	w.bankType = res.BankType
	w.skipped = res.Skipped
	w.reviewedCount = 0
	w.currentIndex = 0
	w.state = StateReview
	w.touch()

	w.log.Info().
		Str("bank_type", string(res.BankType)).
		Int("candidates", cands.len()).
		Int("skipped", res.Skipped).
		Msg("Statement parsed")
	return w.state, nil
}

func (w *Workflow) duplicateDetector(ctx context.Context) *dedup.Detector {
	if w.deps.Transactions == nil {
		return nil
	}
	existing, err := w.deps.Transactions.ListTransactions(ctx, w.userID)
	if err != nil {
		w.log.Warn().Err(err).Msg("Skipping duplicate check")
		return nil
	}
	return dedup.NewDetector(existing)
}

// Edit changes one candidate. Allowed in Review and OneByOne.
func (w *Workflow) Edit(id string, e Edit) (Candidate, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.require(StateReview, StateOneByOne); err != nil {
		return Candidate{}, err
	}
	c, err := w.candidates.get(id)
	if err != nil {
		return Candidate{}, err
	}
	if err := e.apply(c); err != nil {
		return Candidate{}, err
	}
	w.touch()
	return *c, nil
}

// Toggle flips the selection of one candidate and returns the new value.
func (w *Workflow) Toggle(id string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.require(StateReview); err != nil {
		return false, err
	}
	c, err := w.candidates.get(id)
	if err != nil {
		return false, err
	}
	c.Selected = !c.Selected
	w.touch()
	return c.Selected, nil
}

// SelectAll selects or deselects every candidate.
func (w *Workflow) SelectAll(selected bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.require(StateReview); err != nil {
		return err
	}
	w.candidates.each(func(_ int, c *Candidate) { c.Selected = selected })
	w.touch()
	return nil
}

// StartOneByOne begins visiting candidates in upload order.
func (w *Workflow) StartOneByOne() (State, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.require(StateReview); err != nil {
		return w.state, err
	}
	if w.candidates.len() == 0 {
		return w.state, domain.NewInvalidStateError("there are no transactions to review")
	}
	w.currentIndex = 0
	w.reviewedCount = 0
	w.state = StateOneByOne
	w.touch()
	return w.state, nil
}

// Current returns the candidate being reviewed in OneByOne.
func (w *Workflow) Current() (Candidate, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.require(StateOneByOne); err != nil {
		return Candidate{}, err
	}
	return *w.candidates.at(w.currentIndex), nil
}

// Save keeps the current candidate and advances.
func (w *Workflow) Save() (State, error) {
	return w.decide(true)
}

// Skip drops the current candidate from the commit and advances.
func (w *Workflow) Skip() (State, error) {
	return w.decide(false)
}

func (w *Workflow) decide(keep bool) (State, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.require(StateOneByOne); err != nil {
		return w.state, err
	}
	c := w.candidates.at(w.currentIndex)
	c.Selected = keep
	c.Reviewed = true
	w.reviewedCount++
	w.currentIndex++
	if w.currentIndex >= w.candidates.len() {
		w.state = StateReview
		w.log.Debug().Int("reviewed", w.reviewedCount).Msg("One-by-one review finished")
	}
	w.touch()
	return w.state, nil
}

// Back leaves OneByOne for Review.
func (w *Workflow) Back() (State, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.require(StateOneByOne); err != nil {
		return w.state, err
	}
	w.state = StateReview
	w.touch()
	return w.state, nil
}

// Commit persists the selected candidates as one bulk session and moves to
// Complete. On any error the workflow stays in Review. Once the rows are
// saved the workflow always completes, even when the session still awaits
// a queued repair; FailedSessionID names it in that case.
func (w *Workflow) Commit(ctx context.Context) (*View, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.require(StateReview); err != nil {
		return nil, err
	}

	selected := w.candidates.selected()
	if len(selected) == 0 {
		return nil, domain.NewValidationError("select at least one transaction to commit")
	}
	if err := w.candidates.checkSelected(); err != nil {
		return nil, err
	}

	txs := make([]*domain.Transaction, len(selected))
	for i, c := range selected {
		txs[i] = c.transaction()
	}

	res, err := w.deps.Committer.Commit(ctx, w.userID, txs)
	if err != nil {
		var derr *domain.Error
		if errors.As(err, &derr) && derr.Kind == domain.KindPartialCommit {
			w.failedSessionID = derr.SessionID
		}
		w.log.Error().Err(err).Int("selected", len(selected)).Msg("Import commit failed")
		return nil, err
	}

	w.committed = res.Committed
	w.sessionID = res.Session.ID
	w.failedSessionID = ""
	if res.PendingRepair {
		w.failedSessionID = res.Session.ID
		w.log.Warn().Str("session_id", w.sessionID).Msg("Import committed, session repair queued")
	}
	w.state = StateComplete
	w.touch()
	w.log.Info().
		Str("session_id", w.sessionID).
		Int("committed", w.committed).
		Int("candidates", w.candidates.len()).
		Msg("Import committed")

	v := w.view()
	return &v, nil
}

// Reset discards everything and returns to Upload. Allowed from any state.
func (w *Workflow) Reset() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = StateUpload
	w.candidates = newArena()
	w.filename = ""
	w.bankType = ""
	w.archiveURI = ""
	w.skipped = 0
	w.currentIndex = 0
	w.reviewedCount = 0
	w.committed = 0
	w.sessionID = ""
	w.failedSessionID = ""
	w.touch()
	return w.state
}

// View returns a snapshot of the workflow.
func (w *Workflow) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.view()
}

func (w *Workflow) view() View {
	return View{
		ID:              w.id,
		UserID:          w.userID,
		State:           w.state,
		Filename:        w.filename,
		BankType:        w.bankType,
		ArchiveURI:      w.archiveURI,
		Skipped:         w.skipped,
		Candidates:      w.candidates.snapshot(),
		SelectedCount:   len(w.candidates.selected()),
		ReviewedCount:   w.reviewedCount,
		CurrentIndex:    w.currentIndex,
		Committed:       w.committed,
		SessionID:       w.sessionID,
		FailedSessionID: w.failedSessionID,
		UpdatedAt:       w.updatedAt,
	}
}

func (w *Workflow) lastTouched() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.updatedAt
}

func displayName(filename string) string {
	if filename == "" {
		return "the uploaded file"
	}
	return filename
}
