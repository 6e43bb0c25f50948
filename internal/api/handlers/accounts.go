package handlers

import (
	"net/http"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/api/middleware"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/ledger"
	"github.com/dvloznov/finance-ledger/internal/store"
	"github.com/rs/zerolog"
)

// AccountsHandler handles account definitions, balance records and the
// net worth views computed from them.
type AccountsHandler struct {
	repo store.AccountRepository
	log  zerolog.Logger
}

// NewAccountsHandler creates a new accounts handler.
func NewAccountsHandler(repo store.AccountRepository, log zerolog.Logger) *AccountsHandler {
	return &AccountsHandler{repo: repo, log: log}
}

// ListAccounts handles GET /api/accounts
func (h *AccountsHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	defs, err := h.repo.ListAccountDefinitions(r.Context(), userOf(r))
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	if defs == nil {
		defs = []domain.AccountDefinition{}
	}
	middleware.WriteJSON(w, http.StatusOK, listResponse("accounts", defs, len(defs)))
}

// CreateAccount handles POST /api/accounts
func (h *AccountsHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Category string `json:"category"`
	}
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	category, err := domain.ParseAccountCategory(req.Category)
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}

	def := &domain.AccountDefinition{UserID: userOf(r), Name: req.Name, Category: category}
	if err := h.repo.CreateAccountDefinition(r.Context(), def); err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	h.log.Info().Str("account_id", def.ID).Str("category", string(def.Category)).Msg("Account created")
	middleware.WriteJSON(w, http.StatusCreated, def)
}

// DeleteAccount handles DELETE /api/accounts/{id}
func (h *AccountsHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	def, err := h.repo.GetAccountDefinition(r.Context(), id)
	if err == nil && def.UserID != userOf(r) {
		err = domain.NewNotFoundError("account", id)
	}
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	if err := h.repo.DeleteAccountDefinition(r.Context(), id); err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListRecords handles GET /api/records
func (h *AccountsHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	recs, err := h.repo.ListAccountRecords(r.Context(), userOf(r))
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	if recs == nil {
		recs = []domain.AccountRecord{}
	}
	middleware.WriteJSON(w, http.StatusOK, listResponse("records", recs, len(recs)))
}

// RecordBalances handles POST /api/records. All balances share one date.
func (h *AccountsHandler) RecordBalances(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RecordDate civil.Date            `json:"record_date"`
		Entries    []domain.BalanceEntry `json:"entries"`
	}
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	if len(req.Entries) == 0 {
		middleware.WriteDomainError(w, h.log, domain.NewValidationError("at least one balance entry is required"))
		return
	}

	recs, err := h.repo.BulkCreateAccountRecords(r.Context(), userOf(r), req.RecordDate, req.Entries)
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	h.log.Info().Int("count", len(recs)).Str("record_date", req.RecordDate.String()).Msg("Balances recorded")
	middleware.WriteJSON(w, http.StatusCreated, listResponse("records", recs, len(recs)))
}

// load fetches definitions and records fresh for every computed view.
func (h *AccountsHandler) load(r *http.Request) ([]domain.AccountDefinition, []domain.AccountRecord, error) {
	defs, err := h.repo.ListAccountDefinitions(r.Context(), userOf(r))
	if err != nil {
		return nil, nil, err
	}
	recs, err := h.repo.ListAccountRecords(r.Context(), userOf(r))
	if err != nil {
		return nil, nil, err
	}
	return defs, recs, nil
}

// Analytics handles GET /api/analytics
func (h *AccountsHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	defs, recs, err := h.load(r)
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, ledger.BuildAnalytics(defs, recs))
}

// Snapshots handles GET /api/snapshots: the per-date rollups with the
// change from the previous snapshot.
func (h *AccountsHandler) Snapshots(w http.ResponseWriter, r *http.Request) {
	defs, recs, err := h.load(r)
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	snaps := ledger.Snapshots(defs, recs)
	changes := ledger.AdjacentChanges(snaps)

	type row struct {
		ledger.Snapshot
		Change ledger.Change `json:"change"`
	}
	out := make([]row, len(snaps))
	for i := range snaps {
		out[i] = row{Snapshot: snaps[i], Change: changes[i]}
	}
	middleware.WriteJSON(w, http.StatusOK, listResponse("snapshots", out, len(out)))
}

// LatestBalances handles GET /api/accounts/latest?as_of=YYYY-MM-DD. Without
// as_of the latest balances as of today are returned.
func (h *AccountsHandler) LatestBalances(w http.ResponseWriter, r *http.Request) {
	asOf := civil.DateOf(time.Now())
	if v := r.URL.Query().Get("as_of"); v != "" {
		d, err := civil.ParseDate(v)
		if err != nil {
			middleware.WriteDomainError(w, h.log, domain.NewValidationError("invalid as_of date: "+v))
			return
		}
		asOf = d
	}

	defs, recs, err := h.load(r)
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	balances := ledger.LatestBalances(defs, recs, asOf)
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"as_of":    asOf,
		"balances": balances,
		"count":    len(balances),
	})
}
