package handlers

import (
	"net/http"

	"github.com/dvloznov/finance-ledger/internal/api/middleware"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/jobs"
	"github.com/dvloznov/finance-ledger/internal/sessions"
	"github.com/dvloznov/finance-ledger/internal/store"
	"github.com/rs/zerolog"
)

// SessionsHandler handles upload sessions: listing, cascade delete and
// repair of sessions left inconsistent by an interrupted commit.
type SessionsHandler struct {
	repo      store.SessionRepository
	txs       store.TransactionRepository
	ledger    *sessions.Ledger
	publisher jobs.Publisher
	log       zerolog.Logger
}

// NewSessionsHandler creates a new sessions handler. publisher may be nil,
// in which case repairs only run synchronously.
func NewSessionsHandler(repo store.SessionRepository, txs store.TransactionRepository, ledger *sessions.Ledger, publisher jobs.Publisher, log zerolog.Logger) *SessionsHandler {
	return &SessionsHandler{repo: repo, txs: txs, ledger: ledger, publisher: publisher, log: log}
}

// ListSessions handles GET /api/sessions
func (h *SessionsHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := h.ledger.List(r.Context(), userOf(r))
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	if list == nil {
		list = []domain.UploadSession{}
	}
	middleware.WriteJSON(w, http.StatusOK, listResponse("sessions", list, len(list)))
}

func (h *SessionsHandler) owned(r *http.Request, id string) (*domain.UploadSession, error) {
	sess, err := h.repo.GetUploadSession(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userOf(r) {
		return nil, domain.NewNotFoundError("upload session", id)
	}
	return sess, nil
}

// GetSession handles GET /api/sessions/{id}: the session and its transactions.
func (h *SessionsHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.owned(r, r.PathValue("id"))
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	txs, err := h.txs.ListSessionTransactions(r.Context(), sess.ID)
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"session":      sess,
		"transactions": txs,
	})
}

// DeleteSession handles DELETE /api/sessions/{id}. On a cascade failure the
// caller should reload sessions and transactions before continuing.
func (h *SessionsHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.owned(r, id); err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	if err := h.ledger.Delete(r.Context(), id); err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	h.log.Info().Str("session_id", id).Msg("Upload session deleted")
	w.WriteHeader(http.StatusNoContent)
}

// RepairSession handles POST /api/sessions/{id}/repair. With ?async=true
// the repair is queued as a job and 202 is returned.
func (h *SessionsHandler) RepairSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.owned(r, id); err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}

	if r.URL.Query().Get("async") == "true" && h.publisher != nil {
		job := &jobs.RepairSessionJob{UserID: userOf(r), SessionID: id}
		if err := h.publisher.PublishRepairSession(r.Context(), job); err != nil {
			h.log.Error().Err(err).Str("session_id", id).Msg("Failed to enqueue repair job")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue repair job")
			return
		}
		middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
			"job_id":     job.JobID,
			"session_id": id,
			"status":     string(jobs.JobStatusPending),
		})
		return
	}

	res, err := h.ledger.Repair(r.Context(), id)
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

// RepairAll handles POST /api/sessions/repair: every session of the user is
// recomputed and empty ones past the grace period are removed.
func (h *SessionsHandler) RepairAll(w http.ResponseWriter, r *http.Request) {
	results, err := h.ledger.RepairAll(r.Context(), userOf(r))
	if results == nil {
		results = []sessions.RepairResult{}
	}
	body := listResponse("results", results, len(results))
	if err != nil {
		h.log.Warn().Err(err).Msg("Some sessions could not be repaired")
		body["error"] = err.Error()
	}
	middleware.WriteJSON(w, http.StatusOK, body)
}
