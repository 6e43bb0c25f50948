package handlers

import (
	"net/http"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/api/middleware"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/filter"
	"github.com/dvloznov/finance-ledger/internal/sessions"
	"github.com/dvloznov/finance-ledger/internal/store"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// TransactionsHandler handles committed transactions.
type TransactionsHandler struct {
	repo   store.TransactionRepository
	ledger *sessions.Ledger
	log    zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(repo store.TransactionRepository, ledger *sessions.Ledger, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{repo: repo, ledger: ledger, log: log}
}

// filtered loads the user's transactions and applies the query criteria.
func (h *TransactionsHandler) filtered(r *http.Request) ([]domain.Transaction, error) {
	c, err := filter.ParseCriteria(r.URL.Query())
	if err != nil {
		return nil, err
	}
	txs, err := h.repo.ListTransactions(r.Context(), userOf(r))
	if err != nil {
		return nil, err
	}
	return filter.Apply(txs, c), nil
}

// ListTransactions handles GET /api/transactions
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.filtered(r)
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, listResponse("transactions", txs, len(txs)))
}

// Summary handles GET /api/transactions/summary. It accepts the same
// filters as ListTransactions.
func (h *TransactionsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	txs, err := h.filtered(r)
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"summary":    filter.Summarize(txs),
		"categories": filter.CategoryTotals(txs),
	})
}

type transactionRequest struct {
	Type            domain.TransactionType `json:"type"`
	Category        string                 `json:"category"`
	Store           string                 `json:"store"`
	Amount          decimal.Decimal        `json:"amount"`
	Description     string                 `json:"description"`
	Tag             string                 `json:"tag"`
	TransactionDate civil.Date             `json:"transaction_date"`
	UploadSessionID string                 `json:"upload_session_id"`
}

// CreateTransaction handles POST /api/transactions: a manual entry, added
// to the given manual session or to a fresh one.
func (h *TransactionsHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	typ, err := domain.ParseTransactionType(string(req.Type))
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}

	tx := &domain.Transaction{
		Type:            typ,
		Category:        req.Category,
		Store:           req.Store,
		Amount:          req.Amount,
		Description:     req.Description,
		Tag:             req.Tag,
		TransactionDate: req.TransactionDate,
	}
	created, sess, err := h.ledger.AddManual(r.Context(), userOf(r), req.UploadSessionID, tx)
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, map[string]any{
		"transaction": created,
		"session":     sess,
	})
}

// owned fetches a transaction and hides other users' rows.
func (h *TransactionsHandler) owned(r *http.Request, id string) error {
	tx, err := h.repo.GetTransaction(r.Context(), id)
	if err != nil {
		return err
	}
	if tx.UserID != userOf(r) {
		return domain.NewNotFoundError("transaction", id)
	}
	return nil
}

// UpdateTransaction handles PATCH /api/transactions/{id}
func (h *TransactionsHandler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.owned(r, id); err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	var patch domain.TransactionPatch
	if err := decodeJSON(r, &patch); err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	if patch.Type != nil {
		typ, err := domain.ParseTransactionType(string(*patch.Type))
		if err != nil {
			middleware.WriteDomainError(w, h.log, err)
			return
		}
		patch.Type = &typ
	}

	updated, err := h.ledger.UpdateTransaction(r.Context(), id, patch)
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, updated)
}

// DeleteTransaction handles DELETE /api/transactions/{id}
func (h *TransactionsHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.owned(r, id); err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	if err := h.ledger.RemoveTransaction(r.Context(), id); err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
