package handlers

import (
	"net/http"
	"time"

	"github.com/dvloznov/finance-ledger/internal/api/middleware"
)

// Handlers groups every endpoint handler of the API.
type Handlers struct {
	Accounts     *AccountsHandler
	Transactions *TransactionsHandler
	Sessions     *SessionsHandler
	Imports      *ImportsHandler
	Categories   *CategoriesHandler
	Jobs         *JobsHandler
}

// Register mounts all routes on mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	// Accounts and balances
	mux.HandleFunc("GET /api/accounts", h.Accounts.ListAccounts)
	mux.HandleFunc("POST /api/accounts", h.Accounts.CreateAccount)
	mux.HandleFunc("GET /api/accounts/latest", h.Accounts.LatestBalances)
	mux.HandleFunc("DELETE /api/accounts/{id}", h.Accounts.DeleteAccount)
	mux.HandleFunc("GET /api/records", h.Accounts.ListRecords)
	mux.HandleFunc("POST /api/records", h.Accounts.RecordBalances)
	mux.HandleFunc("GET /api/analytics", h.Accounts.Analytics)
	mux.HandleFunc("GET /api/snapshots", h.Accounts.Snapshots)

	// Transactions
	mux.HandleFunc("GET /api/transactions", h.Transactions.ListTransactions)
	mux.HandleFunc("POST /api/transactions", h.Transactions.CreateTransaction)
	mux.HandleFunc("GET /api/transactions/summary", h.Transactions.Summary)
	mux.HandleFunc("PATCH /api/transactions/{id}", h.Transactions.UpdateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", h.Transactions.DeleteTransaction)

	// Upload sessions
	mux.HandleFunc("GET /api/sessions", h.Sessions.ListSessions)
	mux.HandleFunc("POST /api/sessions/repair", h.Sessions.RepairAll)
	mux.HandleFunc("GET /api/sessions/{id}", h.Sessions.GetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.Sessions.DeleteSession)
	mux.HandleFunc("POST /api/sessions/{id}/repair", h.Sessions.RepairSession)

	// Imports
	mux.HandleFunc("GET /api/imports", h.Imports.ListImports)
	mux.HandleFunc("POST /api/imports", h.Imports.StartImport)
	mux.HandleFunc("GET /api/imports/{id}", h.Imports.GetImport)
	mux.HandleFunc("DELETE /api/imports/{id}", h.Imports.DiscardImport)
	mux.HandleFunc("POST /api/imports/{id}/upload", h.Imports.Upload)
	mux.HandleFunc("PATCH /api/imports/{id}/candidates/{cid}", h.Imports.EditCandidate)
	mux.HandleFunc("POST /api/imports/{id}/candidates/{cid}/toggle", h.Imports.ToggleCandidate)
	mux.HandleFunc("POST /api/imports/{id}/select", h.Imports.SelectAll)
	mux.HandleFunc("POST /api/imports/{id}/one-by-one", h.Imports.StartOneByOne)
	mux.HandleFunc("GET /api/imports/{id}/current", h.Imports.Current)
	mux.HandleFunc("POST /api/imports/{id}/save", h.Imports.Save)
	mux.HandleFunc("POST /api/imports/{id}/skip", h.Imports.Skip)
	mux.HandleFunc("POST /api/imports/{id}/back", h.Imports.Back)
	mux.HandleFunc("POST /api/imports/{id}/commit", h.Imports.Commit)
	mux.HandleFunc("POST /api/imports/{id}/reset", h.Imports.Reset)

	// Categories
	mux.HandleFunc("GET /api/categories", h.Categories.ListCategories)
	mux.HandleFunc("GET /api/categories/tags", h.Categories.SuggestTags)

	// Jobs
	mux.HandleFunc("GET /api/jobs", h.Jobs.ListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", h.Jobs.GetJob)

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
}
