package handlers

import (
	"net/http"

	"github.com/dvloznov/finance-ledger/internal/api/middleware"
	"github.com/dvloznov/finance-ledger/internal/categorize"
)

// CategoriesHandler serves the category vocabulary.
type CategoriesHandler struct {
	rules *categorize.Categorizer
}

// NewCategoriesHandler creates a new categories handler.
func NewCategoriesHandler(rules *categorize.Categorizer) *CategoriesHandler {
	return &CategoriesHandler{rules: rules}
}

// ListCategories handles GET /api/categories
func (h *CategoriesHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"expense": h.rules.ExpenseCategories(),
		"income":  h.rules.IncomeCategories(),
		"count":   len(h.rules.Categories()),
	})
}

// SuggestTags handles GET /api/categories/tags?category=&store=
func (h *CategoriesHandler) SuggestTags(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tags := h.rules.SuggestTags(q.Get("category"), q.Get("store"))
	if tags == nil {
		tags = []string{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"tags": tags})
}
