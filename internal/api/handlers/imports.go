package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/dvloznov/finance-ledger/internal/api/middleware"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/reconcile"
	"github.com/rs/zerolog"
)

// maxStatementBytes bounds uploaded statement files.
const maxStatementBytes = 10 << 20

// ImportsHandler drives statement imports through the reconciliation
// workflow. Every route below /api/imports/{id} acts on one workflow.
type ImportsHandler struct {
	registry *reconcile.Registry
	log      zerolog.Logger
}

// NewImportsHandler creates a new imports handler.
func NewImportsHandler(registry *reconcile.Registry, log zerolog.Logger) *ImportsHandler {
	return &ImportsHandler{registry: registry, log: log}
}

func (h *ImportsHandler) workflow(w http.ResponseWriter, r *http.Request) (*reconcile.Workflow, bool) {
	wf, err := h.registry.Get(userOf(r), r.PathValue("id"))
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return nil, false
	}
	return wf, true
}

// stateResponse reports the workflow after a transition.
func (h *ImportsHandler) stateResponse(w http.ResponseWriter, wf *reconcile.Workflow, err error) {
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, wf.View())
}

// StartImport handles POST /api/imports
func (h *ImportsHandler) StartImport(w http.ResponseWriter, r *http.Request) {
	wf := h.registry.Start(userOf(r))
	middleware.WriteJSON(w, http.StatusCreated, wf.View())
}

// ListImports handles GET /api/imports
func (h *ImportsHandler) ListImports(w http.ResponseWriter, r *http.Request) {
	views := h.registry.List(userOf(r))
	if views == nil {
		views = []reconcile.View{}
	}
	middleware.WriteJSON(w, http.StatusOK, listResponse("imports", views, len(views)))
}

// GetImport handles GET /api/imports/{id}
func (h *ImportsHandler) GetImport(w http.ResponseWriter, r *http.Request) {
	if wf, ok := h.workflow(w, r); ok {
		middleware.WriteJSON(w, http.StatusOK, wf.View())
	}
}

// DiscardImport handles DELETE /api/imports/{id}
func (h *ImportsHandler) DiscardImport(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Discard(userOf(r), r.PathValue("id")); err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Upload handles POST /api/imports/{id}/upload as multipart/form-data with
// a "file" part and an optional "bank" field (auto, sofi, capital_one, ofx).
func (h *ImportsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.workflow(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxStatementBytes)
	if err := r.ParseMultipartForm(maxStatementBytes); err != nil {
		middleware.WriteDomainError(w, h.log, domain.NewValidationError("invalid upload: "+err.Error()))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.WriteDomainError(w, h.log, domain.NewValidationError("a statement file is required"))
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		middleware.WriteDomainError(w, h.log, domain.NewValidationError("reading upload: "+err.Error()))
		return
	}

	_, err = wf.Upload(r.Context(), header.Filename, content, r.FormValue("bank"))
	h.stateResponse(w, wf, err)
}

// EditCandidate handles PATCH /api/imports/{id}/candidates/{cid}
func (h *ImportsHandler) EditCandidate(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.workflow(w, r)
	if !ok {
		return
	}
	var edit reconcile.Edit
	if err := decodeJSON(r, &edit); err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	c, err := wf.Edit(r.PathValue("cid"), edit)
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, c)
}

// ToggleCandidate handles POST /api/imports/{id}/candidates/{cid}/toggle
func (h *ImportsHandler) ToggleCandidate(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.workflow(w, r)
	if !ok {
		return
	}
	selected, err := wf.Toggle(r.PathValue("cid"))
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]bool{"selected": selected})
}

// SelectAll handles POST /api/imports/{id}/select?all=true|false
func (h *ImportsHandler) SelectAll(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.workflow(w, r)
	if !ok {
		return
	}
	all, err := strconv.ParseBool(r.URL.Query().Get("all"))
	if err != nil {
		middleware.WriteDomainError(w, h.log, domain.NewValidationError("all must be true or false"))
		return
	}
	h.stateResponse(w, wf, wf.SelectAll(all))
}

// StartOneByOne handles POST /api/imports/{id}/one-by-one
func (h *ImportsHandler) StartOneByOne(w http.ResponseWriter, r *http.Request) {
	if wf, ok := h.workflow(w, r); ok {
		_, err := wf.StartOneByOne()
		h.stateResponse(w, wf, err)
	}
}

// Current handles GET /api/imports/{id}/current
func (h *ImportsHandler) Current(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.workflow(w, r)
	if !ok {
		return
	}
	c, err := wf.Current()
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, c)
}

// Save handles POST /api/imports/{id}/save
func (h *ImportsHandler) Save(w http.ResponseWriter, r *http.Request) {
	if wf, ok := h.workflow(w, r); ok {
		_, err := wf.Save()
		h.stateResponse(w, wf, err)
	}
}

// Skip handles POST /api/imports/{id}/skip
func (h *ImportsHandler) Skip(w http.ResponseWriter, r *http.Request) {
	if wf, ok := h.workflow(w, r); ok {
		_, err := wf.Skip()
		h.stateResponse(w, wf, err)
	}
}

// Back handles POST /api/imports/{id}/back
func (h *ImportsHandler) Back(w http.ResponseWriter, r *http.Request) {
	if wf, ok := h.workflow(w, r); ok {
		_, err := wf.Back()
		h.stateResponse(w, wf, err)
	}
}

// Commit handles POST /api/imports/{id}/commit
func (h *ImportsHandler) Commit(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.workflow(w, r)
	if !ok {
		return
	}
	view, err := wf.Commit(r.Context())
	if err != nil {
		middleware.WriteDomainError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, view)
}

// Reset handles POST /api/imports/{id}/reset
func (h *ImportsHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if wf, ok := h.workflow(w, r); ok {
		wf.Reset()
		middleware.WriteJSON(w, http.StatusOK, wf.View())
	}
}
