// Package handlers implements the ledger HTTP JSON API.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/dvloznov/finance-ledger/internal/api/middleware"
	"github.com/dvloznov/finance-ledger/internal/domain"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// decodeJSON reads the request body into v, reporting a validation error on
// malformed input.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.NewValidationError("invalid request body: " + err.Error())
	}
	return nil
}

func userOf(r *http.Request) string {
	return middleware.UserID(r.Context())
}

// listResponse is the envelope for collection responses.
func listResponse(key string, items any, count int) map[string]any {
	return map[string]any{key: items, "count": count}
}
