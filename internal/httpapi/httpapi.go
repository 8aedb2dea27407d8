// Package httpapi exposes the REST and WebSocket surface from spec §6:
// loan CRUD/transition endpoints, inbound provider webhooks, the
// /loans observer channel, and health checks. Grounded on the
// teacher's handler.go (writeJSON/writeError/decodeJSON helpers,
// mux-plus-layered-middleware shape) adapted from its bare
// http.ServeMux to chi's router, which the teacher's own go.mod
// already commits to elsewhere.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/coderTtxi12/loan-system/internal/apperr"
)

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// errorBody is the {message, errors, details} shape from spec §7.
type errorBody struct {
	Message string                 `json:"message"`
	Errors  []string               `json:"errors,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// writeAppError renders err as the taxonomy-coded body spec §7 defines,
// falling back to a bare 500 for errors that never went through apperr.
// Any 5xx carries only the generic message, never the error's own text.
func writeAppError(w http.ResponseWriter, err error) {
	if appErr, ok := apperr.As(err); ok {
		if appErr.HTTPStatus >= http.StatusInternalServerError {
			writeJSON(w, appErr.HTTPStatus, errorBody{Message: "internal server error"})
			return
		}
		writeJSON(w, appErr.HTTPStatus, errorBody{
			Message: appErr.Message,
			Errors:  appErr.Errors,
			Details: appErr.Details,
		})
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorBody{Message: "internal server error"})
}

// pageParams is the page/page_size query pair shared by list endpoints.
type pageParams struct {
	Page     int
	PageSize int
}

func parsePageParams(q map[string][]string) pageParams {
	page := queryInt(q, "page", 1)
	if page < 1 {
		page = 1
	}
	pageSize := queryInt(q, "page_size", 20)
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 200 {
		pageSize = 200
	}
	return pageParams{Page: page, PageSize: pageSize}
}

func queryInt(q map[string][]string, key string, def int) int {
	vals, ok := q[key]
	if !ok || len(vals) == 0 || strings.TrimSpace(vals[0]) == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(vals[0]))
	if err != nil {
		return def
	}
	return n
}
