package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/devpulse/server/internal/apperr"
	"github.com/devpulse/server/internal/derive"
)

// componentsJSON marshals a HealthComponents breakdown to the raw-JSON-text
// form model.Project.HealthComponents stores.
func componentsJSON(c derive.HealthComponents) string {
	b, err := json.Marshal(c)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps err to its taxonomy status and writes a minimal JSON body
// (spec.md §7).
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, apperr.HTTPStatus(err), map[string]string{"error": err.Error()})
}

// queryInt parses a query parameter as an int, returning fallback on
// absence or parse failure.
func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// queryInt64 parses a query parameter as an int64, returning 0 on absence
// or parse failure.
func queryInt64(v string) int64 {
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// clampLimit bounds n to (0, max], substituting def when n is non-positive.
func clampLimit(n, def, max int) int {
	if n <= 0 {
		n = def
	}
	if n > max {
		n = max
	}
	return n
}
