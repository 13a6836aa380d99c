package health

import (
	"encoding/json"
	"net/http"
)

// LivenessHandler always answers 200; it runs no checks.
func (h *Health) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})
}

// ReadinessHandler answers 200 when every check passes and 503 otherwise, with
// the per-check results as the body.
func (h *Health) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result := h.Check(r.Context())
		writeJSON(w, statusCode(result), result)
	})
}

// HealthHandler combines liveness and readiness in one response.
func (h *Health) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result := h.Check(r.Context())
		writeJSON(w, statusCode(result), map[string]interface{}{
			"liveness":  "alive",
			"readiness": result,
		})
	})
}

func statusCode(r *Result) int {
	if r.Healthy() {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
