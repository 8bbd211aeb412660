package observability

import (
	"context"
	"encoding/json"
	"net/http"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Status  string `json:"status"`
	Reason  string `json:"reason"`
	Detail  string `json:"detail"`
	SQL     string `json:"sql,omitempty"`
	TraceID string `json:"trace_id"`
}

// WriteError writes body with the given status, filling in the status field
// and the trace ID from ctx.
func WriteError(ctx context.Context, w http.ResponseWriter, status int, body ErrorBody) {
	body.Status = "error"
	body.TraceID = TraceIDFromContext(ctx)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
