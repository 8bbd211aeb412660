package api

import (
	"encoding/json"
	"net/http"

	"github.com/NopparootSuree/AI-Agent/internal/agent"
	"github.com/NopparootSuree/AI-Agent/internal/failure"
)

const maxQueryBodyBytes = 64 << 10

type queryRequest struct {
	Question string `json:"question"`
}

type queryResponse struct {
	Status string `json:"status"`
	agent.Answer
}

func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Agent == nil {
		writeFailure(r.Context(), w, failure.New(failure.Internal, "query agent is not configured"))
		return
	}

	var req queryRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQueryBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeFailure(r.Context(), w, failure.Newf(failure.InvalidRequest, "invalid query request body: %v", err))
		return
	}
	if decoder.More() {
		writeFailure(r.Context(), w, failure.New(failure.InvalidRequest, "request body must contain a single JSON object"))
		return
	}

	answer, err := deps.Agent.Ask(r.Context(), req.Question)
	if err != nil {
		writeFailure(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, queryResponse{Status: "ok", Answer: answer})
}
