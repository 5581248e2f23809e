// Package api exposes the FAQ query pipeline over HTTP.
package api

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"faqd/internal/synth"
)

const maxRequestBodySize = 1 << 20 // 1MB

//go:embed index.html
var indexHTML []byte

// Answerer runs the query pipeline for one question.
type Answerer interface {
	Answer(ctx context.Context, question string) (synth.Response, error)
}

// QueryRequest is the body of POST /faq/query.
type QueryRequest struct {
	Question string `json:"question"`
}

// QueryResponse is the body returned for a successful query.
type QueryResponse struct {
	Answer         string   `json:"answer"`
	ThoughtProcess []string `json:"thought_process"`
	EnoughContext  bool     `json:"enough_context"`
}

// NewHandler returns the service's HTTP handler: the FAQ query endpoint,
// a static query form, and a health probe.
func NewHandler(answerer Answerer) http.Handler {
	r := chi.NewRouter()

	r.Get("/", handleIndex)
	r.Get("/health", handleHealth)
	r.Post("/faq/query", handleQuery(answerer))

	return r
}

func handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleQuery(answerer Answerer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}

		slog.Info("received question", "question", req.Question)

		response, err := answerer.Answer(r.Context(), req.Question)
		if err != nil {
			slog.Error("query failed", "question", req.Question, "error", err)
			httpError(w, http.StatusInternalServerError, "%v", err)
			return
		}

		thoughts := response.ThoughtProcess
		if thoughts == nil {
			thoughts = []string{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(QueryResponse{
			Answer:         response.Answer,
			ThoughtProcess: thoughts,
			EnoughContext:  response.EnoughContext,
		})
	}
}

// httpError writes a JSON error body of the form {"detail": "..."}.
func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"detail": fmt.Sprintf(format, args...),
	})
}
