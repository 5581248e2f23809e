// Package pipeline orchestrates a query: similarity search over the vector
// store, then answer synthesis from the retrieved context.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"faqd/internal/store"
	"faqd/internal/synth"
)

// noMatchAnswer is returned when the search finds nothing; the synthesizer
// is not called in that case.
const noMatchAnswer = "No relevant FAQ found."

// Searcher is the slice of the vector store the orchestrator needs.
type Searcher interface {
	Search(ctx context.Context, queryText string, opts store.SearchOptions) ([]store.SearchResult, error)
}

// Orchestrator answers questions by retrieving the nearest FAQ records and
// handing them to the synthesizer. No caching, no retries: transient
// failures in search or synthesis propagate to the caller.
type Orchestrator struct {
	store  Searcher
	synth  synth.Synthesizer
	topK   int
	logger *slog.Logger
}

// New creates an Orchestrator. topK controls how many records are retrieved
// per question (default 3 if <= 0).
func New(searcher Searcher, synthesizer synth.Synthesizer, topK int) *Orchestrator {
	if topK <= 0 {
		topK = 3
	}
	return &Orchestrator{
		store:  searcher,
		synth:  synthesizer,
		topK:   topK,
		logger: slog.Default(),
	}
}

// Answer runs the full query pipeline for one question. When the search
// returns no records, a canned response with EnoughContext=false comes back
// without a synthesis call.
func (o *Orchestrator) Answer(ctx context.Context, question string) (synth.Response, error) {
	start := time.Now()

	results, err := o.store.Search(ctx, question, store.SearchOptions{Limit: o.topK})
	if err != nil {
		return synth.Response{}, fmt.Errorf("searching for context: %w", err)
	}

	if len(results) == 0 {
		o.logger.Info("no matching records", "question", question)
		return synth.Response{
			Answer:         noMatchAnswer,
			ThoughtProcess: []string{"No context available"},
			EnoughContext:  false,
		}, nil
	}

	response, err := o.synth.Synthesize(ctx, question, results)
	if err != nil {
		return synth.Response{}, fmt.Errorf("synthesizing answer: %w", err)
	}

	o.logger.Debug("query answered",
		"results", len(results),
		"enough_context", response.EnoughContext,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return response, nil
}
