// Package lookup resolves a word against the local dictionary, falling back to the AI client.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/khmerdict/dictbot/internal/database"
	"github.com/khmerdict/dictbot/internal/dictionary"
	"github.com/khmerdict/dictbot/internal/inference"
	"github.com/khmerdict/dictbot/internal/logctx"
	"github.com/khmerdict/dictbot/internal/workerpool"
)

//go:generate mockgen -source=resolver.go -destination=../mocks/lookup/mock_resolver.go -package=mock_lookup

// ErrEmptyWord is the Failure reason for a query that is blank after trimming.
var ErrEmptyWord = errors.New("empty word")

// Resolver turns a query into a Result.
type Resolver interface {
	Resolve(ctx context.Context, word string) Result
}

// Result is one of LocalHit, AIHit or Failure.
type Result interface {
	isResult()
}

// LocalHit holds the seeded entries for the word, in seeded order.
type LocalHit struct {
	Entries []dictionary.Entry
}

// AIHit holds the answer of the AI fallback.
type AIHit struct {
	Text  string
	Model string
}

// Failure carries the reason no answer was produced: ErrEmptyWord, or an error
// wrapping database.ErrUnavailable, inference.ErrUnavailable or inference.ErrDisabled.
type Failure struct {
	Err error
}

func (LocalHit) isResult() {}
func (AIHit) isResult()    {}
func (Failure) isResult()  {}

// Service implements Resolver.
type Service struct {
	dictionary   dictionary.Repository
	ai           inference.Client
	pool         *workerpool.Pool
	storeTimeout time.Duration
}

// NewService creates a Service. Store lookups are bounded by storeTimeout;
// the AI client applies its own timeout.
func NewService(dict dictionary.Repository, ai inference.Client, pool *workerpool.Pool, storeTimeout time.Duration) *Service {
	return &Service{
		dictionary:   dict,
		ai:           ai,
		pool:         pool,
		storeTimeout: storeTimeout,
	}
}

// Resolve looks the word up locally and asks the AI only when there is no local entry.
// A store failure is final: the AI is not consulted without an authoritative miss.
func (s *Service) Resolve(ctx context.Context, word string) Result {
	word = strings.TrimSpace(word)
	if word == "" {
		return Failure{Err: ErrEmptyWord}
	}
	logger := logctx.From(ctx).With("word", word)

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	entries, err := workerpool.Submit(storeCtx, s.pool, func(ctx context.Context) ([]dictionary.Entry, error) {
		return s.dictionary.LookupWord(ctx, word)
	})
	cancel()
	if err != nil {
		if !errors.Is(err, database.ErrUnavailable) {
			err = fmt.Errorf("%w: %w", database.ErrUnavailable, err)
		}
		logger.Error("dictionary lookup failed", "error", err)
		return Failure{Err: fmt.Errorf("lookup %q: %w", word, err)}
	}
	if len(entries) > 0 {
		logger.Debug("local hit", "entries", len(entries))
		return LocalHit{Entries: entries}
	}

	resp, err := workerpool.Submit(ctx, s.pool, func(ctx context.Context) (inference.CompletionResponse, error) {
		return s.ai.Complete(ctx, inference.CompletionRequest{
			SystemPrompt: inference.SystemPrompt,
			Query:        word,
		})
	})
	if err != nil {
		switch {
		case errors.Is(err, inference.ErrDisabled):
			logger.Info("ai fallback disabled")
		case errors.Is(err, inference.ErrUnavailable):
			logger.Warn("ai fallback failed", "error", err)
		default:
			err = fmt.Errorf("%w: %w", inference.ErrUnavailable, err)
			logger.Warn("ai fallback failed", "error", err)
		}
		return Failure{Err: fmt.Errorf("complete %q: %w", word, err)}
	}
	logger.Debug("ai hit", "model", resp.Model)
	return AIHit{Text: resp.Text, Model: resp.Model}
}
