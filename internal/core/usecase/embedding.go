package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/construction-graphrag/internal/core/domain"
)

const queryEmbeddingAttempts = 2

// EmbedFunc produces a vector for query text.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

type QueryEmbedderConfig struct {
	Name      string
	Dimension int
	Timeout   time.Duration
	Backoff   time.Duration
}

// QueryEmbedder wraps an embedding call with one fixed-backoff retry. A second
// failure yields a zero-vector placeholder instead of an error, so callers can
// keep going on sources that do not need the vector. A vector whose length
// differs from Dimension is returned as ErrEmbeddingDimension without retry.
type QueryEmbedder struct {
	embed    EmbedFunc
	cfg      QueryEmbedderConfig
	logger   *slog.Logger
	observer RetrievalObserver
	wait     func(ctx context.Context, d time.Duration) error
}

func NewQueryEmbedder(embed EmbedFunc, cfg QueryEmbedderConfig, logger *slog.Logger, observer RetrievalObserver) *QueryEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = noopObserver{}
	}
	if cfg.Name == "" {
		cfg.Name = "text"
	}
	return &QueryEmbedder{
		embed:    embed,
		cfg:      cfg,
		logger:   logger,
		observer: observer,
		wait:     sleepContext,
	}
}

func (q *QueryEmbedder) Embed(ctx context.Context, text string) (domain.QueryEmbedding, error) {
	var lastErr error
	for attempt := 1; attempt <= queryEmbeddingAttempts; attempt++ {
		vector, err := q.embedOnce(ctx, text)
		if err == nil {
			if q.cfg.Dimension > 0 && len(vector) != q.cfg.Dimension {
				return domain.QueryEmbedding{}, domain.WrapError(
					domain.ErrEmbeddingDimension,
					"embed query",
					fmt.Errorf("%s embedding has %d dimensions, index expects %d", q.cfg.Name, len(vector), q.cfg.Dimension),
				)
			}
			return domain.QueryEmbedding{Vector: vector}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.QueryEmbedding{}, ctxErr
		}
		lastErr = err

		if attempt < queryEmbeddingAttempts {
			q.logger.Warn("query_embedding_retry",
				"embedder", q.cfg.Name,
				"attempt", attempt,
				"backoff_ms", q.cfg.Backoff.Milliseconds(),
				"error", err,
			)
			if err := q.wait(ctx, q.cfg.Backoff); err != nil {
				return domain.QueryEmbedding{}, err
			}
		}
	}

	q.logger.Error("query_embedding_degraded",
		"embedder", q.cfg.Name,
		"error", domain.WrapError(domain.ErrEmbeddingFailure, "embed query", lastErr),
	)
	q.observer.ObserveDegradedEmbedding(q.cfg.Name)
	return domain.QueryEmbedding{
		Vector:      make([]float32, q.cfg.Dimension),
		Placeholder: true,
	}, nil
}

func (q *QueryEmbedder) embedOnce(ctx context.Context, text string) ([]float32, error) {
	if q.embed == nil {
		return nil, errors.New("embedder is not configured")
	}
	callCtx := ctx
	if q.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, q.cfg.Timeout)
		defer cancel()
	}
	return q.embed(callCtx, text)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
