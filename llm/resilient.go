package llm

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/flowline-ai/flowline/types"
)

// ResilientConfig bounds and paces calls to the generation collaborator.
type ResilientConfig struct {
	// Timeout applied per attempt.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// MaxAttempts including the first call.
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`
	// Backoff between attempts, doubled each retry.
	Backoff time.Duration `yaml:"backoff" json:"backoff"`
	// RequestsPerSecond caps outbound calls; zero disables the limiter.
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	// Burst for the rate limiter.
	Burst int `yaml:"burst" json:"burst"`
}

// DefaultResilientConfig returns conservative defaults.
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		Timeout:     30 * time.Second,
		MaxAttempts: 3,
		Backoff:     500 * time.Millisecond,
	}
}

// ResilientGenerator decorates a Generator with per-attempt timeouts,
// bounded retries, and optional rate limiting. It does not alter the
// request or result.
type ResilientGenerator struct {
	inner   Generator
	config  ResilientConfig
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewResilientGenerator wraps inner with the given policy.
func NewResilientGenerator(inner Generator, config ResilientConfig, logger *zap.Logger) *ResilientGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	var limiter *rate.Limiter
	if config.RequestsPerSecond > 0 {
		burst := config.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), burst)
	}
	return &ResilientGenerator{
		inner:   inner,
		config:  config,
		limiter: limiter,
		logger:  logger.With(zap.String("component", "resilient_generator")),
	}
}

// Generate implements Generator.
func (g *ResilientGenerator) Generate(ctx context.Context, req *Request) (*Result, error) {
	var lastErr *types.Error
	backoff := g.config.Backoff

	for attempt := 1; attempt <= g.config.MaxAttempts; attempt++ {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return nil, ClassifyError(err)
			}
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if g.config.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, g.config.Timeout)
		}
		result, err := g.inner.Generate(attemptCtx, req)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return result, nil
		}

		lastErr = ClassifyError(err)
		g.logger.Warn("generation attempt failed",
			zap.String("agent_id", req.AgentID),
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)
		if !lastErr.Retryable || attempt == g.config.MaxAttempts {
			break
		}
		// The parent context aborting ends the retry loop early.
		select {
		case <-ctx.Done():
			return nil, ClassifyError(ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return nil, types.NewErrorf(types.ErrGenerationExhausted,
		"generation failed after %d attempts", g.config.MaxAttempts).WithCause(lastErr)
}
