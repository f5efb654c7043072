package llm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/flowline-ai/flowline/types"
)

func TestResilientGenerator_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	inner := GeneratorFunc(func(_ context.Context, _ *Request) (*Result, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("connection reset")
		}
		return &Result{Text: "ok"}, nil
	})

	g := NewResilientGenerator(inner, ResilientConfig{
		MaxAttempts: 3,
		Backoff:     time.Millisecond,
	}, zap.NewNop())

	result, err := g.Generate(context.Background(), &Request{AgentID: "coder"})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Text)
	assert.Equal(t, int32(3), calls.Load())
}

func TestResilientGenerator_ExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	inner := GeneratorFunc(func(_ context.Context, _ *Request) (*Result, error) {
		calls.Add(1)
		return nil, errors.New("unreachable")
	})

	g := NewResilientGenerator(inner, ResilientConfig{
		MaxAttempts: 2,
		Backoff:     time.Millisecond,
	}, zap.NewNop())

	_, err := g.Generate(context.Background(), &Request{AgentID: "coder"})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrGenerationExhausted))
	assert.Equal(t, int32(2), calls.Load())
}

func TestResilientGenerator_TimeoutClassified(t *testing.T) {
	inner := GeneratorFunc(func(ctx context.Context, _ *Request) (*Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	g := NewResilientGenerator(inner, ResilientConfig{
		Timeout:     10 * time.Millisecond,
		MaxAttempts: 1,
	}, zap.NewNop())

	_, err := g.Generate(context.Background(), &Request{AgentID: "coder"})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrGenerationExhausted))

	var te *types.Error
	require.ErrorAs(t, err, &te)
	assert.True(t, types.IsCode(te.Cause, types.ErrGenerationTimeout))
}

func TestClassifyError(t *testing.T) {
	assert.Nil(t, ClassifyError(nil))

	te := ClassifyError(context.DeadlineExceeded)
	assert.Equal(t, types.ErrGenerationTimeout, te.Code)
	assert.True(t, te.Retryable)

	te = ClassifyError(errors.New("dial tcp: refused"))
	assert.Equal(t, types.ErrGenerationTransport, te.Code)
	assert.True(t, te.Retryable)
}
