package llm_test

import (
	"context"
	"testing"
	"time"

	"ideasim/llm"
	"ideasim/llm/llmtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRateLimited_DisabledReturnsInner(t *testing.T) {
	inner := &llmtest.ScriptedGateway{}
	assert.Same(t, inner, llm.NewRateLimited(inner, 0, 0))
}

func TestRateLimited_WaitFailureIsTransport(t *testing.T) {
	inner := &llmtest.ScriptedGateway{}
	gw := llm.NewRateLimited(inner, 0.001, 1)

	// First call consumes the only token.
	_, err := gw.Complete(context.Background(), llm.Request{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = gw.Complete(ctx, llm.Request{})

	require.Error(t, err)
	assert.True(t, llm.IsTransport(err))
	assert.Equal(t, 1, inner.CallCount())
}
