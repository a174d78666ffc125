// internal/llmclient/router_test.go
package llmclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
)

// stubClient records which tier client served a request.
type stubClient struct {
	name  string
	calls int
}

func (s *stubClient) Generate(ctx context.Context, req schemas.GenerationRequest) (schemas.GenerationResult, error) {
	s.calls++
	return schemas.GenerationResult{Content: s.name}, nil
}

func TestNewLLMRouter_RequiresBothClients(t *testing.T) {
	_, err := NewLLMRouter(zap.NewNop(), nil, &stubClient{}, 0)
	require.Error(t, err)
	_, err = NewLLMRouter(zap.NewNop(), &stubClient{}, nil, 0)
	require.Error(t, err)
}

func TestLLMRouter_RoutesByTier(t *testing.T) {
	fast := &stubClient{name: "fast"}
	powerful := &stubClient{name: "powerful"}
	router, err := NewLLMRouter(zap.NewNop(), fast, powerful, 0)
	require.NoError(t, err)

	result, err := router.Generate(context.Background(), schemas.GenerationRequest{Tier: schemas.TierFast})
	require.NoError(t, err)
	assert.Equal(t, "fast", result.Content)

	result, err = router.Generate(context.Background(), schemas.GenerationRequest{Tier: schemas.TierPowerful})
	require.NoError(t, err)
	assert.Equal(t, "powerful", result.Content)

	// An unset tier defaults to the powerful client.
	result, err = router.Generate(context.Background(), schemas.GenerationRequest{})
	require.NoError(t, err)
	assert.Equal(t, "powerful", result.Content)
	assert.Equal(t, 2, powerful.calls)
}

func TestLLMRouter_UnknownTier(t *testing.T) {
	router, err := NewLLMRouter(zap.NewNop(), &stubClient{}, &stubClient{}, 0)
	require.NoError(t, err)

	_, err = router.Generate(context.Background(), schemas.GenerationRequest{Tier: "mythical"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no LLM client configured")
}

func TestLLMRouter_RateLimiterHonorsCancellation(t *testing.T) {
	// One request per minute with a burst of one: the second request must
	// block, and a canceled context must surface instead of hanging.
	router, err := NewLLMRouter(zap.NewNop(), &stubClient{}, &stubClient{}, 1)
	require.NoError(t, err)

	_, err = router.Generate(context.Background(), schemas.GenerationRequest{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = router.Generate(ctx, schemas.GenerationRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
}
