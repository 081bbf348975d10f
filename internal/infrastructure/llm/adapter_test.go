package llm

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"namesmith-ai-api/internal/config"
	"namesmith-ai-api/internal/domain/entity"
	"namesmith-ai-api/internal/domain/service"
)

type fakeChatModel struct {
	content string
	err     error
	usage   *schema.TokenUsage
	got     []*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.got = input
	if f.err != nil {
		return nil, f.err
	}
	return &schema.Message{
		Role:         schema.Assistant,
		Content:      f.content,
		ResponseMeta: &schema.ResponseMeta{Usage: f.usage},
	}, nil
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

var gptDesc = entity.ModelDescriptor{ID: "gpt-4", Provider: "openai"}

func TestChatModelAdapterSuccess(t *testing.T) {
	fm := &fakeChatModel{
		content: `{"names":["Brewly","BeanBurst"]}`,
		usage:   &schema.TokenUsage{PromptTokens: 120, CompletionTokens: 30},
	}
	a := NewChatModelAdapter(fm, gptDesc)

	res, err := a.Generate(context.Background(), service.GenerationRequest{ModelID: "gpt-4", Prompt: "p", MaxNames: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"Brewly", "BeanBurst"}, res.Names)
	assert.Equal(t, 120, res.InputTokens)
	assert.Equal(t, 30, res.OutputTokens)
	require.Len(t, fm.got, 2)
	assert.Equal(t, schema.System, fm.got[0].Role)
	assert.Equal(t, "p", fm.got[1].Content)
}

func TestChatModelAdapterErrors(t *testing.T) {
	a := NewChatModelAdapter(&fakeChatModel{err: errors.New("upstream 500")}, gptDesc)
	_, err := a.Generate(context.Background(), service.GenerationRequest{ModelID: "gpt-4", Prompt: "p"})
	var ge *service.GenerationError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, entity.FailureProviderError, ge.Kind)
	assert.Equal(t, "provider error", ge.PublicMessage())

	a = NewChatModelAdapter(&fakeChatModel{err: context.DeadlineExceeded}, gptDesc)
	_, err = a.Generate(context.Background(), service.GenerationRequest{ModelID: "gpt-4", Prompt: "p"})
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, entity.FailureTimeout, ge.Kind)

	a = NewChatModelAdapter(&fakeChatModel{content: "sorry"}, gptDesc)
	_, err = a.Generate(context.Background(), service.GenerationRequest{ModelID: "gpt-4", Prompt: "p"})
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, entity.FailureProviderError, ge.Kind)
}

func TestMockAdapterDeterministic(t *testing.T) {
	a := NewMockAdapter(entity.ModelDescriptor{ID: "mock-namer", Provider: "mock"}, 0)
	req := service.GenerationRequest{ModelID: "mock-namer", BasePrompt: "Name my coffee roasting startup", Prompt: "x", MaxNames: 10}

	r1, err := a.Generate(context.Background(), req)
	require.NoError(t, err)
	r2, err := a.Generate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, r1.Names, r2.Names)
	assert.NotEmpty(t, r1.Names)
	assert.LessOrEqual(t, len(r1.Names), 10)
}

func TestMockAdapterKeepsMultibyteKeywordsIntact(t *testing.T) {
	assert.Equal(t, []string{"aééééé", "café"}, keywords("aéééééé café"))

	a := NewMockAdapter(entity.ModelDescriptor{ID: "mock-namer"}, 0)
	res, err := a.Generate(context.Background(), service.GenerationRequest{ModelID: "mock-namer", BasePrompt: "aéééééé résumé", MaxNames: 5})
	require.NoError(t, err)
	require.NotEmpty(t, res.Names)
	for _, n := range res.Names {
		assert.True(t, utf8.ValidString(n), "%q", n)
	}
}

func TestMockAdapterHonoursContext(t *testing.T) {
	a := NewMockAdapter(entity.ModelDescriptor{ID: "mock-namer"}, time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := a.Generate(ctx, service.GenerationRequest{ModelID: "mock-namer", Prompt: "x"})
	var ge *service.GenerationError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, entity.FailureTimeout, ge.Kind)
}

func fastPolicy(n int) RetryPolicy {
	return RetryPolicy{MaxAttempts: n, Initial: time.Millisecond, Max: 2 * time.Millisecond, Multiplier: 2}
}

func TestRetryingAdapterRetriesTransientErrors(t *testing.T) {
	calls := 0
	next := service.NameGeneratorFunc(func(context.Context, service.GenerationRequest) (*service.GenerationResult, error) {
		calls++
		if calls < 3 {
			return nil, service.NewProviderError("gpt-4", errors.New("503 overloaded"))
		}
		return &service.GenerationResult{Names: []string{"Brewly"}}, nil
	})

	res, err := NewRetryingAdapter(next, fastPolicy(3)).Generate(context.Background(), service.GenerationRequest{ModelID: "gpt-4"})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []string{"Brewly"}, res.Names)
}

func TestRetryingAdapterStopsAfterMaxAttempts(t *testing.T) {
	calls := 0
	next := service.NameGeneratorFunc(func(context.Context, service.GenerationRequest) (*service.GenerationResult, error) {
		calls++
		return nil, errors.New("502 bad gateway")
	})

	_, err := NewRetryingAdapter(next, fastPolicy(2)).Generate(context.Background(), service.GenerationRequest{ModelID: "gpt-4"})
	var ge *service.GenerationError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, entity.FailureProviderError, ge.Kind)
	assert.Equal(t, 2, calls)
}

func TestIsPermanentErrorMatchesStatusCodes(t *testing.T) {
	cases := map[string]bool{
		"status 400: invalid request":            true,
		"HTTP 403 Forbidden":                     true,
		"error code: 401":                        true,
		"400 rate limit exceeded":                false,
		"timeout after 4000ms":                   false,
		"request req_84001 failed with 503":      false,
		"upstream returned 1400 tokens then 502": false,
	}
	for text, want := range cases {
		assert.Equal(t, want, isPermanentError(errors.New(text)), text)
	}
}

func TestRetryingAdapterDoesNotRetryPermanent(t *testing.T) {
	for _, e := range []error{
		service.NewUnavailableError("gpt-4", errors.New("maintenance")),
		errors.New("401 unauthorized"),
	} {
		calls := 0
		next := service.NameGeneratorFunc(func(context.Context, service.GenerationRequest) (*service.GenerationResult, error) {
			calls++
			return nil, e
		})
		_, err := NewRetryingAdapter(next, fastPolicy(3)).Generate(context.Background(), service.GenerationRequest{ModelID: "gpt-4"})
		require.Error(t, err)
		assert.Equal(t, 1, calls, e.Error())
	}
}

type mapStore struct {
	mu   sync.Mutex
	data map[string][]byte
	fail bool
}

func (m *mapStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errors.New("redis down")
	}
	v, ok := m.data[key]
	if !ok {
		return nil, errors.New("miss")
	}
	return v, nil
}

func (m *mapStore) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("redis down")
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = b
	return nil
}

func TestMemoizingAdapterServesRepeatFromStore(t *testing.T) {
	calls := 0
	next := service.NameGeneratorFunc(func(context.Context, service.GenerationRequest) (*service.GenerationResult, error) {
		calls++
		return &service.GenerationResult{Names: []string{"Brewly", "Crema"}, InputTokens: 10, OutputTokens: 8}, nil
	})
	store := &mapStore{data: map[string][]byte{}}
	a := NewMemoizingAdapter(next, store, time.Hour)

	req := service.GenerationRequest{ModelID: "gpt-4", BasePrompt: "Coffee  shop", Mode: entity.ModeCreative}
	first, err := a.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Memoized)

	req.BasePrompt = "coffee shop"
	second, err := a.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Memoized)
	assert.Equal(t, first.Names, second.Names)
	assert.Equal(t, 10, second.InputTokens, "memo hits report the tokens of the original call")
	assert.Equal(t, 8, second.OutputTokens)
	assert.GreaterOrEqual(t, second.Latency, time.Duration(0))
	assert.Equal(t, 1, calls)
}

func TestMemoizingAdapterDegradesOnStoreFailure(t *testing.T) {
	calls := 0
	next := service.NameGeneratorFunc(func(context.Context, service.GenerationRequest) (*service.GenerationResult, error) {
		calls++
		return &service.GenerationResult{Names: []string{"Brewly"}}, nil
	})
	a := NewMemoizingAdapter(next, &mapStore{fail: true}, time.Hour)

	for i := 0; i < 2; i++ {
		res, err := a.Generate(context.Background(), service.GenerationRequest{ModelID: "gpt-4", BasePrompt: "x"})
		require.NoError(t, err)
		assert.Equal(t, []string{"Brewly"}, res.Names)
	}
	assert.Equal(t, 2, calls)
}

func TestAdapterResolverMockAndWrapping(t *testing.T) {
	cfg := testConfig()
	cfg.Generation.Retry = config.RetryConfig{MaxAttempts: 2}
	cfg.Generation.Memoize = true
	cfg.Generation.MemoTTL = time.Hour
	registry := NewModelRegistry(cfg)
	resolver := NewAdapterResolver(registry, NewEinoFactory(registry), &mapStore{data: map[string][]byte{}}, config.NewStaticManager(cfg))

	desc, err := registry.Available("mock-namer")
	require.NoError(t, err)
	gen, err := resolver.Resolve(context.Background(), desc)
	require.NoError(t, err)
	_, ok := gen.(*MemoizingAdapter)
	assert.True(t, ok)

	res, err := gen.Generate(context.Background(), service.GenerationRequest{ModelID: "mock-namer", BasePrompt: "Name my bakery", Prompt: "p", MaxNames: 5})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Names)
}
