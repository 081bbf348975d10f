package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"namesmith-ai-api/internal/config"
	"namesmith-ai-api/internal/domain/entity"
	"namesmith-ai-api/internal/domain/service"
)

func testConfig() *config.Config {
	return &config.Config{
		LLM: config.LLMConfig{Providers: map[string]config.ProviderConfig{
			"openai":    {APIKey: "sk-test", Timeout: 20 * time.Second},
			"anthropic": {},
		}},
		Models: map[string]config.ModelConfig{
			"gpt-4":                {Provider: "openai", Enabled: true, InputCostPer1K: 3},
			"claude-3.5-sonnet":    {Provider: "anthropic", Enabled: true},
			"claude-env":           {Provider: "anthropic", Enabled: true, CredentialEnv: "NS_CLAUDE_KEY"},
			"model-in-maintenance": {Provider: "openai", Enabled: true, Maintenance: true},
			"disabled":             {Provider: "openai", Enabled: false},
			"mock-namer":           {Provider: "mock", Enabled: true},
			"weird":                {Provider: "cohere", Enabled: true},
		},
	}
}

func unavailableKind(t *testing.T, err error) entity.FailureKind {
	t.Helper()
	var ge *service.GenerationError
	require.ErrorAs(t, err, &ge)
	return ge.Kind
}

func TestRegistryAvailable(t *testing.T) {
	r := NewModelRegistry(testConfig())
	r.lookupEnv = func(string) string { return "" }

	d, err := r.Available("gpt-4")
	require.NoError(t, err)
	assert.Equal(t, "openai", d.Provider)
	assert.Equal(t, 20*time.Second, d.Timeout)

	_, err = r.Available("mock-namer")
	require.NoError(t, err)

	for _, id := range []string{"nope", "disabled", "model-in-maintenance", "claude-3.5-sonnet", "weird"} {
		_, err := r.Available(id)
		assert.Equal(t, entity.FailureUnavailable, unavailableKind(t, err), id)
	}
}

func TestRegistryCredentialFromEnv(t *testing.T) {
	r := &ModelRegistry{lookupEnv: func(k string) string {
		if k == "NS_CLAUDE_KEY" {
			return "key"
		}
		return ""
	}}
	r.Reload(testConfig())

	_, err := r.Available("claude-env")
	assert.NoError(t, err)
}

func TestRegistryReloadSwaps(t *testing.T) {
	cfg := testConfig()
	r := NewModelRegistry(cfg)
	require.True(t, r.Known("gpt-4"))

	next := testConfig()
	delete(next.Models, "gpt-4")
	next.Models["gpt-4o"] = config.ModelConfig{Provider: "openai", Enabled: true}
	r.Reload(next)

	assert.False(t, r.Known("gpt-4"))
	assert.True(t, r.Known("gpt-4o"))
}

func TestRegistryListSorted(t *testing.T) {
	r := NewModelRegistry(testConfig())
	list := r.List()
	require.NotEmpty(t, list)
	for i := 1; i < len(list); i++ {
		assert.Less(t, list[i-1].ID, list[i].ID)
	}
}
