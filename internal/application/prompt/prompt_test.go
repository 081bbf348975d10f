package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"namesmith-ai-api/internal/domain/entity"
)

func TestOptimizeIsDeterministic(t *testing.T) {
	a := Optimize("Name my coffee startup", entity.ModeCreative, true, "gpt-4")
	b := Optimize("Name my coffee startup", entity.ModeCreative, true, "gpt-4")
	assert.Equal(t, a, b)
}

func TestOptimizeVariesByInputs(t *testing.T) {
	base := Optimize("Name my coffee startup", entity.ModeCreative, false, "gpt-4")

	assert.NotEqual(t, base, Optimize("Name my coffee startup", entity.ModeProfessional, false, "gpt-4"))
	assert.NotEqual(t, base, Optimize("Name my coffee startup", entity.ModeCreative, true, "gpt-4"))
	assert.NotEqual(t, base, Optimize("Name my coffee startup", entity.ModeCreative, false, "claude-3.5-sonnet"))
}

func TestOptimizeEndsWithOutputContract(t *testing.T) {
	for _, model := range []string{"gpt-4", "claude-3.5-sonnet", "gemini-1.5-pro", "grok-2", "mock-namer"} {
		p := OptimizeWithLimit("Name my bakery", entity.ModeBrandable, false, model, 5)
		assert.True(t, strings.HasSuffix(p, "containing at most 5 unique names."), model)
		assert.Contains(t, p, "Name my bakery")
	}
}

func TestOptimizeDeepThinkingBlock(t *testing.T) {
	assert.Contains(t, Optimize("x", entity.ModeOther, true, "gpt-4"), "target audience")
	assert.NotContains(t, Optimize("x", entity.ModeOther, false, "gpt-4"), "target audience")
}

func TestFamily(t *testing.T) {
	assert.Equal(t, "openai", Family("gpt-4o"))
	assert.Equal(t, "anthropic", Family("Claude-3.5-sonnet"))
	assert.Equal(t, "google", Family("gemini-1.5-pro"))
	assert.Equal(t, "xai", Family("grok-2"))
	assert.Equal(t, "generic", Family("mock-namer"))
}

func TestCacheKeyNormalizesPrompt(t *testing.T) {
	a := CacheKey("gpt-4", "Name my   Coffee startup", entity.ModeCreative, false)
	b := CacheKey("gpt-4", "  name my coffee\nstartup ", entity.ModeCreative, false)
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, CacheKeyPrefix))
	assert.Len(t, strings.TrimPrefix(a, CacheKeyPrefix), 64)

	assert.NotEqual(t, a, CacheKey("gpt-4", "Name my coffee startup", entity.ModeCreative, true))
	assert.NotEqual(t, a, CacheKey("gpt-4", "Name my coffee startup", entity.ModeBrandable, false))
	assert.NotEqual(t, a, CacheKey("gpt-4o", "Name my coffee startup", entity.ModeCreative, false))
}
