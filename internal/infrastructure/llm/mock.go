package llm

import (
	"context"
	"hash/fnv"
	"strings"
	"time"
	"unicode"

	"namesmith-ai-api/internal/application/pricing"
	"namesmith-ai-api/internal/domain/entity"
	"namesmith-ai-api/internal/domain/service"
)

var (
	mockSuffixes = []string{"ly", "io", "ify", "hub", "nest", "forge", "wave", "spark", "labs", "works", "loop", "mint"}
	mockPrefixes = []string{"go", "bright", "true", "nova", "blue", "peak", "kin", "zen"}
	stopWords    = map[string]struct{}{
		"the": {}, "and": {}, "for": {}, "with": {}, "that": {}, "this": {}, "name": {}, "names": {},
		"my": {}, "our": {}, "business": {}, "company": {}, "startup": {}, "from": {}, "into": {},
	}
)

// MockAdapter 确定性的本地适配器，不访问网络（开发与测试使用）
type MockAdapter struct {
	desc    entity.ModelDescriptor
	latency time.Duration
}

// NewMockAdapter 创建 Mock 适配器
func NewMockAdapter(desc entity.ModelDescriptor, latency time.Duration) *MockAdapter {
	return &MockAdapter{desc: desc, latency: latency}
}

// Generate 根据提示词中的关键词拼出候选名称；相同输入得到相同输出
func (a *MockAdapter) Generate(ctx context.Context, req service.GenerationRequest) (*service.GenerationResult, error) {
	if a.latency > 0 {
		t := time.NewTimer(a.latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, service.ClassifyError(a.desc.ID, ctx.Err())
		case <-t.C:
		}
	}

	maxNames := req.MaxNames
	if maxNames <= 0 {
		maxNames = 10
	}

	source := req.BasePrompt
	if source == "" {
		source = req.Prompt
	}
	words := keywords(source)
	if len(words) == 0 {
		words = []string{"name"}
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(a.desc.ID + "\x00" + source + "\x00" + string(req.Mode)))
	seed := int(h.Sum32())

	candidates := make([]string, 0, maxNames*2)
	for i := 0; len(candidates) < maxNames*2; i++ {
		w := words[(seed+i)%len(words)]
		if i%3 == 2 {
			candidates = append(candidates, titleCase(mockPrefixes[(seed+i)%len(mockPrefixes)]+w))
		} else {
			candidates = append(candidates, titleCase(w+mockSuffixes[(seed+i)%len(mockSuffixes)]))
		}
	}
	names := dedupeNames(candidates, maxNames)

	return &service.GenerationResult{
		Names:        names,
		InputTokens:  pricing.EstimateTokens(req.Prompt),
		OutputTokens: len(names) * 4,
	}, nil
}

func keywords(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	out := make([]string, 0, len(fields))
	seen := map[string]struct{}{}
	for _, f := range fields {
		r := []rune(f)
		if len(r) < 3 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		if len(r) > 6 {
			f = string(r[:6])
		}
		out = append(out, f)
	}
	return out
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
