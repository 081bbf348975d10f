// Package prompt 提供命名提示词的优化与缓存键计算（纯函数）
package prompt

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"namesmith-ai-api/internal/domain/entity"
)

// DefaultMaxNames 默认每个模型返回的候选名数量上限
const DefaultMaxNames = 10

// CacheKeyPrefix 记忆化缓存键前缀
const CacheKeyPrefix = "namegen:memo:"

// SystemPrompt 所有模型共用的系统提示词
const SystemPrompt = "You are an expert brand strategist who invents memorable, pronounceable business names. " +
	"You reply with machine-readable JSON only."

var modeInstructions = map[entity.GenerationMode]string{
	entity.ModeCreative:     "Style: creative. Favour playful coinages, unexpected word blends and evocative imagery.",
	entity.ModeProfessional: "Style: professional. Favour clear, trustworthy names that suit an established firm; avoid puns.",
	entity.ModeBrandable:    "Style: brandable. Favour short (2-3 syllable) invented words that are easy to trademark and spell.",
	entity.ModeTechFocused:  "Style: tech-focused. Favour names that signal software, data or innovation; compound words and suffixes like -ly, -io, -ify are welcome.",
	entity.ModeOther:        "Style: balanced. Mix descriptive and invented names.",
}

const deepThinkingBlock = "Before answering, consider the target audience, the market positioning, and how each name sounds when spoken aloud. " +
	"Discard names that are generic, hard to spell, or likely to be taken. Only output the final list."

// Family 模型所属的提示词风格族
func Family(modelID string) string {
	id := strings.ToLower(modelID)
	switch {
	case strings.HasPrefix(id, "gpt"), strings.HasPrefix(id, "o1"), strings.HasPrefix(id, "o3"):
		return "openai"
	case strings.HasPrefix(id, "claude"):
		return "anthropic"
	case strings.HasPrefix(id, "gemini"):
		return "google"
	case strings.HasPrefix(id, "grok"):
		return "xai"
	default:
		return "generic"
	}
}

var familyTails = map[string]string{
	"openai":    "Keep each name under 20 characters.",
	"anthropic": "Do not add commentary before or after the JSON.",
	"google":    "Do not wrap the JSON in markdown code fences.",
	"xai":       "Be bold, but keep every name suitable for a professional audience.",
	"generic":   "",
}

// Optimize 按风格、深度思考与模型族改写提示词，使用默认数量上限
func Optimize(base string, mode entity.GenerationMode, deepThinking bool, modelID string) string {
	return OptimizeWithLimit(base, mode, deepThinking, modelID, DefaultMaxNames)
}

// OptimizeWithLimit 同 Optimize，指定数量上限；结果只取决于入参
func OptimizeWithLimit(base string, mode entity.GenerationMode, deepThinking bool, modelID string, maxNames int) string {
	if maxNames <= 0 {
		maxNames = DefaultMaxNames
	}
	instr, ok := modeInstructions[mode]
	if !ok {
		instr = modeInstructions[entity.ModeOther]
	}

	var b strings.Builder
	b.WriteString("Business description:\n")
	b.WriteString(strings.TrimSpace(base))
	b.WriteString("\n\n")
	b.WriteString(instr)
	b.WriteString("\n")
	if deepThinking {
		b.WriteString(deepThinkingBlock)
		b.WriteString("\n")
	}
	if tail := familyTails[Family(modelID)]; tail != "" {
		b.WriteString(tail)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Return exactly one JSON object of the form {\"names\": [\"...\"]} containing at most %d unique names.", maxNames)
	return b.String()
}

// Normalize 小写并折叠空白
func Normalize(p string) string {
	return strings.Join(strings.Fields(strings.ToLower(p)), " ")
}

// CacheKey 记忆化缓存键：前缀 + sha256(model, 规范化提示词, 风格, 深度思考)
func CacheKey(modelID, basePrompt string, mode entity.GenerationMode, deepThinking bool) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%t", modelID, Normalize(basePrompt), mode, deepThinking)
	return CacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}
