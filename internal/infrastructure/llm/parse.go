package llm

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxNameLength = 60

var listMarker = regexp.MustCompile(`^\s*(?:[-*•]+|\d+[.)]|\(\d+\))\s*`)

// ParseCandidates 从模型输出中解析候选名称
// 支持 JSON 数组、含 names 字段的 JSON 对象，以及编号/项目符号列表；结果去重并截断到 maxNames
func ParseCandidates(output string, maxNames int) []string {
	if maxNames <= 0 {
		maxNames = 10
	}

	raw := extractJSONValue(output)
	var names []string

	var arr []string
	if err := json.Unmarshal([]byte(raw), &arr); err == nil {
		names = arr
	} else {
		var obj struct {
			Names []string `json:"names"`
		}
		if err := json.Unmarshal([]byte(raw), &obj); err == nil && len(obj.Names) > 0 {
			names = obj.Names
		} else {
			names = parseLines(output)
		}
	}

	return dedupeNames(names, maxNames)
}

// extractJSONValue 截取输出中第一个 JSON 对象/数组；模型可能在 JSON 前后夹杂说明或代码围栏
func extractJSONValue(s string) string {
	raw := strings.TrimSpace(s)
	objStart := strings.Index(raw, "{")
	arrStart := strings.Index(raw, "[")

	start, end := -1, -1
	switch {
	case objStart >= 0 && (arrStart < 0 || objStart < arrStart):
		start = objStart
		end = strings.LastIndex(raw, "}")
	case arrStart >= 0:
		start = arrStart
		end = strings.LastIndex(raw, "]")
	}
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

func parseLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		if !listMarker.MatchString(line) {
			continue
		}
		line = listMarker.ReplaceAllString(line, "")
		// "Brewly - a playful blend" 只保留名称部分
		if i := strings.Index(line, " - "); i > 0 {
			line = line[:i]
		}
		if i := strings.Index(line, ": "); i > 0 {
			line = line[:i]
		}
		out = append(out, line)
	}
	return out
}

func dedupeNames(names []string, maxNames int) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.Trim(strings.TrimSpace(n), `"'*`+"`")
		if n == "" || utf8.RuneCountInString(n) > maxNameLength {
			continue
		}
		key := strings.ToLower(n)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, n)
		if len(out) == maxNames {
			break
		}
	}
	return out
}
