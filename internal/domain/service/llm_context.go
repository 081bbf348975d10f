package service

import (
	"context"
	"strings"
)

// CallLabels 单次模型调用的归属，供上游回调打点与追踪使用
type CallLabels struct {
	SessionID string
	Provider  string
	ModelID   string
}

type callLabelsKey struct{}

const unknownLabel = "unknown"

// WithCallLabels 标记当前调用；空字段保留外层已有的值
func WithCallLabels(ctx context.Context, l CallLabels) context.Context {
	cur, _ := ctx.Value(callLabelsKey{}).(CallLabels)
	if s := strings.TrimSpace(l.SessionID); s != "" {
		cur.SessionID = s
	}
	if p := strings.TrimSpace(l.Provider); p != "" {
		cur.Provider = p
	}
	if m := strings.TrimSpace(l.ModelID); m != "" {
		cur.ModelID = m
	}
	return context.WithValue(ctx, callLabelsKey{}, cur)
}

// CallLabelsFromContext 未标记的字段返回 "unknown"，可直接作为指标标签
func CallLabelsFromContext(ctx context.Context) CallLabels {
	var l CallLabels
	if ctx != nil {
		l, _ = ctx.Value(callLabelsKey{}).(CallLabels)
	}
	for _, f := range []*string{&l.SessionID, &l.Provider, &l.ModelID} {
		if *f == "" {
			*f = unknownLabel
		}
	}
	return l
}
