package service

import "namesmith-ai-api/internal/domain/entity"

// ModelCatalog 模型注册表端口
type ModelCatalog interface {
	// Lookup 查找模型描述（不校验可用性）
	Lookup(id string) (entity.ModelDescriptor, bool)

	// Available 返回可派发的模型描述；不可用时返回 *GenerationError(Kind=unavailable)
	Available(id string) (entity.ModelDescriptor, error)

	// List 按 ID 排序返回全部模型
	List() []entity.ModelDescriptor
}
