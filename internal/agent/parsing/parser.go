package parsing

import (
	"context"

	"vop/internal/model"
)

// ChunkFunc 流式输出回调，收到一段增量文本
type ChunkFunc func(delta string)

// Parser 生成式解析服务接口
// 输入为按序列号拼接的完整未处理口述文本；部分输出通过 onChunk 流式回传
type Parser interface {
	ParseStream(ctx context.Context, transcript string, suppliers []model.SupplierContext, onChunk ChunkFunc) (*model.ParseResult, error)
}
