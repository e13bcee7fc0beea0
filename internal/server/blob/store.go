package blob

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"vop/internal/model"
)

// Store 音频文件存储接口
type Store interface {
	// Save 保存音频字节，返回远端引用（audio/<uuid>）
	Save(data []byte) (string, error)

	// Load 按引用读取音频字节
	Load(ref string) ([]byte, error)
}

// FSStore 本地文件系统实现
// 引用 audio/<uuid> 映射到 <dir>/<uuid>.bin
type FSStore struct {
	dir string
}

// NewFSStore 创建文件存储，目录不存在时创建
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir failed: %w", err)
	}
	return &FSStore{dir: dir}, nil
}

// Save 落盘并返回新引用
func (s *FSStore) Save(data []byte) (string, error) {
	ref := model.NewAudioRef()
	if err := os.WriteFile(s.path(ref), data, 0o644); err != nil {
		return "", fmt.Errorf("write blob failed: %w", err)
	}
	return ref, nil
}

// Load 按引用读取
func (s *FSStore) Load(ref string) ([]byte, error) {
	if err := model.ValidateAudioRef(ref); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(ref))
	if err != nil {
		return nil, fmt.Errorf("read blob failed: %w", err)
	}
	return data, nil
}

func (s *FSStore) path(ref string) string {
	name := strings.TrimPrefix(ref, "audio/")
	return filepath.Join(s.dir, name+".bin")
}
