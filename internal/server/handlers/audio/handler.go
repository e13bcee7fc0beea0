package audio

import (
	"errors"
	"io"
	"io/fs"
	"net/http"

	"github.com/gin-gonic/gin"

	"vop/internal/model"
	"vop/internal/server/blob"
	"vop/pkg/ginx"
	"vop/pkg/logger"
)

// 与客户端录音体积上限保持一致
const maxUploadSize = 25 * 1024 * 1024

// AudioHandler 音频 HTTP 处理器
type AudioHandler struct {
	store blob.Store
	log   logger.Logger
}

// NewAudioHandler 创建音频处理器实例
func NewAudioHandler(store blob.Store, log logger.Logger) *AudioHandler {
	return &AudioHandler{
		store: store,
		log:   log,
	}
}

// Upload 音频上传接口，返回远端引用
// POST /api/v1/audio（application/octet-stream）
func (h *AudioHandler) Upload(c *gin.Context) {
	reader := http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)
	data, err := io.ReadAll(reader)
	if err != nil {
		ginx.BadRequest(c, "read audio body failed: "+err.Error())
		return
	}
	if len(data) == 0 {
		ginx.BadRequest(c, "audio body is empty")
		return
	}

	ref, err := h.store.Save(data)
	if err != nil {
		h.log.Errorf(c.Request.Context(), "[AudioHandler] save audio failed: %v", err)
		ginx.InternalError(c, err.Error())
		return
	}

	ginx.Success(c, gin.H{"ref": ref})
}

// Download 按引用回读音频字节
// GET /api/v1/audio/:id（:id 为引用中的 uuid 部分）
func (h *AudioHandler) Download(c *gin.Context) {
	ref := "audio/" + c.Param("id")
	if err := model.ValidateAudioRef(ref); err != nil {
		ginx.BadRequest(c, err.Error())
		return
	}

	data, err := h.store.Load(ref)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			ginx.NotFound(c, "audio not found")
			return
		}
		h.log.Errorf(c.Request.Context(), "[AudioHandler] load audio %s failed: %v", ref, err)
		ginx.InternalError(c, err.Error())
		return
	}

	c.Data(http.StatusOK, "application/octet-stream", data)
}
