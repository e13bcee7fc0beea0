package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"vop/internal/model"
	"vop/pkg/errorx"
)

// HTTPTranscriber 语音转写服务 HTTP 客户端
type HTTPTranscriber struct {
	baseURL string
	token   string
	httpCli *http.Client
}

// NewHTTPTranscriber 创建转写服务客户端
func NewHTTPTranscriber(baseURL, token string, timeout time.Duration) *HTTPTranscriber {
	return &HTTPTranscriber{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpCli: &http.Client{Timeout: timeout},
	}
}

// Transcribe 提交音频字节并取得转写结果
// 配额拒绝（429）与一般故障分开归类
func (t *HTTPTranscriber) Transcribe(ctx context.Context, data []byte) (*model.Transcription, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/v1/transcribe", bytes.NewReader(data))
	if err != nil {
		return nil, errorx.Transient("build transcribe request failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.httpCli.Do(req)
	if err != nil {
		return nil, errorx.Transient("transcribe request failed: %v", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, errorx.Quota("transcription service quota exhausted")
	case resp.StatusCode >= 500:
		return nil, errorx.Transient("transcription service error: status=%d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, errorx.Validation("transcribe request rejected: status=%d", resp.StatusCode)
	}

	var out struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
		DurationMS int64   `json:"duration_ms"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errorx.Transient("decode transcribe response failed: %v", err)
	}

	return &model.Transcription{
		Text:       out.Text,
		Confidence: out.Confidence,
		Duration:   time.Duration(out.DurationMS) * time.Millisecond,
	}, nil
}
