package parsing

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"vop/internal/model"
	"vop/pkg/errorx"
)

// HTTPParser 解析服务 HTTP 客户端
// 服务端以 NDJSON 流式返回：若干 chunk 行，最后一个 result 行
type HTTPParser struct {
	baseURL string
	token   string
	httpCli *http.Client
}

// NewHTTPParser 创建解析服务客户端
func NewHTTPParser(baseURL, token string, timeout time.Duration) *HTTPParser {
	return &HTTPParser{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpCli: &http.Client{Timeout: timeout},
	}
}

// streamLine NDJSON 流中的一行
type streamLine struct {
	Type    string             `json:"type"` // chunk / result / error
	Delta   string             `json:"delta,omitempty"`
	Items   []model.ParsedItem `json:"items,omitempty"`
	Reply   string             `json:"reply,omitempty"`
	Message string             `json:"message,omitempty"`
}

// ParseStream 调用解析服务并流式回传增量文本
func (p *HTTPParser) ParseStream(ctx context.Context, transcript string, suppliers []model.SupplierContext, onChunk ChunkFunc) (*model.ParseResult, error) {
	reqBody, err := json.Marshal(map[string]interface{}{
		"text":      transcript,
		"suppliers": suppliers,
	})
	if err != nil {
		return nil, errorx.Validation("marshal parse request failed: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/parse", bytes.NewReader(reqBody))
	if err != nil {
		return nil, errorx.Transient("build parse request failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.httpCli.Do(req)
	if err != nil {
		return nil, errorx.Transient("parse request failed: %v", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		// 配额耗尽与一般瞬时故障分开上报，UI 需要区分"忙"与"坏"
		return nil, errorx.Quota("parsing service quota exhausted")
	case resp.StatusCode >= 500:
		return nil, errorx.Transient("parsing service error: status=%d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, errorx.Validation("parse request rejected: status=%d", resp.StatusCode)
	}

	// 逐行读取 NDJSON 流
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var result *model.ParseResult
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var sl streamLine
		if err := json.Unmarshal(line, &sl); err != nil {
			return nil, errorx.Transient("decode parse stream failed: %v", err)
		}

		switch sl.Type {
		case "chunk":
			if onChunk != nil && sl.Delta != "" {
				onChunk(sl.Delta)
			}
		case "result":
			result = &model.ParseResult{Items: sl.Items, Reply: sl.Reply}
		case "error":
			return nil, errorx.Transient("parsing service reported: %s", sl.Message)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errorx.Transient("read parse stream failed: %v", err)
	}

	if result == nil {
		return nil, errorx.Transient("parse stream ended without result")
	}
	return result, nil
}
