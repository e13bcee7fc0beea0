package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"vop/internal/model"
	"vop/pkg/errorx"
)

// Store 远端存储接口（行级操作）
// 命令队列与同步对账器走同一条持久化路径
type Store interface {
	// UpsertOrder 幂等写入订单行
	UpsertOrder(ctx context.Context, order model.OrderPayload) error

	// InsertMessage 幂等写入消息行（order_id + sequence_number 去重）
	InsertMessage(ctx context.Context, msg model.MessagePayload) error

	// UploadAudio 上传音频，返回远端引用
	UploadAudio(ctx context.Context, data []byte) (string, error)

	// ProcessOrder 触发订单处理用例（定稿 → 派发供应商通知任务）
	ProcessOrder(ctx context.Context, orderID string, suppliers []model.SupplierTarget) error
}

// Client apiserver HTTP 客户端
type Client struct {
	baseURL string
	token   string
	httpCli *http.Client
}

// NewClient 创建远端存储客户端
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpCli: &http.Client{Timeout: timeout},
	}
}

// UpsertOrder 幂等写入订单
func (c *Client) UpsertOrder(ctx context.Context, order model.OrderPayload) error {
	return c.doJSON(ctx, http.MethodPut, "/api/v1/orders", order, nil)
}

// InsertMessage 幂等写入消息
func (c *Client) InsertMessage(ctx context.Context, msg model.MessagePayload) error {
	path := fmt.Sprintf("/api/v1/orders/%s/messages", msg.OrderID)
	return c.doJSON(ctx, http.MethodPost, path, msg, nil)
}

// UploadAudio 上传原始音频字节，返回远端引用
func (c *Client) UploadAudio(ctx context.Context, data []byte) (string, error) {
	endpoint := c.baseURL + "/api/v1/audio"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", errorx.Transient("build upload request failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	c.auth(req)

	resp, err := c.httpCli.Do(req)
	if err != nil {
		return "", errorx.Transient("audio upload failed: %v", err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return "", err
	}

	var out struct {
		Data struct {
			Ref string `json:"ref"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", errorx.Transient("decode upload response failed: %v", err)
	}
	return out.Data.Ref, nil
}

// ProcessOrder 触发订单处理
func (c *Client) ProcessOrder(ctx context.Context, orderID string, suppliers []model.SupplierTarget) error {
	path := fmt.Sprintf("/api/v1/orders/%s/process", orderID)
	body := map[string]interface{}{"suppliers": suppliers}
	return c.doJSON(ctx, http.MethodPost, path, body, nil)
}

// doJSON 发送 JSON 请求并按状态码归类错误
func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errorx.Validation("marshal request failed: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errorx.Transient("build request failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.auth(req)

	resp, err := c.httpCli.Do(req)
	if err != nil {
		return errorx.Transient("request %s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return err
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errorx.Transient("decode response failed: %v", err)
		}
	}
	return nil
}

func (c *Client) auth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("X-Token", c.token)
	}
}

// checkStatus 将 HTTP 状态码映射到错误类别
func (c *Client) checkStatus(resp *http.Response) error {
	if resp.StatusCode < 300 {
		return nil
	}

	msg := readErrorMessage(resp)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errorx.Permission(msg)
	case resp.StatusCode == http.StatusTooManyRequests:
		resetAt := time.Now()
		if sec, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			resetAt = resetAt.Add(time.Duration(sec) * time.Second)
		}
		return errorx.RateLimit(msg, resetAt)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return errorx.Validation("%s", msg)
	default:
		return errorx.Transient("%s", msg)
	}
}

// readErrorMessage 尽力从响应体取出错误消息
func readErrorMessage(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var envelope struct {
		Meta struct {
			Message string `json:"message"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Meta.Message != "" {
		return fmt.Sprintf("remote error: %s (status=%d)", envelope.Meta.Message, resp.StatusCode)
	}
	return fmt.Sprintf("remote error: status=%d", resp.StatusCode)
}
