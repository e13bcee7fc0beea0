package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Sender 供应商通知发送方
// 调用方视角应当幂等：重试次数已由任务队列限定在 3 次以内
type Sender interface {
	SendSupplierOrder(ctx context.Context, supplierOrderID string) error
}

// HTTPSender 邮件网关 HTTP 客户端
type HTTPSender struct {
	baseURL string
	token   string
	httpCli *http.Client
}

// NewHTTPSender 创建通知客户端
func NewHTTPSender(baseURL, token string, timeout time.Duration) *HTTPSender {
	return &HTTPSender{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpCli: &http.Client{Timeout: timeout},
	}
}

// SendSupplierOrder 请求网关向供应商发送订单通知
func (s *HTTPSender) SendSupplierOrder(ctx context.Context, supplierOrderID string) error {
	payload, err := json.Marshal(map[string]string{
		"supplier_order_id": supplierOrderID,
	})
	if err != nil {
		return fmt.Errorf("marshal notify request failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/notifications/supplier-order", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build notify request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpCli.Do(req)
	if err != nil {
		return fmt.Errorf("notify request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("notify supplier order %s failed: status=%d body=%s",
			supplierOrderID, resp.StatusCode, string(raw))
	}
	return nil
}
