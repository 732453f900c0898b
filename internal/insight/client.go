// Package insight 调用外部 AI 协作方，为醒来事件生成一两句洞察文本。
// 洞察是可选补充：URL 未配置时整个功能禁用，调用失败只影响文本本身，
// 永远不影响已提交的状态转换和已入库的事件。
package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/oferElz/Nappi/internal/models"
)

// Client AI 洞察服务客户端
type Client struct {
	url        string
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewClient 创建洞察客户端，url 为空返回 nil（功能禁用）
func NewClient(url string, timeout time.Duration, logger *zap.Logger) *Client {
	if url == "" {
		return nil
	}

	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(1 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		url:        url,
		httpClient: client,
		logger:     logger,
	}
}

// insightRequest 洞察请求体
type insightRequest struct {
	BabyID               int64                         `json:"baby_id"`
	AwakenedAt           time.Time                     `json:"awakened_at"`
	SleepDurationMinutes float64                       `json:"sleep_duration_minutes"`
	LastReadings         map[models.SensorKind]float64 `json:"last_readings,omitempty"`
}

// insightResponse 洞察响应体
type insightResponse struct {
	Insight string `json:"insight"`
}

// GenerateQuickInsight 为一次醒来生成简短洞察
// 返回空字符串表示服务没有给出内容（不算错误）
func (c *Client) GenerateQuickInsight(
	ctx context.Context,
	babyID int64,
	awakenedAt time.Time,
	sleepDurationMinutes float64,
	lastReadings map[models.SensorKind]float64,
) (string, error) {
	request := insightRequest{
		BabyID:               babyID,
		AwakenedAt:           awakenedAt,
		SleepDurationMinutes: sleepDurationMinutes,
		LastReadings:         lastReadings,
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(request).
		Post(c.url)

	if err != nil {
		return "", fmt.Errorf("insight request failed: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("insight service returned status %d", resp.StatusCode())
	}

	var result insightResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return "", fmt.Errorf("malformed insight response: %w", err)
	}

	return result.Insight, nil
}
