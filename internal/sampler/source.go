package sampler

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

// Source 外部传感器数据源
type Source interface {
	Read(ctx context.Context, kind models.SensorKind, babyID int64) (float64, error)
}

// sensorEndpoints 传感器类型到监控硬件 HTTP 路径的映射
var sensorEndpoints = map[models.SensorKind]string{
	models.SensorTemperature: "temperature",
	models.SensorHumidity:    "humidity",
	models.SensorNoise:       "noise_decibel",
}

// sensorReading 监控硬件的读数响应体
type sensorReading struct {
	Value *float64 `json:"value"`
}

// HTTPSource 基于 HTTP 轮询的传感器数据源
// 监控硬件按宝宝 ID 提供 GET /<kind>/<baby_id> 接口，返回 {"value": N}
type HTTPSource struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewHTTPSource 创建 HTTP 传感器数据源
func NewHTTPSource(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPSource {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(1 * time.Second).
		SetHeader("Accept", "application/json")

	return &HTTPSource{
		httpClient: client,
		logger:     logger,
	}
}

// Read 读取一次传感器值
func (s *HTTPSource) Read(ctx context.Context, kind models.SensorKind, babyID int64) (float64, error) {
	endpoint, ok := sensorEndpoints[kind]
	if !ok {
		return 0, fmt.Errorf("unknown sensor kind: %s", kind)
	}

	resp, err := s.httpClient.R().
		SetContext(ctx).
		Get(fmt.Sprintf("/%s/%d", endpoint, babyID))

	if err != nil {
		return 0, fmt.Errorf("failed to read sensor %s: %w", kind, err)
	}

	if resp.StatusCode() != http.StatusOK {
		return 0, fmt.Errorf("sensor %s returned status %d", kind, resp.StatusCode())
	}

	var payload sensorReading
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return 0, fmt.Errorf("malformed sensor payload for %s: %w", kind, err)
	}
	if payload.Value == nil {
		return 0, fmt.Errorf("malformed sensor payload for %s: missing value", kind)
	}

	return *payload.Value, nil
}
