// Package alert 实现环境阈值提醒引擎
//
// 引擎独立于睡眠状态机：每个传感器样本进来就按静态阈值评估，
// 同一 (宝宝, 类型) 的阈值提醒在抑制窗口内只发一次。醒来提醒
// 由状态机的 SleepEnded 事件触发，不参与抑制。
package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oferElz/Nappi/internal/models"
)

// Thresholds 环境阈值
type Thresholds struct {
	TempLowC        float64
	TempHighC       float64
	HumidityLowPct  float64
	HumidityHighPct float64
	NoiseHighDB     float64
}

// Store 提醒持久化接口（由 repository 层实现）
type Store interface {
	CreateAlert(ctx context.Context, alert *models.Alert) error
}

// Publisher 提醒下发接口（由 events 层实现，推给实时流/推送）
type Publisher interface {
	PublishAlert(ctx context.Context, alert *models.Alert) error
}

// suppressKey 阈值提醒抑制键
type suppressKey struct {
	babyID int64
	kind   models.AlertKind
}

// Engine 阈值提醒引擎
type Engine struct {
	thresholds  Thresholds
	suppression time.Duration
	store       Store
	publisher   Publisher
	logger      *zap.Logger

	mu        sync.Mutex
	lastFired map[suppressKey]time.Time

	now func() time.Time // 测试注入
}

// NewEngine 创建提醒引擎
func NewEngine(
	thresholds Thresholds,
	suppression time.Duration,
	store Store,
	publisher Publisher,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		thresholds:  thresholds,
		suppression: suppression,
		store:       store,
		publisher:   publisher,
		logger:      logger,
		lastFired:   make(map[suppressKey]time.Time),
		now:         time.Now,
	}
}

// EvaluateSample 按阈值评估一个传感器样本
// 超阈值且不在抑制窗口内时创建并下发提醒，返回创建的提醒（未触发返回 nil）
func (e *Engine) EvaluateSample(ctx context.Context, sample models.SensorSample) *models.Alert {
	kind, severity, title, message, meta := e.evaluate(sample)
	if kind == "" {
		return nil
	}

	if !e.claimSuppression(sample.BabyID, kind, sample.Timestamp) {
		e.logger.Debug("Threshold alert suppressed",
			zap.Int64("baby_id", sample.BabyID),
			zap.String("kind", string(kind)),
			zap.Float64("value", sample.Value),
		)
		return nil
	}

	alert := e.build(sample.BabyID, kind, severity, title, message, meta, sample.Timestamp)
	e.deliver(ctx, alert)
	return alert
}

// evaluate 纯阈值判定，返回空 kind 表示无需提醒
func (e *Engine) evaluate(sample models.SensorSample) (models.AlertKind, models.AlertSeverity, string, string, map[string]interface{}) {
	v := sample.Value

	switch sample.Kind {
	case models.SensorTemperature:
		if v > e.thresholds.TempHighC {
			return models.AlertTemperature, models.SeverityWarning,
				"Room temperature update",
				fmt.Sprintf("We noticed the temperature is at %.1f°C — you might want to cool the room a bit.", v),
				map[string]interface{}{"value": v, "threshold": e.thresholds.TempHighC, "direction": "high"}
		}
		if v < e.thresholds.TempLowC {
			return models.AlertTemperature, models.SeverityWarning,
				"Room temperature update",
				fmt.Sprintf("We noticed the temperature is at %.1f°C — it might help to warm the room a little.", v),
				map[string]interface{}{"value": v, "threshold": e.thresholds.TempLowC, "direction": "low"}
		}

	case models.SensorHumidity:
		if v > e.thresholds.HumidityHighPct {
			return models.AlertHumidity, models.SeverityWarning,
				"Room humidity update",
				fmt.Sprintf("Humidity is at %.0f%% — a dehumidifier might help keep things comfortable.", v),
				map[string]interface{}{"value": v, "threshold": e.thresholds.HumidityHighPct, "direction": "high"}
		}
		if v < e.thresholds.HumidityLowPct {
			return models.AlertHumidity, models.SeverityWarning,
				"Room humidity update",
				fmt.Sprintf("Humidity is at %.0f%% — a humidifier could help keep the air comfortable.", v),
				map[string]interface{}{"value": v, "threshold": e.thresholds.HumidityLowPct, "direction": "low"}
		}

	case models.SensorNoise:
		if v > e.thresholds.NoiseHighDB {
			return models.AlertNoise, models.SeverityWarning,
				"Noise level update",
				fmt.Sprintf("We picked up some noise in the room (%.0fdB) — it could be worth checking on.", v),
				map[string]interface{}{"value": v, "threshold": e.thresholds.NoiseHighDB}
		}
	}

	return "", "", "", "", nil
}

// CreateAwakeningAlert 创建醒来提醒（由 SleepEnded 事件触发，不参与抑制）
func (e *Engine) CreateAwakeningAlert(
	ctx context.Context,
	babyID int64,
	awakenedAt time.Time,
	sleepDurationMinutes float64,
	lastReadings map[models.SensorKind]float64,
) *models.Alert {
	meta := map[string]interface{}{
		"sleep_duration_minutes": sleepDurationMinutes,
		"awakened_at":            awakenedAt.Format(time.RFC3339),
	}
	if len(lastReadings) > 0 {
		meta["last_sensor_readings"] = lastReadings
	}

	message := fmt.Sprintf("Baby woke up at %s after sleeping for %s.",
		awakenedAt.Format("15:04"), formatDuration(sleepDurationMinutes))

	alert := e.build(babyID, models.AlertAwakening, models.SeverityInfo,
		"Baby woke up", message, meta, awakenedAt)
	e.deliver(ctx, alert)
	return alert
}

// claimSuppression 尝试占用抑制窗口，窗口内返回 false
func (e *Engine) claimSuppression(babyID int64, kind models.AlertKind, at time.Time) bool {
	key := suppressKey{babyID: babyID, kind: kind}

	e.mu.Lock()
	defer e.mu.Unlock()

	if last, ok := e.lastFired[key]; ok && at.Sub(last) < e.suppression {
		return false
	}
	e.lastFired[key] = at
	return true
}

// build 组装提醒记录
func (e *Engine) build(
	babyID int64,
	kind models.AlertKind,
	severity models.AlertSeverity,
	title, message string,
	meta map[string]interface{},
	at time.Time,
) *models.Alert {
	metadata := "{}"
	if raw, err := json.Marshal(meta); err == nil {
		metadata = string(raw)
	}

	return &models.Alert{
		AlertID:   uuid.New().String(),
		BabyID:    babyID,
		Kind:      kind,
		Severity:  severity,
		Title:     title,
		Message:   message,
		Metadata:  metadata,
		Read:      false,
		CreatedAt: at,
	}
}

// deliver 入库并下发，两步失败都只记日志
func (e *Engine) deliver(ctx context.Context, alert *models.Alert) {
	if err := e.store.CreateAlert(ctx, alert); err != nil {
		e.logger.Error("Failed to persist alert",
			zap.String("alert_id", alert.AlertID),
			zap.Int64("baby_id", alert.BabyID),
			zap.String("kind", string(alert.Kind)),
			zap.Error(err),
		)
	}

	if err := e.publisher.PublishAlert(ctx, alert); err != nil {
		e.logger.Error("Failed to publish alert",
			zap.String("alert_id", alert.AlertID),
			zap.Int64("baby_id", alert.BabyID),
			zap.String("kind", string(alert.Kind)),
			zap.Error(err),
		)
	}

	e.logger.Info("Alert created",
		zap.String("alert_id", alert.AlertID),
		zap.Int64("baby_id", alert.BabyID),
		zap.String("kind", string(alert.Kind)),
		zap.String("severity", string(alert.Severity)),
	)
}

// formatDuration 睡眠时长的展示格式，如 "1h 5m" 或 "45 minutes"
func formatDuration(minutes float64) string {
	h := int(minutes) / 60
	m := int(minutes) % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%d minutes", m)
}
