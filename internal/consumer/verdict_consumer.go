// Package consumer 消费摄像头的 MQTT 判定流
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/oferElz/Nappi/internal/metrics"
	"github.com/oferElz/Nappi/internal/models"
	"github.com/oferElz/Nappi/internal/verdict"
	"github.com/oferElz/Nappi/pkg/mqtt"
)

// StableVerdictHandler 稳定判定的下游（由状态机实现）
type StableVerdictHandler interface {
	HandleStableVerdict(ctx context.Context, babyID int64, v models.Verdict, at time.Time)
}

// DebounceConfig 去抖参数
type DebounceConfig struct {
	Window         time.Duration
	DominanceRatio float64
	MassFactor     int
}

// verdictMessage 摄像头判定消息格式
type verdictMessage struct {
	Verdict string  `json:"verdict"`
	Conf    float64 `json:"conf"`
}

// pipeline 单个宝宝的判定管道
// 互斥锁保证同一宝宝的观测严格串行进入窗口，并发回调不会交错
type pipeline struct {
	mu        sync.Mutex
	debouncer *verdict.Debouncer
}

// VerdictConsumer MQTT 判定消费者
type VerdictConsumer struct {
	topic      string
	qos        byte
	mqttClient *mqtt.Client
	debounce   DebounceConfig
	handler    StableVerdictHandler
	logger     *zap.Logger

	mu        sync.Mutex
	pipelines map[int64]*pipeline

	now func() time.Time // 测试注入
}

// NewVerdictConsumer 创建判定消费者
func NewVerdictConsumer(
	topic string,
	qos byte,
	mqttClient *mqtt.Client,
	debounce DebounceConfig,
	handler StableVerdictHandler,
	logger *zap.Logger,
) *VerdictConsumer {
	return &VerdictConsumer{
		topic:      topic,
		qos:        qos,
		mqttClient: mqttClient,
		debounce:   debounce,
		handler:    handler,
		logger:     logger,
		pipelines:  make(map[int64]*pipeline),
		now:        time.Now,
	}
}

// Start 启动消费者
func (c *VerdictConsumer) Start(ctx context.Context) error {
	if c.topic == "" {
		return fmt.Errorf("verdict MQTT topic not configured")
	}

	if err := c.mqttClient.Subscribe(c.topic, c.qos, c.HandleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to verdict topic: %w", err)
	}

	c.logger.Info("Verdict consumer started",
		zap.String("topic", c.topic),
	)

	<-ctx.Done()
	return nil
}

// Stop 停止消费者
func (c *VerdictConsumer) Stop(ctx context.Context) error {
	if c.topic != "" {
		if err := c.mqttClient.Unsubscribe(c.topic); err != nil {
			c.logger.Error("Failed to unsubscribe", zap.Error(err))
		}
	}

	c.logger.Info("Verdict consumer stopped")
	return nil
}

// HandleMessage 处理一条 MQTT 判定消息
// 主题格式 "nappi/baby/<baby_id>/verdict"，消息体 {"verdict": "...", "conf": N}
func (c *VerdictConsumer) HandleMessage(topic string, payload []byte) error {
	metrics.ObservationsTotal.Inc()

	babyID, err := babyIDFromTopic(topic)
	if err != nil {
		c.logger.Warn("Ignoring verdict on malformed topic",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return err
	}

	var msg verdictMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.logger.Error("Failed to unmarshal verdict message",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return fmt.Errorf("failed to unmarshal verdict message: %w", err)
	}

	at := c.now()
	obs, err := verdict.Normalize(msg.Verdict, int(msg.Conf), at)
	if err != nil {
		// 无法识别的标签：丢弃本次观测，不向上游传播
		metrics.ObservationsDroppedTotal.Inc()
		c.logger.Debug("Dropping observation with unknown verdict",
			zap.Int64("baby_id", babyID),
			zap.String("raw_verdict", msg.Verdict),
		)
		return nil
	}

	p := c.getPipeline(babyID)
	p.mu.Lock()
	stable, ok := p.debouncer.Feed(obs)
	p.mu.Unlock()

	if !ok {
		return nil
	}

	metrics.StableVerdictsTotal.WithLabelValues(string(stable)).Inc()
	c.handler.HandleStableVerdict(context.Background(), babyID, stable, at)
	return nil
}

// getPipeline 获取（或创建）宝宝的判定管道
func (c *VerdictConsumer) getPipeline(babyID int64) *pipeline {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pipelines[babyID]
	if !ok {
		p = &pipeline{
			debouncer: verdict.NewDebouncer(c.debounce.Window, c.debounce.DominanceRatio, c.debounce.MassFactor),
		}
		c.pipelines[babyID] = p
	}
	return p
}

// babyIDFromTopic 从主题中提取宝宝 ID
func babyIDFromTopic(topic string) (int64, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != "nappi" || parts[1] != "baby" || parts[3] != "verdict" {
		return 0, fmt.Errorf("unexpected verdict topic format: %s", topic)
	}

	babyID, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid baby id in topic %s: %w", topic, err)
	}
	return babyID, nil
}
