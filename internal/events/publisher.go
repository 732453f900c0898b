// Package events 负责把领域事件、提醒和状态快照写出到 Redis：
// 事件和提醒走 Streams 供下游消费者（推送、实时流）读取，
// 状态快照写带 TTL 的键供查询方直接读。
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/oferElz/Nappi/internal/models"
	"github.com/oferElz/Nappi/pkg/redis"
)

// Config 发布目标配置
type Config struct {
	EventsStream   string
	AlertsStream   string
	StateKeyPrefix string
	StateKeySuffix string
	StateTTL       time.Duration
}

// Publisher Redis 发布器
type Publisher struct {
	client *goredis.Client
	cfg    Config
	logger *zap.Logger
}

// NewPublisher 创建发布器
func NewPublisher(client *goredis.Client, cfg Config, logger *zap.Logger) *Publisher {
	return &Publisher{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

// PublishEvent 发布领域事件到事件流
func (p *Publisher) PublishEvent(ctx context.Context, event *models.DomainEvent) error {
	id, err := redis.PublishJSONToStream(ctx, p.client, p.cfg.EventsStream, event)
	if err != nil {
		return fmt.Errorf("failed to publish domain event: %w", err)
	}

	p.logger.Debug("Domain event published",
		zap.String("stream", p.cfg.EventsStream),
		zap.String("message_id", id),
		zap.String("event_type", string(event.Type)),
		zap.Int64("baby_id", event.BabyID),
	)
	return nil
}

// PublishAlert 发布提醒到提醒流（供推送/实时流消费）
func (p *Publisher) PublishAlert(ctx context.Context, alert *models.Alert) error {
	id, err := redis.PublishJSONToStream(ctx, p.client, p.cfg.AlertsStream, alert)
	if err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}

	p.logger.Debug("Alert published",
		zap.String("stream", p.cfg.AlertsStream),
		zap.String("message_id", id),
		zap.String("alert_id", alert.AlertID),
		zap.Int64("baby_id", alert.BabyID),
	)
	return nil
}

// CacheState 把状态快照写入 Redis（带 TTL，覆盖旧值）
func (p *Publisher) CacheState(ctx context.Context, snapshot models.StateSnapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal state snapshot: %w", err)
	}

	key := p.stateKey(snapshot.BabyID)
	if err := p.client.Set(ctx, key, payload, p.cfg.StateTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache state: %w", err)
	}

	p.logger.Debug("State snapshot cached",
		zap.String("key", key),
		zap.String("state", string(snapshot.State)),
	)
	return nil
}

// GetCachedState 读取缓存的状态快照，键不存在返回 false
func (p *Publisher) GetCachedState(ctx context.Context, babyID int64) (models.StateSnapshot, bool, error) {
	payload, err := p.client.Get(ctx, p.stateKey(babyID)).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return models.StateSnapshot{}, false, nil
		}
		return models.StateSnapshot{}, false, fmt.Errorf("failed to read cached state: %w", err)
	}

	var snapshot models.StateSnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return models.StateSnapshot{}, false, fmt.Errorf("failed to unmarshal cached state: %w", err)
	}
	return snapshot, true, nil
}

func (p *Publisher) stateKey(babyID int64) string {
	return fmt.Sprintf("%s%d%s", p.cfg.StateKeyPrefix, babyID, p.cfg.StateKeySuffix)
}
