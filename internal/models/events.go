package models

import (
	"time"
)

// EventType 领域事件类型
type EventType string

const (
	EventSleepStarted EventType = "sleep_started"
	EventSleepEnded   EventType = "sleep_ended"
	EventBabyAway     EventType = "baby_away"
)

// DomainEvent 状态机产生的领域事件（发布到 Redis Streams 供下游消费）
// DurationMinutes 和 SensorSummary 仅在 sleep_ended 事件中存在
type DomainEvent struct {
	EventID         string        `json:"event_id"`
	Type            EventType     `json:"type"`
	BabyID          int64         `json:"baby_id"`
	At              time.Time     `json:"at"`
	DurationMinutes *float64      `json:"duration_minutes,omitempty"`
	SensorSummary   SensorSummary `json:"sensor_summary,omitempty"`
}
