package models

import (
	"time"
)

// AwakeningMetadata 醒来事件元数据（JSONB 结构）
type AwakeningMetadata struct {
	SleepStartedAt       time.Time              `json:"sleep_started_at"`
	AwakenedAt           time.Time              `json:"awakened_at"`
	SleepDurationMinutes float64                `json:"sleep_duration_minutes"`
	SensorSummary        SensorSummary          `json:"sensor_summary,omitempty"`
	LastSensorReadings   map[SensorKind]float64 `json:"last_sensor_readings,omitempty"`
}

// AwakeningEvent 醒来事件（asleep → awake 转换时写入一次，之后不可变；
// AIInsight 是唯一的可选补充字段，由 AI 协作方异步生成）
type AwakeningEvent struct {
	EventID   string            `json:"event_id" db:"event_id"`
	BabyID    int64             `json:"baby_id" db:"baby_id"`
	Timestamp time.Time         `json:"timestamp" db:"timestamp"` // 醒来时刻
	Metadata  AwakeningMetadata `json:"metadata" db:"metadata"`
	AIInsight *string           `json:"ai_insight,omitempty" db:"ai_insight"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
}
