package models

import (
	"time"
)

// AlertKind 提醒类型
type AlertKind string

const (
	AlertAwakening   AlertKind = "awakening"
	AlertTemperature AlertKind = "temperature"
	AlertHumidity    AlertKind = "humidity"
	AlertNoise       AlertKind = "noise"
)

// AlertSeverity 提醒级别
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// Alert 提醒（对应 alerts 表）
// Read 字段只由外部的已读/删除操作修改，本服务只负责创建
type Alert struct {
	AlertID   string        `json:"alert_id" db:"alert_id"`
	BabyID    int64         `json:"baby_id" db:"baby_id"`
	Kind      AlertKind     `json:"kind" db:"kind"`
	Severity  AlertSeverity `json:"severity" db:"severity"`
	Title     string        `json:"title" db:"title"`
	Message   string        `json:"message" db:"message"`
	Metadata  string        `json:"metadata" db:"metadata"` // JSONB
	Read      bool          `json:"read" db:"read"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
}
