package models

import (
	"time"
)

// SleepState 宝宝当前睡眠状态（每个宝宝任意时刻只有一个值）
type SleepState string

const (
	StateAwake  SleepState = "awake"
	StateAsleep SleepState = "asleep"
	StateAway   SleepState = "away"
)

// StateSnapshot 状态快照（写入 Redis 缓存，供查询方读取）
type StateSnapshot struct {
	BabyID         int64      `json:"baby_id"`
	State          SleepState `json:"state"`
	SleepStartedAt *time.Time `json:"sleep_started_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
