package models

import (
	"time"
)

// Verdict 摄像头分类结果（规范化后的枚举值）
type Verdict string

const (
	VerdictAsleep      Verdict = "Asleep"
	VerdictAwake       Verdict = "Awake"
	VerdictNoBabyFound Verdict = "No Baby Found"
)

// Observation 单次摄像头观测（归一化后的结果，不可变）
type Observation struct {
	Verdict    Verdict   `json:"verdict"`
	Confidence int       `json:"confidence"` // [0,100]
	Timestamp  time.Time `json:"timestamp"`
}
