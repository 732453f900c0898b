package models

import (
	"time"
)

// SensorKind 环境传感器类型
type SensorKind string

const (
	SensorTemperature SensorKind = "temperature"
	SensorHumidity    SensorKind = "humidity"
	SensorNoise       SensorKind = "noise"
)

// AllSensorKinds 采样器轮询的全部传感器类型
var AllSensorKinds = []SensorKind{SensorTemperature, SensorHumidity, SensorNoise}

// SensorSample 单次传感器读数（仅在宝宝处于 asleep 状态时产生）
type SensorSample struct {
	BabyID    int64      `json:"baby_id"`
	Kind      SensorKind `json:"kind"`
	Value     float64    `json:"value"`
	Timestamp time.Time  `json:"timestamp"`
}

// SensorStats 单种传感器在一次睡眠会话内的聚合统计
type SensorStats struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
}

// SensorSummary 一次睡眠会话的传感器聚合（按类型）
type SensorSummary map[SensorKind]SensorStats
