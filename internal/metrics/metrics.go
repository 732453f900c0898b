// Package metrics 定义监控管道的 Prometheus 指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ObservationsTotal 收到的摄像头判定观测数
	ObservationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nappi_observations_total",
		Help: "Camera verdict observations received",
	})

	// ObservationsDroppedTotal 因标签无法识别被丢弃的观测数
	ObservationsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nappi_observations_dropped_total",
		Help: "Observations dropped due to unknown verdict labels",
	})

	// StableVerdictsTotal 去抖器放行的稳定判定数
	StableVerdictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nappi_stable_verdicts_total",
		Help: "Stable verdicts accepted by the debouncer",
	}, []string{"verdict"})

	// StateTransitionsTotal 状态机转换数
	StateTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nappi_state_transitions_total",
		Help: "Sleep state transitions",
	}, []string{"to"})

	// InterventionsTotal 人工干预数（按结果分）
	InterventionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nappi_interventions_total",
		Help: "Parent interventions by outcome",
	}, []string{"outcome"})

	// SensorSamplesTotal 成功采集的传感器样本数
	SensorSamplesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nappi_sensor_samples_total",
		Help: "Sensor samples collected",
	}, []string{"kind"})

	// SensorReadFailuresTotal 传感器读取失败数
	SensorReadFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nappi_sensor_read_failures_total",
		Help: "Sensor read failures",
	}, []string{"kind"})

	// AlertsTotal 创建的提醒数
	AlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nappi_alerts_total",
		Help: "Alerts created",
	}, []string{"kind"})

	// InsightFailuresTotal AI 洞察生成失败数
	InsightFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nappi_insight_failures_total",
		Help: "AI insight generation failures",
	})
)
