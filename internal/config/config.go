package config

import (
	"os"
	"strconv"
	"time"

	"github.com/oferElz/Nappi/pkg/config"
)

// Config 监控服务配置
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig

	// 管道配置
	Monitor struct {
		VerdictTopic   string // 摄像头判定 MQTT 主题，如 "nappi/baby/+/verdict"
		EventsStream   string // 领域事件 Stream，如 "nappi:events"
		AlertsStream   string // 提醒 Stream，如 "nappi:alerts"
		StateKeyPrefix string // 状态缓存键前缀，如 "nappi:baby:"
		StateKeySuffix string // 状态缓存键后缀，如 ":state"
		StateTTL       time.Duration
		OpTimeout      time.Duration // 管道单次下游调用（DB/Redis）超时，默认 5s
	}

	// 判定去抖配置
	Debounce struct {
		Window               time.Duration // 滑动窗口宽度，默认 25s
		DominanceRatio       float64       // 主导占比阈值，默认 0.6
		ConfidenceMassFactor int           // 置信度质量系数（阈值 = 窗口大小 × 系数），默认 50
	}

	// 人工干预配置
	Intervention struct {
		Cooldown time.Duration // 干预冷却时间，默认 20 分钟
	}

	// 传感器采样配置
	Sampler struct {
		BaseURL     string        // 传感器 HTTP 接口地址
		Interval    time.Duration // 采样间隔，默认 5s
		Timeout     time.Duration // 单次读取超时，默认 5s
		MaxFailures int           // 连续失败多少次后暂停该传感器，默认 3
	}

	// 阈值提醒配置
	Alert struct {
		TempLowC        float64       // 温度下限，默认 18°C
		TempHighC       float64       // 温度上限，默认 26°C
		HumidityLowPct  float64       // 湿度下限，默认 30%
		HumidityHighPct float64       // 湿度上限，默认 60%
		NoiseHighDB     float64       // 噪音上限，默认 50dB
		Suppression     time.Duration // 同类提醒抑制窗口，默认 5 分钟
	}

	// 样本保留配置
	Retention struct {
		SampleTTL     time.Duration // 历史样本保留时长，默认 30 天
		PruneInterval time.Duration // 清理周期，默认 1 小时
	}

	// 报表配置
	Report struct {
		BlockGap        time.Duration // 睡眠块合并间隔，默认 30 分钟
		PatternGapHours float64       // 睡眠模式聚类间隔，默认 2 小时
	}

	// AI 洞察服务配置（可选协作方）
	Insight struct {
		URL     string // 为空则禁用
		Timeout time.Duration
	}

	// 指标服务配置
	Metrics struct {
		Addr string // 如 ":9091"
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 基础设施（默认值 + 环境变量覆盖）
	cfg.Database = config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "nappi",
		SSLMode:  "disable",
		MaxConns: 10,
		MaxIdle:  5,
	}
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis = config.RedisConfig{Addr: "localhost:6379"}
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT = config.MQTTConfig{
		Broker:   "tcp://localhost:1883",
		ClientID: "nappi-monitor",
		QoS:      1,
	}
	cfg.MQTT.LoadFromEnv("MQTT")

	// 管道
	cfg.Monitor.VerdictTopic = getEnv("VERDICT_TOPIC", "nappi/baby/+/verdict")
	cfg.Monitor.EventsStream = getEnv("EVENTS_STREAM", "nappi:events")
	cfg.Monitor.AlertsStream = getEnv("ALERTS_STREAM", "nappi:alerts")
	cfg.Monitor.StateKeyPrefix = getEnv("STATE_KEY_PREFIX", "nappi:baby:")
	cfg.Monitor.StateKeySuffix = ":state"
	cfg.Monitor.StateTTL = getEnvDuration("STATE_TTL", 24*time.Hour)
	cfg.Monitor.OpTimeout = getEnvDuration("PIPELINE_OP_TIMEOUT", 5*time.Second)

	// 去抖
	cfg.Debounce.Window = getEnvDuration("DEBOUNCE_WINDOW", 25*time.Second)
	cfg.Debounce.DominanceRatio = getEnvFloat("DEBOUNCE_DOMINANCE_RATIO", 0.6)
	cfg.Debounce.ConfidenceMassFactor = getEnvInt("DEBOUNCE_MASS_FACTOR", 50)

	// 干预
	cfg.Intervention.Cooldown = getEnvDuration("INTERVENTION_COOLDOWN", 20*time.Minute)

	// 采样
	cfg.Sampler.BaseURL = getEnv("SENSOR_API_BASE_URL", "http://localhost:8001")
	cfg.Sampler.Interval = getEnvDuration("SENSOR_POLL_INTERVAL", 5*time.Second)
	cfg.Sampler.Timeout = getEnvDuration("SENSOR_READ_TIMEOUT", 5*time.Second)
	cfg.Sampler.MaxFailures = getEnvInt("SENSOR_MAX_FAILURES", 3)

	// 阈值
	cfg.Alert.TempLowC = getEnvFloat("ALERT_TEMP_LOW_C", 18.0)
	cfg.Alert.TempHighC = getEnvFloat("ALERT_TEMP_HIGH_C", 26.0)
	cfg.Alert.HumidityLowPct = getEnvFloat("ALERT_HUMIDITY_LOW_PCT", 30.0)
	cfg.Alert.HumidityHighPct = getEnvFloat("ALERT_HUMIDITY_HIGH_PCT", 60.0)
	cfg.Alert.NoiseHighDB = getEnvFloat("ALERT_NOISE_HIGH_DB", 50.0)
	cfg.Alert.Suppression = getEnvDuration("ALERT_SUPPRESSION", 5*time.Minute)

	// 样本保留
	cfg.Retention.SampleTTL = getEnvDuration("SAMPLE_RETENTION", 30*24*time.Hour)
	cfg.Retention.PruneInterval = getEnvDuration("SAMPLE_PRUNE_INTERVAL", time.Hour)

	// 报表
	cfg.Report.BlockGap = getEnvDuration("SLEEP_BLOCK_GAP", 30*time.Minute)
	cfg.Report.PatternGapHours = getEnvFloat("SLEEP_PATTERN_GAP_HOURS", 2.0)

	// AI 洞察
	cfg.Insight.URL = getEnv("INSIGHT_URL", "")
	cfg.Insight.Timeout = getEnvDuration("INSIGHT_TIMEOUT", 10*time.Second)

	cfg.Metrics.Addr = getEnv("METRICS_ADDR", ":9091")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
