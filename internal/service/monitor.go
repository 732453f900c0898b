package service

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/oferElz/Nappi/internal/alert"
	"github.com/oferElz/Nappi/internal/config"
	"github.com/oferElz/Nappi/internal/consumer"
	"github.com/oferElz/Nappi/internal/events"
	"github.com/oferElz/Nappi/internal/insight"
	"github.com/oferElz/Nappi/internal/metrics"
	"github.com/oferElz/Nappi/internal/models"
	"github.com/oferElz/Nappi/internal/report"
	"github.com/oferElz/Nappi/internal/repository"
	"github.com/oferElz/Nappi/internal/sampler"
	"github.com/oferElz/Nappi/internal/sleepstate"
	"github.com/oferElz/Nappi/pkg/database"
	"github.com/oferElz/Nappi/pkg/mqtt"
	pkgredis "github.com/oferElz/Nappi/pkg/redis"
)

// MonitorService 监控服务（整合各层）
type MonitorService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *goredis.Client
	mqttClient  *mqtt.Client
	logger      *zap.Logger

	// 各层组件
	alertRepo       *repository.AlertRepository
	awakeningRepo   *repository.AwakeningEventRepository
	sampleRepo      *repository.SensorSampleRepository
	publisher       *events.Publisher
	engine          *alert.Engine
	sampler         *sampler.Sampler
	tracker         *sleepstate.Tracker
	verdictConsumer *consumer.VerdictConsumer

	httpServer *http.Server
}

// NewMonitorService 创建监控服务
func NewMonitorService(cfg *config.Config, logger *zap.Logger) (*MonitorService, error) {
	// 1. 连接数据库
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	// 2. 连接 Redis
	redisClient := pkgredis.NewRedisClient(&cfg.Redis)
	if err := pkgredis.Ping(context.Background(), redisClient); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// 3. 连接 MQTT
	mqttClient, err := mqtt.NewClient(&cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("failed to connect MQTT broker: %w", err)
	}

	// 4. 创建 Repository 层
	alertRepo := repository.NewAlertRepository(db, logger)
	awakeningRepo := repository.NewAwakeningEventRepository(db, logger)
	sampleRepo := repository.NewSensorSampleRepository(db, logger)

	// 5. 创建发布器
	publisher := events.NewPublisher(redisClient, events.Config{
		EventsStream:   cfg.Monitor.EventsStream,
		AlertsStream:   cfg.Monitor.AlertsStream,
		StateKeyPrefix: cfg.Monitor.StateKeyPrefix,
		StateKeySuffix: cfg.Monitor.StateKeySuffix,
		StateTTL:       cfg.Monitor.StateTTL,
	}, logger)

	// 6. 创建提醒引擎
	engine := alert.NewEngine(
		alert.Thresholds{
			TempLowC:        cfg.Alert.TempLowC,
			TempHighC:       cfg.Alert.TempHighC,
			HumidityLowPct:  cfg.Alert.HumidityLowPct,
			HumidityHighPct: cfg.Alert.HumidityHighPct,
			NoiseHighDB:     cfg.Alert.NoiseHighDB,
		},
		cfg.Alert.Suppression,
		alertRepo,
		publisher,
		logger,
	)

	// 7. 创建采样器（样本入库 + 阈值评估）
	source := sampler.NewHTTPSource(cfg.Sampler.BaseURL, cfg.Sampler.Timeout, logger)
	smp := sampler.NewSampler(
		source,
		&sampleSink{
			sampleRepo: sampleRepo,
			engine:     engine,
			opTimeout:  cfg.Monitor.OpTimeout,
			logger:     logger,
		},
		cfg.Sampler.Interval,
		cfg.Sampler.Timeout,
		cfg.Sampler.MaxFailures,
		logger,
	)

	// 8. 创建状态机（事件落地由 eventSink 处理）
	insightClient := insight.NewClient(cfg.Insight.URL, cfg.Insight.Timeout, logger)
	sink := &eventSink{
		awakeningRepo: awakeningRepo,
		sampleRepo:    sampleRepo,
		publisher:     publisher,
		engine:        engine,
		insightClient: insightClient,
		insightTime:   cfg.Insight.Timeout,
		opTimeout:     cfg.Monitor.OpTimeout,
		logger:        logger,
	}
	tracker := sleepstate.NewTracker(
		models.StateAwake,
		cfg.Intervention.Cooldown,
		smp,
		sink,
		logger,
	)

	svc := &MonitorService{
		config:        cfg,
		db:            db,
		redisClient:   redisClient,
		mqttClient:    mqttClient,
		logger:        logger,
		alertRepo:     alertRepo,
		awakeningRepo: awakeningRepo,
		sampleRepo:    sampleRepo,
		publisher:     publisher,
		engine:        engine,
		sampler:       smp,
		tracker:       tracker,
	}

	// 9. 创建判定消费者（稳定判定进状态机）
	svc.verdictConsumer = consumer.NewVerdictConsumer(
		cfg.Monitor.VerdictTopic,
		cfg.MQTT.QoS,
		mqttClient,
		consumer.DebounceConfig{
			Window:         cfg.Debounce.Window,
			DominanceRatio: cfg.Debounce.DominanceRatio,
			MassFactor:     cfg.Debounce.ConfidenceMassFactor,
		},
		svc,
		logger,
	)

	return svc, nil
}

// HandleStableVerdict 稳定判定进入状态机（实现 consumer.StableVerdictHandler）
func (s *MonitorService) HandleStableVerdict(ctx context.Context, babyID int64, v models.Verdict, at time.Time) {
	transitioned := s.tracker.ApplyStableVerdict(ctx, babyID, v, at)
	if transitioned {
		s.cacheSnapshot(ctx, babyID)
	}
}

// Intervene 人工干预入口
func (s *MonitorService) Intervene(ctx context.Context, babyID int64, action sleepstate.Action) (models.SleepState, error) {
	state, err := s.tracker.Intervene(ctx, babyID, action, time.Now())
	if err != nil {
		metrics.InterventionsTotal.WithLabelValues("rejected").Inc()
		return state, err
	}

	metrics.InterventionsTotal.WithLabelValues("applied").Inc()
	s.cacheSnapshot(ctx, babyID)
	return state, nil
}

// State 当前睡眠状态查询
func (s *MonitorService) State(babyID int64) models.SleepState {
	return s.tracker.State(babyID)
}

// CooldownRemaining 干预冷却剩余时间查询
func (s *MonitorService) CooldownRemaining(babyID int64) (time.Duration, bool) {
	return s.tracker.CooldownRemaining(babyID)
}

// SleepBlocksForPeriod 查询时间段内的睡眠块
func (s *MonitorService) SleepBlocksForPeriod(ctx context.Context, babyID int64, start, end time.Time) ([]report.SleepBlock, error) {
	awakenings, err := s.awakeningRepo.ListForPeriod(ctx, babyID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load awakening events: %w", err)
	}

	sessions := make([]report.SessionEvent, 0, len(awakenings))
	for _, event := range awakenings {
		if session, ok := report.NormalizeAwakening(event); ok {
			sessions = append(sessions, session)
		}
	}

	return report.GroupIntoBlocks(sessions, s.config.Report.BlockGap), nil
}

// SleepPatternsForPeriod 查询时间段内的典型睡眠时段
func (s *MonitorService) SleepPatternsForPeriod(ctx context.Context, babyID int64, start, end time.Time) ([]report.Pattern, error) {
	awakenings, err := s.awakeningRepo.ListForPeriod(ctx, babyID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load awakening events: %w", err)
	}

	sessions := make([]report.SessionEvent, 0, len(awakenings))
	for _, event := range awakenings {
		if session, ok := report.NormalizeAwakening(event); ok {
			sessions = append(sessions, session)
		}
	}

	return report.AnalyzePatterns(sessions, s.config.Report.PatternGapHours), nil
}

// cacheSnapshot 把最新状态快照写入 Redis（失败只记日志）
func (s *MonitorService) cacheSnapshot(ctx context.Context, babyID int64) {
	snapshot := s.tracker.Snapshot(babyID)
	if err := s.publisher.CacheState(ctx, snapshot); err != nil {
		s.logger.Error("Failed to cache state snapshot",
			zap.Int64("baby_id", babyID),
			zap.Error(err),
		)
	}
}

// Start 启动服务
func (s *MonitorService) Start(ctx context.Context) error {
	s.logger.Info("Starting monitor service",
		zap.String("verdict_topic", s.config.Monitor.VerdictTopic),
		zap.String("metrics_addr", s.config.Metrics.Addr),
	)

	s.startHTTPServer()

	go s.runSampleRetention(ctx)

	// 判定消费者阻塞到上下文取消
	if err := s.verdictConsumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start verdict consumer: %w", err)
	}

	return nil
}

// runSampleRetention 周期清理超过保留期的历史传感器样本
func (s *MonitorService) runSampleRetention(ctx context.Context) {
	ticker := time.NewTicker(s.config.Retention.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruneCtx, cancel := context.WithTimeout(ctx, time.Minute)
			cutoff := time.Now().Add(-s.config.Retention.SampleTTL)
			if _, err := s.sampleRepo.PruneBefore(pruneCtx, cutoff); err != nil {
				s.logger.Error("Failed to prune sensor samples", zap.Error(err))
			}
			cancel()
		}
	}
}

// Stop 停止服务
func (s *MonitorService) Stop() error {
	s.logger.Info("Stopping monitor service")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.verdictConsumer.Stop(ctx); err != nil {
		s.logger.Error("Failed to stop verdict consumer", zap.Error(err))
	}

	// 为仍在睡眠中的宝宝停止采样，保留已记录的数据
	for _, babyID := range s.tracker.SleepingBabies() {
		s.sampler.Stop(babyID)
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server", zap.Error(err))
		}
	}

	s.mqttClient.Disconnect()

	if err := database.Close(s.db); err != nil {
		s.logger.Error("Failed to close database", zap.Error(err))
	}
	if err := pkgredis.Close(s.redisClient); err != nil {
		s.logger.Error("Failed to close redis", zap.Error(err))
	}

	return nil
}
