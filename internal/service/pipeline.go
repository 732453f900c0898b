package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oferElz/Nappi/internal/alert"
	"github.com/oferElz/Nappi/internal/events"
	"github.com/oferElz/Nappi/internal/insight"
	"github.com/oferElz/Nappi/internal/metrics"
	"github.com/oferElz/Nappi/internal/models"
	"github.com/oferElz/Nappi/internal/repository"
)

// defaultOpTimeout 单次下游调用的默认超时
const defaultOpTimeout = 5 * time.Second

// boundCtx 为单次下游调用（数据库、Redis）派生带超时的上下文
// 每次调用独立限时，一个挂起的依赖不会拖垮同一事件的其余落地动作
func boundCtx(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	return context.WithTimeout(parent, timeout)
}

// sampleSink 采样结果的落地处理：入库 + 阈值评估
// 两步失败都只记日志，绝不反馈给采样循环
type sampleSink struct {
	sampleRepo *repository.SensorSampleRepository
	engine     *alert.Engine
	opTimeout  time.Duration
	logger     *zap.Logger
}

func (s *sampleSink) HandleSample(ctx context.Context, sample models.SensorSample) {
	metrics.SensorSamplesTotal.WithLabelValues(string(sample.Kind)).Inc()

	insertCtx, cancelInsert := boundCtx(ctx, s.opTimeout)
	err := s.sampleRepo.InsertSample(insertCtx, sample)
	cancelInsert()
	if err != nil {
		s.logger.Error("Failed to persist sensor sample",
			zap.Int64("baby_id", sample.BabyID),
			zap.String("kind", string(sample.Kind)),
			zap.Error(err),
		)
	}

	evalCtx, cancelEval := boundCtx(ctx, s.opTimeout)
	defer cancelEval()
	if a := s.engine.EvaluateSample(evalCtx, sample); a != nil {
		metrics.AlertsTotal.WithLabelValues(string(a.Kind)).Inc()
	}
}

// eventSink 状态机领域事件的落地处理
//
// 状态机先提交内存状态再调用这里，所以本层的任何失败都只影响
// 事件的下游副作用（入库、发布、提醒、洞察），不会回滚状态转换。
// 状态机在持有宝宝锁的情况下调用本层，所以每个下游调用都必须
// 有超时上界。
type eventSink struct {
	awakeningRepo *repository.AwakeningEventRepository
	sampleRepo    *repository.SensorSampleRepository
	publisher     *events.Publisher
	engine        *alert.Engine
	insightClient *insight.Client // nil 表示禁用
	insightTime   time.Duration
	opTimeout     time.Duration
	logger        *zap.Logger
}

func (s *eventSink) SleepStarted(ctx context.Context, babyID int64, at time.Time) {
	metrics.StateTransitionsTotal.WithLabelValues(string(models.StateAsleep)).Inc()

	event := &models.DomainEvent{
		EventID: uuid.New().String(),
		Type:    models.EventSleepStarted,
		BabyID:  babyID,
		At:      at,
	}
	pubCtx, cancel := boundCtx(ctx, s.opTimeout)
	defer cancel()
	if err := s.publisher.PublishEvent(pubCtx, event); err != nil {
		s.logger.Error("Failed to publish sleep_started event",
			zap.Int64("baby_id", babyID),
			zap.Error(err),
		)
	}
}

func (s *eventSink) SleepEnded(
	ctx context.Context,
	babyID int64,
	sleepStartedAt, awakenedAt time.Time,
	duration time.Duration,
	summary models.SensorSummary,
) {
	metrics.StateTransitionsTotal.WithLabelValues(string(models.StateAwake)).Inc()

	durationMinutes := duration.Minutes()

	// 最近一次读数作为事件上下文（查询失败不影响事件本身）
	readCtx, cancelRead := boundCtx(ctx, s.opTimeout)
	lastReadings, err := s.sampleRepo.LatestReadings(readCtx, babyID)
	cancelRead()
	if err != nil {
		s.logger.Warn("Failed to load latest sensor readings",
			zap.Int64("baby_id", babyID),
			zap.Error(err),
		)
		lastReadings = nil
	}

	awakening := &models.AwakeningEvent{
		EventID:   uuid.New().String(),
		BabyID:    babyID,
		Timestamp: awakenedAt,
		Metadata: models.AwakeningMetadata{
			SleepStartedAt:       sleepStartedAt,
			AwakenedAt:           awakenedAt,
			SleepDurationMinutes: durationMinutes,
			SensorSummary:        summary,
			LastSensorReadings:   lastReadings,
		},
		CreatedAt: awakenedAt,
	}

	persistCtx, cancelPersist := boundCtx(ctx, s.opTimeout)
	err = s.awakeningRepo.CreateEvent(persistCtx, awakening)
	cancelPersist()
	if err != nil {
		s.logger.Error("Failed to persist awakening event",
			zap.Int64("baby_id", babyID),
			zap.String("event_id", awakening.EventID),
			zap.Error(err),
		)
	}

	event := &models.DomainEvent{
		EventID:         awakening.EventID,
		Type:            models.EventSleepEnded,
		BabyID:          babyID,
		At:              awakenedAt,
		DurationMinutes: &durationMinutes,
		SensorSummary:   summary,
	}
	pubCtx, cancelPub := boundCtx(ctx, s.opTimeout)
	err = s.publisher.PublishEvent(pubCtx, event)
	cancelPub()
	if err != nil {
		s.logger.Error("Failed to publish sleep_ended event",
			zap.Int64("baby_id", babyID),
			zap.Error(err),
		)
	}

	alertCtx, cancelAlert := boundCtx(ctx, s.opTimeout)
	a := s.engine.CreateAwakeningAlert(alertCtx, babyID, awakenedAt, durationMinutes, lastReadings)
	cancelAlert()
	if a != nil {
		metrics.AlertsTotal.WithLabelValues(string(a.Kind)).Inc()
	}

	// 可选的 AI 洞察：异步生成，失败只丢文本
	if s.insightClient != nil {
		go s.enrichWithInsight(awakening.EventID, babyID, awakenedAt, durationMinutes, lastReadings)
	}
}

func (s *eventSink) BabyAway(ctx context.Context, babyID int64, at time.Time) {
	metrics.StateTransitionsTotal.WithLabelValues(string(models.StateAway)).Inc()

	event := &models.DomainEvent{
		EventID: uuid.New().String(),
		Type:    models.EventBabyAway,
		BabyID:  babyID,
		At:      at,
	}
	pubCtx, cancel := boundCtx(ctx, s.opTimeout)
	defer cancel()
	if err := s.publisher.PublishEvent(pubCtx, event); err != nil {
		s.logger.Error("Failed to publish baby_away event",
			zap.Int64("baby_id", babyID),
			zap.Error(err),
		)
	}
}

// enrichWithInsight 生成并补写 AI 洞察
func (s *eventSink) enrichWithInsight(
	eventID string,
	babyID int64,
	awakenedAt time.Time,
	durationMinutes float64,
	lastReadings map[models.SensorKind]float64,
) {
	ctx, cancel := context.WithTimeout(context.Background(), s.insightTime)
	defer cancel()

	text, err := s.insightClient.GenerateQuickInsight(ctx, babyID, awakenedAt, durationMinutes, lastReadings)
	if err != nil {
		metrics.InsightFailuresTotal.Inc()
		s.logger.Warn("Failed to generate awakening insight",
			zap.Int64("baby_id", babyID),
			zap.String("event_id", eventID),
			zap.Error(err),
		)
		return
	}
	if text == "" {
		return
	}

	if err := s.awakeningRepo.UpdateInsight(ctx, eventID, text); err != nil {
		s.logger.Warn("Failed to attach insight to awakening event",
			zap.String("event_id", eventID),
			zap.Error(err),
		)
		return
	}

	s.logger.Info("Awakening insight attached",
		zap.Int64("baby_id", babyID),
		zap.String("event_id", eventID),
	)
}
