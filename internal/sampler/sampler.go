// Package sampler 在宝宝处于 asleep 状态期间按固定间隔采集环境读数
//
// 每个宝宝一个独立的采样协程，由状态机通过 Start/Stop 控制；
// 单次读取失败只记录并跳过，同一传感器连续失败达到上限后在本次
// 睡眠会话内暂停该传感器。采样失败从不上报给状态机。
package sampler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/oferElz/Nappi/internal/metrics"
	"github.com/oferElz/Nappi/internal/models"
)

// SampleSink 成功采样的接收方（入库 + 阈值评估，由 service 层装配）
// 实现方自行隔离失败，不得阻塞采样循环
type SampleSink interface {
	HandleSample(ctx context.Context, sample models.SensorSample)
}

// kindStats 单种传感器的会话内聚合
type kindStats struct {
	count int
	min   float64
	max   float64
	sum   float64
}

// session 一个宝宝的采样会话
type session struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	stats     map[models.SensorKind]*kindStats
	failures  map[models.SensorKind]int
	suspended map[models.SensorKind]bool
}

// Sampler 传感器采样器
type Sampler struct {
	source      Source
	sink        SampleSink
	interval    time.Duration
	readTimeout time.Duration
	maxFailures int
	logger      *zap.Logger

	mu       sync.Mutex
	sessions map[int64]*session

	now func() time.Time // 测试注入
}

// NewSampler 创建采样器
func NewSampler(
	source Source,
	sink SampleSink,
	interval time.Duration,
	readTimeout time.Duration,
	maxFailures int,
	logger *zap.Logger,
) *Sampler {
	return &Sampler{
		source:      source,
		sink:        sink,
		interval:    interval,
		readTimeout: readTimeout,
		maxFailures: maxFailures,
		logger:      logger,
		sessions:    make(map[int64]*session),
		now:         time.Now,
	}
}

// Start 为宝宝启动采样会话（已在采样中则忽略）
// 只负责启动协程，立即返回，不阻塞调用方
func (s *Sampler) Start(babyID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, running := s.sessions[babyID]; running {
		s.logger.Warn("Sampling session already running",
			zap.Int64("baby_id", babyID),
		)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{
		cancel:    cancel,
		done:      make(chan struct{}),
		stats:     make(map[models.SensorKind]*kindStats),
		failures:  make(map[models.SensorKind]int),
		suspended: make(map[models.SensorKind]bool),
	}
	s.sessions[babyID] = sess

	go s.run(ctx, babyID, sess)

	s.logger.Info("Sampling session started",
		zap.Int64("baby_id", babyID),
		zap.Duration("interval", s.interval),
	)
}

// Stop 停止宝宝的采样会话并返回会话聚合
// 已记录的样本全部保留；未在采样中返回空聚合
func (s *Sampler) Stop(babyID int64) models.SensorSummary {
	s.mu.Lock()
	sess, running := s.sessions[babyID]
	if running {
		delete(s.sessions, babyID)
	}
	s.mu.Unlock()

	if !running {
		return models.SensorSummary{}
	}

	sess.cancel()
	<-sess.done

	summary := sess.summary()
	s.logger.Info("Sampling session stopped",
		zap.Int64("baby_id", babyID),
		zap.Int("kinds", len(summary)),
	)
	return summary
}

// run 采样循环（每个会话一个协程）
func (s *Sampler) run(ctx context.Context, babyID int64, sess *session) {
	defer close(sess.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollOnce(ctx, babyID, sess)
		}
	}
}

// pollOnce 轮询一次全部传感器
func (s *Sampler) pollOnce(ctx context.Context, babyID int64, sess *session) {
	for _, kind := range models.AllSensorKinds {
		select {
		case <-ctx.Done():
			return
		default:
		}

		sess.mu.Lock()
		skip := sess.suspended[kind]
		sess.mu.Unlock()
		if skip {
			continue
		}

		readCtx, cancel := context.WithTimeout(ctx, s.readTimeout)
		value, err := s.source.Read(readCtx, kind, babyID)
		cancel()

		if err != nil {
			s.recordFailure(babyID, kind, sess, err)
			continue
		}

		sample := models.SensorSample{
			BabyID:    babyID,
			Kind:      kind,
			Value:     value,
			Timestamp: s.now(),
		}

		sess.mu.Lock()
		sess.failures[kind] = 0
		st, ok := sess.stats[kind]
		if !ok {
			st = &kindStats{min: value, max: value}
			sess.stats[kind] = st
		}
		st.count++
		st.sum += value
		if value < st.min {
			st.min = value
		}
		if value > st.max {
			st.max = value
		}
		sess.mu.Unlock()

		s.sink.HandleSample(ctx, sample)
	}
}

// recordFailure 记录一次读取失败，达到上限后暂停该传感器直到下次会话
func (s *Sampler) recordFailure(babyID int64, kind models.SensorKind, sess *session, err error) {
	metrics.SensorReadFailuresTotal.WithLabelValues(string(kind)).Inc()

	sess.mu.Lock()
	sess.failures[kind]++
	count := sess.failures[kind]
	suspend := count >= s.maxFailures
	if suspend {
		sess.suspended[kind] = true
	}
	sess.mu.Unlock()

	if suspend {
		s.logger.Warn("Sensor suspended for the rest of the session",
			zap.Int64("baby_id", babyID),
			zap.String("kind", string(kind)),
			zap.Int("consecutive_failures", count),
			zap.Error(err),
		)
		return
	}

	s.logger.Debug("Sensor read failed, skipping",
		zap.Int64("baby_id", babyID),
		zap.String("kind", string(kind)),
		zap.Int("consecutive_failures", count),
		zap.Error(err),
	)
}

// summary 生成会话聚合
func (sess *session) summary() models.SensorSummary {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	summary := make(models.SensorSummary, len(sess.stats))
	for kind, st := range sess.stats {
		if st.count == 0 {
			continue
		}
		summary[kind] = models.SensorStats{
			Count: st.count,
			Min:   st.min,
			Max:   st.max,
			Avg:   st.sum / float64(st.count),
		}
	}
	return summary
}
