// Package sleepstate 实现每个宝宝的睡眠状态机
//
// 状态：awake / asleep / away，初始为 awake。
// 只有状态机的转换接口可以修改状态；每个宝宝的状态记录由独立的
// 互斥锁保护，保证同一宝宝的转换严格按时间串行、冷却检查与转换
// 原子进行。事件发布、入库等下游动作都发生在内存状态提交之后，
// 它们的失败不会回滚状态转换。
package sleepstate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/oferElz/Nappi/internal/models"
)

// Action 人工干预动作
type Action string

const (
	ActionMarkAsleep Action = "mark_asleep"
	ActionMarkAwake  Action = "mark_awake"
)

// CooldownActiveError 干预冷却期内的操作被拒绝
type CooldownActiveError struct {
	Remaining time.Duration
}

func (e *CooldownActiveError) Error() string {
	return fmt.Sprintf("intervention cooldown active: %d minute(s) remaining", e.RemainingMinutes())
}

// RemainingMinutes 剩余冷却分钟数（向上取整）
func (e *CooldownActiveError) RemainingMinutes() int {
	minutes := int(e.Remaining / time.Minute)
	if e.Remaining%time.Minute > 0 {
		minutes++
	}
	return minutes
}

// SamplerControl 传感器采样器的启停接口（由 sampler 包实现）
// Start/Stop 只向采样协程发信号，不得阻塞状态机
type SamplerControl interface {
	Start(babyID int64)
	Stop(babyID int64) models.SensorSummary
}

// EventSink 领域事件接收方（由 service 层装配）
// 实现方必须自行隔离失败：任何错误都不能传回状态机
type EventSink interface {
	SleepStarted(ctx context.Context, babyID int64, at time.Time)
	SleepEnded(ctx context.Context, babyID int64, sleepStartedAt, awakenedAt time.Time, duration time.Duration, summary models.SensorSummary)
	BabyAway(ctx context.Context, babyID int64, at time.Time)
}

// SleepSession 一次进行中的睡眠会话
type SleepSession struct {
	BabyID    int64
	StartTime time.Time
}

// babyState 单个宝宝的状态记录
type babyState struct {
	mu             sync.Mutex
	state          models.SleepState
	sleepStartedAt time.Time
	lastTransition time.Time
	cooldownUntil  time.Time
}

// Tracker 睡眠状态机（持有所有宝宝的状态记录）
type Tracker struct {
	mu     sync.Mutex
	babies map[int64]*babyState

	initial  models.SleepState
	cooldown time.Duration
	sampler  SamplerControl
	sink     EventSink
	logger   *zap.Logger

	now func() time.Time // 测试注入
}

// NewTracker 创建状态机
func NewTracker(
	initial models.SleepState,
	cooldown time.Duration,
	sampler SamplerControl,
	sink EventSink,
	logger *zap.Logger,
) *Tracker {
	if initial == "" {
		initial = models.StateAwake
	}
	return &Tracker{
		babies:   make(map[int64]*babyState),
		initial:  initial,
		cooldown: cooldown,
		sampler:  sampler,
		sink:     sink,
		logger:   logger,
		now:      time.Now,
	}
}

// get 获取（或创建）宝宝状态记录
func (t *Tracker) get(babyID int64) *babyState {
	t.mu.Lock()
	defer t.mu.Unlock()

	bs, ok := t.babies[babyID]
	if !ok {
		bs = &babyState{state: t.initial}
		t.babies[babyID] = bs
	}
	return bs
}

// ApplyStableVerdict 自动路径：用去抖后的稳定判定驱动状态机
// 返回是否发生了状态转换。干预冷却期内的稳定判定被静默忽略。
func (t *Tracker) ApplyStableVerdict(ctx context.Context, babyID int64, v models.Verdict, at time.Time) bool {
	bs := t.get(babyID)
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if remaining := t.cooldownRemaining(bs, at); remaining > 0 {
		t.logger.Debug("Ignoring stable verdict during intervention cooldown",
			zap.Int64("baby_id", babyID),
			zap.String("verdict", string(v)),
			zap.Duration("cooldown_remaining", remaining),
		)
		return false
	}

	return t.transition(ctx, bs, babyID, verdictToState(v), at)
}

// Intervene 人工干预：绕过去抖器强制转换，并启动干预冷却
//
// 冷却期内的再次干预失败并返回 *CooldownActiveError（带剩余时间），
// 不影响已生效的干预。强制转换到当前状态是幂等空操作，不启动新冷却。
func (t *Tracker) Intervene(ctx context.Context, babyID int64, action Action, at time.Time) (models.SleepState, error) {
	var target models.SleepState
	switch action {
	case ActionMarkAsleep:
		target = models.StateAsleep
	case ActionMarkAwake:
		target = models.StateAwake
	default:
		return "", fmt.Errorf("invalid intervention action: %q", action)
	}

	bs := t.get(babyID)
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if remaining := t.cooldownRemaining(bs, at); remaining > 0 {
		return bs.state, &CooldownActiveError{Remaining: remaining}
	}

	if bs.state == target {
		// 幂等：已处于目标状态，无转换也不启动新冷却
		return bs.state, nil
	}

	bs.cooldownUntil = at.Add(t.cooldown)
	t.logger.Info("Parent intervention applied",
		zap.Int64("baby_id", babyID),
		zap.String("action", string(action)),
		zap.Time("cooldown_until", bs.cooldownUntil),
	)

	t.transition(ctx, bs, babyID, target, at)
	return bs.state, nil
}

// transition 执行一次状态转换（调用方必须持有 bs.mu）
func (t *Tracker) transition(ctx context.Context, bs *babyState, babyID int64, target models.SleepState, at time.Time) bool {
	if target == bs.state {
		return false
	}

	// 同一宝宝的转换时间戳严格递增
	if !at.After(bs.lastTransition) {
		at = bs.lastTransition.Add(time.Nanosecond)
	}

	prev := bs.state

	switch target {
	case models.StateAsleep:
		bs.state = models.StateAsleep
		bs.sleepStartedAt = at
		bs.lastTransition = at
		t.sampler.Start(babyID)
		t.sink.SleepStarted(ctx, babyID, at)

	case models.StateAwake:
		if prev == models.StateAsleep {
			startedAt := bs.sleepStartedAt
			duration := at.Sub(startedAt)
			if duration < 0 {
				duration = 0
			}
			summary := t.sampler.Stop(babyID)
			bs.state = models.StateAwake
			bs.lastTransition = at
			t.sink.SleepEnded(ctx, babyID, startedAt, at, duration, summary)
		} else {
			// away → awake：静默转换，不产生事件
			bs.state = models.StateAwake
			bs.lastTransition = at
		}

	case models.StateAway:
		if prev == models.StateAsleep {
			// 已采样数据保留，只停止采集；不产生醒来事件
			t.sampler.Stop(babyID)
		}
		bs.state = models.StateAway
		bs.lastTransition = at
		t.sink.BabyAway(ctx, babyID, at)
	}

	t.logger.Info("Sleep state transition",
		zap.Int64("baby_id", babyID),
		zap.String("from", string(prev)),
		zap.String("to", string(bs.state)),
		zap.Time("at", at),
	)

	return true
}

// cooldownRemaining 剩余冷却时间（调用方必须持有 bs.mu）
func (t *Tracker) cooldownRemaining(bs *babyState, at time.Time) time.Duration {
	if bs.cooldownUntil.IsZero() {
		return 0
	}
	remaining := bs.cooldownUntil.Sub(at)
	if remaining <= 0 {
		bs.cooldownUntil = time.Time{}
		return 0
	}
	return remaining
}

// State 当前状态查询
func (t *Tracker) State(babyID int64) models.SleepState {
	bs := t.get(babyID)
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return bs.state
}

// Session 进行中的睡眠会话（仅 asleep 状态下存在）
func (t *Tracker) Session(babyID int64) (SleepSession, bool) {
	bs := t.get(babyID)
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if bs.state != models.StateAsleep {
		return SleepSession{}, false
	}
	return SleepSession{BabyID: babyID, StartTime: bs.sleepStartedAt}, true
}

// CooldownRemaining 剩余干预冷却时间查询
func (t *Tracker) CooldownRemaining(babyID int64) (time.Duration, bool) {
	bs := t.get(babyID)
	bs.mu.Lock()
	defer bs.mu.Unlock()

	remaining := t.cooldownRemaining(bs, t.now())
	if remaining <= 0 {
		return 0, false
	}
	return remaining, true
}

// SleepingBabies 当前处于 asleep 状态的宝宝列表
func (t *Tracker) SleepingBabies() []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var ids []int64
	for id, bs := range t.babies {
		bs.mu.Lock()
		if bs.state == models.StateAsleep {
			ids = append(ids, id)
		}
		bs.mu.Unlock()
	}
	return ids
}

// Snapshot 当前状态快照（用于写入 Redis 状态缓存）
func (t *Tracker) Snapshot(babyID int64) models.StateSnapshot {
	bs := t.get(babyID)
	bs.mu.Lock()
	defer bs.mu.Unlock()

	snap := models.StateSnapshot{
		BabyID:    babyID,
		State:     bs.state,
		UpdatedAt: bs.lastTransition,
	}
	if bs.state == models.StateAsleep {
		startedAt := bs.sleepStartedAt
		snap.SleepStartedAt = &startedAt
	}
	return snap
}

// verdictToState 稳定判定到目标状态的映射
func verdictToState(v models.Verdict) models.SleepState {
	switch v {
	case models.VerdictAsleep:
		return models.StateAsleep
	case models.VerdictAwake:
		return models.StateAwake
	default:
		return models.StateAway
	}
}
