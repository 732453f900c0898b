// Package report 提供睡眠报表的离线聚合：把原始醒来事件合并为
// 逻辑睡眠块，并对多天的会话开始时间做时段聚类。两部分都是纯函数，
// 无副作用、无 I/O，相同输入必然得到相同输出。
package report

import (
	"sort"
	"time"

	"github.com/oferElz/Nappi/internal/models"
)

// SessionEvent 一段已结束的睡眠会话
type SessionEvent struct {
	SleepStartedAt  time.Time `json:"sleep_started_at"`
	AwakenedAt      time.Time `json:"awakened_at"`
	DurationMinutes float64   `json:"duration_minutes"`
}

// SleepBlock 合并后的逻辑睡眠块
// 间隔不超过阈值的相邻会话算同一块，块内的会话数减一就是被打断的次数
type SleepBlock struct {
	BlockStart        time.Time      `json:"block_start"`
	BlockEnd          time.Time      `json:"block_end"`
	TotalMinutes      float64        `json:"total_minutes"`
	InterruptionCount int            `json:"interruption_count"`
	Events            []SessionEvent `json:"events"`
}

// NormalizeAwakening 把醒来事件转成会话记录
// 元数据缺失时从事件时间戳和时长反推，无法反推返回 false
func NormalizeAwakening(event models.AwakeningEvent) (SessionEvent, bool) {
	awakenedAt := event.Metadata.AwakenedAt
	if awakenedAt.IsZero() {
		awakenedAt = event.Timestamp
	}
	if awakenedAt.IsZero() {
		return SessionEvent{}, false
	}

	duration := event.Metadata.SleepDurationMinutes
	if duration < 0 {
		duration = 0
	}

	startedAt := event.Metadata.SleepStartedAt
	if startedAt.IsZero() {
		startedAt = awakenedAt.Add(-time.Duration(duration * float64(time.Minute)))
	}

	return SessionEvent{
		SleepStartedAt:  startedAt,
		AwakenedAt:      awakenedAt,
		DurationMinutes: duration,
	}, true
}

// GroupIntoBlocks 把同一宝宝的会话合并为睡眠块
//
// 先按开始时间排序（输入顺序不影响结果），再顺序扫描：会话开始时间
// 与当前块结束时间的间隔不超过 gap 就并入当前块，否则开新块。
func GroupIntoBlocks(events []SessionEvent, gap time.Duration) []SleepBlock {
	if len(events) == 0 {
		return nil
	}

	sorted := make([]SessionEvent, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].SleepStartedAt.Before(sorted[j].SleepStartedAt)
	})

	var blocks []SleepBlock
	current := []SessionEvent{sorted[0]}
	blockEnd := sorted[0].AwakenedAt

	for _, event := range sorted[1:] {
		if event.SleepStartedAt.Sub(blockEnd) <= gap {
			current = append(current, event)
			if event.AwakenedAt.After(blockEnd) {
				blockEnd = event.AwakenedAt
			}
			continue
		}
		blocks = append(blocks, buildBlock(current, blockEnd))
		current = []SessionEvent{event}
		blockEnd = event.AwakenedAt
	}

	return append(blocks, buildBlock(current, blockEnd))
}

func buildBlock(events []SessionEvent, blockEnd time.Time) SleepBlock {
	blockStart := events[0].SleepStartedAt
	return SleepBlock{
		BlockStart:        blockStart,
		BlockEnd:          blockEnd,
		TotalMinutes:      blockEnd.Sub(blockStart).Minutes(),
		InterruptionCount: len(events) - 1,
		Events:            events,
	}
}
