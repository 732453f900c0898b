package report

import (
	"fmt"
	"math"
	"sort"
)

// 聚类标签的时段边界（按平均开始小时划分）
const (
	patternMorningStart   = 5.0
	patternMorningEnd     = 11.0
	patternAfternoonStart = 11.0
	patternAfternoonEnd   = 17.0
)

// Cluster 按开始时段聚出的一组会话
type Cluster struct {
	Sessions []SessionEvent
}

// Pattern 一个典型睡眠时段的汇总
type Pattern struct {
	ClusterID        int     `json:"cluster_id"`
	Label            string  `json:"label"`
	AvgStart         string  `json:"avg_start"` // HH:MM
	AvgEnd           string  `json:"avg_end"`
	AvgDurationHours float64 `json:"avg_duration_hours"`
	SessionCount     int     `json:"session_count"`
	EarliestStart    string  `json:"earliest_start"`
	LatestEnd        string  `json:"latest_end"`
}

// startHour 开始时刻的十进制小时
func startHour(s SessionEvent) float64 {
	return float64(s.SleepStartedAt.Hour()) + float64(s.SleepStartedAt.Minute())/60.0
}

// endHour 结束时刻的十进制小时，跨夜会话内部允许超过 24
func endHour(s SessionEvent) float64 {
	end := float64(s.AwakenedAt.Hour()) + float64(s.AwakenedAt.Minute())/60.0
	if end < startHour(s) {
		end += 24.0
	}
	return end
}

// ClusterByStartHour 按开始时段聚类
// 会话按开始小时排序后顺序扫描，相邻开始小时差超过 gapHours 就切分新簇
func ClusterByStartHour(sessions []SessionEvent, gapHours float64) []Cluster {
	if len(sessions) == 0 {
		return nil
	}

	sorted := make([]SessionEvent, len(sessions))
	copy(sorted, sessions)
	sort.Slice(sorted, func(i, j int) bool {
		return startHour(sorted[i]) < startHour(sorted[j])
	})

	var clusters []Cluster
	current := []SessionEvent{sorted[0]}

	for i := 1; i < len(sorted); i++ {
		if startHour(sorted[i])-startHour(sorted[i-1]) > gapHours {
			clusters = append(clusters, Cluster{Sessions: current})
			current = []SessionEvent{sorted[i]}
			continue
		}
		current = append(current, sorted[i])
	}

	return append(clusters, Cluster{Sessions: current})
}

// AnalyzePatterns 多天会话的典型睡眠时段分析
// 输出按一天内的时刻排序（凌晨 5 点前算前一晚，排在最后）
func AnalyzePatterns(sessions []SessionEvent, gapHours float64) []Pattern {
	clusters := ClusterByStartHour(sessions, gapHours)
	if len(clusters) == 0 {
		return nil
	}

	patterns := make([]Pattern, 0, len(clusters))
	for _, cluster := range clusters {
		n := len(cluster.Sessions)
		if n == 0 {
			continue
		}

		var startSum, endSum, durationSum float64
		earliest := startHour(cluster.Sessions[0])
		latest := endHour(cluster.Sessions[0])
		for _, s := range cluster.Sessions {
			sh, eh := startHour(s), endHour(s)
			startSum += sh
			endSum += eh
			durationSum += s.DurationMinutes
			if sh < earliest {
				earliest = sh
			}
			if eh > latest {
				latest = eh
			}
		}

		avgStart := startSum / float64(n)
		patterns = append(patterns, Pattern{
			Label:            assignLabel(avgStart),
			AvgStart:         formatHour(avgStart),
			AvgEnd:           formatHour(endSum / float64(n)),
			AvgDurationHours: roundHundredth(durationSum / float64(n) / 60.0),
			SessionCount:     n,
			EarliestStart:    formatHour(earliest),
			LatestEnd:        formatHour(latest),
		})
	}

	sort.Slice(patterns, func(i, j int) bool {
		return timeOfDaySortKey(patterns[i].AvgStart) < timeOfDaySortKey(patterns[j].AvgStart)
	})
	for i := range patterns {
		patterns[i].ClusterID = i + 1
	}

	return patterns
}

// assignLabel 按平均开始小时给聚类打标签
func assignLabel(avgStartHour float64) string {
	hour := normalizeHour(avgStartHour)
	switch {
	case hour >= patternMorningStart && hour < patternMorningEnd:
		return "Morning nap"
	case hour >= patternAfternoonStart && hour < patternAfternoonEnd:
		return "Afternoon nap"
	default:
		return "Night sleep"
	}
}

// normalizeHour 把内部可超 24 的小时归一到 [0,24)
func normalizeHour(h float64) float64 {
	for h >= 24.0 {
		h -= 24.0
	}
	for h < 0 {
		h += 24.0
	}
	return h
}

// formatHour 十进制小时转 HH:MM
func formatHour(decimalHours float64) string {
	h := normalizeHour(decimalHours)
	hours := int(h)
	minutes := int((h - float64(hours)) * 60.0)
	return fmt.Sprintf("%02d:%02d", hours, minutes)
}

// timeOfDaySortKey HH:MM 转排序键，凌晨 5 点前加 24 让夜间睡眠排最后
func timeOfDaySortKey(hhmm string) float64 {
	var hours, minutes int
	fmt.Sscanf(hhmm, "%d:%d", &hours, &minutes)
	key := float64(hours) + float64(minutes)/60.0
	if hours < 5 {
		key += 24.0
	}
	return key
}

func roundHundredth(v float64) float64 {
	return math.Round(v*100) / 100
}
