package verdict

import (
	"time"

	"github.com/oferElz/Nappi/internal/models"
)

// Debouncer 置信度加权去抖器
//
// 维护一个按时间滑动的观测窗口，每收到一次新观测：
//  1. 追加并淘汰超出窗口宽度的旧观测
//  2. 按判定统计出现次数和置信度总和
//  3. 选出主导判定（次数最多；平次数比置信度总和；再平比最近出现）
//  4. 同时满足两个条件才接受为稳定判定：
//     - 主导次数 / 窗口大小 >= dominanceRatio
//     - 主导置信度总和 >= 窗口大小 × massFactor
//
// 不满足时本次不产生稳定判定，下游维持上一个稳定判定。
// 非并发安全：每个宝宝的管道独占一个实例并串行访问。
type Debouncer struct {
	window         time.Duration
	dominanceRatio float64
	massFactor     int

	buffer []models.Observation
}

// NewDebouncer 创建去抖器
func NewDebouncer(window time.Duration, dominanceRatio float64, massFactor int) *Debouncer {
	return &Debouncer{
		window:         window,
		dominanceRatio: dominanceRatio,
		massFactor:     massFactor,
	}
}

// Feed 加入一次观测并尝试产生稳定判定
// 返回 (stable, true) 表示接受了一个稳定判定（可能与之前相同）；
// 返回 (_, false) 表示本次没有足够共识
func (d *Debouncer) Feed(obs models.Observation) (models.Verdict, bool) {
	d.buffer = append(d.buffer, obs)

	// 以最新观测为基准淘汰过期观测
	cutoff := obs.Timestamp.Add(-d.window)
	kept := d.buffer[:0]
	for _, o := range d.buffer {
		if !o.Timestamp.Before(cutoff) {
			kept = append(kept, o)
		}
	}
	d.buffer = kept

	if len(d.buffer) == 0 {
		return "", false
	}

	// 按判定统计次数、置信度总和、最近出现位置
	counts := make(map[models.Verdict]int)
	mass := make(map[models.Verdict]int)
	lastSeen := make(map[models.Verdict]int)
	for i, o := range d.buffer {
		counts[o.Verdict]++
		mass[o.Verdict] += o.Confidence
		lastSeen[o.Verdict] = i
	}

	// 选主导判定：次数 > 置信度总和 > 最近出现
	var dominant models.Verdict
	found := false
	for v := range counts {
		if !found {
			dominant = v
			found = true
			continue
		}
		if counts[v] != counts[dominant] {
			if counts[v] > counts[dominant] {
				dominant = v
			}
			continue
		}
		if mass[v] != mass[dominant] {
			if mass[v] > mass[dominant] {
				dominant = v
			}
			continue
		}
		if lastSeen[v] > lastSeen[dominant] {
			dominant = v
		}
	}

	size := len(d.buffer)
	if float64(counts[dominant])/float64(size) < d.dominanceRatio {
		return "", false
	}
	if mass[dominant] < size*d.massFactor {
		return "", false
	}

	return dominant, true
}

// Size 当前窗口内的观测数量
func (d *Debouncer) Size() int {
	return len(d.buffer)
}

// Reset 清空窗口
func (d *Debouncer) Reset() {
	d.buffer = d.buffer[:0]
}
