package verdict

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oferElz/Nappi/internal/models"
)

func obsAt(v models.Verdict, conf int, at time.Time) models.Observation {
	return models.Observation{Verdict: v, Confidence: conf, Timestamp: at}
}

// 10 次 Asleep、置信度 90：占比 1.0 >= 0.6，质量 900 >= 10×50=500，接受
func TestDebouncer_UnanimousWindowAccepted(t *testing.T) {
	d := NewDebouncer(25*time.Second, 0.6, 50)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	var stable models.Verdict
	var ok bool
	for i := 0; i < 10; i++ {
		stable, ok = d.Feed(obsAt(models.VerdictAsleep, 90, base.Add(time.Duration(i)*time.Second)))
	}

	require.True(t, ok)
	assert.Equal(t, models.VerdictAsleep, stable)
	assert.Equal(t, 10, d.Size())
}

// 5 次 NoBabyFound(30) + 5 次 Asleep(90)：双方占比 0.5 < 0.6，不产生稳定判定
func TestDebouncer_SplitWindowRejected(t *testing.T) {
	d := NewDebouncer(25*time.Second, 0.6, 50)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_, ok := d.Feed(obsAt(models.VerdictNoBabyFound, 30, base.Add(time.Duration(i)*time.Second)))
		_ = ok
	}
	for i := 5; i < 10; i++ {
		_, ok := d.Feed(obsAt(models.VerdictAsleep, 90, base.Add(time.Duration(i)*time.Second)))
		assert.False(t, ok)
	}
}

// 占比达标但置信度质量不足时拒绝
func TestDebouncer_InsufficientConfidenceMass(t *testing.T) {
	d := NewDebouncer(25*time.Second, 0.6, 50)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	// 10 次 Asleep、置信度 40：质量 400 < 500
	var ok bool
	for i := 0; i < 10; i++ {
		_, ok = d.Feed(obsAt(models.VerdictAsleep, 40, base.Add(time.Duration(i)*time.Second)))
	}
	assert.False(t, ok)
}

// 主导判定的计票与输入顺序无关（只有打平时的最近出现受顺序影响）
func TestDebouncer_OrderIndependentCounts(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	build := func(order []models.Verdict) (models.Verdict, bool) {
		d := NewDebouncer(60*time.Second, 0.6, 50)
		var stable models.Verdict
		var ok bool
		for i, v := range order {
			stable, ok = d.Feed(obsAt(v, 90, base.Add(time.Duration(i)*time.Second)))
		}
		return stable, ok
	}

	a := []models.Verdict{
		models.VerdictAsleep, models.VerdictAsleep, models.VerdictAwake,
		models.VerdictAsleep, models.VerdictAsleep, models.VerdictAsleep,
		models.VerdictAsleep, models.VerdictAsleep, models.VerdictAwake,
		models.VerdictAsleep,
	}
	b := []models.Verdict{
		models.VerdictAwake, models.VerdictAsleep, models.VerdictAsleep,
		models.VerdictAsleep, models.VerdictAsleep, models.VerdictAwake,
		models.VerdictAsleep, models.VerdictAsleep, models.VerdictAsleep,
		models.VerdictAsleep,
	}

	stableA, okA := build(a)
	stableB, okB := build(b)

	require.True(t, okA)
	require.True(t, okB)
	assert.Equal(t, stableA, stableB)
	assert.Equal(t, models.VerdictAsleep, stableA)
}

// 次数打平时按置信度总和决胜
func TestDebouncer_TieBrokenByConfidenceMass(t *testing.T) {
	d := NewDebouncer(60*time.Second, 0.5, 0)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	d.Feed(obsAt(models.VerdictAwake, 95, base))
	d.Feed(obsAt(models.VerdictAsleep, 60, base.Add(time.Second)))
	d.Feed(obsAt(models.VerdictAwake, 95, base.Add(2*time.Second)))
	stable, ok := d.Feed(obsAt(models.VerdictAsleep, 60, base.Add(3*time.Second)))

	require.True(t, ok)
	assert.Equal(t, models.VerdictAwake, stable)
}

// 次数和置信度都打平时取最近出现的判定
func TestDebouncer_TieBrokenByRecency(t *testing.T) {
	d := NewDebouncer(60*time.Second, 0.5, 0)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	d.Feed(obsAt(models.VerdictAwake, 80, base))
	stable, ok := d.Feed(obsAt(models.VerdictAsleep, 80, base.Add(time.Second)))

	require.True(t, ok)
	assert.Equal(t, models.VerdictAsleep, stable)
}

// 超出窗口宽度的旧观测被淘汰
func TestDebouncer_EvictsOldObservations(t *testing.T) {
	d := NewDebouncer(10*time.Second, 0.6, 50)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		d.Feed(obsAt(models.VerdictAwake, 90, base.Add(time.Duration(i)*time.Second)))
	}
	assert.Equal(t, 5, d.Size())

	// 30 秒后的观测使旧窗口全部过期
	stable, ok := d.Feed(obsAt(models.VerdictAsleep, 90, base.Add(30*time.Second)))
	assert.Equal(t, 1, d.Size())

	// 单观测窗口：占比 1.0、质量 90 >= 1×50，立即接受
	require.True(t, ok)
	assert.Equal(t, models.VerdictAsleep, stable)
}

func TestDebouncer_Reset(t *testing.T) {
	d := NewDebouncer(25*time.Second, 0.6, 50)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	d.Feed(obsAt(models.VerdictAwake, 90, base))
	require.Equal(t, 1, d.Size())

	d.Reset()
	assert.Equal(t, 0, d.Size())
}
