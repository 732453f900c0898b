package sampler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/oferElz/Nappi/internal/metrics"
	"github.com/oferElz/Nappi/internal/models"
)

// fakeSource 可编程的传感器数据源
type fakeSource struct {
	mu     sync.Mutex
	values map[models.SensorKind]float64
	errs   map[models.SensorKind]error
	reads  map[models.SensorKind]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		values: map[models.SensorKind]float64{
			models.SensorTemperature: 22.0,
			models.SensorHumidity:    45.0,
			models.SensorNoise:       32.0,
		},
		errs:  make(map[models.SensorKind]error),
		reads: make(map[models.SensorKind]int),
	}
}

func (f *fakeSource) Read(_ context.Context, kind models.SensorKind, _ int64) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads[kind]++
	if err := f.errs[kind]; err != nil {
		return 0, err
	}
	return f.values[kind], nil
}

func (f *fakeSource) readCount(kind models.SensorKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads[kind]
}

func (f *fakeSource) setValue(kind models.SensorKind, v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[kind] = v
}

func (f *fakeSource) setError(kind models.SensorKind, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[kind] = err
}

// collectingSink 收集采样结果
type collectingSink struct {
	mu      sync.Mutex
	samples []models.SensorSample
}

func (c *collectingSink) HandleSample(_ context.Context, sample models.SensorSample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = append(c.samples, sample)
}

func (c *collectingSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.samples)
}

func newTestSampler(source Source, sink SampleSink) *Sampler {
	return NewSampler(source, sink, 5*time.Millisecond, time.Second, 3, zap.NewNop())
}

func TestSampler_CollectsSamplesWhileRunning(t *testing.T) {
	source := newFakeSource()
	sink := &collectingSink{}
	s := newTestSampler(source, sink)

	s.Start(10)

	// 等待若干个采样周期
	require.Eventually(t, func() bool {
		return sink.count() >= 6
	}, time.Second, time.Millisecond)

	summary := s.Stop(10)

	require.Contains(t, summary, models.SensorTemperature)
	require.Contains(t, summary, models.SensorHumidity)
	require.Contains(t, summary, models.SensorNoise)
	assert.Equal(t, 22.0, summary[models.SensorTemperature].Avg)
	assert.Equal(t, 22.0, summary[models.SensorTemperature].Min)
	assert.Equal(t, 22.0, summary[models.SensorTemperature].Max)
	assert.GreaterOrEqual(t, summary[models.SensorTemperature].Count, 2)
}

func TestSampler_SummaryAggregatesMinMaxAvg(t *testing.T) {
	source := newFakeSource()
	sink := &collectingSink{}
	s := newTestSampler(source, sink)

	source.setValue(models.SensorTemperature, 20.0)
	s.Start(10)

	require.Eventually(t, func() bool {
		return source.readCount(models.SensorTemperature) >= 2
	}, time.Second, time.Millisecond)

	source.setValue(models.SensorTemperature, 24.0)

	require.Eventually(t, func() bool {
		return source.readCount(models.SensorTemperature) >= 5
	}, time.Second, time.Millisecond)

	summary := s.Stop(10)

	st := summary[models.SensorTemperature]
	assert.Equal(t, 20.0, st.Min)
	assert.Equal(t, 24.0, st.Max)
	assert.Greater(t, st.Avg, 20.0)
	assert.Less(t, st.Avg, 24.0)
}

// 连续 3 次失败后该传感器在本会话内暂停，其他传感器不受影响
func TestSampler_SuspendsKindAfterConsecutiveFailures(t *testing.T) {
	source := newFakeSource()
	sink := &collectingSink{}
	s := newTestSampler(source, sink)

	source.setError(models.SensorNoise, errors.New("timeout"))
	s.Start(10)

	// 等噪音传感器失败满 3 次被暂停
	require.Eventually(t, func() bool {
		return source.readCount(models.SensorNoise) >= 3
	}, time.Second, time.Millisecond)

	noiseReads := source.readCount(models.SensorNoise)
	assert.Equal(t, 3, noiseReads)

	// 其他传感器继续采样
	require.Eventually(t, func() bool {
		return source.readCount(models.SensorTemperature) >= noiseReads+3
	}, time.Second, time.Millisecond)
	assert.Equal(t, 3, source.readCount(models.SensorNoise))

	summary := s.Stop(10)
	assert.NotContains(t, summary, models.SensorNoise)
	assert.Contains(t, summary, models.SensorTemperature)
}

// 一次成功读取会重置连续失败计数
func TestSampler_SuccessResetsFailureCount(t *testing.T) {
	source := newFakeSource()
	sink := &collectingSink{}
	s := newTestSampler(source, sink)

	source.setError(models.SensorNoise, errors.New("timeout"))
	s.Start(10)

	require.Eventually(t, func() bool {
		return source.readCount(models.SensorNoise) >= 2
	}, time.Second, time.Millisecond)

	// 失败 2 次后恢复
	source.setError(models.SensorNoise, nil)

	require.Eventually(t, func() bool {
		return source.readCount(models.SensorNoise) >= 8
	}, time.Second, time.Millisecond)

	summary := s.Stop(10)
	// 传感器未被暂停，聚合中存在噪音数据
	assert.Contains(t, summary, models.SensorNoise)
}

// 每次读取失败都计入失败指标
func TestSampler_ReadFailuresCounted(t *testing.T) {
	source := newFakeSource()
	sink := &collectingSink{}
	s := newTestSampler(source, sink)

	failures := metrics.SensorReadFailuresTotal.WithLabelValues(string(models.SensorNoise))
	before := testutil.ToFloat64(failures)

	source.setError(models.SensorNoise, errors.New("timeout"))
	s.Start(10)

	require.Eventually(t, func() bool {
		return source.readCount(models.SensorNoise) >= 3
	}, time.Second, time.Millisecond)
	s.Stop(10)

	assert.GreaterOrEqual(t, testutil.ToFloat64(failures)-before, 3.0)
}

func TestSampler_StopWithoutStartReturnsEmptySummary(t *testing.T) {
	source := newFakeSource()
	sink := &collectingSink{}
	s := newTestSampler(source, sink)

	summary := s.Stop(10)
	assert.Empty(t, summary)
}

func TestSampler_StartTwiceIsNoop(t *testing.T) {
	source := newFakeSource()
	sink := &collectingSink{}
	s := newTestSampler(source, sink)

	s.Start(10)
	s.Start(10)

	require.Eventually(t, func() bool {
		return sink.count() >= 3
	}, time.Second, time.Millisecond)

	s.Stop(10)

	// 第二次 Stop 返回空聚合（会话已结束）
	summary := s.Stop(10)
	assert.Empty(t, summary)
}

func TestSampler_IndependentSessionsPerBaby(t *testing.T) {
	source := newFakeSource()
	sink := &collectingSink{}
	s := newTestSampler(source, sink)

	s.Start(10)
	s.Start(11)

	require.Eventually(t, func() bool {
		return sink.count() >= 12
	}, time.Second, time.Millisecond)

	summary10 := s.Stop(10)
	assert.NotEmpty(t, summary10)

	// 停掉 10 之后 11 还在采样
	before := sink.count()
	require.Eventually(t, func() bool {
		return sink.count() > before
	}, time.Second, time.Millisecond)

	summary11 := s.Stop(11)
	assert.NotEmpty(t, summary11)
}
