// internal/utils/metrics.go
package utils

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector keeps in-process counters, gauges and histograms.
type MetricsCollector struct {
	counters   map[string]*int64
	gauges     map[string]*int64
	histograms map[string]*Histogram

	mu sync.RWMutex
}

// Histogram tracks count, sum, min and max.
type Histogram struct {
	count int64
	sum   int64
	min   int64
	max   int64
	mu    sync.Mutex
}

var (
	globalMetrics *MetricsCollector
	metricsOnce   sync.Once
)

// NewMetricsCollector returns an empty collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:   make(map[string]*int64),
		gauges:     make(map[string]*int64),
		histograms: make(map[string]*Histogram),
	}
}

// GetMetricsCollector returns the process-wide collector.
func GetMetricsCollector() *MetricsCollector {
	metricsOnce.Do(func() {
		globalMetrics = NewMetricsCollector()
	})
	return globalMetrics
}

// cell returns the value slot for name in table, creating it under the write lock.
func (m *MetricsCollector) cell(table map[string]*int64, name string) *int64 {
	m.mu.RLock()
	v, ok := table[name]
	m.mu.RUnlock()
	if ok {
		return v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok = table[name]; !ok {
		v = new(int64)
		table[name] = v
	}
	return v
}

func (m *MetricsCollector) IncrementCounter(name string) {
	atomic.AddInt64(m.cell(m.counters, name), 1)
}

func (m *MetricsCollector) AddCounter(name string, value int64) {
	atomic.AddInt64(m.cell(m.counters, name), value)
}

func (m *MetricsCollector) GetCounterValue(name string) int64 {
	return atomic.LoadInt64(m.cell(m.counters, name))
}

func (m *MetricsCollector) IncGauge(name string) {
	atomic.AddInt64(m.cell(m.gauges, name), 1)
}

func (m *MetricsCollector) DecGauge(name string) {
	atomic.AddInt64(m.cell(m.gauges, name), -1)
}

func (m *MetricsCollector) GetGauge(name string) int64 {
	return atomic.LoadInt64(m.cell(m.gauges, name))
}

// RecordHistogram adds one observation.
func (m *MetricsCollector) RecordHistogram(name string, value int64) {
	m.mu.RLock()
	histogram, exists := m.histograms[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		histogram, exists = m.histograms[name]
		if !exists {
			histogram = &Histogram{min: value, max: value}
			m.histograms[name] = histogram
		}
		m.mu.Unlock()
	}

	histogram.mu.Lock()
	defer histogram.mu.Unlock()

	histogram.count++
	histogram.sum += value
	if value < histogram.min {
		histogram.min = value
	}
	if value > histogram.max {
		histogram.max = value
	}
}

// GetMetrics returns a snapshot of all metrics.
func (m *MetricsCollector) GetMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counters := make(map[string]int64, len(m.counters))
	for name, v := range m.counters {
		counters[name] = atomic.LoadInt64(v)
	}

	gauges := make(map[string]int64, len(m.gauges))
	for name, v := range m.gauges {
		gauges[name] = atomic.LoadInt64(v)
	}

	histograms := make(map[string]map[string]int64, len(m.histograms))
	for name, h := range m.histograms {
		h.mu.Lock()
		histograms[name] = map[string]int64{
			"count": h.count,
			"sum":   h.sum,
			"min":   h.min,
			"max":   h.max,
		}
		h.mu.Unlock()
	}

	return map[string]interface{}{
		"counters":   counters,
		"gauges":     gauges,
		"histograms": histograms,
	}
}

// DesignMetrics records request-level metrics for the design flows.
type DesignMetrics struct {
	metrics *MetricsCollector
	logger  *Logger
}

// NewDesignMetrics binds to the global collector and logger.
func NewDesignMetrics() *DesignMetrics {
	return NewDesignMetricsWith(GetMetricsCollector())
}

// NewDesignMetricsWith records into c instead of the global collector.
func NewDesignMetricsWith(c *MetricsCollector) *DesignMetrics {
	return &DesignMetrics{
		metrics: c,
		logger:  GetLogger(),
	}
}

// Collector returns the underlying collector.
func (dm *DesignMetrics) Collector() *MetricsCollector {
	return dm.metrics
}

// RecordAPIRequest records one HTTP request.
func (dm *DesignMetrics) RecordAPIRequest(route, method string, statusCode int, duration time.Duration) {
	dm.metrics.IncrementCounter("api_requests_total")
	dm.metrics.IncrementCounter("api_requests_" + method + "_" + route)
	dm.metrics.RecordHistogram("api_response_time_ms", duration.Milliseconds())
	dm.metrics.IncrementCounter("api_responses_" + strconv.Itoa(statusCode/100) + "xx")
}

// RecordLLMRequest records one completion call.
func (dm *DesignMetrics) RecordLLMRequest(provider, model string, tokensUsed int, duration time.Duration, err error) {
	dm.metrics.IncrementCounter("llm_requests_total")
	dm.metrics.IncrementCounter("llm_requests_" + provider)
	if err != nil {
		dm.metrics.IncrementCounter("llm_errors_total")
	}
	dm.metrics.AddCounter("llm_tokens_total", int64(tokensUsed))
	dm.metrics.RecordHistogram("llm_response_time_ms", duration.Milliseconds())

	dm.logger.Debug("LLM request completed", map[string]interface{}{
		"provider":    provider,
		"model":       model,
		"tokens":      tokensUsed,
		"duration_ms": duration.Milliseconds(),
	})
}

// RecordGeneration records the outcome of one design generation.
func (dm *DesignMetrics) RecordGeneration(theme string, ok bool) {
	dm.metrics.IncrementCounter("designs_requested_total")
	dm.metrics.IncrementCounter("designs_theme_" + theme)
	if ok {
		dm.metrics.IncrementCounter("designs_generated_total")
	} else {
		dm.metrics.IncrementCounter("designs_failed_total")
	}
}

// RecordAnalysis records the outcome of one feasibility analysis.
func (dm *DesignMetrics) RecordAnalysis(ok bool) {
	dm.metrics.IncrementCounter("analyses_requested_total")
	if ok {
		dm.metrics.IncrementCounter("analyses_completed_total")
	} else {
		dm.metrics.IncrementCounter("analyses_failed_total")
	}
}

// InFlight tracks a running request under name; call the returned func when done.
func (dm *DesignMetrics) InFlight(name string) func() {
	dm.metrics.IncGauge(name)
	return func() { dm.metrics.DecGauge(name) }
}
