package metrics

import (
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/nakabonne/tstorage"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/load"
	"github.com/shirou/gopsutil/mem"
	"go.uber.org/zap"
)

const (
	MetricHTTPRequest  = "gateway_http_request"
	MetricHTTPLatency  = "gateway_http_latency_ms"
	MetricMessageSent  = "gateway_message_sent"
	MetricSystemCPU    = "system_cpu_percent"
	MetricSystemMemory = "system_mem_percent"
	MetricSystemLoad1  = "system_load1"
)

// Collector keeps process counters in memory and a time-series history on
// disk. Counters reset with the process; the series survive restarts.
type Collector struct {
	storage tstorage.Storage

	requests int64
	errors   int64
	messages int64
	started  time.Time
}

func New(workdir string) (*Collector, error) {
	storage, err := tstorage.NewStorage(
		tstorage.WithDataPath(filepath.Join(workdir, "metrics")),
		tstorage.WithTimestampPrecision(tstorage.Seconds),
		tstorage.WithRetention(7*24*time.Hour),
	)
	if err != nil {
		return nil, errors.Wrap(err, "metrics storage")
	}
	return &Collector{storage: storage, started: time.Now()}, nil
}

func (c *Collector) Close() error {
	return c.storage.Close()
}

// RecordRequest tallies one finished HTTP request.
func (c *Collector) RecordRequest(status int, latency time.Duration) {
	atomic.AddInt64(&c.requests, 1)
	if status >= 500 {
		atomic.AddInt64(&c.errors, 1)
	}
	c.insert(MetricHTTPRequest, 1)
	c.insert(MetricHTTPLatency, float64(latency.Milliseconds()))
}

// CountMessage tallies one successfully forwarded message.
func (c *Collector) CountMessage() {
	atomic.AddInt64(&c.messages, 1)
	c.insert(MetricMessageSent, 1)
}

// SampleSystem records one host resource sample. Run it on a schedule.
func (c *Collector) SampleSystem() {
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		c.insert(MetricSystemCPU, percents[0])
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		c.insert(MetricSystemMemory, vm.UsedPercent)
	}
	if avg, err := load.Avg(); err == nil {
		c.insert(MetricSystemLoad1, avg.Load1)
	}
}

func (c *Collector) insert(metric string, value float64) {
	err := c.storage.InsertRows([]tstorage.Row{
		{Metric: metric, DataPoint: tstorage.DataPoint{Timestamp: time.Now().Unix(), Value: value}},
	})
	if err != nil {
		zap.L().Warn("metrics insert failed", zap.String("metric", metric), zap.Error(err))
	}
}

// Snapshot summarizes the last hour plus process counters and the most
// recent host sample.
func (c *Collector) Snapshot() (map[string]interface{}, error) {
	now := time.Now().Unix()
	hourAgo := now - 3600

	latencies := c.values(MetricHTTPLatency, hourAgo, now)
	snap := map[string]interface{}{
		"uptime_sec":     int64(time.Since(c.started).Seconds()),
		"requests_total": atomic.LoadInt64(&c.requests),
		"errors_total":   atomic.LoadInt64(&c.errors),
		"messages_total": atomic.LoadInt64(&c.messages),
		"requests_1h":    len(c.values(MetricHTTPRequest, hourAgo, now)),
		"messages_1h":    len(c.values(MetricMessageSent, hourAgo, now)),
	}
	if len(latencies) > 0 {
		median, _ := stats.Median(latencies)
		p95, _ := stats.Percentile(latencies, 95)
		max, _ := stats.Max(latencies)
		snap["latency_ms"] = map[string]float64{"p50": median, "p95": p95, "max": max}
	}
	snap["system"] = map[string]float64{
		"cpu_percent": c.last(MetricSystemCPU, hourAgo, now),
		"mem_percent": c.last(MetricSystemMemory, hourAgo, now),
		"load1":       c.last(MetricSystemLoad1, hourAgo, now),
	}
	return snap, nil
}

func (c *Collector) values(metric string, start, end int64) []float64 {
	points, err := c.storage.Select(metric, nil, start, end)
	if err != nil {
		return nil
	}
	out := make([]float64, 0, len(points))
	for _, p := range points {
		out = append(out, p.Value)
	}
	return out
}

func (c *Collector) last(metric string, start, end int64) float64 {
	vals := c.values(metric, start, end)
	if len(vals) == 0 {
		return 0
	}
	return vals[len(vals)-1]
}
