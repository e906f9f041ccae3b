// Package metrics exports scheduler and share statistics to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/robotalks/romi.go/pkg/cotask"
	"github.com/robotalks/romi.go/pkg/share"
)

const namespace = "romi"

var (
	taskRunsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "task", "runs_total"),
		"Number of times a task stepped.",
		[]string{"task"}, nil)
	taskFailuresDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "task", "failures_total"),
		"Number of steps returning an error.",
		[]string{"task"}, nil)
	taskOverrunsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "task", "overruns_total"),
		"Number of periods skipped because the task fell behind.",
		[]string{"task"}, nil)
	taskDurationDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "task", "duration_seconds"),
		"Step duration statistics.",
		[]string{"task", "stat"}, nil)
	taskLateDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "task", "late_seconds"),
		"Lateness statistics.",
		[]string{"task", "stat"}, nil)
	queueLenDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "queue", "length"),
		"Items waiting in a queue.",
		[]string{"queue"}, nil)
	queueCapDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "queue", "capacity"),
		"Queue capacity.",
		[]string{"queue"}, nil)
	queueOverrunsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "queue", "overruns_total"),
		"Items dropped or rejected because the queue was full.",
		[]string{"queue"}, nil)
	shareValueDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "share", "value"),
		"Current value of a numeric share.",
		[]string{"share"}, nil)
)

type queueStats interface {
	Len() int
	Cap() int
	Overruns() uint64
}

type floatShare interface {
	Get() float64
}

type boolShare interface {
	Get() bool
}

// Collector reads statistics on every scrape.
type Collector struct {
	Scheduler *cotask.Scheduler
	Registry  *share.Registry
}

// NewCollector creates a collector. Either argument may be nil.
func NewCollector(s *cotask.Scheduler, r *share.Registry) *Collector {
	return &Collector{Scheduler: s, Registry: r}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		taskRunsDesc, taskFailuresDesc, taskOverrunsDesc, taskDurationDesc, taskLateDesc,
		queueLenDesc, queueCapDesc, queueOverrunsDesc, shareValueDesc,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.Scheduler != nil {
		for _, t := range c.Scheduler.Tasks() {
			c.collectTask(ch, t)
		}
	}
	if c.Registry != nil {
		for _, item := range c.Registry.Items() {
			collectItem(ch, item)
		}
	}
}

func (c *Collector) collectTask(ch chan<- prometheus.Metric, t *cotask.Task) {
	name := t.Name()
	st := t.Stats()
	ch <- prometheus.MustNewConstMetric(taskRunsDesc, prometheus.CounterValue, float64(st.Runs), name)
	ch <- prometheus.MustNewConstMetric(taskFailuresDesc, prometheus.CounterValue, float64(st.Failures), name)
	ch <- prometheus.MustNewConstMetric(taskOverrunsDesc, prometheus.CounterValue, float64(st.Overruns), name)
	ch <- prometheus.MustNewConstMetric(taskDurationDesc, prometheus.GaugeValue, st.AvgDuration.Seconds(), name, "avg")
	ch <- prometheus.MustNewConstMetric(taskDurationDesc, prometheus.GaugeValue, st.MaxDuration.Seconds(), name, "max")
	ch <- prometheus.MustNewConstMetric(taskDurationDesc, prometheus.GaugeValue, st.StdDuration.Seconds(), name, "stddev")
	ch <- prometheus.MustNewConstMetric(taskLateDesc, prometheus.GaugeValue, st.AvgLate.Seconds(), name, "avg")
	ch <- prometheus.MustNewConstMetric(taskLateDesc, prometheus.GaugeValue, st.MaxLate.Seconds(), name, "max")
}

func collectItem(ch chan<- prometheus.Metric, item share.Item) {
	name := item.Name()
	switch v := item.(type) {
	case queueStats:
		ch <- prometheus.MustNewConstMetric(queueLenDesc, prometheus.GaugeValue, float64(v.Len()), name)
		ch <- prometheus.MustNewConstMetric(queueCapDesc, prometheus.GaugeValue, float64(v.Cap()), name)
		ch <- prometheus.MustNewConstMetric(queueOverrunsDesc, prometheus.CounterValue, float64(v.Overruns()), name)
	case floatShare:
		ch <- prometheus.MustNewConstMetric(shareValueDesc, prometheus.GaugeValue, v.Get(), name)
	case boolShare:
		var val float64
		if v.Get() {
			val = 1
		}
		ch <- prometheus.MustNewConstMetric(shareValueDesc, prometheus.GaugeValue, val, name)
	}
}

// NewRegistry creates a Prometheus registry with the collector and the
// standard Go/process collectors.
func NewRegistry(c *Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}
