package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/ytdl-client/internal/progress"
)

// PrometheusSink exports job lifecycle metrics: submissions, outcomes, the
// number of jobs in flight, per-source updates and job wall time.
type PrometheusSink struct {
	jobsSubmitted prometheus.Counter
	jobsFinished  *prometheus.CounterVec
	jobsRunning   prometheus.Gauge
	jobRuntime    *prometheus.HistogramVec
	updates       *prometheus.CounterVec

	mu      sync.Mutex
	running map[string]struct{}
}

// NewPrometheusSink registers the collectors against reg, or the default
// registerer when reg is nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		jobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ytdl_jobs_submitted_total",
			Help: "Jobs accepted by the backend.",
		}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ytdl_jobs_finished_total",
			Help: "Jobs that reached a terminal status, partitioned by result.",
		}, []string{"result"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ytdl_jobs_running",
			Help: "Jobs submitted but not yet terminal.",
		}),
		jobRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ytdl_job_runtime_seconds",
			Help:    "Wall time from submission to terminal status.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"result"}),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ytdl_job_updates_total",
			Help: "Status updates applied, partitioned by monitoring source.",
		}, []string{"source"}),
		running: make(map[string]struct{}),
	}
	for _, c := range []prometheus.Collector{s.jobsSubmitted, s.jobsFinished, s.jobsRunning, s.jobRuntime, s.updates} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		switch evt.Kind {
		case progress.KindSubmitted:
			s.jobsSubmitted.Inc()
			if _, ok := s.running[evt.JobID]; !ok {
				s.running[evt.JobID] = struct{}{}
				s.jobsRunning.Inc()
			}
		case progress.KindStatus:
			s.updates.WithLabelValues(string(evt.Source)).Inc()
		case progress.KindDone:
			s.finish(evt, "success")
		case progress.KindError:
			s.finish(evt, "error")
		}
	}
	return nil
}

func (s *PrometheusSink) finish(evt progress.Event, result string) {
	s.jobsFinished.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.jobRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if _, ok := s.running[evt.JobID]; ok {
		delete(s.running, evt.JobID)
		s.jobsRunning.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
