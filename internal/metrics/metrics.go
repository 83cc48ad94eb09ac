package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups the collectors for the capture flow. Each instance owns
// its collectors so tests can create as many as they like.
type Metrics struct {
	SamplesTaken      prometheus.Counter
	Verdicts          *prometheus.CounterVec
	VerifyFailures    prometheus.Counter
	StaleVerdicts     prometheus.Counter
	VerifyDuration    prometheus.Histogram
	Persists          *prometheus.CounterVec
	PositionsCaptured *prometheus.CounterVec
	Sessions          *prometheus.CounterVec
	CaptureActive     prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		SamplesTaken: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "poseframe_samples_total",
			Help: "Frames sampled and sent for verification",
		}),
		Verdicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poseframe_verdicts_total",
				Help: "Verification verdicts by position and outcome",
			},
			[]string{"position", "outcome"},
		),
		VerifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "poseframe_verify_failures_total",
			Help: "Verification requests that failed at the transport or protocol level",
		}),
		StaleVerdicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "poseframe_stale_verdicts_total",
			Help: "Verdicts discarded because the session had moved on",
		}),
		VerifyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "poseframe_verify_duration_seconds",
			Help:    "Round-trip time of verification requests",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		Persists: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poseframe_persists_total",
				Help: "Save attempts by status",
			},
			[]string{"status"},
		),
		PositionsCaptured: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poseframe_positions_captured_total",
				Help: "Slots filled by position",
			},
			[]string{"position"},
		),
		Sessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poseframe_sessions_total",
				Help: "Capture sessions by how they ended",
			},
			[]string{"result"},
		),
		CaptureActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "poseframe_capture_active",
			Help: "1 while a capture session is sampling",
		}),
	}
}

// Register adds every collector to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.SamplesTaken,
		m.Verdicts,
		m.VerifyFailures,
		m.StaleVerdicts,
		m.VerifyDuration,
		m.Persists,
		m.PositionsCaptured,
		m.Sessions,
		m.CaptureActive,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
