package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MeetingMetrics holds all Prometheus metrics for meeting monitoring.
type MeetingMetrics struct {
	// Ingestion
	FragmentsTotal *prometheus.CounterVec
	SpeakersActive prometheus.Gauge

	// Scoring
	TicksTotal      *prometheus.CounterVec
	TickSeconds     prometheus.Histogram
	OverallScore    *prometheus.GaugeVec
	DimensionScore  *prometheus.GaugeVec
	InsightsTotal   *prometheus.CounterVec
	ProfileSwitches *prometheus.CounterVec

	// Classification
	ClassificationsTotal *prometheus.CounterVec
	ClassificationConf   prometheus.Histogram
	SemanticSeconds      prometheus.Histogram
	CollaboratorErrors   *prometheus.CounterVec

	// Sinks
	SinkWritesTotal *prometheus.CounterVec
}

// DefaultMeetingMetrics creates metrics registered with the default registerer.
func DefaultMeetingMetrics() *MeetingMetrics {
	return NewMeetingMetrics(prometheus.DefaultRegisterer)
}

// NewMeetingMetrics creates a new set of meeting metrics.
func NewMeetingMetrics(reg prometheus.Registerer) *MeetingMetrics {
	factory := promauto.With(reg)

	return &MeetingMetrics{
		FragmentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meetiq_fragments_total",
				Help: "Transcript fragments ingested",
			},
			[]string{"attribution"},
		),
		SpeakersActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "meetiq_speakers",
				Help: "Speakers detected in the current meeting",
			},
		),

		TicksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meetiq_ticks_total",
				Help: "Scoring ticks by readiness",
			},
			[]string{"ready"},
		),
		TickSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "meetiq_tick_seconds",
				Help:    "Scoring tick latency",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
			},
		),
		OverallScore: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "meetiq_overall_score",
				Help: "Latest overall meeting score",
			},
			[]string{"profile"},
		),
		DimensionScore: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "meetiq_dimension_score",
				Help: "Latest score per dimension",
			},
			[]string{"dimension"},
		),
		InsightsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meetiq_insights_total",
				Help: "Insights emitted by severity",
			},
			[]string{"severity", "dimension"},
		),
		ProfileSwitches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meetiq_profile_switches_total",
				Help: "Automatic profile switches",
			},
			[]string{"from", "to"},
		),

		ClassificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meetiq_classifications_total",
				Help: "Meeting type classifications by detected type",
			},
			[]string{"type"},
		),
		ClassificationConf: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "meetiq_classification_confidence",
				Help:    "Classification confidence (0-100)",
				Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
			},
		),
		SemanticSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "meetiq_semantic_seconds",
				Help:    "Semantic classifier latency",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		),
		CollaboratorErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meetiq_collaborator_errors_total",
				Help: "Collaborator failures by stage and error code",
			},
			[]string{"stage", "code"},
		),

		SinkWritesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meetiq_sink_writes_total",
				Help: "Report sink writes",
			},
			[]string{"sink", "kind", "status"},
		),
	}
}

// RecordFragment records an ingested fragment.
func (m *MeetingMetrics) RecordFragment(attribution string) {
	m.FragmentsTotal.WithLabelValues(attribution).Inc()
}

// SetSpeakers sets the current speaker count.
func (m *MeetingMetrics) SetSpeakers(n int) {
	m.SpeakersActive.Set(float64(n))
}

// RecordTick records a tick and its latency.
func (m *MeetingMetrics) RecordTick(ready bool, seconds float64) {
	label := "false"
	if ready {
		label = "true"
	}
	m.TicksTotal.WithLabelValues(label).Inc()
	m.TickSeconds.Observe(seconds)
}

// SetScore sets the latest overall score.
func (m *MeetingMetrics) SetScore(profile string, score int) {
	m.OverallScore.Reset()
	m.OverallScore.WithLabelValues(profile).Set(float64(score))
}

// SetDimension sets the latest value of a dimension.
func (m *MeetingMetrics) SetDimension(dimension string, value int) {
	m.DimensionScore.WithLabelValues(dimension).Set(float64(value))
}

// RecordInsight records an emitted insight.
func (m *MeetingMetrics) RecordInsight(severity, dimension string) {
	m.InsightsTotal.WithLabelValues(severity, dimension).Inc()
}

// RecordProfileSwitch records an automatic profile switch.
func (m *MeetingMetrics) RecordProfileSwitch(from, to string) {
	m.ProfileSwitches.WithLabelValues(from, to).Inc()
}

// RecordClassification records a classification result.
func (m *MeetingMetrics) RecordClassification(meetingType string, confidence int) {
	m.ClassificationsTotal.WithLabelValues(meetingType).Inc()
	m.ClassificationConf.Observe(float64(confidence))
}

// RecordSemanticLatency records a semantic classifier call.
func (m *MeetingMetrics) RecordSemanticLatency(seconds float64) {
	m.SemanticSeconds.Observe(seconds)
}

// RecordCollaboratorError records a classified collaborator failure.
func (m *MeetingMetrics) RecordCollaboratorError(stage, code string) {
	m.CollaboratorErrors.WithLabelValues(stage, code).Inc()
}

// RecordSinkWrite records a sink write outcome.
func (m *MeetingMetrics) RecordSinkWrite(sink, kind, status string) {
	m.SinkWritesTotal.WithLabelValues(sink, kind, status).Inc()
}
